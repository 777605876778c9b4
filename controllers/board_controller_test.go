package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/aiboard/models"
	"github.com/cppla/aiboard/repository"
	"github.com/cppla/aiboard/services"
	"github.com/cppla/aiboard/storage"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type harness struct {
	engine *gin.Engine
	store  *repository.GormArticleStore
	files  *storage.Local
}

func newHarness(t *testing.T, opts ...services.Option) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "board.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := repository.NewGormArticleStore(db, repository.WithHashCost(bcrypt.MinCost))
	require.NoError(t, store.Migrate(context.Background()))
	files, err := storage.NewLocal(filepath.Join(dir, "files"))
	require.NoError(t, err)

	opts = append([]services.Option{services.WithAttachmentIndex(store)}, opts...)
	ctrl := NewBoardController(services.NewBoardService(store, files, opts...), files, nil)

	r := gin.New()
	r.GET("/files/:name", ctrl.Download)
	g := r.Group("/api/v1/board")
	g.GET("", ctrl.List)
	g.POST("", ctrl.Write)
	g.GET("/delete-completed", ctrl.DeleteCompleted)
	g.GET("/:id", ctrl.Detail)
	g.GET("/:id/edit", ctrl.EditForm)
	g.POST("/:id/edit", ctrl.Edit)
	g.GET("/:id/delete", ctrl.DeleteForm)
	g.POST("/:id/delete", ctrl.Delete)

	return &harness{engine: r, store: store, files: files}
}

type fileField struct {
	name string
	body string
}

func multipartBody(t *testing.T, fields map[string]string, files ...fileField) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := w.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, f.body)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func (h *harness) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (h *harness) postMultipart(t *testing.T, path string, fields map[string]string, files ...fileField) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	body, contentType := multipartBody(t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	return h.do(t, req)
}

func (h *harness) postForm(t *testing.T, path string, values url.Values) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(t, req)
}

func (h *harness) get(t *testing.T, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	return h.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func article(title string) map[string]string {
	return map[string]string{"title": title, "name": "Alice", "content": "World", "password": "p1"}
}

func (h *harness) latestID(t *testing.T) uint {
	t.Helper()
	page, err := h.store.List(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, page)
	return page[0].ID
}

func idPath(id uint, suffix string) string {
	return "/api/v1/board/" + strconv.FormatUint(uint64(id), 10) + suffix
}

func TestWriteAndDetail(t *testing.T) {
	h := newHarness(t)

	w, env := h.postMultipart(t, "/api/v1/board", article("Hello"), fileField{"pic.png", "pngdata"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 0, env.Code)
	var nav struct {
		Redirect string `json:"redirect"`
		Message  string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &nav))
	require.Equal(t, services.ListPath, nav.Redirect)
	require.Equal(t, services.MsgSaved, nav.Message)

	id := h.latestID(t)
	w, env = h.get(t, idPath(id, ""))
	require.Equal(t, http.StatusOK, w.Code)
	var view struct {
		Article      map[string]interface{} `json:"article"`
		FileURL      string                 `json:"file_url"`
		ImagePreview string                 `json:"image_preview"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.EqualValues(t, id, view.Article["id"])
	require.Equal(t, "Hello", view.Article["title"])
	require.Equal(t, "pic.png", view.Article["file_name"])
	require.NotContains(t, view.Article, "password", "password hash never leaves the server")
	require.Equal(t, "/files/pic.png", view.FileURL)
	require.Contains(t, view.ImagePreview, "<img src='/files/pic.png'>")

	w, _ = h.get(t, "/files/pic.png")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "pngdata", w.Body.String())
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestWrite_Validation(t *testing.T) {
	h := newHarness(t)
	fields := article("")
	delete(fields, "password")

	w, env := h.postMultipart(t, "/api/v1/board", fields)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, 40030, env.Code)
	var verr ValidationError
	require.NoError(t, json.Unmarshal(env.Data, &verr))
	assert.Contains(t, verr.Fields, "title")
	assert.Contains(t, verr.Fields, "password")
	assert.NotContains(t, verr.Fields, "name")

	n, err := h.store.Count(context.Background(), "", "")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestWrite_PasswordLimitCountsBytes(t *testing.T) {
	h := newHarness(t)

	fields := article("accents")
	fields["password"] = strings.Repeat("é", 72)
	w, env := h.postMultipart(t, "/api/v1/board", fields)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	require.Equal(t, 40030, env.Code)
	var verr ValidationError
	require.NoError(t, json.Unmarshal(env.Data, &verr))
	assert.Equal(t, "must be at most 72 bytes", verr.Fields["password"])

	fields["password"] = strings.Repeat("é", 36)
	w, _ = h.postMultipart(t, "/api/v1/board", fields)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := h.latestID(t)

	w, env = h.postForm(t, idPath(id, "/delete"), url.Values{"password": {strings.Repeat("é", 72)}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, 40030, env.Code)

	w, _ = h.postForm(t, idPath(id, "/delete"), url.Values{"password": {strings.Repeat("é", 36)}})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestWrite_FieldLengths(t *testing.T) {
	h := newHarness(t)

	fields := article("long name")
	fields["name"] = strings.Repeat("n", models.NameMaxLength+1)
	w, env := h.postMultipart(t, "/api/v1/board", fields)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var verr ValidationError
	require.NoError(t, json.Unmarshal(env.Data, &verr))
	assert.Contains(t, verr.Fields, "name")

	w, _ = h.postMultipart(t, "/api/v1/board", article(strings.Repeat(`"`, models.TitleMaxLength)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored, err := h.store.GetByID(context.Background(), h.latestID(t))
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("&#34;", models.TitleMaxLength), stored.Title)

	w, _ = h.postMultipart(t, "/api/v1/board", article(strings.Repeat("t", models.TitleMaxLength+1)))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWrite_TooLarge(t *testing.T) {
	h := newHarness(t, services.WithMaxUploadBytes(3))
	w, env := h.postMultipart(t, "/api/v1/board", article("big"), fileField{"big.bin", "0123456789"})
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	require.Equal(t, 41330, env.Code)
}

func TestList_SearchAndInvalidField(t *testing.T) {
	h := newHarness(t)
	for _, title := range []string{"golang", "rust", "golang generics"} {
		w, _ := h.postMultipart(t, "/api/v1/board", article(title))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, env := h.get(t, "/api/v1/board?search_field=Title&search_query=golang")
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Articles   []json.RawMessage `json:"articles"`
		SearchMode bool              `json:"search_mode"`
		Pager      services.Pager    `json:"pager"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.True(t, res.SearchMode)
	require.Len(t, res.Articles, 2)
	require.EqualValues(t, 2, res.Pager.TotalRecords)

	w, env = h.get(t, "/api/v1/board?page=abc")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.False(t, res.SearchMode)
	require.Len(t, res.Articles, 3)
	require.Equal(t, 1, res.Pager.PageNumber)

	w, env = h.get(t, "/api/v1/board?search_field=Password&search_query=x")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, 40031, env.Code)
}

func TestDetail_NotFoundAndBadID(t *testing.T) {
	h := newHarness(t)

	w, env := h.get(t, "/api/v1/board/404")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, 40430, env.Code)

	w, _ = h.get(t, "/api/v1/board/abc")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.get(t, "/api/v1/board/404/edit")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestEdit(t *testing.T) {
	h := newHarness(t)
	w, _ := h.postMultipart(t, "/api/v1/board", article(`Tom & Jerry`), fileField{"keep.txt", "abc"})
	require.Equal(t, http.StatusOK, w.Code)
	id := h.latestID(t)

	w, env := h.get(t, idPath(id, "/edit"))
	require.Equal(t, http.StatusOK, w.Code)
	var form services.EditForm
	require.NoError(t, json.Unmarshal(env.Data, &form))
	require.Equal(t, "Tom & Jerry", form.Title)
	require.Equal(t, "keep.txt", form.PreviousFileName)
	require.EqualValues(t, 3, form.PreviousFileSize)

	fields := article("Tom & Jerry 2")
	fields["password"] = "wrong"
	fields["previous_file_name"] = form.PreviousFileName
	fields["previous_file_size"] = "3"
	w, env = h.postMultipart(t, idPath(id, "/edit"), fields)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, services.MsgUpdateRejected, env.Message)
	var rejected services.EditForm
	require.NoError(t, json.Unmarshal(env.Data, &rejected))
	require.Equal(t, "Tom & Jerry 2", rejected.Title)

	fields["password"] = "p1"
	w, env = h.postMultipart(t, idPath(id, "/edit"), fields)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var nav struct {
		Redirect string `json:"redirect"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &nav))
	require.Equal(t, services.DetailPath(id), nav.Redirect)

	a, err := h.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Tom &amp; Jerry 2", a.Title)
	require.Equal(t, "keep.txt", a.FileName)
	require.EqualValues(t, 3, a.FileSize)
}

func TestEdit_PreviousFileNameIsCleaned(t *testing.T) {
	h := newHarness(t)
	w, _ := h.postMultipart(t, "/api/v1/board", article("x"))
	require.Equal(t, http.StatusOK, w.Code)
	id := h.latestID(t)

	fields := article("x")
	fields["previous_file_name"] = "../../etc/passwd"
	fields["previous_file_size"] = "10"
	w, _ = h.postMultipart(t, idPath(id, "/edit"), fields)
	require.Equal(t, http.StatusOK, w.Code)

	a, err := h.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "passwd", a.FileName)

	fields["previous_file_size"] = "-1"
	w, env := h.postMultipart(t, idPath(id, "/edit"), fields)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, 40030, env.Code)
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	w, _ := h.postMultipart(t, "/api/v1/board", article("bye"))
	require.Equal(t, http.StatusOK, w.Code)
	id := h.latestID(t)

	w, env := h.get(t, idPath(id, "/delete"))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"id":`+strconv.FormatUint(uint64(id), 10)+`}`, string(env.Data))

	w, env = h.postForm(t, idPath(id, "/delete"), url.Values{"password": {"nope"}})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, services.MsgDeleteRejected, env.Message)

	w, _ = h.postForm(t, idPath(id, "/delete"), url.Values{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, env = h.postForm(t, idPath(id, "/delete"), url.Values{"password": {"p1"}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"redirect":"/board"`)

	w, _ = h.get(t, idPath(id, ""))
	require.Equal(t, http.StatusNotFound, w.Code)

	w, env = h.get(t, "/api/v1/board/delete-completed")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), services.MsgDeleted)
}

func TestDownload_NotFound(t *testing.T) {
	h := newHarness(t)
	w, env := h.get(t, "/files/missing.txt")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, 40430, env.Code)
}
