package controllers

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/aiboard/repository"
	"github.com/cppla/aiboard/services"
	"github.com/cppla/aiboard/storage"
	"github.com/cppla/aiboard/utils"
)

// BoardController exposes the bulletin board over HTTP.
type BoardController struct {
	board  *services.BoardService
	files  storage.Storage
	logger *zap.Logger
}

// NewBoardController creates a new BoardController instance.
func NewBoardController(board *services.BoardService, files storage.Storage, logger *zap.Logger) *BoardController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoardController{board: board, files: files, logger: logger}
}

// List returns one page of articles, filtered when search_field and search_query are both set.
func (b *BoardController) List(ctx *gin.Context) {
	res, err := b.board.List(ctx.Request.Context(), services.ListQuery{
		Page:        ctx.Query("page"),
		SearchField: ctx.Query("search_field"),
		SearchQuery: ctx.Query("search_query"),
	})
	if err != nil {
		b.writeServiceError(ctx, err)
		return
	}
	utils.Success(ctx, res)
}

// Detail returns a single article with its attachment presentation.
func (b *BoardController) Detail(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		b.writeServiceError(ctx, err)
		return
	}
	view, err := b.board.Detail(ctx.Request.Context(), id)
	if err != nil {
		b.writeServiceError(ctx, err)
		return
	}
	utils.Success(ctx, view)
}

// Write creates an article from a multipart form.
func (b *BoardController) Write(ctx *gin.Context) {
	in, err := parseWriteForm(ctx)
	if err != nil {
		b.writeServiceError(ctx, err)
		return
	}
	out, err := b.board.Write(ctx.Request.Context(), in)
	if err != nil {
		b.writeServiceError(ctx, err)
		return
	}
	b.writeOutcome(ctx, out)
}

// EditForm returns the current values for the edit form.
func (b *BoardController) EditForm(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		b.writeServiceError(ctx, err)
		return
	}
	form, err := b.board.EditForm(ctx.Request.Context(), id)
	if err != nil {
		b.writeServiceError(ctx, err)
		return
	}
	utils.Success(ctx, form)
}

// Edit updates an article when the submitted password matches.
func (b *BoardController) Edit(ctx *gin.Context) {
	in, err := parseEditForm(ctx)
	if err != nil {
		b.writeServiceError(ctx, err)
		return
	}
	out, err := b.board.Edit(ctx.Request.Context(), in)
	if err != nil {
		b.writeServiceError(ctx, err)
		return
	}
	b.writeOutcome(ctx, out)
}

// DeleteForm returns the delete confirmation state.
func (b *BoardController) DeleteForm(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		b.writeServiceError(ctx, err)
		return
	}
	utils.Success(ctx, b.board.DeleteForm(id))
}

// Delete removes an article when the submitted password matches.
func (b *BoardController) Delete(ctx *gin.Context) {
	id, password, err := parseDeleteForm(ctx)
	if err != nil {
		b.writeServiceError(ctx, err)
		return
	}
	out, err := b.board.Delete(ctx.Request.Context(), id, password)
	if err != nil {
		b.writeServiceError(ctx, err)
		return
	}
	b.writeOutcome(ctx, out)
}

// DeleteCompleted is the static view shown after a deletion.
func (b *BoardController) DeleteCompleted(ctx *gin.Context) {
	utils.Success(ctx, utils.Navigation{Redirect: services.ListPath, Message: services.MsgDeleted})
}

// Download streams a stored attachment.
func (b *BoardController) Download(ctx *gin.Context) {
	name, err := storage.CleanUploadName(ctx.Param("name"))
	if err != nil || name != ctx.Param("name") {
		utils.Error(ctx, http.StatusNotFound, 40430, "file not found")
		return
	}
	rc, err := b.files.Open(ctx.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40430, "file not found")
			return
		}
		b.logger.Error("open attachment", zap.String("file_name", name), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to read file")
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := "attachment"
	if services.IsImage(name) {
		disposition = "inline"
	}
	ctx.Header("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": name}))
	ctx.Header("X-Content-Type-Options", "nosniff")
	ctx.Header("Content-Type", contentType)
	ctx.Status(http.StatusOK)
	if _, err := io.Copy(ctx.Writer, rc); err != nil {
		b.logger.Warn("stream attachment", zap.String("file_name", name), zap.Error(err))
	}
}

func (b *BoardController) writeOutcome(ctx *gin.Context, out *services.Outcome) {
	if out.Success {
		utils.Navigate(ctx, out.Redirect, out.Message)
		return
	}
	utils.Fail(ctx, http.StatusForbidden, 40310, out.Message, out.Form)
}

// writeServiceError maps errors from parsing and the service layer to the response envelope.
func (b *BoardController) writeServiceError(ctx *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		utils.Fail(ctx, http.StatusBadRequest, 40030, "invalid request payload", verr)
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40430, "article not found")
	case errors.Is(err, repository.ErrInvalidSearchField):
		utils.Fail(ctx, http.StatusBadRequest, 40031, "invalid search field",
			&ValidationError{Fields: map[string]string{"search_field": "must be Name, Title or Content"}})
	case errors.Is(err, storage.ErrInvalidFileName):
		utils.Fail(ctx, http.StatusBadRequest, 40032, "invalid file name",
			&ValidationError{Fields: map[string]string{"files": "file name is empty"}})
	case errors.Is(err, services.ErrUploadTooLarge):
		b.logger.Warn("attachment rejected", zap.Error(err))
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41330, "attachment too large")
	case errors.Is(err, services.ErrUploadIO):
		b.logger.Error("attachment upload failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to save attachment")
	default:
		b.logger.Error("board request failed", zap.String("path", ctx.Request.URL.Path), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50030, "internal server error")
	}
}
