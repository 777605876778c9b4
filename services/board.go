// Package services holds the bulletin board logic between the HTTP layer and the stores.
package services

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/cppla/aiboard/models"
	"github.com/cppla/aiboard/repository"
	"github.com/cppla/aiboard/storage"
	"github.com/cppla/aiboard/utils"
)

const (
	// ListPath is where the client goes after create and delete. Paths under it
	// are front-end routes; the router sends them on to the JSON API.
	ListPath = "/board"
	// AttachmentPathPrefix is the public path attachments are served under.
	AttachmentPathPrefix = "/files/"

	// NoFileMessage is shown in place of an attachment when there is none.
	NoFileMessage = "no file uploaded"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// DetailPath is the detail view of article id.
func DetailPath(id uint) string {
	return ListPath + "/" + strconv.FormatUint(uint64(id), 10)
}

// AttachmentURL is the public URL of a stored attachment.
func AttachmentURL(name string) string {
	return AttachmentPathPrefix + url.PathEscape(name)
}

// IsImage reports whether name has a previewable image extension.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// BoardService implements list, search, detail, write, edit and delete.
// It holds no per-request state and is safe for concurrent use.
type BoardService struct {
	store          repository.ArticleStore
	files          storage.Storage
	index          utils.AttachmentIndex
	logger         *zap.Logger
	maxUploadBytes int64
}

// Option configures a BoardService.
type Option func(*BoardService)

// WithLogger sets the logger, default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *BoardService) {
		s.logger = logger
	}
}

// WithMaxUploadBytes limits each attachment. Zero or negative means no limit.
func WithMaxUploadBytes(n int64) Option {
	return func(s *BoardService) {
		s.maxUploadBytes = n
	}
}

// WithAttachmentIndex lets Delete remove the attachment of a deleted article once nothing references it.
func WithAttachmentIndex(idx utils.AttachmentIndex) Option {
	return func(s *BoardService) {
		s.index = idx
	}
}

// NewBoardService creates a BoardService.
func NewBoardService(store repository.ArticleStore, files storage.Storage, opts ...Option) *BoardService {
	s := &BoardService{
		store:  store,
		files:  files,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListQuery is the external, one-based list request. All fields may be empty.
type ListQuery struct {
	Page        string
	SearchField string
	SearchQuery string
}

// ListResult is one page of articles plus paging metadata.
type ListResult struct {
	Articles    []models.Article `json:"articles"`
	SearchMode  bool             `json:"search_mode"`
	SearchField string           `json:"search_field,omitempty"`
	SearchQuery string           `json:"search_query,omitempty"`
	Pager       Pager            `json:"pager"`
}

// PageIndex converts a one-based page string to a zero-based index.
// Missing, malformed or non-positive values give 0.
func PageIndex(page string) int {
	n, err := strconv.Atoi(strings.TrimSpace(page))
	if err != nil || n < 1 {
		return 0
	}
	return n - 1
}

// List returns a page of articles, filtered when both a search field and query are given.
func (s *BoardService) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	field := strings.TrimSpace(q.SearchField)
	query := strings.TrimSpace(q.SearchQuery)
	searchMode := field != "" && query != ""
	pageIndex := PageIndex(q.Page)

	res := &ListResult{SearchMode: searchMode}
	var (
		total int64
		err   error
	)
	if !searchMode {
		if res.Articles, err = s.store.List(ctx, pageIndex); err != nil {
			return nil, err
		}
		if total, err = s.store.Count(ctx, "", ""); err != nil {
			return nil, err
		}
	} else {
		sf, err := repository.ParseSearchField(field)
		if err != nil {
			return nil, err
		}
		res.SearchField = string(sf)
		res.SearchQuery = query
		if res.Articles, err = s.store.Search(ctx, pageIndex, sf, query); err != nil {
			return nil, err
		}
		if total, err = s.store.Count(ctx, sf, query); err != nil {
			return nil, err
		}
	}

	res.Pager = newPager(ListPath, repository.PageSize, pageIndex+1, total, searchMode, res.SearchField, res.SearchQuery)
	return res, nil
}

// DetailView is an article with its attachment presentation resolved.
type DetailView struct {
	Article      *models.Article `json:"article"`
	FileName     string          `json:"file_name,omitempty"`
	FileURL      string          `json:"file_url,omitempty"`
	FileMessage  string          `json:"file_message,omitempty"`
	ImagePreview string          `json:"image_preview,omitempty"` // trusted HTML
}

// Detail loads article id. A missing id yields ErrNotFound.
func (s *BoardService) Detail(ctx context.Context, id uint) (*DetailView, error) {
	article, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &DetailView{Article: article}
	if !article.HasAttachment() {
		view.FileMessage = NoFileMessage
		return view, nil
	}
	view.FileName = article.FileName
	view.FileURL = AttachmentURL(article.FileName)
	if IsImage(article.FileName) {
		view.ImagePreview = fmt.Sprintf("<img src='%s'><br />", html.EscapeString(view.FileURL))
	}
	return view, nil
}

// EditForm is the state of the edit form, also redisplayed after a rejected edit.
type EditForm struct {
	ID               uint   `json:"id"`
	Title            string `json:"title"` // decoded, as the user typed it
	Name             string `json:"name"`
	Content          string `json:"content"`
	PreviousFileName string `json:"previous_file_name"`
	PreviousFileSize int64  `json:"previous_file_size"`
}

// EditForm loads article id for editing.
func (s *BoardService) EditForm(ctx context.Context, id uint) (*EditForm, error) {
	article, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	form := &EditForm{
		ID:      article.ID,
		Title:   decodeTitle(article.Title),
		Name:    article.Name,
		Content: article.Content,
	}
	if article.HasAttachment() {
		form.PreviousFileName = article.FileName
		form.PreviousFileSize = article.FileSize
	}
	return form, nil
}

// DeleteForm is the delete confirmation state.
type DeleteForm struct {
	ID uint `json:"id"`
}

// DeleteForm returns the confirmation state for article id.
func (s *BoardService) DeleteForm(id uint) *DeleteForm {
	return &DeleteForm{ID: id}
}

// Outcome is the navigation result of a mutation.
// On success Redirect is set; otherwise Message explains why and Form is the state to redisplay.
type Outcome struct {
	Success   bool        `json:"success"`
	Redirect  string      `json:"redirect,omitempty"`
	Message   string      `json:"message,omitempty"`
	ArticleID uint        `json:"article_id,omitempty"`
	Form      interface{} `json:"form,omitempty"`
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
