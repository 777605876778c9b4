package controllers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/cppla/aiboard/services"
	"github.com/cppla/aiboard/storage"
)

// multipart field names accepted for the attachment
var uploadFields = []string{"files", "file"}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			return f.Tag.Get("form")
		})
		// bcrypt only reads the first 72 bytes, and max counts runes
		_ = validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
			limit, err := strconv.Atoi(fl.Param())
			return err == nil && len(fl.Field().String()) <= limit
		})
	})
	return validate
}

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func validationFailed(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: map[string]string{}}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = describeRule(fe)
	}
	return out
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "maxbytes":
		return fmt.Sprintf("must be at most %s bytes", fe.Param())
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return "is invalid"
	}
}

type articleFields struct {
	Title    string `form:"title" validate:"required,max=255"`
	Name     string `form:"name" validate:"required,max=64"`
	Content  string `form:"content" validate:"required"`
	Password string `form:"password" validate:"required,maxbytes=72"`
}

type editFields struct {
	articleFields
	PreviousFileName string `form:"previous_file_name" validate:"max=255"`
	PreviousFileSize int64  `form:"previous_file_size" validate:"gte=0"`
}

type deleteFields struct {
	Password string `form:"password" validate:"required,maxbytes=72"`
}

func readArticleFields(ctx *gin.Context) articleFields {
	return articleFields{
		Title:    strings.TrimSpace(ctx.PostForm("title")),
		Name:     strings.TrimSpace(ctx.PostForm("name")),
		Content:  ctx.PostForm("content"),
		Password: ctx.PostForm("password"),
	}
}

// parseWriteForm turns a multipart create request into a validated WriteInput.
func parseWriteForm(ctx *gin.Context) (services.WriteInput, error) {
	fields := readArticleFields(ctx)
	if err := formValidator().Struct(fields); err != nil {
		return services.WriteInput{}, validationFailed(err)
	}
	files, err := readUploads(ctx)
	if err != nil {
		return services.WriteInput{}, err
	}
	return services.WriteInput{
		Title:    fields.Title,
		Name:     fields.Name,
		Content:  fields.Content,
		Password: fields.Password,
		Files:    files,
	}, nil
}

// parseEditForm turns a multipart edit request into a validated EditInput.
func parseEditForm(ctx *gin.Context) (services.EditInput, error) {
	id, err := parseID(ctx)
	if err != nil {
		return services.EditInput{}, err
	}

	fields := editFields{
		articleFields:    readArticleFields(ctx),
		PreviousFileName: ctx.PostForm("previous_file_name"),
	}
	if raw := strings.TrimSpace(ctx.PostForm("previous_file_size")); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return services.EditInput{}, newValidationError("previous_file_size", "must be a number")
		}
		fields.PreviousFileSize = size
	}
	if err := formValidator().Struct(fields); err != nil {
		return services.EditInput{}, validationFailed(err)
	}

	// the hidden field comes back from the client and must stay a bare name
	if strings.TrimSpace(fields.PreviousFileName) != "" {
		name, err := storage.CleanUploadName(fields.PreviousFileName)
		if err != nil {
			return services.EditInput{}, newValidationError("previous_file_name", "is invalid")
		}
		fields.PreviousFileName = name
	} else {
		fields.PreviousFileName = ""
		fields.PreviousFileSize = 0
	}

	files, err := readUploads(ctx)
	if err != nil {
		return services.EditInput{}, err
	}
	return services.EditInput{
		ID:               id,
		Title:            fields.Title,
		Name:             fields.Name,
		Content:          fields.Content,
		Password:         fields.Password,
		Files:            files,
		PreviousFileName: fields.PreviousFileName,
		PreviousFileSize: fields.PreviousFileSize,
	}, nil
}

func parseDeleteForm(ctx *gin.Context) (uint, string, error) {
	id, err := parseID(ctx)
	if err != nil {
		return 0, "", err
	}
	fields := deleteFields{Password: ctx.PostForm("password")}
	if err := formValidator().Struct(fields); err != nil {
		return 0, "", validationFailed(err)
	}
	return id, fields.Password, nil
}

func parseID(ctx *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, newValidationError("id", "must be a positive integer")
	}
	return uint(id), nil
}

// readUploads collects the submitted files. A request without a multipart body has none.
func readUploads(ctx *gin.Context) ([]services.Upload, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, newValidationError("files", "unreadable multipart body")
	}
	var uploads []services.Upload
	for _, key := range uploadFields {
		for _, fh := range form.File[key] {
			uploads = append(uploads, toUpload(fh))
		}
	}
	return uploads, nil
}

func toUpload(fh *multipart.FileHeader) services.Upload {
	return services.Upload{
		Filename: fh.Filename,
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}
