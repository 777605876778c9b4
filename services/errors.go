package services

import (
	"fmt"

	"github.com/Laisky/errors/v2"

	"github.com/cppla/aiboard/repository"
)

var (
	// ErrNotFound is returned for detail/edit of a missing article.
	ErrNotFound = repository.ErrNotFound
	// ErrUploadIO matches any failure while storing uploaded bytes.
	ErrUploadIO = errors.New("attachment upload failed")
	// ErrUploadTooLarge is an ErrUploadIO for files over the size limit.
	ErrUploadTooLarge = errors.New("attachment exceeds size limit")
)

// UploadError wraps the cause of a failed attachment write. It matches ErrUploadIO.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %q: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUploadIO) hold for every UploadError.
func (e *UploadError) Is(target error) bool {
	return target == ErrUploadIO
}
