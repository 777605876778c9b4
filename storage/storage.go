// Package storage keeps article attachments in a single flat namespace.
package storage

import (
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"
)

var (
	// ErrNotFound is returned by Open when no attachment has the given name.
	ErrNotFound = errors.New("attachment not found")
	// ErrInvalidFileName is returned for names that are empty after cleaning.
	ErrInvalidFileName = errors.New("invalid file name")
	// ErrNameTaken is returned by Save when another writer already holds the name.
	ErrNameTaken = errors.New("attachment name taken")
)

// Existence reports whether a name is already taken.
type Existence interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// Storage persists attachment bytes under unique names.
type Storage interface {
	Existence
	// Save writes r under name and returns the number of bytes written.
	// It never replaces an existing file: if name is taken it returns ErrNameTaken.
	// On error nothing is left under name by this call.
	Save(ctx context.Context, name string, r io.Reader) (int64, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Remove deletes name. Removing a missing name is not an error.
	Remove(ctx context.Context, name string) error
}

// CleanUploadName reduces a client-submitted file name to its base name,
// dropping surrounding quotes and any directory components.
func CleanUploadName(raw string) (string, error) {
	name := strings.Trim(strings.TrimSpace(raw), `"`)
	// clients on Windows send backslash-separated paths
	name = name[strings.LastIndexAny(name, `/\`)+1:]
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", errors.Wrapf(ErrInvalidFileName, "%q", raw)
	}
	return name, nil
}

// NextAvailableName returns desired if it is free, otherwise the first free
// numbered variant: "a.png", "a(1).png", "a(2).png", ...
// Existence is re-checked on every call. Another writer may claim the name
// before the caller saves, so callers retry on ErrNameTaken.
func NextAvailableName(ctx context.Context, s Existence, desired string) (string, error) {
	name, err := CleanUploadName(desired)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		taken, err := s.Exists(ctx, candidate)
		if err != nil {
			return "", errors.Wrapf(err, "check %q", candidate)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "(" + strconv.Itoa(i) + ")" + ext
	}
}
