package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/Laisky/errors/v2"
)

// Local stores attachments as files in one directory.
type Local struct {
	dir string
}

// NewLocal creates dir if needed and returns a Local rooted at it.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create upload directory %s", dir)
	}
	return &Local{dir: dir}, nil
}

// Dir is the directory holding the files.
func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", errors.Wrapf(ErrInvalidFileName, "%q", name)
	}
	return filepath.Join(l.dir, name), nil
}

// Exists reports whether a file with name is present.
func (l *Local) Exists(_ context.Context, name string) (bool, error) {
	p, err := l.path(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	return false, nil
}

// Save copies r into a temp file and links it to name once fully written.
// The link fails if name exists, so a concurrent writer of the same name never loses its bytes.
func (l *Local) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	p, err := l.path(name)
	if err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return 0, errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, readerWithContext(ctx, r))
	if err != nil {
		_ = tmp.Close()
		return 0, errors.Wrapf(err, "write %s", name)
	}
	if err := tmp.Close(); err != nil {
		return 0, errors.Wrapf(err, "close %s", name)
	}
	if err := os.Link(tmp.Name(), p); err != nil {
		if os.IsExist(err) {
			return 0, errors.Wrap(ErrNameTaken, name)
		}
		return 0, errors.Wrapf(err, "move %s into place", name)
	}
	return written, nil
}

// Open opens name for reading.
func (l *Local) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := l.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, name)
		}
		return nil, err
	}
	return f, nil
}

// Remove deletes name if present.
func (l *Local) Remove(_ context.Context, name string) error {
	p, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
