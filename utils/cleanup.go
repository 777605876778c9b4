package utils

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AttachmentIndex reports whether a stored attachment name is referenced by any article.
type AttachmentIndex interface {
	AttachmentInUse(ctx context.Context, name string) (bool, error)
}

// StartOrphanSweeper launches a background goroutine that periodically removes
// files from dir that are older than grace and not referenced by any article.
// These are left behind when a write succeeded but the article was never persisted.
// It stops when ctx is done.
func StartOrphanSweeper(ctx context.Context, dir string, idx AttachmentIndex, interval, grace time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				removed, err := SweepOrphans(ctx, dir, idx, grace, now)
				if err != nil {
					Sugar.Warnf("orphan sweep failed dir=%s err=%v", dir, err)
					continue
				}
				if len(removed) > 0 {
					Sugar.Infof("orphan sweep removed %d files from %s", len(removed), dir)
				}
			}
		}
	}()
}

// SweepOrphans performs a single pass and returns the names it removed.
func SweepOrphans(ctx context.Context, dir string, idx AttachmentIndex, grace time.Duration, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < grace {
			continue
		}
		inUse, err := idx.AttachmentInUse(ctx, e.Name())
		if err != nil {
			return removed, err
		}
		if inUse {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			Sugar.Warnf("orphan sweep remove failed name=%s err=%v", e.Name(), err)
			continue
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}
