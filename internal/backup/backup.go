package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"refbook/internal/database"
	"refbook/pkg/storage"
)

// Runner uploads snapshots of the collection files to object storage.
type Runner struct {
	store   storage.ObjectStore
	dataDir string
	logger  *slog.Logger
}

// NewRunner creates a backup runner over the given data directory.
func NewRunner(store storage.ObjectStore, dataDir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: store, dataDir: dataDir, logger: logger}
}

// Run uploads every collection file under a timestamped key prefix. Files
// that do not exist yet are skipped. All uploads run concurrently; the first
// failure aborts the run.
func (r *Runner) Run(ctx context.Context) (string, error) {
	if r.store == nil {
		return "", errors.New("backup is not configured")
	}
	prefix := "backups/" + time.Now().UTC().Format("20060102T150405Z")

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range database.CollectionFiles() {
		path := filepath.Join(r.dataDir, name)
		key := prefix + "/" + name
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					r.logger.Warn("backup: collection file missing, skipping", "path", path)
					return nil
				}
				return fmt.Errorf("read %s: %w", path, err)
			}
			if err := r.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
				return fmt.Errorf("upload %s: %w", key, err)
			}
			r.logger.Info("backup: uploaded collection file", "key", key, "bytes", len(data))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return prefix, nil
}
