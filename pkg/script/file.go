package script

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// FileSource serves the contents of a file and, while Watch runs, reloads them
// whenever the file is written or replaced.
type FileSource struct {
	path   string
	text   atomic.Pointer[string]
	logger *slog.Logger
}

// NewFileSource reads path and returns a FileSource holding its contents.
func NewFileSource(path string, logger *slog.Logger) (*FileSource, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving script path: %w", err)
	}

	fs := &FileSource{
		path:   abs,
		logger: logger,
	}

	if err := fs.reload(); err != nil {
		return nil, err
	}

	return fs, nil
}

// Script returns the most recently loaded file contents.
func (fs *FileSource) Script() string {
	return *fs.text.Load()
}

// Path returns the absolute path of the watched file.
func (fs *FileSource) Path() string {
	return fs.path
}

func (fs *FileSource) reload() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return fmt.Errorf("reading script file: %w", err)
	}

	text := string(data)
	fs.text.Store(&text)
	return nil
}

// Watch reloads the file on change until ctx is cancelled. The parent
// directory is watched so editors that save by renaming a temp file over the
// original are picked up. A failed reload keeps the previous contents.
func (fs *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating script watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(fs.path)); err != nil {
		return fmt.Errorf("watching script dir: %w", err)
	}

	// Pick up anything written between the initial load and Add.
	fs.tryReload()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != fs.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fs.tryReload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("script watcher error: %w", err)
		}
	}
}

func (fs *FileSource) tryReload() {
	if err := fs.reload(); err != nil {
		fs.logger.Warn("script reload failed, keeping previous script",
			"path", fs.path,
			"error", err,
		)
		return
	}

	fs.logger.Debug("script reloaded",
		"path", fs.path,
		"bytes", len(fs.Script()),
	)
}
