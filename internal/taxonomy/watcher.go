package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher could not start.
var ErrWatcherFailed = errors.New("failed to initialize taxonomy watcher")

// Store holds the current taxonomy and swaps it atomically on reload.
// Readers always see a complete snapshot.
type Store struct {
	path    string
	current atomic.Pointer[Taxonomy]
	logger  *zap.Logger

	watcher  *fsnotify.Watcher
	reloaded chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewStore loads path, or the built-in taxonomy when path is empty.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:     path,
		logger:   logger,
		reloaded: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	t := Default()
	if path != "" {
		var err error
		if t, err = Load(path); err != nil {
			return nil, err
		}
	}
	s.current.Store(t)
	return s, nil
}

// Current returns the active snapshot.
func (s *Store) Current() *Taxonomy {
	return s.current.Load()
}

// Reloaded signals after every successful reload. Used by tests and the
// admin log line; it never blocks the watcher.
func (s *Store) Reloaded() <-chan struct{} {
	return s.reloaded
}

// Reload re-reads the file. On error the previous snapshot stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	t, err := Load(s.path)
	if err != nil {
		return err
	}
	s.current.Store(t)
	select {
	case s.reloaded <- struct{}{}:
	default:
	}
	return nil
}

// Watch reloads the taxonomy whenever the file changes, until ctx is done
// or Close is called. The parent directory is watched so editors that
// replace the file by rename are picked up.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	s.watcher = w

	go s.loop(ctx)
	return nil
}

func (s *Store) loop(ctx context.Context) {
	defer s.watcher.Close()
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Error("taxonomy reload failed, keeping previous", zap.String("path", s.path), zap.Error(err))
				continue
			}
			t := s.Current()
			s.logger.Info("taxonomy reloaded",
				zap.String("path", s.path),
				zap.Int("categories", len(t.Categories)),
				zap.Int("municipalities", len(t.Municipalities)),
			)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("taxonomy watcher error", zap.Error(err))
		}
	}
}

// Close stops watching.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.done) })
	return nil
}
