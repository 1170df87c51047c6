package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileStore reads credentials from one file per provider id in a
// directory, the way mounted Kubernetes secrets are laid out. Files must be
// regular files with mode 0600 or 0400.
type FileStore struct {
	dir    string
	logger *slog.Logger

	mu        sync.RWMutex
	cache     map[string]string
	listeners []func()

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
}

// NewFileStore creates a file store over dir. With watch set, any write,
// create, rename or remove in dir drops the store's cache and notifies the
// OnChange listeners.
func NewFileStore(dir string, watch bool, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat credential directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("credential path is not a directory: %s", dir)
	}

	s := &FileStore{
		dir:    dir,
		logger: logger.With("component", "credentials", "source", "file"),
		cache:  make(map[string]string),
	}

	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch credential directory: %w", err)
		}
		s.watcher = w
		s.stopCh = make(chan struct{})
		s.done = make(chan struct{})
		go s.watchLoop()
	}

	s.logger.Info("credential file store started", "path", dir, "watch", watch)
	return s, nil
}

// Name returns "file".
func (s *FileStore) Name() string {
	return "file"
}

// OnChange registers fn to run after the directory changes.
func (s *FileStore) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, fn)
}

// Get reads the credential file named after providerID.
func (s *FileStore) Get(_ context.Context, providerID string) (string, error) {
	s.mu.RLock()
	if v, ok := s.cache[providerID]; ok {
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	path, err := s.path(providerID)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: no file for %q", ErrNotFound, providerID)
		}
		return "", fmt.Errorf("failed to stat credential file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("credential path is not a regular file: %s", providerID)
	}
	if mode := info.Mode().Perm(); mode != 0600 && mode != 0400 {
		return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, mode)
	}

	// #nosec G304 - path is confined to dir above
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read credential file: %w", err)
	}
	value := strings.TrimSpace(string(data))

	s.mu.Lock()
	s.cache[providerID] = value
	s.mu.Unlock()

	return value, nil
}

// path resolves the file for providerID, rejecting traversal outside dir.
func (s *FileStore) path(providerID string) (string, error) {
	absBase, err := filepath.Abs(s.dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve credential directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(s.dir, providerID))
	if err != nil {
		return "", fmt.Errorf("failed to resolve credential path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid credential path for %q: directory traversal detected", providerID)
	}
	return absPath, nil
}

// Refresh drops cached values and notifies listeners.
func (s *FileStore) Refresh() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Close stops the watcher.
func (s *FileStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.stopCh)
	err := s.watcher.Close()
	<-s.done
	return err
}

func (s *FileStore) watchLoop() {
	defer close(s.done)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				s.logger.Debug("credential file changed",
					"file", filepath.Base(event.Name),
					"op", event.Op.String(),
				)
				s.Refresh()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("credential watcher error", "error", err)

		case <-s.stopCh:
			return
		}
	}
}
