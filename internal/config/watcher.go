package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// PolicyWatcher holds the current policy and reloads it when the file changes.
// A file that fails to load or validate is logged and the previous policy kept.
type PolicyWatcher struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	current  *Policy
	onChange []func(*Policy)
}

// NewPolicyWatcher performs the initial load.
func NewPolicyWatcher(path string, logger *slog.Logger) (*PolicyWatcher, error) {
	p, err := LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	return &PolicyWatcher{path: path, logger: logger, current: p}, nil
}

// Policy returns the latest valid policy.
func (w *PolicyWatcher) Policy() *Policy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback run after every successful reload.
func (w *PolicyWatcher) OnChange(fn func(*Policy)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Reload re-reads the file immediately.
func (w *PolicyWatcher) Reload() (*Policy, error) {
	p, err := LoadPolicy(w.path)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.current = p
	callbacks := make([]func(*Policy), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(p)
	}
	return p, nil
}

// Watch starts a goroutine that reloads on write or create events. The
// directory is watched so editors that replace the file are seen too.
// Call the returned stop function to clean up.
func (w *PolicyWatcher) Watch() (stop func(), err error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("policy watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("policy watcher add %s: %w", w.path, err)
	}
	target := filepath.Clean(w.path)

	done := make(chan struct{})
	go func() {
		defer fw.Close()
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := w.Reload(); err != nil {
						w.logger.Warn("policy reload failed, keeping previous policy", "path", w.path, "error", err)
						continue
					}
					w.logger.Info("policy reloaded", "path", w.path)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("policy watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}
