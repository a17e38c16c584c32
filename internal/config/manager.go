package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Manager holds the active settings and reloads them when the file on disk
// is updated externally. The file is only ever read; on an invalid update
// the last known good settings stay active.
type Manager struct {
	mu       sync.RWMutex
	settings *Settings
	path     string

	// OnReload is called with the new settings after a successful reload
	// (optional).
	OnReload func(s *Settings)

	OnWarning func(msg string)
}

// NewManager loads the initial settings from path. Loading must succeed at
// startup; only reloads are allowed to fail softly.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path}
	settings, err := Load(path)
	if err != nil {
		return nil, err
	}
	m.settings = settings
	return m, nil
}

// Current returns the active settings. The returned copy is safe to read
// after later reloads.
func (m *Manager) Current() *Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := *m.settings
	return &s
}

// Reload reads the file again and swaps the active settings if valid.
func (m *Manager) Reload() error {
	settings, err := Load(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.settings = settings
	m.mu.Unlock()

	if m.OnReload != nil {
		m.OnReload(settings)
	}
	return nil
}

// Watch blocks until the context is cancelled, reloading on every external
// write to the config file. Remove events are re-watched to survive the
// rename-and-replace updates configuration tools and ConfigMap mounts do.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(m.path); err != nil {
		return fmt.Errorf("watching %s: %w", m.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("config watcher event channel closed")
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := m.Reload(); err != nil {
					m.warn("config reload failed, keeping previous settings: %v", err)
				}
			}
			if event.Has(fsnotify.Remove) {
				_ = watcher.Add(m.path)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("config watcher error channel closed")
			}
			m.warn("config watcher: %v", err)
		}
	}
}

func (m *Manager) warn(format string, args ...interface{}) {
	if m.OnWarning != nil {
		m.OnWarning(fmt.Sprintf(format, args...))
	}
}
