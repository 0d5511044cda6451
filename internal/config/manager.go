package config

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces editor write bursts into a single reload.
const reloadDebounce = 500 * time.Millisecond

// Manager serves the active configuration and hot-reloads it when the file
// changes. Get returns an immutable snapshot; a reload swaps the whole
// snapshot atomically, never field by field.
//
// Database and vector store settings are restart-only: their running values
// are carried into every reloaded snapshot, since swapping the connection
// pool or the vector backend under live traffic is not supported. Rate
// limits, cache TTLs, logging, and LLM provider settings take effect on
// reload.
type Manager struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Config]

	mu          sync.Mutex
	subscribers []func(*Config)
}

// NewManager loads and validates the file at path and serves it as the
// active configuration.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path, logger: logger}
	m.current.Store(cfg)
	return m, nil
}

// Get returns the active snapshot. Safe for concurrent use.
func (m *Manager) Get() *Config { return m.current.Load() }

// OnChange registers a callback invoked after each accepted reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Watch reloads the file on change until ctx is cancelled.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.path); err != nil {
		_ = watcher.Close()
		return err
	}
	go m.run(ctx, watcher)
	return nil
}

func (m *Manager) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	debounce := time.NewTimer(reloadDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			debounce.Stop()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(reloadDebounce)

		case <-debounce.C:
			m.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watch error", "path", m.path, "error", err)
		}
	}
}

// reload loads and validates the file, pins restart-only sections to their
// running values, and publishes the new snapshot. A file that fails to load
// or validate leaves the active snapshot untouched.
func (m *Manager) reload() {
	next, err := LoadFromFile(m.path)
	if err != nil {
		m.logger.Error("config reload rejected, keeping active config", "path", m.path, "error", err)
		return
	}

	active := m.current.Load()
	if next.Database != active.Database {
		m.logger.Warn("database settings changed on disk, restart required to apply")
		next.Database = active.Database
	}
	if next.VectorStore != active.VectorStore {
		m.logger.Warn("vector store settings changed on disk, restart required to apply")
		next.VectorStore = active.VectorStore
	}

	m.current.Store(next)
	m.logger.Info("configuration reloaded", "path", m.path)

	m.mu.Lock()
	subscribers := append([]func(*Config){}, m.subscribers...)
	m.mu.Unlock()
	for _, fn := range subscribers {
		fn(next)
	}
}
