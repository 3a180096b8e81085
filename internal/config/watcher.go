package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ApplyFunc receives a freshly validated config after a file change.
type ApplyFunc func(*Config)

// Watcher hot-reloads the config file. A malformed or invalid file is logged
// and skipped; the previous configuration stays in effect.
type Watcher struct {
	path    string
	logger  *zap.Logger
	apply   ApplyFunc
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, apply ApplyFunc, logger *zap.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{
		path:    path,
		logger:  logger,
		apply:   apply,
		watcher: fsw,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start begins watching. Watching the parent directory instead of the file
// itself survives editors that replace the file on save.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}
	go w.loop()
	w.logger.Info("Config watcher started", zap.String("path", w.path))
	return nil
}

// Stop ends watching and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.started = false
	close(w.stopCh)
	_ = w.watcher.Close()
}

func (w *Watcher) loop() {
	// Debounce bursts of events from a single save.
	var pending <-chan time.Time
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = time.After(200 * time.Millisecond)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	// Reject syntactically broken yaml before handing the file to viper, so
	// a half-written save never produces a partially applied config.
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("Config reload: read failed", zap.Error(err))
		return
	}
	var probe map[string]interface{}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		w.logger.Warn("Config reload: malformed yaml, keeping previous config", zap.Error(err))
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("Config reload: invalid config, keeping previous config", zap.Error(err))
		return
	}
	w.logger.Info("Config reloaded",
		zap.Int("max_concurrent", cfg.MaxConcurrent),
		zap.Int("max_retries", cfg.MaxRetries),
	)
	w.apply(cfg)
}
