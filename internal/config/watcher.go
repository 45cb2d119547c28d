package config

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Snapshot is a read-only, atomically-swappable handle to the current
// configuration (spec.md §3.1 "Config snapshot").
type Snapshot struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewSnapshot wraps an initial Config.
func NewSnapshot(cfg *Config) *Snapshot {
	return &Snapshot{cfg: cfg}
}

// Get returns the current configuration. Callers must not mutate the
// returned value; it is shared across goroutines.
func (s *Snapshot) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Snapshot) set(cfg *Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Watcher reloads the config file on change and swaps it into a Snapshot.
// Detection is layered: an fsnotify watch on the config directory (fast
// path, per quorum-ai's config layer) underneath a fixed-interval mtime
// poll (spec.md §4.10/§4.11 safety net for filesystems that drop events),
// both debounced by Settings.DebounceMS.
type Watcher struct {
	path     string
	snapshot *Snapshot
	logger   *slog.Logger

	pollInterval time.Duration
	debounce     time.Duration

	lastMod time.Time
}

// NewWatcher constructs a Watcher for path, reporting into snapshot.
func NewWatcher(path string, snapshot *Snapshot, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	debounce := time.Duration(snapshot.Get().Settings.DebounceMS) * time.Millisecond
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		path:         path,
		snapshot:     snapshot,
		logger:       logger,
		pollInterval: 500 * time.Millisecond,
		debounce:     debounce,
	}
}

// Run blocks, watching path until ctx is cancelled. Reload errors are
// logged and otherwise swallowed: a bad edit must not crash the daemon,
// and the stale snapshot remains in effect until the file is fixed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if werr := watcher.Add(filepathDir(w.path)); werr != nil {
			w.logger.Warn("config watcher: fsnotify add failed, relying on poll", "err", werr)
		}
	} else {
		w.logger.Warn("config watcher: fsnotify unavailable, relying on poll", "err", err)
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var pendingReload <-chan time.Time
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if w.checkMtimeChanged() {
				debounceTimer.Reset(w.debounce)
				pendingReload = debounceTimer.C
			}

		case ev, ok := <-fsnotifyEvents(watcher):
			if !ok {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounceTimer.Reset(w.debounce)
				pendingReload = debounceTimer.C
			}

		case <-pendingReload:
			pendingReload = nil
			w.reload()
		}
	}
}

func (w *Watcher) checkMtimeChanged() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	if info.ModTime().After(w.lastMod) {
		w.lastMod = info.ModTime()
		return true
	}
	return false
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config watcher: reload failed, keeping previous snapshot", "err", err)
		return
	}
	w.snapshot.set(cfg)
	w.logger.Info("config reloaded", "path", w.path)
}

func fsnotifyEvents(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

func filepathDir(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "."
}
