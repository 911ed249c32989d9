package config

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const pollInterval = 60 * time.Second

// Watcher reloads the config file on change and hands the fresh config to
// the callback. Only tunables read through the callback take effect at
// runtime; connection settings need a restart.
type Watcher struct {
	path     string
	onReload func(*Config)

	mu        sync.Mutex
	lastMtime time.Time
}

func NewWatcher(path string, onReload func(*Config)) *Watcher {
	return &Watcher{path: path, onReload: onReload}
}

// Start runs the watcher until ctx is cancelled. fsnotify drives reloads;
// a slow mtime poll covers editors that replace the file and filesystems
// without inotify.
func (w *Watcher) Start(ctx context.Context) {
	fw, err := fsnotify.NewWatcher()
	usePolling := false
	if err != nil {
		log.Printf("Config watcher: fsnotify failed (%v), falling back to polling", err)
		usePolling = true
	} else if err := fw.Add(w.path); err != nil {
		log.Printf("Config watcher: cannot watch %s (%v), falling back to polling", w.path, err)
		usePolling = true
		fw.Close()
	}

	if !usePolling {
		go func() {
			defer fw.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-fw.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						time.Sleep(100 * time.Millisecond)
						w.reload()
					}
				case err, ok := <-fw.Errors:
					if !ok {
						return
					}
					log.Printf("Config watcher error: %v", err)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.reloadIfChanged()
			}
		}
	}()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("[ERROR] Config reload failed, keeping previous config: %v", err)
		return
	}
	log.Printf("Config reloaded from %s", w.path)
	w.onReload(cfg)
}

// reloadIfChanged reloads only when the file mtime moved, so the poll
// loop does not spam reloads every minute.
func (w *Watcher) reloadIfChanged() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}
	w.mu.Lock()
	changed := info.ModTime().After(w.lastMtime)
	if changed {
		w.lastMtime = info.ModTime()
	}
	w.mu.Unlock()
	if changed {
		w.reload()
	}
}
