package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Reloader watches a policy file and reloads the static entries when it
// changes.
type Reloader struct {
	watcher *fsnotify.Watcher
	policy  *Policy
	path    string
	// after re-applies command-line overrides on top of the reloaded file.
	after func(*Policy) error
}

// NewReloader watches path. The parent directory is watched so editors
// that replace the file by rename are still seen.
func NewReloader(p *Policy, path string, after func(*Policy) error) (*Reloader, error) {
	if path == "" {
		return nil, fmt.Errorf("no policy file to watch")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("policy file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", abs, err)
	}
	return &Reloader{watcher: watcher, policy: p, path: abs, after: after}, nil
}

// Reload reads the file now and swaps in its static entries.
func (r *Reloader) Reload() error {
	cfg, err := LoadConfig(r.path)
	if err != nil {
		return err
	}
	r.policy.ReloadStatic(*cfg)
	if r.after != nil {
		if err := r.after(r.policy); err != nil {
			return fmt.Errorf("re-apply overrides: %w", err)
		}
	}
	return nil
}

// Run watches for changes until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()
	log := r.policy.log.WithField("path", r.path)

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := r.Reload(); err != nil {
					log.Warnf("hot-reload failed: %v", err)
					return
				}
				regex, shell := r.policy.StaticCounts()
				log.WithField("regex", regex).WithField("shell", shell).Info("policy reloaded")
			})

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("file watcher error: %v", err)
		}
	}
}
