// Package prefs holds the user-toggleable cache preference.
package prefs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

type settings struct {
	CacheEnabled *bool `yaml:"cache_enabled"`
}

// Gate is the process-wide "is caching enabled" setting. Reads are lock free;
// the value is backed by a yaml file that other processes may edit.
type Gate struct {
	path    string
	enabled atomic.Bool
	writeMu sync.Mutex
}

// Load reads the settings file at path. A missing file or missing key means
// caching is enabled.
func Load(path string) (*Gate, error) {
	g := &Gate{path: path}
	g.enabled.Store(true)
	if err := g.reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// Static returns a Gate that is not backed by a file.
func Static(enabled bool) *Gate {
	g := &Gate{}
	g.enabled.Store(enabled)
	return g
}

func (g *Gate) CacheEnabled() bool {
	return g.enabled.Load()
}

func (g *Gate) Path() string {
	return g.path
}

// Set changes the preference and persists it when the gate is file backed.
func (g *Gate) Set(enabled bool) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.enabled.Store(enabled)
	if g.path == "" {
		return nil
	}

	data, err := yaml.Marshal(settings{CacheEnabled: &enabled})
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}
	// Write-then-rename so a concurrent reload never sees a truncated file.
	tmp := g.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp, g.path); err != nil {
		return fmt.Errorf("replacing settings: %w", err)
	}
	return nil
}

func (g *Gate) reload() error {
	if g.path == "" {
		return nil
	}
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			g.enabled.Store(true)
			return nil
		}
		return fmt.Errorf("reading settings: %w", err)
	}

	var s settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parsing settings %s: %w", g.path, err)
	}
	enabled := true
	if s.CacheEnabled != nil {
		enabled = *s.CacheEnabled
	}
	if prev := g.enabled.Swap(enabled); prev != enabled {
		slog.Info("cache preference changed", "cache_enabled", enabled)
	}
	return nil
}

// Watch reloads the preference whenever the settings file changes, until ctx
// is done. The parent directory is watched so editors that replace the file
// are picked up.
func (g *Gate) Watch(ctx context.Context) error {
	if g.path == "" {
		<-ctx.Done()
		return nil
	}

	dir := filepath.Dir(g.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	name := filepath.Clean(g.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := g.reload(); err != nil {
				slog.Warn("settings reload failed", "path", g.path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("settings watcher error", "error", err)
		}
	}
}
