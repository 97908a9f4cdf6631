// Package watch detects changes to application source trees by polling
// modification times. Polling keeps the dev loop dependency-free and works
// on every filesystem, including the network mounts editors love.
package watch

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Kind classifies a detected change.
type Kind int

const (
	// KindSource is a change to application source (.py).
	KindSource Kind = iota
	// KindData is a change to anything else shipped alongside the source.
	KindData
)

// Change is one detected file change.
type Change struct {
	Path string
	Kind Kind
}

// Config configures a Watcher.
type Config struct {
	// Paths are the files or directories to watch.
	Paths []string

	// Ignore patterns to skip. Bare names match path segments, patterns
	// with glob characters match the file name, and patterns containing a
	// separator match against the full path.
	Ignore []string

	// Debounce is the poll interval; changes within one interval coalesce.
	Debounce time.Duration
}

// DefaultIgnore skips the usual interpreter and editor noise.
var DefaultIgnore = []string{
	".git",
	"__pycache__",
	".venv",
	"venv",
	".pytest_cache",
	"*.pyc",
	"*.tmp",
	"*.swp",
	"*~",
}

// Watcher polls a set of paths and reports changes.
type Watcher struct {
	config   Config
	mu       sync.Mutex
	onChange func(Change)
	running  bool
	primed   bool
	stopCh   chan struct{}
	modTimes map[string]time.Time
}

// New creates a watcher. Zero-value debounce and ignore lists get defaults.
func New(config Config) *Watcher {
	if config.Debounce == 0 {
		config.Debounce = 100 * time.Millisecond
	}
	if len(config.Ignore) == 0 {
		config.Ignore = DefaultIgnore
	}
	return &Watcher{
		config:   config,
		modTimes: make(map[string]time.Time),
	}
}

// OnChange sets the change callback. Each poll reports at most one change
// per kind.
func (w *Watcher) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start polls until ctx is done or Stop is called. Calling Start on a
// running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.prime()

	ticker := time.NewTicker(w.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			w.sweep()
		}
	}
}

// Stop ends polling. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// IsRunning reports whether the watcher is polling.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// prime records the starting modification times so pre-existing files do
// not report as changes.
func (w *Watcher) prime() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, root := range w.config.Paths {
		w.walk(root, func(p string, mod time.Time) {
			w.modTimes[p] = mod
		})
	}
	w.primed = true
}

// sweep rescans the watched paths and reports new, modified and deleted
// files, at most one change per kind.
func (w *Watcher) sweep() {
	w.mu.Lock()
	callback := w.onChange
	primed := w.primed
	w.mu.Unlock()
	if callback == nil || !primed {
		return
	}

	var changes []Change
	seen := make(map[string]bool)

	for _, root := range w.config.Paths {
		w.walk(root, func(p string, mod time.Time) {
			seen[p] = true
			w.mu.Lock()
			last, known := w.modTimes[p]
			w.modTimes[p] = mod
			w.mu.Unlock()
			if !known || mod.After(last) {
				changes = append(changes, Change{Path: p, Kind: classify(p)})
			}
		})
	}

	// Files that vanished since the last sweep.
	w.mu.Lock()
	for p := range w.modTimes {
		if !seen[p] {
			delete(w.modTimes, p)
			changes = append(changes, Change{Path: p, Kind: classify(p)})
		}
	}
	w.mu.Unlock()

	reported := make(map[Kind]bool)
	for _, c := range changes {
		if !reported[c.Kind] {
			reported[c.Kind] = true
			callback(c)
		}
	}
}

// walk visits every non-ignored file under root. Root may be a single file.
func (w *Watcher) walk(root string, visit func(path string, mod time.Time)) {
	filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != root && w.ignored(p) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.ignored(p) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		visit(p, info.ModTime())
		return nil
	})
}

// ignored reports whether p matches any ignore pattern.
func (w *Watcher) ignored(p string) bool {
	name := filepath.Base(p)
	full := filepath.ToSlash(p)

	for _, pattern := range w.config.Ignore {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if name == pattern {
			return true
		}

		hasSep := strings.Contains(pattern, "/")
		hasGlob := strings.ContainsAny(pattern, "*?[")

		switch {
		case hasGlob && hasSep:
			if ok, _ := path.Match(filepath.ToSlash(pattern), full); ok {
				return true
			}
		case hasGlob:
			if ok, _ := filepath.Match(pattern, name); ok {
				return true
			}
		case hasSep:
			if containsSegments(full, filepath.ToSlash(pattern)) {
				return true
			}
		default:
			if hasSegment(full, pattern) {
				return true
			}
		}
	}
	return false
}

func hasSegment(p, segment string) bool {
	for _, part := range splitSegments(p) {
		if part == segment {
			return true
		}
	}
	return false
}

// containsSegments reports whether the pattern's segments appear
// consecutively anywhere in p.
func containsSegments(p, pattern string) bool {
	parts := splitSegments(p)
	want := splitSegments(pattern)
	if len(want) == 0 || len(want) > len(parts) {
		return false
	}
	for i := 0; i <= len(parts)-len(want); i++ {
		match := true
		for j := range want {
			if parts[i+j] != want[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func splitSegments(p string) []string {
	var out []string
	for _, part := range strings.Split(p, "/") {
		if part != "" && part != "." {
			out = append(out, part)
		}
	}
	return out
}

// classify maps a path to a change kind by extension.
func classify(p string) Kind {
	if strings.EqualFold(filepath.Ext(p), ".py") {
		return KindSource
	}
	return KindData
}
