package allocator

import (
	"encoding/json"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultChunkSize   = 16 * 1024 // default region-growth chunk size
	defaultReserveSize = 256 * 1024 * 1024
)

// Config holds the tunables for a Allocator instance. Only ChunkSize and
// ReserveSize affect region growth and layout; EnableDebugChecker and
// EnableStats are purely observational and safe to flip at runtime via a
// ConfigWatcher without violating any allocator invariant, because the
// size-class table and alignment are never reloaded.
type Config struct {
	ChunkSize          int
	ReserveSize        int
	EnableDebugChecker bool
	EnableStats        bool
}

// Option mutates a Config during construction, in the functional-options
// style.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		ChunkSize:          defaultChunkSize,
		ReserveSize:        defaultReserveSize,
		EnableDebugChecker: false,
		EnableStats:        false,
	}
}

// WithChunkSize overrides the region-growth chunk size.
func WithChunkSize(n int) Option {
	return func(c *Config) { c.ChunkSize = n }
}

// WithReserveSize overrides the virtual address space reserved up front by
// the region primitive (internal/allocator/region_unix.go).
func WithReserveSize(n int) Option {
	return func(c *Config) { c.ReserveSize = n }
}

// WithDebugChecker enables running Verify after every mutating call.
func WithDebugChecker(enabled bool) Option {
	return func(c *Config) { c.EnableDebugChecker = enabled }
}

// WithStats enables publishing an AllocStats snapshot after every mutating
// call, which internal/allocator/diagnostics.go's remote exporter reads.
func WithStats(enabled bool) Option {
	return func(c *Config) { c.EnableStats = enabled }
}

// tunableFile is the subset of Config a ConfigWatcher may hot-reload.
// Structural fields (ChunkSize, ReserveSize) are deliberately absent: both
// are fixed once New has run, and ReserveSize sizes the region reservation
// New makes.
type tunableFile struct {
	EnableDebugChecker bool `json:"enableDebugChecker"`
	EnableStats        bool `json:"enableStats"`
}

// ConfigWatcher watches a JSON tuning file on disk and hot-reloads the
// Allocator's observational flags, using the same channel-forwarding
// fsnotify wrapper pattern as a filesystem watch service.
type ConfigWatcher struct {
	w    *fsnotify.Watcher
	path string
	a    *Allocator
	errC chan error
}

// WatchConfigFile starts watching path for changes and applies its content
// to a's observational flags immediately and on every subsequent write.
func WatchConfigFile(a *Allocator, path string) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	cw := &ConfigWatcher{w: w, path: path, a: a, errC: make(chan error, 1)}

	if err := cw.reload(); err != nil {
		w.Close()
		return nil, err
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}

	go cw.loop()

	return cw, nil
}

func (cw *ConfigWatcher) loop() {
	for {
		select {
		case ev, ok := <-cw.w.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := cw.reload(); err != nil {
					select {
					case cw.errC <- err:
					default:
					}
				}
			}
		case _, ok := <-cw.w.Errors:
			if !ok {
				return
			}
		}
	}
}

func (cw *ConfigWatcher) reload() error {
	data, err := os.ReadFile(cw.path)
	if err != nil {
		return err
	}

	var tf tunableFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return err
	}

	atomicStoreBool(&cw.a.debugChecker, tf.EnableDebugChecker)
	atomicStoreBool(&cw.a.statsEnabled, tf.EnableStats)

	return nil
}

// Errors returns the channel reload failures are reported on.
func (cw *ConfigWatcher) Errors() <-chan error { return cw.errC }

// Close stops the watcher.
func (cw *ConfigWatcher) Close() error { return cw.w.Close() }

func atomicStoreBool(p *atomic.Bool, v bool) { p.Store(v) }
