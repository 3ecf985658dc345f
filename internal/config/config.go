// Package config loads and validates the YAML configuration used to
// parameterize a SignatureAssembler and RemoteClient.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/finch-audio/audiosig/internal/fingerprint"
)

// Config holds everything needed to drive an Assembler and a RemoteClient.
type Config struct {
	SampleRateHz   int     `yaml:"sample_rate_hz"`
	MaxTimeSeconds float64 `yaml:"max_time_seconds"`
	MaxPeaks       int     `yaml:"max_peaks"`
	Language       string  `yaml:"language"`
	Timezone       string  `yaml:"timezone"`
	UserAgent      string  `yaml:"user_agent"`
	LogLevel       string  `yaml:"log_level"`
}

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		SampleRateHz:   16000,
		MaxTimeSeconds: fingerprint.DefaultMaxTimeSeconds,
		MaxPeaks:       fingerprint.DefaultMaxPeaks,
		Language:       "ja",
		Timezone:       "Asia/Tokyo",
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.114 Safari/537.36",
		LogLevel:       "info",
	}
}

// Error reports a config validation or loading failure.
type Error struct {
	Kind string
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

func invalidConfig(format string, args ...any) *Error {
	return &Error{Kind: "InvalidConfig", Msg: fmt.Sprintf(format, args...)}
}

// Load reads a YAML file at path, applying documented defaults for any
// field a partial file leaves unset, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, invalidConfig("read %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, invalidConfig("parse %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every field is within its documented range.
func (c *Config) Validate() error {
	if _, ok := fingerprint.SampleRateIDForHz(c.SampleRateHz); !ok {
		return invalidConfig("sample_rate_hz %d is not one of the supported rates", c.SampleRateHz)
	}
	if c.MaxTimeSeconds <= 0 {
		return invalidConfig("max_time_seconds must be > 0, got %v", c.MaxTimeSeconds)
	}
	if c.MaxPeaks <= 0 {
		return invalidConfig("max_peaks must be > 0, got %d", c.MaxPeaks)
	}
	if _, err := language.Parse(c.Language); err != nil {
		return invalidConfig("language %q is not a valid BCP-47 tag: %v", c.Language, err)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return invalidConfig("timezone %q: %v", c.Timezone, err)
		}
	}
	return nil
}

// clone returns a shallow copy, sufficient since Config has no reference fields.
func (c *Config) clone() *Config {
	cp := *c
	return &cp
}

// Watcher watches a Config's backing YAML file and atomically swaps in a
// re-validated copy whenever it changes. A reload that fails validation
// or parsing is logged and discarded; the prior good config stays live.
type Watcher struct {
	path string

	mu      sync.RWMutex
	current *Config

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	logger  *log.Logger
}

// Watch starts watching path for changes, invoking onChange with each
// successfully reloaded Config. The returned Watcher owns path's already
// loaded Config; call Stop to release the underlying fsnotify watcher.
func Watch(ctx context.Context, path string, cfg *Config, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		path:    path,
		current: cfg,
		watcher: fsw,
		cancel:  cancel,
		logger:  log.NewWithOptions(os.Stderr, log.Options{Prefix: "config"}),
	}

	go w.loop(ctx, onChange)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context, onChange func(*Config)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload(onChange)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watch error", "err", err)
		}
	}
}

func (w *Watcher) reload(onChange func(*Config)) {
	next, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping prior config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	w.current = next
	w.mu.Unlock()

	if onChange != nil {
		onChange(next.clone())
	}
}

// Config returns the most recently loaded good configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.clone()
}

// Stop releases the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	w.cancel()
	return w.watcher.Close()
}
