package config

// This file contains the flat key/value configuration consumed by the
// harness core. Values are layered: defaults, YAML file, environment,
// explicit overrides.

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	KeyMaxAttempts    = "retry.max_attempts"
	KeyCaptureSuccess = "capture.on_success"
	KeyMaxDuration    = "test.max_duration"
	KeyTestTimeout    = "test.timeout"
	KeyReportsDir     = "dirs.reports"
	KeyScreenshotsDir = "dirs.screenshots"
	KeyHistoryDir     = "dirs.history"
	KeyWorkers        = "suite.workers"
	KeySuiteName      = "suite.name"
	KeyEnvName        = "env.name"
	KeyHeadless       = "browser.headless"
	KeyExecPath       = "browser.exec_path"
)

// EnvPrefix is prepended to environment variable overrides, e.g.
// WEBGRID_RETRY_MAX_ATTEMPTS for retry.max_attempts.
const EnvPrefix = "WEBGRID_"

var defaults = map[string]string{
	KeyMaxAttempts:    "1",
	KeyCaptureSuccess: "false",
	KeyMaxDuration:    "0s",
	KeyTestTimeout:    "2m",
	KeyReportsDir:     "reports",
	KeyScreenshotsDir: "reports/screenshots",
	KeyHistoryDir:     ".webgrid/history",
	KeyWorkers:        "4",
	KeySuiteName:      "webgrid",
	KeyEnvName:        "local",
	KeyHeadless:       "true",
	KeyExecPath:       "",
}

// Config is a flat, concurrency safe key/value lookup with defaults.
type Config struct {
	mu     sync.RWMutex
	values map[string]string
}

// New returns a Config holding only the defaults.
func New() *Config {
	c := &Config{values: make(map[string]string, len(defaults))}
	for k, v := range defaults {
		c.values[k] = v
	}
	return c
}

// Load builds a Config from defaults, the optional YAML file at path and the
// process environment.
func Load(path string) (*Config, error) {
	c := New()
	if path != "" {
		if err := c.LoadFile(path); err != nil {
			return nil, err
		}
	}
	c.LoadEnv(os.Environ())
	return c, nil
}

// LoadFile merges a flat YAML mapping into the config. Nested mappings are
// flattened with dots, so `retry: {max_attempts: 2}` sets retry.max_attempts.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	flat := make(map[string]string)
	flatten("", raw, flat)

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range flat {
		c.values[k] = v
	}
	return nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// LoadEnv applies WEBGRID_* variables from environ (KEY=VALUE pairs).
// Only keys that already exist are overridden.
func (c *Config) LoadEnv(environ []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.values {
		envKey := EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		for _, kv := range environ {
			if v, ok := strings.CutPrefix(kv, envKey+"="); ok {
				c.values[key] = v
			}
		}
	}
}

// Set overrides a single key.
func (c *Config) Set(key, value string) {
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
}

// Keys returns all known keys in sorted order.
func (c *Config) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the raw value for key, or "" when unset.
func (c *Config) String(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// Int parses key as an integer, falling back to the default on parse errors.
func (c *Config) Int(key string) int {
	if v, err := strconv.Atoi(strings.TrimSpace(c.String(key))); err == nil {
		return v
	}
	v, _ := strconv.Atoi(defaults[key])
	return v
}

// Bool parses key as a boolean, falling back to the default on parse errors.
func (c *Config) Bool(key string) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(c.String(key))); err == nil {
		return v
	}
	v, _ := strconv.ParseBool(defaults[key])
	return v
}

// Duration parses key as a time.Duration. A bare integer is read as seconds.
func (c *Config) Duration(key string) time.Duration {
	if d, ok := parseDuration(c.String(key)); ok {
		return d
	}
	d, _ := parseDuration(defaults[key])
	return d
}

func parseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, true
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, true
}
