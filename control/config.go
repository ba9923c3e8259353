// control/config.go
//
// Runtime configuration store with environment seeding and reload
// propagation.

package control

import (
	"os"
	"strconv"
	"sync"
)

// Configuration keys recognized by the runtime.
const (
	KeyMaxTraces       = "max_traces"
	KeyDebug           = "debug"
	KeyReactor         = "reactor"
	KeyWriteBufferSize = "write_buffer_size"
	KeyWriteBufferMax  = "write_buffer_max"
	KeyWriteChunkSize  = "write_chunk_size"
)

// Defaults.
const (
	DefaultMaxTraces       = 20
	DefaultReactor         = "select"
	DefaultWriteBufferSize = 32 * 1024
	DefaultWriteBufferMax  = 1024 * 1024
	DefaultWriteChunkSize  = 60 * 1024
)

// ConfigStore is a dynamic key/value map with atomic snapshot and
// listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
}

// NewConfigStore initializes a config store seeded with defaults and
// the COOPIO_* environment overrides.
func NewConfigStore() *ConfigStore {
	cs := &ConfigStore{config: map[string]any{
		KeyMaxTraces:       DefaultMaxTraces,
		KeyDebug:           false,
		KeyReactor:         DefaultReactor,
		KeyWriteBufferSize: DefaultWriteBufferSize,
		KeyWriteBufferMax:  DefaultWriteBufferMax,
		KeyWriteChunkSize:  DefaultWriteChunkSize,
	}}
	cs.loadEnv()
	return cs
}

func (cs *ConfigStore) loadEnv() {
	if v, ok := envInt("COOPIO_MAX_TRACES"); ok {
		cs.config[KeyMaxTraces] = v
	}
	if v, ok := envBool("COOPIO_DEBUG"); ok {
		cs.config[KeyDebug] = v
	}
	if v := os.Getenv("COOPIO_REACTOR"); v != "" {
		cs.config[KeyReactor] = v
	}
	if v, ok := envInt("COOPIO_WRITE_BUFFER_SIZE"); ok {
		cs.config[KeyWriteBufferSize] = v
	}
	if v, ok := envInt("COOPIO_WRITE_BUFFER_MAX"); ok {
		cs.config[KeyWriteBufferMax] = v
	}
	if v, ok := envInt("COOPIO_WRITE_CHUNK_SIZE"); ok {
		cs.config[KeyWriteChunkSize] = v
	}
}

func envInt(name string) (int, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envBool(name string) (bool, bool) {
	s := os.Getenv(name)
	if s == "" {
		return false, false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return v, true
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// SetConfig merges new values and dispatches reload listeners.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) {
	cs.mu.Lock()
	for k, v := range newCfg {
		cs.config[k] = v
	}
	listeners := cs.listeners
	cs.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// Int returns an integer config value, or def when missing.
func (cs *ConfigStore) Int(key string, def int) int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if v, ok := cs.config[key].(int); ok {
		return v
	}
	return def
}

// Bool returns a boolean config value, or def when missing.
func (cs *ConfigStore) Bool(key string, def bool) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if v, ok := cs.config[key].(bool); ok {
		return v
	}
	return def
}

// String returns a string config value, or def when missing.
func (cs *ConfigStore) String(key, def string) string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if v, ok := cs.config[key].(string); ok {
		return v
	}
	return def
}

var defaultConfig = NewConfigStore()

// Config returns the process-wide configuration store.
func Config() *ConfigStore { return defaultConfig }

// MaxTraces returns the per-task debug ring capacity.
func MaxTraces() int { return defaultConfig.Int(KeyMaxTraces, DefaultMaxTraces) }

// DebugEnabled reports whether runtime/vendor frames are included in
// diagnostic output.
func DebugEnabled() bool { return defaultConfig.Bool(KeyDebug, false) }

// ReactorBackend returns the configured reactor implementation name.
func ReactorBackend() string { return defaultConfig.String(KeyReactor, DefaultReactor) }
