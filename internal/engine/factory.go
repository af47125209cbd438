package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Config carries the knobs an engine constructor may use. Engines ignore
// fields that do not apply to them.
type Config struct {
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	MockDelay    time.Duration
	MockFailRate float64
}

// Constructor builds an Engine from configuration.
type Constructor func(cfg Config) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register adds an engine constructor under name, replacing any previous
// registration. Names are case-insensitive.
func Register(name string, fn Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = fn
}

// New builds the named engine.
func New(name string, cfg Config) (Engine, error) {
	registryMu.RLock()
	fn, ok := registry[strings.ToLower(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown OCR engine %q, available engines: %s",
			name, strings.Join(List(), ", "))
	}
	return fn(cfg)
}

// List returns the registered engine names, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("mock", func(cfg Config) (Engine, error) {
		return NewMockEngine(cfg.MockDelay, cfg.MockFailRate), nil
	})
	Register("vllm", func(cfg Config) (Engine, error) {
		return NewRemoteEngine("vllm-remote", cfg), nil
	})
	// Same OpenAI-compatible wire protocol, served by the PaddleOCR-VL server.
	Register("paddleocr", func(cfg Config) (Engine, error) {
		return NewRemoteEngine("paddleocr", cfg), nil
	})
}
