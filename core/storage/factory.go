package storage

import (
	"fmt"

	"github.com/kilianp07/smartshift/core/factory"
)

var registry = factory.NewRegistry[Store]()

func init() {
	_ = RegisterStore("memory", func(map[string]any) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// RegisterStore adds a backend factory identified by name.
func RegisterStore(name string, f factory.Factory[Store]) error {
	return registry.Register(name, f)
}

// NewStore builds the backend named by cfg.Type. An empty type selects the
// in-memory store.
func NewStore(cfg factory.ModuleConfig) (Store, error) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	s, err := registry.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", cfg.Type, err)
	}
	return s, nil
}

// Backends lists the registered backend names.
func Backends() []string { return registry.Names() }
