// internal/host/registry.go
package host

import (
	"fmt"
	"slices"
	"sync"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
)

// Factory builds an adapter. Provider packages register one from init().
type Factory func(opts Options) (Adapter, error)

var (
	registry      = make(map[string]Factory)
	registryMutex sync.RWMutex
)

// Register binds kind to factory. Registering a kind twice panics.
func Register(kind string, factory Factory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if factory == nil {
		panic(fmt.Sprintf("host: Register factory is nil for kind %s", kind))
	}
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("host: Register called twice for kind %s", kind))
	}
	registry[kind] = factory
}

// New builds the adapter for h.Kind.
func New(h model.Host, opts Options) (Adapter, error) {
	registryMutex.RLock()
	factory, ok := registry[h.Kind]
	registryMutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("host %s: kind %q: %w", h.Name, h.Kind, custom_errors.ErrUnsupported)
	}
	opts.Host = h
	return factory(opts.withDefaults())
}

// RegisteredKinds lists registered kinds in sorted order.
func RegisteredKinds() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Set resolves adapters by host name, building each one once.
type Set struct {
	mu       sync.Mutex
	adapters map[string]Adapter
	options  func(h model.Host) Options
}

// NewSet returns a Set that configures adapters with options(h).
func NewSet(options func(h model.Host) Options) *Set {
	return &Set{adapters: make(map[string]Adapter), options: options}
}

// For returns the adapter for h, building it on first use.
func (s *Set) For(h model.Host) (Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.adapters[h.Name]; ok {
		return a, nil
	}
	var opts Options
	if s.options != nil {
		opts = s.options(h)
	}
	a, err := New(h, opts)
	if err != nil {
		return nil, err
	}
	s.adapters[h.Name] = a
	return a, nil
}

// Put installs a prebuilt adapter for a host name.
func (s *Set) Put(hostName string, a Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[hostName] = a
}
