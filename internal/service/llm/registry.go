package llm

import (
	"fmt"
	"strings"
	"sync"
)

// loremPrefix marks development models served by the lorem provider
const loremPrefix = "lorem-"

// ProviderRegistry routes models to providers and caches provider instances
type ProviderRegistry struct {
	factory         *ProviderFactory
	defaultProvider string

	mu    sync.RWMutex
	cache map[string]Provider
}

// NewProviderRegistry creates a registry that sends every non-lorem model to defaultProvider
func NewProviderRegistry(factory *ProviderFactory, defaultProvider string) *ProviderRegistry {
	return &ProviderRegistry{
		factory:         factory,
		defaultProvider: defaultProvider,
		cache:           make(map[string]Provider),
	}
}

// Register installs a ready provider under name, replacing any cached one
func (r *ProviderRegistry) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[name] = provider
}

// ForModel returns the provider serving model
func (r *ProviderRegistry) ForModel(model string) (Provider, error) {
	if strings.HasPrefix(model, loremPrefix) {
		return r.GetProvider("lorem")
	}
	return r.GetProvider(r.defaultProvider)
}

// GetProvider returns the named provider, creating it through the factory on first use
func (r *ProviderRegistry) GetProvider(name string) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}

	r.mu.RLock()
	if cached, ok := r.cache[name]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// another goroutine may have created it while we waited
	if cached, ok := r.cache[name]; ok {
		return cached, nil
	}

	if r.factory == nil {
		return nil, fmt.Errorf("provider '%s' is not registered", name)
	}
	libraryProvider, err := r.factory.GetProvider(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider '%s': %w", name, err)
	}

	provider := NewLibraryAdapter(libraryProvider)
	r.cache[name] = provider
	return provider, nil
}
