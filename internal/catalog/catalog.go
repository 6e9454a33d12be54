// Package catalog holds the model list served by /models and the fallback pool.
package catalog

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
)

//go:embed config/*.yaml
var configFiles embed.FS

const catalogFile = "config/models.yaml"

// Registry is the loaded catalog
type Registry struct {
	file File
	byID map[string]int
	mu   sync.RWMutex
}

// NewRegistry loads the embedded catalog.
func NewRegistry() (*Registry, error) {
	data, err := configFiles.ReadFile(catalogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", catalogFile, err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML in the models.yaml layout.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}

	r := &Registry{file: f, byID: make(map[string]int, len(f.Models))}
	for i, m := range f.Models {
		if strings.TrimSpace(m.ID) == "" {
			return nil, fmt.Errorf("catalog model %d has no id", i)
		}
		if _, dup := r.byID[m.ID]; dup {
			return nil, fmt.Errorf("catalog lists %s twice", m.ID)
		}
		r.byID[m.ID] = i
	}
	return r, nil
}

// Models returns every selectable model in catalog order.
func (r *Registry) Models() []goal.ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]goal.ModelInfo{}, r.file.Models...)
}

// Model looks up one model.
func (r *Registry) Model(id string) (goal.ModelInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return goal.ModelInfo{}, &domain.NotFoundError{Message: fmt.Sprintf("unknown model: %s", id)}
	}
	return r.file.Models[i], nil
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// Defaults returns the preselected model ids.
func (r *Registry) Defaults() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.file.Defaults) == 0 && len(r.file.Models) > 0 {
		return []string{r.file.Models[0].ID}
	}
	return append([]string{}, r.file.Defaults...)
}

// FallbackPool returns the ordered backup model ids.
func (r *Registry) FallbackPool() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.file.FallbackPool...)
}
