package catalog

import "goalbreaker/internal/domain/models/goal"

// File is the layout of config/models.yaml
type File struct {
	Models []goal.ModelInfo `yaml:"models"`

	// Defaults are preselected when the user picks no model.
	Defaults []string `yaml:"defaults"`

	// FallbackPool is tried in order when an agent fails, whatever the user selected.
	FallbackPool []string `yaml:"fallback_pool"`
}
