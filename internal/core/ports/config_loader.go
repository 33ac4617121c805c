package ports

import "go.trai.ch/grid/internal/core/domain"

// ConfigLoader defines the interface for loading the pipeline configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads and validates the configuration file at path.
	// A directory path is searched for grid.yaml, grid.jsonc and grid.json in that order.
	Load(path string) (*domain.PipelineConfig, error)
}
