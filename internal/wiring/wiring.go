// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/grid/internal/adapters/clock"
	_ "go.trai.ch/grid/internal/adapters/config"
	_ "go.trai.ch/grid/internal/adapters/fs"
	_ "go.trai.ch/grid/internal/adapters/logger"
	_ "go.trai.ch/grid/internal/adapters/telemetry"
	// Register app nodes.
	_ "go.trai.ch/grid/internal/app"
)
