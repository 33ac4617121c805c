package ports

import (
	"context"

	"go.trai.ch/grid/internal/core/domain"
)

// CacheStore defines the interface for storing and retrieving environment snapshots.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type CacheStore interface {
	// Get retrieves the entry stored under key.
	// Returns nil, nil if not found.
	Get(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, error)

	// Put stores the entry under its key. When an entry already exists the first writer wins
	// and Put returns nil.
	Put(ctx context.Context, entry domain.CacheEntry) error
}
