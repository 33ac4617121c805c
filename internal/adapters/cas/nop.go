package cas

import (
	"context"

	"go.trai.ch/grid/internal/core/domain"
)

// NopStore never holds an entry. Every job rebuilds its environment.
type NopStore struct{}

// Get always misses.
func (NopStore) Get(context.Context, domain.CacheKey) (*domain.CacheEntry, error) {
	return nil, nil
}

// Put discards entry.
func (NopStore) Put(context.Context, domain.CacheEntry) error {
	return nil
}
