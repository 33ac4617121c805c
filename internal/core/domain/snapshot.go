package domain

import (
	"slices"
	"time"
)

// Snapshot is an opaque handle to a provisioned environment.
type Snapshot struct {
	// ID identifies the snapshot within the builder that produced it.
	ID string `cbor:"1,keyasint" json:"id"`
	// Builder names the builder kind that produced the snapshot.
	Builder string `cbor:"2,keyasint" json:"builder"`
	// Root is the directory of the environment, if the builder materialized one.
	Root string `cbor:"3,keyasint,omitempty" json:"root,omitempty"`
	// Env holds KEY=VALUE pairs that activate the environment.
	Env []string `cbor:"4,keyasint,omitempty" json:"env,omitempty"`
	// CreatedAt is when the builder produced the snapshot.
	CreatedAt time.Time `cbor:"5,keyasint" json:"createdAt"`
}

// Environ returns a copy of the snapshot environment.
func (s Snapshot) Environ() []string {
	return slices.Clone(s.Env)
}

// CacheEntry is a snapshot stored under its cache key.
// Entries are looked up and created but never modified in place.
type CacheEntry struct {
	Key           CacheKey  `cbor:"1,keyasint" json:"key"`
	Snapshot      Snapshot  `cbor:"2,keyasint" json:"snapshot"`
	FreshnessDate string    `cbor:"3,keyasint" json:"freshnessDate"`
	Generation    int       `cbor:"4,keyasint" json:"generation"`
	StoredAt      time.Time `cbor:"5,keyasint" json:"storedAt"`
}
