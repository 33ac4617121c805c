package ports

import "context"

// DependencyResolver resolves a package version to a pinned Nixpkgs revision.
//
//go:generate mockgen -source=resolver.go -destination=mocks/mock_resolver.go -package=mocks
type DependencyResolver interface {
	// Resolve resolves a package identifier (e.g., "python@3.12") to a Nixpkgs commit
	// hash and the attribute path of the package at that commit.
	// It checks the cache first, then queries the NixHub API.
	Resolve(ctx context.Context, name, version string) (commitHash, attrPath string, err error)
}
