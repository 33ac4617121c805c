package ports

// Fingerprinter computes a content identifier for an environment specification.
//
//go:generate mockgen -source=fingerprint.go -destination=mocks/mock_fingerprint.go -package=mocks
type Fingerprinter interface {
	// Fingerprint hashes the files matched by patterns, relative to root. The result only
	// changes when the matched paths or their content change.
	Fingerprint(root string, patterns []string) (string, error)
}
