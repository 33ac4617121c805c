package nix

import "time"

// cacheEntry is a resolution result cached per package version, keyed by system.
type cacheEntry struct {
	Name      string                      `json:"name"`
	Version   string                      `json:"version"`
	Systems   map[string]FlakeInstallable `json:"systems"`
	Timestamp time.Time                   `json:"timestamp"`
}

// NixHubResponse is the response of the NixHub v2/resolve endpoint.
type NixHubResponse struct {
	Name    string                    `json:"name"`
	Version string                    `json:"version"`
	Summary string                    `json:"summary"`
	Systems map[string]SystemResponse `json:"systems"`
}

// SystemResponse is the package information for one system.
type SystemResponse struct {
	FlakeInstallable FlakeInstallable `json:"flake_installable"`
	LastUpdated      string           `json:"last_updated"`
}

// FlakeInstallable locates the package in a pinned nixpkgs.
type FlakeInstallable struct {
	Ref      FlakeRef `json:"ref"`
	AttrPath string   `json:"attr_path"`
}

// FlakeRef is the git reference of the flake.
type FlakeRef struct {
	Type  string `json:"type"`
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Rev   string `json:"rev"`
}

// devEnv is the output of nix print-dev-env --json.
type devEnv struct {
	Variables map[string]devEnvVariable `json:"variables"`
}

type devEnvVariable struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}
