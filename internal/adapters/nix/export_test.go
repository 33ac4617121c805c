package nix

import "net/http"

// NewResolverForTest creates a Resolver that queries baseURL with client.
func NewResolverForTest(cacheDir, baseURL string, client *http.Client) *Resolver {
	return newResolver(cacheDir, baseURL, client)
}

// CurrentSystem exposes the NixHub system string of the running platform.
func CurrentSystem() string {
	return currentSystem()
}

// ParseDevEnv exposes the print-dev-env parser.
func ParseDevEnv(data []byte) ([]string, error) {
	return parseDevEnv(data)
}

// GenerateExpression exposes the expression generator with (commit, attrPath) pairs.
func GenerateExpression(system string, pkgs [][2]string) string {
	pinned := make([]pinnedPackage, len(pkgs))
	for i, p := range pkgs {
		pinned[i] = pinnedPackage{commit: p[0], attrPath: p[1]}
	}
	return generateExpression(system, pinned)
}
