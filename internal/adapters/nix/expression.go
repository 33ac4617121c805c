package nix

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// pinnedPackage is a package attribute at a nixpkgs revision.
type pinnedPackage struct {
	commit   string
	attrPath string
}

// generateExpression returns a mkShell expression with every package taken from its own
// pinned nixpkgs. The output depends only on the set of packages.
func generateExpression(system string, pkgs []pinnedPackage) string {
	byCommit := make(map[string][]string)
	for _, p := range pkgs {
		byCommit[p.commit] = append(byCommit[p.commit], p.attrPath)
	}
	commits := slices.Sorted(maps.Keys(byCommit))

	var b strings.Builder
	b.WriteString("let\n")
	fmt.Fprintf(&b, "  system = %q;\n", system)
	if len(commits) == 0 {
		b.WriteString("  pkgs_0 = import <nixpkgs> { inherit system; };\n")
	}
	for i, c := range commits {
		fmt.Fprintf(&b, "  pkgs_%d = (builtins.getFlake \"github:NixOS/nixpkgs/%s\").legacyPackages.${system};\n", i, c)
	}
	b.WriteString("in\n")
	b.WriteString("pkgs_0.mkShell {\n")
	b.WriteString("  buildInputs = [\n")
	for i, c := range commits {
		attrs := slices.Sorted(slices.Values(byCommit[c]))
		for _, attr := range slices.Compact(attrs) {
			fmt.Fprintf(&b, "    pkgs_%d.%s\n", i, packageAttr(attr))
		}
	}
	b.WriteString("  ];\n")
	b.WriteString("}\n")
	return b.String()
}

// packageAttr strips the legacyPackages.<system>. prefix NixHub returns.
func packageAttr(attrPath string) string {
	parts := strings.SplitN(attrPath, ".", 3)
	if len(parts) == 3 && parts[0] == "legacyPackages" {
		return parts[2]
	}
	return attrPath
}
