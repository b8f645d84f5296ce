// Package testutil provides shared helpers for architecture guard tests.
package testutil

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// PackageImports loads the given patterns and returns each package's
// imports keyed by package path. Test packages are included so guard rules
// cover test-only dependencies as well.
func PackageImports(t *testing.T, patterns ...string) map[string][]string {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	imports := map[string][]string{}
	for _, pkg := range pkgs {
		paths := make([]string, 0, len(pkg.Imports))
		for path := range pkg.Imports {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		imports[pkg.PkgPath] = paths
	}
	return imports
}

// IsStandardLibrary reports whether an import path belongs to the standard
// library, judged by the absence of a dot in its first path element.
func IsStandardLibrary(path string) bool {
	first := path
	if i := strings.Index(path, "/"); i >= 0 {
		first = path[:i]
	}
	return !strings.Contains(first, ".")
}
