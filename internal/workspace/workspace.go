// Package workspace holds the on-disk layout of an evaluation project: a domains root with one directory per domain, each
// holding results/ (run files and the scores CSV) and test-data/ (task definitions).
package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultDomainsRoot = "domains"
	ResultsSubdir      = "results"
	TestDataSubdir     = "test-data"
)

// CleanDomain ensures the provided domain directory name is safe and normalized.
func CleanDomain(name string) (string, error) {
	if name == "" {
		return "", errors.New("domain is required")
	}
	if filepath.IsAbs(name) {
		return "", errors.New("domain must be relative")
	}
	clean := filepath.Clean(name)
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", errors.New("domain path cannot point outside the domains root")
	}
	return clean, nil
}

func DomainDir(root, name string) string {
	return filepath.Join(root, name)
}

func ResultsDir(root, name string) string {
	return filepath.Join(DomainDir(root, name), ResultsSubdir)
}

func TestDataDir(root, name string) string {
	return filepath.Join(DomainDir(root, name), TestDataSubdir)
}

// EnsureDir makes sure dir exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
