package fsutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SafeJoin joins rel onto base and errors if the result escapes base.
func SafeJoin(base, rel string) (string, error) {
	target := filepath.Join(base, filepath.Clean(rel))
	if err := Within(base, target); err != nil {
		return "", fmt.Errorf("path %q escapes base directory", rel)
	}
	return target, nil
}

// Within errors unless target is base or lies beneath it.
func Within(base, target string) error {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s is outside %s", target, base)
	}
	return nil
}
