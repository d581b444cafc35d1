// Package pathutil provides path and project-name checks shared by the
// filesystem backend and the HTTP surface.
package pathutil

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrForbidden is returned for paths or names that would escape their root
var ErrForbidden = errors.New("forbidden path")

// Clean normalizes a relative path under a virtual root "/".
// Absolute paths and paths climbing above the root are rejected.
func Clean(path string) (string, error) {
	if path == "" {
		return "/", nil
	}
	if filepath.IsAbs(path) && path != "/" {
		return "", ErrForbidden
	}

	cleaned := filepath.Clean("/" + strings.TrimPrefix(path, "/"))
	if cleaned == "/" {
		return cleaned, nil
	}

	depth := 0
	for _, part := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		switch part {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return "", ErrForbidden
			}
		default:
			depth++
		}
	}

	return cleaned, nil
}

// SafeJoin joins rel under root and fails when the result, with symlinks
// resolved where they exist, would leave root.
func SafeJoin(root, rel string) (string, error) {
	cleanRoot := filepath.Clean(root)

	cleanRel, err := Clean(rel)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(cleanRoot, strings.TrimPrefix(cleanRel, "/"))

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		// The object may not exist yet; check the deepest directory that does.
		resolved = joined
		if dir, dirErr := filepath.EvalSymlinks(filepath.Dir(joined)); dirErr == nil {
			resolved = filepath.Join(dir, filepath.Base(joined))
		}
	}

	resolvedRoot, err := filepath.EvalSymlinks(cleanRoot)
	if err != nil {
		resolvedRoot = cleanRoot
	}
	if !within(resolvedRoot, resolved) && !within(cleanRoot, resolved) {
		return "", ErrForbidden
	}
	return joined, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ValidateProjectName checks a repository name such as "group/sub/project".
// Names must be relative, free of control characters and of "." or ".." segments.
func ValidateProjectName(name string) error {
	if name == "" {
		return errors.New("project name cannot be empty")
	}
	for _, r := range name {
		if r < 32 || r == 127 {
			return ErrForbidden
		}
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return ErrForbidden
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return ErrForbidden
		}
	}
	return nil
}
