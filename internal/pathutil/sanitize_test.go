package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		shouldError bool
	}{
		{
			name:     "empty path",
			input:    "",
			expected: "/",
		},
		{
			name:     "object path",
			input:    "ab/cd/abcdef",
			expected: "/ab/cd/abcdef",
		},
		{
			name:        "absolute path escape",
			input:       "/etc/passwd",
			shouldError: true,
		},
		{
			name:        "directory traversal",
			input:       "../../../etc/passwd",
			shouldError: true,
		},
		{
			name:        "mixed traversal",
			input:       "ab/../../etc/passwd",
			shouldError: true,
		},
		{
			name:     "safe relative navigation",
			input:    "ab/../cd",
			expected: "/cd",
		},
		{
			name:     "multiple slashes",
			input:    "ab//cd",
			expected: "/ab/cd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Clean(tt.input)

			if tt.shouldError {
				if !errors.Is(err, ErrForbidden) {
					t.Errorf("expected ErrForbidden for input %q, got %v", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error for input %q: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("for input %q, expected %q, got %q", tt.input, tt.expected, result)
			}
		})
	}
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name        string
		rel         string
		shouldError bool
	}{
		{name: "missing object", rel: "ab/cd/abcd"},
		{name: "flat file", rel: "file"},
		{name: "escape attempt", rel: "../../../etc/passwd", shouldError: true},
		{name: "absolute path escape", rel: "/etc/passwd", shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SafeJoin(root, tt.rel)

			if tt.shouldError {
				if err == nil {
					t.Errorf("expected error for rel %q, got %q", tt.rel, result)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error for rel %q: %v", tt.rel, err)
			}
			if !strings.HasPrefix(result, root) {
				t.Errorf("result %q does not start with root %q", result, root)
			}
		})
	}
}

func TestSafeJoinRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(root, "ab")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := SafeJoin(root, "ab/cd"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for symlinked escape, got %v", err)
	}
}

func TestValidateProjectName(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		shouldError bool
	}{
		{name: "single segment", input: "project"},
		{name: "nested", input: "group/sub/project"},
		{name: "dots inside segment", input: "group/my.project"},
		{name: "empty", input: "", shouldError: true},
		{name: "leading slash", input: "/project", shouldError: true},
		{name: "trailing slash", input: "project/", shouldError: true},
		{name: "empty segment", input: "group//project", shouldError: true},
		{name: "traversal", input: "group/../other", shouldError: true},
		{name: "null byte", input: "pro\x00ject", shouldError: true},
		{name: "control character", input: "pro\x01ject", shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProjectName(tt.input)

			if tt.shouldError && err == nil {
				t.Errorf("expected error for input %q, got none", tt.input)
			}
			if !tt.shouldError && err != nil {
				t.Errorf("unexpected error for input %q: %v", tt.input, err)
			}
		})
	}
}
