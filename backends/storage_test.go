package backends

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	typ, err := ParseType(" FS ")
	require.NoError(t, err)
	assert.Equal(t, TypeFS, typ)

	typ, err = ParseType("s3")
	require.NoError(t, err)
	assert.Equal(t, TypeS3, typ)

	_, err = ParseType("gcs")
	assert.Error(t, err)
}

func TestBackendIdentity(t *testing.T) {
	unnamed := Backend{Type: TypeFS}
	named := Backend{Name: "default", Type: TypeFS}

	assert.Equal(t, DefaultName, unnamed.DisplayName())
	assert.Equal(t, unnamed.Key(), named.Key())
	assert.NotEqual(t, unnamed.Key(), Backend{Type: TypeS3}.Key())
	assert.NotEqual(t, unnamed.Key(), Backend{Name: "archive", Type: TypeFS}.Key())
	assert.Equal(t, "archive (s3)", Backend{Name: "archive", Type: TypeS3}.String())
}

func TestNotFoundError(t *testing.T) {
	err := error(&NotFoundError{Backend: "archive"})
	assert.True(t, errors.Is(err, ErrRepositoryNotFound))
	assert.Contains(t, err.Error(), `"archive"`)

	cause := errors.New("bucket missing")
	wrapped := error(&NotFoundError{Backend: "cloud", Err: cause})
	assert.ErrorIs(t, wrapped, ErrRepositoryNotFound)
	assert.ErrorIs(t, wrapped, cause)

	var nf *NotFoundError
	require.ErrorAs(t, wrapped, &nf)
	assert.Equal(t, "cloud", nf.Backend)
}

func TestValidateObjectID(t *testing.T) {
	tests := []struct {
		name  string
		oid   string
		valid bool
	}{
		{name: "sha256", oid: strings.Repeat("ab", 32), valid: true},
		{name: "digits", oid: strings.Repeat("0", 64), valid: true},
		{name: "uppercase", oid: strings.Repeat("AB", 32)},
		{name: "too short", oid: strings.Repeat("a", 63)},
		{name: "too long", oid: strings.Repeat("a", 65)},
		{name: "not hex", oid: strings.Repeat("g", 64)},
		{name: "traversal", oid: "../" + strings.Repeat("a", 61)},
		{name: "empty", oid: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectID(tt.oid)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidObjectID)
			}
		})
	}
}
