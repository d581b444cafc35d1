package auth

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestTransferAuthorizer(t *testing.T) *TransferAuthorizer {
	t.Helper()
	return NewTransferAuthorizer(newTestCipher(t), DefaultSSHExpirationSeconds, zap.NewNop())
}

func TestTransferAuthorizerRoundTrip(t *testing.T) {
	a := newTestTransferAuthorizer(t)

	info, err := a.GenerateAuthInfo("alice", "foo/bar", OperationDownload)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(info.Token, SSHAuthPrefix))
	assert.Equal(t, int64(DefaultSSHExpirationSeconds), info.ExpiresIn)

	token, ok := TrimSSHPrefix(info.Token)
	require.True(t, ok)

	user, ok := a.GetUserFromValidToken(token, "foo/bar", OperationDownload)
	require.True(t, ok)
	assert.Equal(t, "alice", user)
}

func TestTransferAuthorizerRejectsMismatch(t *testing.T) {
	a := newTestTransferAuthorizer(t)

	info, err := a.GenerateAuthInfo("alice", "foo/bar", OperationUpload)
	require.NoError(t, err)
	token, _ := TrimSSHPrefix(info.Token)

	_, ok := a.GetUserFromValidToken(token, "foo/baz", OperationUpload)
	assert.False(t, ok)
	_, ok = a.GetUserFromValidToken(token, "foo/bar", OperationDownload)
	assert.False(t, ok)
	_, ok = a.GetUserFromValidToken(info.Token, "foo/bar", OperationUpload)
	assert.False(t, ok, "prefixed value is not a bare token")
	_, ok = a.GetUserFromValidToken("", "foo/bar", OperationUpload)
	assert.False(t, ok)
}

func TestTransferAuthorizerRejectsRewrittenUser(t *testing.T) {
	a := newTestTransferAuthorizer(t)

	info, err := a.GenerateAuthInfo("alice", "proj", OperationUpload)
	require.NoError(t, err)
	token, _ := TrimSSHPrefix(info.Token)

	raw, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)

	// The user field sits in the first CBC block, so IV edits map onto it
	from, to := []byte("alice"), []byte("admin")
	for i := range from {
		raw[i] ^= from[i] ^ to[i]
	}
	forged := base64.StdEncoding.EncodeToString(raw)

	user, ok := a.GetUserFromValidToken(forged, "proj", OperationUpload)
	assert.False(t, ok)
	assert.Empty(t, user)
}

func TestTransferAuthorizerRejectsSwappedCharacters(t *testing.T) {
	a := newTestTransferAuthorizer(t)

	for i := 0; i < 50; i++ {
		info, err := a.GenerateAuthInfo("alice", "proj", OperationUpload)
		require.NoError(t, err)
		token, _ := TrimSSHPrefix(info.Token)
		if token[0] == token[1] {
			continue
		}

		swapped := token[1:2] + token[0:1] + token[2:]
		user, ok := a.GetUserFromValidToken(swapped, "proj", OperationUpload)
		assert.False(t, ok, "swapped token accepted for user %q", user)
	}
}

func TestTransferAuthorizerExpiry(t *testing.T) {
	a := newTestTransferAuthorizer(t)
	issued := time.Now()
	a.now = func() time.Time { return issued }

	info, err := a.GenerateAuthInfo("alice", "p", OperationUpload)
	require.NoError(t, err)
	token, _ := TrimSSHPrefix(info.Token)

	_, ok := a.userAt(token, "p", OperationUpload, issued.Add(9*time.Second))
	assert.True(t, ok)
	_, ok = a.userAt(token, "p", OperationUpload, issued.Add(10*time.Second))
	assert.False(t, ok)
}

func TestTransferAuthorizerExpirationFallback(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := newTestCipher(t)

	for _, configured := range []int{0, -5} {
		a := NewTransferAuthorizer(c, configured, zap.New(core))
		assert.Equal(t, int64(DefaultSSHExpirationSeconds), a.ExpiresIn())
	}
	assert.Equal(t, 2, logs.Len())

	a := NewTransferAuthorizer(c, 30, zap.New(core))
	assert.Equal(t, int64(30), a.ExpiresIn())
	assert.Equal(t, 2, logs.Len())
}

func TestTransferAuthorizerRejectsDelimiterInProject(t *testing.T) {
	a := newTestTransferAuthorizer(t)

	_, err := a.GenerateAuthInfo("alice", "foo~bar", OperationUpload)
	assert.ErrorIs(t, err, ErrDelimiterInField)
}

func TestUserProvider(t *testing.T) {
	a := newTestTransferAuthorizer(t)
	ctx := context.Background()

	info, err := a.GenerateAuthInfo("alice", "foo/bar", OperationDownload)
	require.NoError(t, err)
	unknown, err := a.GenerateAuthInfo("mallory", "foo/bar", OperationDownload)
	require.NoError(t, err)

	provider := NewUserProvider(a, NewStaticAccounts([]string{"alice", "bob"}), zap.NewNop())

	tests := []struct {
		name      string
		header    string
		project   string
		operation Operation
		current   string
		want      string
	}{
		{name: "valid ssh token", header: info.Token, project: "foo/bar", operation: OperationDownload, want: "alice"},
		{name: "valid ssh token overrides current", header: info.Token, project: "foo/bar", operation: OperationDownload, current: "bob", want: "alice"},
		{name: "wrong project", header: info.Token, project: "other", operation: OperationDownload, current: "bob", want: "bob"},
		{name: "wrong operation", header: info.Token, project: "foo/bar", operation: OperationUpload},
		{name: "unknown account", header: unknown.Token, project: "foo/bar", operation: OperationDownload},
		{name: "basic auth header", header: "Basic dXNlcjpwYXNz", project: "foo/bar", operation: OperationDownload, current: "bob", want: "bob"},
		{name: "empty header", project: "foo/bar", operation: OperationDownload},
		{name: "prefix only", header: SSHAuthPrefix, project: "foo/bar", operation: OperationDownload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := provider.User(ctx, tt.header, tt.project, tt.operation, tt.current)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStaticAccounts(t *testing.T) {
	ctx := context.Background()

	open := NewStaticAccounts(nil)
	user, ok := open.LookupUser(ctx, "anyone")
	assert.True(t, ok)
	assert.Equal(t, "anyone", user)
	_, ok = open.LookupUser(ctx, "")
	assert.False(t, ok)

	closed := NewStaticAccounts([]string{"alice", ""})
	_, ok = closed.LookupUser(ctx, "bob")
	assert.False(t, ok)
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation(" Upload ")
	require.NoError(t, err)
	assert.Equal(t, OperationUpload, op)

	_, err = ParseOperation("delete")
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestAPIKeyAuthenticator(t *testing.T) {
	a := NewAPIKeyAuthenticator([]string{"sshd:s3cret", "bare-key", ""})
	ctx := context.Background()

	name, err := a.Authenticate(ctx, "Bearer s3cret")
	require.NoError(t, err)
	assert.Equal(t, "sshd", name)

	name, err = a.Authenticate(ctx, "bare-key")
	require.NoError(t, err)
	assert.Equal(t, "internal", name)

	_, err = a.Authenticate(ctx, "Bearer ")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	_, err = a.Authenticate(ctx, "wrong")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}
