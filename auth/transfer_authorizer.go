package auth

import (
	"strings"
	"time"

	"go.uber.org/zap"

	corelog "github.com/ebogdum/lfsauth/core/log"
	"github.com/ebogdum/lfsauth/metrics"
)

const (
	// DefaultSSHExpirationSeconds is used when no valid expiry is configured
	DefaultSSHExpirationSeconds = 10

	// SSHAuthPrefix marks Authorization values minted by the SSH authenticate step
	SSHAuthPrefix = "Ssh: "
)

// TransferClaims binds a token to a user acting on a project in one direction
type TransferClaims struct {
	User      string
	Project   string
	Operation Operation
}

type transferCodec struct{}

func (transferCodec) Fields(c TransferClaims) []string {
	return []string{c.User, c.Project, string(c.Operation)}
}

func (transferCodec) Parse(fields []string) (TransferClaims, bool) {
	if len(fields) != 3 {
		return TransferClaims{}, false
	}
	return TransferClaims{User: fields[0], Project: fields[1], Operation: Operation(fields[2])}, true
}

func (transferCodec) Arity() int { return 3 }

// TransferAuthorizer pre-authorizes an HTTP follow-up request from an SSH session
type TransferAuthorizer struct {
	processor *Processor[TransferClaims]
	expiresIn int64
	now       func() time.Time
	logger    *zap.Logger
}

// NewTransferAuthorizer creates a transfer authorizer. Non-positive expirationSeconds
// fall back to DefaultSSHExpirationSeconds.
func NewTransferAuthorizer(c *Cipher, expirationSeconds int, logger *zap.Logger) *TransferAuthorizer {
	expiresIn := int64(expirationSeconds)
	if expiresIn <= 0 {
		logger.Warn("Invalid SSH token expiration, falling back to default",
			zap.Int("configured", expirationSeconds),
			zap.Int("default", DefaultSSHExpirationSeconds))
		expiresIn = DefaultSSHExpirationSeconds
	}

	return &TransferAuthorizer{
		processor: NewProcessor[TransferClaims](c, transferCodec{}),
		expiresIn: expiresIn,
		now:       time.Now,
		logger:    logger,
	}
}

// ExpiresIn returns the configured token lifetime in seconds
func (a *TransferAuthorizer) ExpiresIn() int64 {
	return a.expiresIn
}

// GenerateAuthInfo mints a token for (user, project, operation). The returned token
// carries SSHAuthPrefix so the HTTP side can recognize it.
func (a *TransferAuthorizer) GenerateAuthInfo(user, project string, op Operation) (AuthInfo, error) {
	token := NewToken(TransferClaims{User: user, Project: project, Operation: op}, a.now(), a.expiresIn)
	serialized, err := a.processor.Serialize(token)
	if err != nil {
		return AuthInfo{}, err
	}

	metrics.TokensIssuedTotal.WithLabelValues("transfer", string(op)).Inc()
	return AuthInfo{Token: SSHAuthPrefix + serialized, Issued: token.Issued, ExpiresIn: token.ExpiresIn}, nil
}

// GetUserFromValidToken returns the user bound to token when the token is fresh and
// was minted for the same project and operation. token must not carry SSHAuthPrefix.
func (a *TransferAuthorizer) GetUserFromValidToken(token, project string, op Operation) (string, bool) {
	return a.userAt(token, project, op, a.now())
}

func (a *TransferAuthorizer) userAt(token, project string, op Operation, now time.Time) (string, bool) {
	decoded, ok := a.processor.Deserialize(token)
	if !ok {
		metrics.TokenVerificationsTotal.WithLabelValues("transfer", "malformed").Inc()
		return "", false
	}

	result := Check(decoded, now, func(c TransferClaims) bool {
		return c.Project == project && c.Operation == op
	})
	metrics.TokenVerificationsTotal.WithLabelValues("transfer", result.String()).Inc()
	if result != Valid {
		fields := corelog.LogFields{
			Token:     token,
			UserID:    decoded.Claims.User,
			Project:   project,
			Operation: string(op),
		}.Sanitize()
		a.logger.Error("Invalid data was provided with SSH auth token",
			zap.String("token", fields.Token),
			zap.String("user", fields.UserID),
			zap.String("project", fields.Project),
			zap.String("operation", fields.Operation),
			zap.Stringer("result", result))
		return "", false
	}
	return decoded.Claims.User, true
}

// TrimSSHPrefix strips SSHAuthPrefix from an Authorization value
func TrimSSHPrefix(header string) (string, bool) {
	if !strings.HasPrefix(header, SSHAuthPrefix) {
		return "", false
	}
	return strings.TrimPrefix(header, SSHAuthPrefix), true
}
