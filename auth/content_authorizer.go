package auth

import (
	"time"

	"go.uber.org/zap"

	corelog "github.com/ebogdum/lfsauth/core/log"
	"github.com/ebogdum/lfsauth/metrics"
)

// ContentClaims binds a token to one object and one transfer direction
type ContentClaims struct {
	Operation Operation
	ObjectID  string
}

type contentCodec struct{}

func (contentCodec) Fields(c ContentClaims) []string {
	return []string{string(c.Operation), c.ObjectID}
}

func (contentCodec) Parse(fields []string) (ContentClaims, bool) {
	if len(fields) != 2 {
		return ContentClaims{}, false
	}
	return ContentClaims{Operation: Operation(fields[0]), ObjectID: fields[1]}, true
}

func (contentCodec) Arity() int { return 2 }

// ContentAuthorizer mints and checks tokens for filesystem content requests
type ContentAuthorizer struct {
	processor *Processor[ContentClaims]
	now       func() time.Time
	logger    *zap.Logger
}

// NewContentAuthorizer creates a content authorizer sharing the given cipher
func NewContentAuthorizer(c *Cipher, logger *zap.Logger) *ContentAuthorizer {
	return &ContentAuthorizer{
		processor: NewProcessor[ContentClaims](c, contentCodec{}),
		now:       time.Now,
		logger:    logger,
	}
}

// GenerateAuthInfo mints a token for (operation, objectID) issued at issued
func (a *ContentAuthorizer) GenerateAuthInfo(op Operation, objectID string, issued time.Time, expiresIn int64) (AuthInfo, error) {
	token := NewToken(ContentClaims{Operation: op, ObjectID: objectID}, issued, expiresIn)
	serialized, err := a.processor.Serialize(token)
	if err != nil {
		return AuthInfo{}, err
	}

	metrics.TokensIssuedTotal.WithLabelValues("content", string(op)).Inc()
	return AuthInfo{Token: serialized, Issued: token.Issued, ExpiresIn: token.ExpiresIn}, nil
}

// Issue mints a token issued now
func (a *ContentAuthorizer) Issue(op Operation, objectID string, expiresIn int64) (AuthInfo, error) {
	return a.GenerateAuthInfo(op, objectID, a.now(), expiresIn)
}

// VerifyAuthInfo reports whether token is a fresh token for exactly (operation, objectID)
func (a *ContentAuthorizer) VerifyAuthInfo(token string, op Operation, objectID string) bool {
	return a.verifyAt(token, op, objectID, a.now())
}

func (a *ContentAuthorizer) verifyAt(token string, op Operation, objectID string, now time.Time) bool {
	decoded, ok := a.processor.Deserialize(token)
	if !ok {
		a.logger.Error("Invalid content auth token",
			zap.String("token", corelog.SanitizeToken(token)),
			zap.String("operation", string(op)))
		metrics.TokenVerificationsTotal.WithLabelValues("content", "malformed").Inc()
		return false
	}

	result := Check(decoded, now, func(c ContentClaims) bool {
		return c.Operation == op && c.ObjectID == objectID
	})
	switch result {
	case Expired:
		a.logger.Info("Content auth token expired",
			zap.String("operation", string(op)),
			zap.String("oid", objectID),
			zap.String("expired_at", FormatTime(decoded.ExpiresAt())))
	case Mismatch:
		a.logger.Warn("Content auth token does not match request",
			zap.String("token", corelog.SanitizeToken(token)),
			zap.String("operation", string(op)),
			zap.String("oid", objectID))
	}

	metrics.TokenVerificationsTotal.WithLabelValues("content", result.String()).Inc()
	return result == Valid
}
