// Package log provides redaction helpers for values that must not reach logs verbatim.
package log

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
)

// SanitizationMode controls how sensitive data is handled in logs
type SanitizationMode int

const (
	// ProductionMode hashes sensitive data for production use
	ProductionMode SanitizationMode = iota
	// DevelopmentMode shows truncated sensitive data for debugging
	DevelopmentMode
	// DebugMode shows full identity data (tokens are still truncated)
	DebugMode
)

var currentMode = ProductionMode

func init() {
	currentMode = ParseMode(os.Getenv("LFSAUTH_LOG_MODE"))
}

// ParseMode maps a mode name to a SanitizationMode. Unknown names map to ProductionMode.
func ParseMode(mode string) SanitizationMode {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "development":
		return DevelopmentMode
	case "debug":
		return DebugMode
	default:
		return ProductionMode
	}
}

// SetMode overrides the sanitization mode and returns the previous one.
func SetMode(mode SanitizationMode) SanitizationMode {
	prev := currentMode
	currentMode = mode
	return prev
}

// SanitizeToken redacts an opaque auth token. Tokens are bearer credentials, so
// no mode ever logs more than a short prefix.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}

	switch currentMode {
	case ProductionMode:
		hash := sha256.Sum256([]byte(token))
		return fmt.Sprintf("token_hash:%x", hash[:6])
	default:
		if len(token) <= 8 {
			return "****"
		}
		return token[:8] + "..."
	}
}

// SanitizeUserID sanitizes user IDs for logging
func SanitizeUserID(userID string) string {
	if userID == "" {
		return ""
	}

	switch currentMode {
	case ProductionMode:
		hash := sha256.Sum256([]byte(userID))
		return fmt.Sprintf("user_hash:%x", hash[:6])
	case DevelopmentMode:
		if len(userID) <= 8 {
			return userID
		}
		return userID[:4] + "****"
	default:
		return userID
	}
}

// SanitizeProject sanitizes project names. Project names are less sensitive than
// user ids but can still leak repository layout.
func SanitizeProject(project string) string {
	if project == "" {
		return ""
	}

	switch currentMode {
	case ProductionMode:
		hash := sha256.Sum256([]byte(project))
		return fmt.Sprintf("project_hash:%x", hash[:8])
	case DevelopmentMode:
		if len(project) <= 20 {
			return project
		}
		return project[:10] + "..." + project[len(project)-7:]
	default:
		return project
	}
}

// LogFields groups the identity values attached to a token event
type LogFields struct {
	Token     string
	UserID    string
	Project   string
	Operation string
}

// Sanitize returns sanitized versions of all fields
func (lf LogFields) Sanitize() LogFields {
	return LogFields{
		Token:     SanitizeToken(lf.Token),
		UserID:    SanitizeUserID(lf.UserID),
		Project:   SanitizeProject(lf.Project),
		Operation: lf.Operation,
	}
}
