package auth

import "time"

// HeaderAuthorization is the header carrying the opaque token
const HeaderAuthorization = "Authorization"

// AuthInfo is the result of minting a token
type AuthInfo struct {
	Token     string
	Issued    time.Time
	ExpiresIn int64 // seconds
}

// ExpiresAt returns the formatted expiry timestamp
func (i AuthInfo) ExpiresAt() string {
	return FormatTime(i.Issued.Add(lifetime(i.ExpiresIn)))
}

// ExpiresInMillis returns the validity duration in milliseconds
func (i AuthInfo) ExpiresInMillis() int64 {
	return lifetime(i.ExpiresIn).Milliseconds()
}

// ExpiringAction is the client-facing description of an authorized transfer step
type ExpiringAction struct {
	Href      string            `json:"href"`
	Header    map[string]string `json:"header,omitempty"`
	ExpiresAt string            `json:"expires_at"`
	ExpiresIn int64             `json:"expires_in"` // milliseconds
}

// NewExpiringAction builds an action that presents info's token in the Authorization header
func NewExpiringAction(href string, info AuthInfo) *ExpiringAction {
	return &ExpiringAction{
		Href:      href,
		Header:    map[string]string{HeaderAuthorization: info.Token},
		ExpiresAt: info.ExpiresAt(),
		ExpiresIn: info.ExpiresInMillis(),
	}
}
