package auth

import (
	"context"

	"go.uber.org/zap"

	corelog "github.com/ebogdum/lfsauth/core/log"
)

// UserProvider upgrades an otherwise anonymous HTTP request to an identified user
// when it carries a valid SSH-minted transfer token
type UserProvider struct {
	transfer *TransferAuthorizer
	accounts AccountLookup
	logger   *zap.Logger
}

// NewUserProvider creates a user provider
func NewUserProvider(transfer *TransferAuthorizer, accounts AccountLookup, logger *zap.Logger) *UserProvider {
	return &UserProvider{transfer: transfer, accounts: accounts, logger: logger}
}

// User returns the user identified by authHeader for (project, op). When the header
// is not a valid transfer token or names an unknown account, current is returned;
// an empty result means anonymous.
func (p *UserProvider) User(ctx context.Context, authHeader, project string, op Operation, current string) string {
	token, ok := TrimSSHPrefix(authHeader)
	if !ok || token == "" {
		return current
	}

	user, ok := p.transfer.GetUserFromValidToken(token, project, op)
	if !ok {
		return current
	}

	account, ok := p.accounts.LookupUser(ctx, user)
	if !ok {
		p.logger.Warn("SSH auth token names unknown account",
			zap.String("user", corelog.SanitizeUserID(user)))
		return current
	}
	return account
}

// StaticAccounts is an AccountLookup over a fixed set of usernames.
// An empty set accepts every username.
type StaticAccounts struct {
	users map[string]bool
}

// NewStaticAccounts creates a static account lookup
func NewStaticAccounts(usernames []string) *StaticAccounts {
	users := make(map[string]bool)
	for _, u := range usernames {
		if u != "" {
			users[u] = true
		}
	}
	return &StaticAccounts{users: users}
}

// LookupUser implements AccountLookup
func (s *StaticAccounts) LookupUser(ctx context.Context, username string) (string, bool) {
	if username == "" {
		return "", false
	}
	if len(s.users) == 0 || s.users[username] {
		return username, true
	}
	return "", false
}
