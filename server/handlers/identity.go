package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/lfsauth/auth"
	"github.com/ebogdum/lfsauth/internal/pathutil"
)

// HeaderForwardedAuthorization carries the end user's Authorization value, since
// the request's own Authorization header holds the API key.
const HeaderForwardedAuthorization = "X-Lfs-Authorization"

// IdentityResponse names the user a request acts as
type IdentityResponse struct {
	User      string `json:"user,omitempty"`
	Anonymous bool   `json:"anonymous"`
}

// V1Identity resolves the user behind a forwarded LFS request. A valid SSH transfer
// token identifies its user; anything else keeps the "current" user, if given.
func V1Identity(users *auth.UserProvider, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		project := q.Get("project")
		if err := pathutil.ValidateProjectName(project); err != nil {
			SendErrorResponse(w, logger, badRequest("invalid project: %v", err), http.StatusBadRequest)
			return
		}
		op, err := auth.ParseOperation(q.Get("operation"))
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		user := users.User(r.Context(), r.Header.Get(HeaderForwardedAuthorization), project, op, q.Get("current"))
		SendJSONResponse(w, IdentityResponse{User: user, Anonymous: user == ""})
	}
}
