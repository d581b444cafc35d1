package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/lfsauth/auth"
	corelog "github.com/ebogdum/lfsauth/core/log"
	"github.com/ebogdum/lfsauth/internal/pathutil"
	"github.com/ebogdum/lfsauth/server/middleware"
)

const maxRequestBodyBytes = 64 << 10

// SSHAuthenticateRequest is sent by the SSH daemon for "git-lfs-authenticate"
type SSHAuthenticateRequest struct {
	User      string `json:"user"`
	Project   string `json:"project"`
	Operation string `json:"operation"`
}

// V1SSHAuthenticate mints a transfer token for an SSH-authenticated user. The
// response tells the LFS client which URL to use and which header to send.
func V1SSHAuthenticate(transfer *auth.TransferAuthorizer, externalURL string, logger *zap.Logger) http.HandlerFunc {
	baseURL := strings.TrimSuffix(externalURL, "/")

	return func(w http.ResponseWriter, r *http.Request) {
		var req SSHAuthenticateRequest
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			SendErrorResponse(w, logger, badRequest("invalid request body: %v", err), http.StatusBadRequest)
			return
		}

		if strings.TrimSpace(req.User) == "" {
			SendErrorResponse(w, logger, badRequest("user is required"), http.StatusBadRequest)
			return
		}
		project := strings.TrimSuffix(req.Project, ".git")
		if err := pathutil.ValidateProjectName(project); err != nil {
			SendErrorResponse(w, logger, badRequest("invalid project: %v", err), http.StatusBadRequest)
			return
		}
		op, err := auth.ParseOperation(req.Operation)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		info, err := transfer.GenerateAuthInfo(req.User, project, op)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		caller, _ := middleware.GetCaller(r.Context())
		logger.Info("SSH transfer token issued",
			zap.String("caller", caller),
			zap.String("user", corelog.SanitizeUserID(req.User)),
			zap.String("project", corelog.SanitizeProject(project)),
			zap.String("operation", string(op)))

		SendJSONResponse(w, auth.NewExpiringAction(baseURL+"/"+project+"/info/lfs", info))
	}
}
