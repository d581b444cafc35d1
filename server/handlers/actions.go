package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ebogdum/lfsauth/auth"
	"github.com/ebogdum/lfsauth/backends"
	"github.com/ebogdum/lfsauth/core"
	corelog "github.com/ebogdum/lfsauth/core/log"
	"github.com/ebogdum/lfsauth/internal/pathutil"
)

// ObjectActionResponse mirrors one object of an LFS batch response
type ObjectActionResponse struct {
	OID     string                          `json:"oid"`
	Size    int64                           `json:"size"`
	Backend string                          `json:"backend"`
	Actions map[string]*auth.ExpiringAction `json:"actions"`
}

// V1Actions resolves the repository serving a project and returns the transfer
// action for one object, applying the namespace policy on the way.
func V1Actions(resolver *core.Resolver, logger *zap.Logger) http.HandlerFunc {
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
		oid := q.Get("oid")
		if err := backends.ValidateObjectID(oid); err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		var size int64
		if raw := q.Get("size"); raw != "" {
			size, err = strconv.ParseInt(raw, 10, 64)
			if err != nil || size < 0 {
				SendErrorResponse(w, logger, badRequest("invalid size %q", raw), http.StatusBadRequest)
				return
			}
		}

		repo, err := resolver.RepositoryForRequest(r.Context(), project, op, []core.Object{{OID: oid, Size: size}})
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		action, err := repo.Action(r.Context(), op, oid, size)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		logger.Debug("Action issued",
			zap.String("project", corelog.SanitizeProject(project)),
			zap.String("backend", repo.Backend().DisplayName()),
			zap.String("operation", string(op)),
			zap.String("oid", oid))

		SendJSONResponse(w, ObjectActionResponse{
			OID:     oid,
			Size:    size,
			Backend: repo.Backend().DisplayName(),
			Actions: map[string]*auth.ExpiringAction{string(op): action},
		})
	}
}
