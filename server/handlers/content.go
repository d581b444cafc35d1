package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/lfsauth/auth"
	"github.com/ebogdum/lfsauth/backends"
	"github.com/ebogdum/lfsauth/backends/localfs"
	"github.com/ebogdum/lfsauth/core"
)

// HeaderObjectPath tells a fronting proxy where an authorized object lives on disk
const HeaderObjectPath = "X-Lfs-Object-Path"

// V1AuthorizeContent gates direct content transfers for filesystem backends.
// A fronting proxy forwards the client's Authorization header here and streams
// the object itself when the response is 204.
func V1AuthorizeContent(resolver *core.Resolver, contentAuth *auth.ContentAuthorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		backendName := chi.URLParam(r, "backend")
		oid := chi.URLParam(r, "oid")

		op, err := auth.ParseOperation(r.URL.Query().Get("operation"))
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		if err := backends.ValidateObjectID(oid); err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		// The token is the only credential on this route; nothing is resolved before it verifies
		if !contentAuth.VerifyAuthInfo(r.Header.Get(auth.HeaderAuthorization), op, oid) {
			SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		repo, err := resolver.Repository(r.Context(), "", backendName)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusNotFound)
			return
		}
		fsRepo, ok := repo.(*localfs.Repository)
		if !ok {
			SendErrorResponse(w, logger, &backends.NotFoundError{Backend: backendName}, http.StatusNotFound)
			return
		}

		if op == auth.OperationDownload {
			if _, err := fsRepo.Size(r.Context(), oid); err != nil {
				SendErrorResponse(w, logger, err, http.StatusInternalServerError)
				return
			}
		}

		objectPath, err := fsRepo.ObjectPath(oid)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		logger.Debug("Content transfer authorized",
			zap.String("backend", backendName),
			zap.String("operation", string(op)),
			zap.String("oid", oid))

		w.Header().Set(HeaderObjectPath, objectPath)
		w.WriteHeader(http.StatusNoContent)
	}
}
