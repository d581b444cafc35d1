package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/ebogdum/lfsauth/auth"
	"github.com/ebogdum/lfsauth/backends"
	"github.com/ebogdum/lfsauth/backends/localfs"
	"github.com/ebogdum/lfsauth/backends/s3"
	"github.com/ebogdum/lfsauth/config"
)

// NewLoader returns a LoaderFunc building filesystem and S3 repositories from cfg
func NewLoader(cfg *config.AppConfig, contentAuth *auth.ContentAuthorizer, logger *zap.Logger) LoaderFunc {
	return func(ctx context.Context, backend backends.Backend) (backends.Repository, error) {
		log := logger.With(zap.String("backend", backend.DisplayName()))

		switch backend.Type {
		case backends.TypeFS:
			fsCfg, ok := cfg.FSBackend(backend.Name)
			if !ok && backend.DisplayName() != backends.DefaultName {
				return nil, &backends.NotFoundError{Backend: backend.DisplayName()}
			}
			repo, err := localfs.NewRepository(backend, fsCfg, cfg.Storage.DataDir, cfg.Server.ExternalURL, contentAuth, log)
			if err != nil {
				return nil, err
			}
			return repo, nil

		case backends.TypeS3:
			s3Cfg, ok := cfg.S3Backend(backend.Name)
			if !ok {
				return nil, &backends.NotFoundError{Backend: backend.DisplayName()}
			}
			repo, err := s3.NewRepository(ctx, backend, s3Cfg, log)
			if err != nil {
				return nil, err
			}
			return repo, nil

		default:
			return nil, &backends.NotFoundError{Backend: backend.DisplayName()}
		}
	}
}
