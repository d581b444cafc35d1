// Package s3 implements LFS object storage in an S3 bucket. Clients transfer
// object content directly with presigned URLs.
package s3

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/ebogdum/lfsauth/auth"
	"github.com/ebogdum/lfsauth/backends"
	"github.com/ebogdum/lfsauth/config"
)

// Repository implements backends.Repository for an S3 bucket
type Repository struct {
	backend      backends.Backend
	client       *s3.S3
	bucket       string
	storageClass string
	expiration   time.Duration
	logger       *zap.Logger
}

// NewRepository creates an S3 repository for backend
func NewRepository(ctx context.Context, backend backends.Backend, cfg config.S3BackendConfig, logger *zap.Logger) (*Repository, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("S3 region is required")
	}

	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	// Custom hostname, e.g. MinIO or another S3-compatible store
	if cfg.Hostname != "" {
		awsConfig.Endpoint = aws.String(cfg.Hostname)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	if cfg.DisableSSLVerify {
		awsConfig.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in for self-signed endpoints
			},
		}
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	client := s3.New(sess)

	if cfg.VerifyBucket {
		_, err = client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(cfg.Bucket),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access S3 bucket %s: %w", cfg.Bucket, err)
		}
	}

	expirationSeconds := cfg.ExpirationSeconds
	if expirationSeconds <= 0 {
		expirationSeconds = config.DefaultS3ExpirationSeconds
	}
	storageClass := cfg.StorageClass
	if storageClass == "" {
		storageClass = config.DefaultS3StorageClass
	}

	logger.Info("S3 repository ready",
		zap.String("backend", backend.DisplayName()),
		zap.String("bucket", cfg.Bucket),
		zap.String("region", cfg.Region),
		zap.String("hostname", cfg.Hostname))

	return &Repository{
		backend:      backend,
		client:       client,
		bucket:       cfg.Bucket,
		storageClass: storageClass,
		expiration:   time.Duration(expirationSeconds) * time.Second,
		logger:       logger,
	}, nil
}

// Backend implements backends.Repository
func (r *Repository) Backend() backends.Backend {
	return r.backend
}

// Bucket returns the bucket objects are stored in
func (r *Repository) Bucket() string {
	return r.bucket
}

// Size implements backends.Repository
func (r *Repository) Size(ctx context.Context, oid string) (int64, error) {
	if err := backends.ValidateObjectID(oid); err != nil {
		return 0, err
	}

	out, err := r.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(oid),
	})
	if err != nil {
		if isS3NotFound(err) {
			return 0, backends.ErrObjectNotFound
		}
		return 0, fmt.Errorf("failed to head object in S3: %w", err)
	}
	return aws.Int64Value(out.ContentLength), nil
}

// Action implements backends.Repository with a presigned GET or PUT URL
func (r *Repository) Action(ctx context.Context, op auth.Operation, oid string, size int64) (*auth.ExpiringAction, error) {
	if err := backends.ValidateObjectID(oid); err != nil {
		return nil, err
	}

	issued := time.Now()
	var req *request.Request
	switch op {
	case auth.OperationDownload:
		req, _ = r.client.GetObjectRequest(&s3.GetObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(oid),
		})
	case auth.OperationUpload:
		req, _ = r.client.PutObjectRequest(&s3.PutObjectInput{
			Bucket:       aws.String(r.bucket),
			Key:          aws.String(oid),
			StorageClass: aws.String(r.storageClass),
		})
	default:
		return nil, fmt.Errorf("%w: %q", auth.ErrInvalidOperation, op)
	}
	req.SetContext(ctx)

	// Signed headers that are not hoisted into the query must be sent by the client
	href, signed, err := req.PresignRequest(r.expiration)
	if err != nil {
		return nil, fmt.Errorf("failed to presign S3 %s request: %w", op, err)
	}
	var header map[string]string
	for name := range signed {
		if strings.EqualFold(name, "Host") {
			continue
		}
		if header == nil {
			header = make(map[string]string)
		}
		header[name] = signed.Get(name)
	}

	r.logger.Debug("Presigned S3 action",
		zap.String("backend", r.backend.DisplayName()),
		zap.String("operation", string(op)),
		zap.String("oid", oid),
		zap.Int64("size", size))

	return &auth.ExpiringAction{
		Href:      href,
		Header:    header,
		ExpiresAt: auth.FormatTime(issued.Add(r.expiration)),
		ExpiresIn: r.expiration.Milliseconds(),
	}, nil
}

// Close implements backends.Repository
func (r *Repository) Close() error {
	// No resources to close for S3
	return nil
}

// isS3NotFound checks if an error indicates the object was not found
func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound")
}
