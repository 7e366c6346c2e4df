// Package storage archives CVE scan reports to content-addressed storage.
//
// # Supported Backends
//
//   - S3 / S3-compatible (AWS, MinIO, etc.) - see s3.go
//   - IPFS HTTP API - see ipfs.go
//   - Filecoin via a Lotus API - see filecoin.go
//
// Every backend deduplicates by the SHA-256 of the content and can verify an
// uploaded object against its expected hash.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-retryablehttp"
	"sigs.k8s.io/controller-runtime/pkg/client"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
)

const (
	// DefaultUploadTimeout bounds a single archive upload.
	DefaultUploadTimeout = 2 * time.Minute
	// DefaultHTTPRetries is the retry count of the IPFS and Filecoin clients.
	DefaultHTTPRetries = 3
)

// UploadMetadata describes an archived object.
type UploadMetadata struct {
	Filename    string
	ContentType string
	// SHA256 is the hex digest of the content. Upload fills it when empty.
	SHA256 string
	Tags   map[string]string
}

// provider is implemented by each backend.
type provider interface {
	// lookup returns the identifier data would be stored under and whether it
	// is already present.
	lookup(ctx context.Context, data []byte, meta UploadMetadata) (id string, found bool, err error)
	upload(ctx context.Context, data []byte, meta UploadMetadata) (string, error)
	exists(ctx context.Context, id string) (bool, error)
	retrieve(ctx context.Context, id string) ([]byte, error)
}

// Backend is a storage backend tagged by type.
type Backend struct {
	Type     stellarv1alpha1.StorageBackendType
	provider provider
}

// Upload stores data and returns its content identifier. Content that is
// already stored is not uploaded again; its identifier is returned.
func (b *Backend) Upload(ctx context.Context, data []byte, meta UploadMetadata) (string, error) {
	if meta.SHA256 == "" {
		meta.SHA256 = SHA256Hex(data)
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultUploadTimeout)
	defer cancel()

	id, found, err := b.provider.lookup(ctx, data, meta)
	if err != nil {
		return "", err
	}
	if found {
		return id, nil
	}
	return b.provider.upload(ctx, data, meta)
}

// Exists reports whether the object with the given identifier exists.
func (b *Backend) Exists(ctx context.Context, id string) (bool, error) {
	return b.provider.exists(ctx, id)
}

// Verify fetches id and reports whether its SHA-256 equals expectedHash.
func (b *Backend) Verify(ctx context.Context, id, expectedHash string) (bool, error) {
	data, err := b.provider.retrieve(ctx, id)
	if err != nil {
		return false, err
	}
	return SHA256Hex(data) == expectedHash, nil
}

// SHA256Hex returns the lower-case hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Open builds the backend selected by cfg. S3 credentials are read from the
// referenced Secret in namespace.
func Open(ctx context.Context, c client.Client, namespace string, cfg *stellarv1alpha1.ReportArchiveConfig) (*Backend, error) {
	if cfg == nil {
		return nil, operatorerrors.Config("open archive", fmt.Errorf("reportArchive is not configured"))
	}
	switch cfg.Backend {
	case stellarv1alpha1.StorageBackendS3:
		if cfg.S3 == nil {
			return nil, operatorerrors.Config("open archive", fmt.Errorf("s3 config is required"))
		}
		creds, err := LoadCredentials(ctx, c, cfg.S3.CredentialsSecretRef, namespace)
		if err != nil {
			return nil, err
		}
		s3Cfg := S3ClientConfig{
			Endpoint:     cfg.S3.Endpoint,
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Prefix:       cfg.S3.Prefix,
			UsePathStyle: cfg.S3.UsePathStyle,
		}
		if creds != nil {
			s3Cfg.AccessKeyID = creds.AccessKeyID
			s3Cfg.SecretAccessKey = creds.SecretAccessKey
			s3Cfg.SessionToken = creds.SessionToken
			s3Cfg.CACert = creds.CACert
		}
		store, err := NewS3Store(ctx, s3Cfg)
		if err != nil {
			return nil, err
		}
		return &Backend{Type: stellarv1alpha1.StorageBackendS3, provider: store}, nil
	case stellarv1alpha1.StorageBackendIPFS:
		if cfg.IPFS == nil {
			return nil, operatorerrors.Config("open archive", fmt.Errorf("ipfs config is required"))
		}
		store := NewIPFSStore(cfg.IPFS.APIURL, cfg.IPFS.GatewayURL, newRetryableClient(ctx))
		return &Backend{Type: stellarv1alpha1.StorageBackendIPFS, provider: store}, nil
	case stellarv1alpha1.StorageBackendFilecoin:
		if cfg.Filecoin == nil {
			return nil, operatorerrors.Config("open archive", fmt.Errorf("filecoin config is required"))
		}
		store := NewFilecoinStore(cfg.Filecoin.LotusAPI, cfg.Filecoin.WalletAddress, newRetryableClient(ctx))
		return &Backend{Type: stellarv1alpha1.StorageBackendFilecoin, provider: store}, nil
	default:
		return nil, operatorerrors.Config("open archive", fmt.Errorf("unknown storage backend: %q", cfg.Backend))
	}
}

// newRetryableClient returns a retrying HTTP client that logs through the
// context logger.
func newRetryableClient(ctx context.Context) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = DefaultHTTPRetries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = DefaultUploadTimeout
	rc.Logger = leveledLogger{log: logr.FromContextOrDiscard(ctx).WithName("archive")}
	// IPFS answers 500 for application errors such as "not pinned"; those are
	// final and the response is handed back for inspection.
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err == nil && resp != nil && resp.StatusCode == http.StatusInternalServerError {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

// leveledLogger adapts logr to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log logr.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error(nil, msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.V(1).Info(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.V(2).Info(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, keysAndValues...)
}
