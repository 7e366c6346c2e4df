package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
)

// metadataSHA256 is the user metadata key holding the content digest.
const metadataSHA256 = "sha256"

// S3ClientConfig holds configuration for creating a new S3-compatible storage client.
type S3ClientConfig struct {
	// Endpoint is the S3-compatible endpoint URL. Empty selects AWS.
	Endpoint string
	Bucket   string
	// Region is the AWS region (e.g., "us-east-1").
	Region string
	// Prefix is prepended to every object key.
	Prefix string
	// AccessKeyID is the access key. If empty, the default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// CACert is an optional PEM-encoded CA certificate for custom TLS verification.
	CACert []byte
	// UsePathStyle forces path-style addressing (required for MinIO and some S3-compatible stores).
	UsePathStyle bool
}

// S3Store archives objects in an S3 bucket under <prefix>/<sha256>.json.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store builds an S3 client from cfg.
func NewS3Store(ctx context.Context, cfg S3ClientConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, operatorerrors.Config("open s3", fmt.Errorf("bucket is required"))
	}

	awsCfg, err := buildAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

func (s *S3Store) key(contentHash string) string {
	return path.Join(s.prefix, contentHash+".json")
}

func (s *S3Store) lookup(ctx context.Context, _ []byte, meta UploadMetadata) (string, bool, error) {
	key := s.key(meta.SHA256)
	found, err := s.exists(ctx, key)
	return key, found, err
}

func (s *S3Store) upload(ctx context.Context, data []byte, meta UploadMetadata) (string, error) {
	key := s.key(meta.SHA256)
	metadata := map[string]string{metadataSHA256: meta.SHA256}
	for k, v := range meta.Tags {
		metadata[k] = v
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return "", classify("s3 upload", err)
	}
	return key, nil
}

func (s *S3Store) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, classify("s3 head", err)
}

func (s *S3Store) retrieve(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("s3 get", err)
	}
	defer func() {
		_ = out.Body.Close()
	}()
	return io.ReadAll(out.Body)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

// classify marks connection failures as Network errors so they are retried.
func classify(op string, err error) error {
	if operatorerrors.IsTransientConnection(err) {
		return operatorerrors.Network(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// buildAWSConfig constructs AWS SDK config with credentials and custom TLS settings.
func buildAWSConfig(ctx context.Context, cfg S3ClientConfig) (aws.Config, error) {
	if cfg.Region == "" {
		return aws.Config{}, operatorerrors.Config("open s3", fmt.Errorf("region is required for S3 client"))
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	}

	httpClient, err := buildHTTPClient(cfg.CACert)
	if err != nil {
		return aws.Config{}, operatorerrors.Config("open s3", err)
	}
	opts = append(opts, config.WithHTTPClient(httpClient))

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, classify("load AWS config", err)
	}
	return awsCfg, nil
}

// buildHTTPClient creates an HTTP client with an optional custom CA certificate
// added to the system roots.
func buildHTTPClient(caCert []byte) (*http.Client, error) {
	certPool, err := x509.SystemCertPool()
	if err != nil || certPool == nil {
		certPool = x509.NewCertPool()
	}
	if len(caCert) > 0 && !certPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &http.Client{
		Transport: &http.Transport{
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				RootCAs:    certPool,
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultUploadTimeout,
	}, nil
}
