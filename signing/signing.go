// Package signing vends time-limited presigned URLs for the data files of a
// snapshot.
package signing

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/delta-incubator/riverbank/metrics"
)

// DefaultExpiry is how long a vended URL stays valid.
const DefaultExpiry = 300 * time.Second

// Signer turns an absolute file location into a signed, time-limited URL.
// Implementations are called once per file, sequentially, in manifest
// order; the first failure aborts the whole response.
type Signer interface {
	Sign(ctx context.Context, location string) (string, error)
}

// SignError wraps a failed presign call.
type SignError struct {
	Location string
	Err      error
}

func (e *SignError) Error() string {
	return fmt.Sprintf("sign %s: %v", e.Location, e.Err)
}

func (e *SignError) Unwrap() error {
	return e.Err
}

// S3Signer presigns GET requests against S3-compatible object storage.
type S3Signer struct {
	presign *s3.PresignClient
	expiry  time.Duration
	logger  *slog.Logger
}

// NewS3Signer builds a presigning client. Credentials come from the ambient
// AWS chain unless a static pair is supplied; endpoint overrides switch the
// client to path-style addressing for S3-compatible stores.
func NewS3Signer(ctx context.Context, endpoint, region, accessKeyID, secretAccessKey string, expiry time.Duration, logger *slog.Logger) (*S3Signer, error) {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if region == "" {
		region = "us-east-1"
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(region))
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(cfg, s3Opts...)
	return &S3Signer{
		presign: s3.NewPresignClient(client),
		expiry:  expiry,
		logger:  logger.With("component", "signer"),
	}, nil
}

// Sign presigns a GET for the object at the given s3:// location.
func (s *S3Signer) Sign(ctx context.Context, location string) (string, error) {
	bucket, key, err := ParseS3URI(location)
	if err != nil {
		metrics.SignFailures.Inc()
		return "", &SignError{Location: location, Err: err}
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		metrics.SignFailures.Inc()
		return "", &SignError{Location: location, Err: err}
	}
	metrics.FilesSigned.Inc()
	return req.URL, nil
}

// ParseS3URI splits an s3://bucket/key URI.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 uri: %q", uri)
	}
	return bucket, key, nil
}

// ResolveFileURI joins a table root with a manifest path. Paths that are
// already absolute URIs pass through unchanged.
func ResolveFileURI(tableRoot, path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return strings.TrimSuffix(tableRoot, "/") + "/" + path
}

var fileIDPattern = regexp.MustCompile(`^part-\d{5}-([a-z0-9-]{36})-[a-z0-9]{4}\.\w+\.parquet$`)

// FileID extracts the embedded UUID from a parquet file name of the form
// part-NNNNN-<uuid>-cXXX.<codec>.parquet. It inspects only the final path
// segment and returns "" when the name doesn't conform; the id is advisory
// and its absence is never an error.
func FileID(path string) string {
	name := path[strings.LastIndex(path, "/")+1:]
	m := fileIDPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}
