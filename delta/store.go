package delta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// errObjectNotFound marks a read of an object that does not exist, as
// opposed to a transient store failure. Both backends normalize their
// not-found shapes into it.
var errObjectNotFound = errors.New("object not found")

// objectStore abstracts listing and reading objects under a table root, so
// the log replayer works the same against local paths and S3.
type objectStore interface {
	// List returns keys under prefix (relative to the table root), sorted
	// lexically ascending.
	List(ctx context.Context, prefix string) ([]string, error)
	// Read returns the full contents of the object at key.
	Read(ctx context.Context, key string) ([]byte, error)
}

// storeFor resolves a table location to an object store rooted at it.
func (o *LogOpener) storeFor(location string) (objectStore, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		if o.s3 == nil {
			return nil, fmt.Errorf("s3 location %q but no s3 client configured", location)
		}
		bucket, key, err := splitS3URI(location)
		if err != nil {
			return nil, err
		}
		return &s3Store{client: o.s3, bucket: bucket, root: key}, nil
	case strings.HasPrefix(location, "file://"):
		return &localStore{root: strings.TrimPrefix(location, "file://")}, nil
	default:
		return &localStore{root: location}, nil
	}
}

func splitS3URI(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, "s3://")
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("malformed s3 uri %q", uri)
	}
	return bucket, strings.TrimSuffix(key, "/"), nil
}

type localStore struct {
	root string
}

func (l *localStore) List(_ context.Context, prefix string) ([]string, error) {
	dir := filepath.Join(l.root, filepath.FromSlash(prefix))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		keys = append(keys, prefix+"/"+e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *localStore) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, errObjectNotFound)
	}
	return data, err
}

type s3Store struct {
	client *s3.Client
	bucket string
	root   string
}

// join prefixes a key with the table root. Tables at the bucket root have
// an empty root and must not grow a leading slash.
func (s *s3Store) join(key string) string {
	if s.root == "" {
		return key
	}
	return s.root + "/" + key
}

func (s *s3Store) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.join(prefix) + "/"
	trim := ""
	if s.root != "" {
		trim = s.root + "/"
	}
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, full, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), trim))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *s3Store) Read(ctx context.Context, key string) ([]byte, error) {
	full := s.join(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, full, errObjectNotFound)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, full, err)
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}
