// Package s3 provides a read-only storage backend over an S3 bucket.
// Object keys below the configured prefix form the tree; "/" in a key
// separates directories.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/logging"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/storage"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/tree"
)

// Config holds S3 backend settings.
type Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
}

// API is the subset of the S3 client the backend uses.
type API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Backend implements storage.Backend using S3/MinIO.
type S3Backend struct {
	client API
	bucket string
	prefix string
}

var _ storage.Backend = (*S3Backend)(nil)

// New creates a new S3 backend.
func New(ctx context.Context, cfg Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	b := NewWithClient(client, cfg.Bucket, cfg.Prefix)

	// Verify bucket is reachable
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		logging.Error("bucket check failed", zap.String("bucket", cfg.Bucket), zap.Error(err))
	}
	return b, nil
}

// NewWithClient creates a backend around an existing client.
func NewWithClient(client API, bucket, prefix string) *S3Backend {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Backend{client: client, bucket: bucket, prefix: prefix}
}

// key maps a cleaned virtual path to an object key. Root maps to the prefix.
func (b *S3Backend) key(clean string) string {
	return b.prefix + strings.TrimPrefix(clean, "/")
}

func (b *S3Backend) dirKey(clean string) string {
	if clean == tree.Root {
		return b.prefix
	}
	return b.key(clean) + "/"
}

func (b *S3Backend) clean(p string) (string, error) {
	if tree.Escapes(p) {
		return "", storage.ErrOutsideRoot
	}
	return tree.Clean(p), nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func (b *S3Backend) head(ctx context.Context, clean string) (storage.Entry, bool, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(clean)),
	})
	if err != nil {
		if isNotFound(err) {
			return storage.Entry{}, false, nil
		}
		return storage.Entry{}, false, fmt.Errorf("head object %s: %w", clean, err)
	}
	e := storage.Entry{Name: tree.Base(clean), Path: clean, Size: aws.ToInt64(out.ContentLength)}
	if out.LastModified != nil {
		e.ModTime = *out.LastModified
	}
	return e, true, nil
}

func (b *S3Backend) dirExists(ctx context.Context, clean string) (bool, error) {
	if clean == tree.Root {
		return true, nil
	}
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(b.dirKey(clean)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("list %s: %w", clean, err)
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

// Stat describes the entry at p.
func (b *S3Backend) Stat(ctx context.Context, p string) (storage.Entry, error) {
	clean, err := b.clean(p)
	if err != nil {
		return storage.Entry{}, err
	}
	if clean != tree.Root {
		e, ok, err := b.head(ctx, clean)
		if err != nil {
			return storage.Entry{}, err
		}
		if ok {
			return e, nil
		}
	}
	isDir, err := b.dirExists(ctx, clean)
	if err != nil {
		return storage.Entry{}, err
	}
	if !isDir {
		return storage.Entry{}, fmt.Errorf("%s: %w", clean, storage.ErrNotFound)
	}
	return storage.Entry{Name: tree.Base(clean), Path: clean, IsDir: true}, nil
}

// List returns the visible children of directory p.
func (b *S3Backend) List(ctx context.Context, p string) ([]storage.Entry, error) {
	clean, err := b.clean(p)
	if err != nil {
		return nil, err
	}
	dirKey := b.dirKey(clean)

	var entries []storage.Entry
	found := false
	pager := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(dirKey),
		Delimiter: aws.String("/"),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", clean, err)
		}
		for _, cp := range page.CommonPrefixes {
			found = true
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), dirKey), "/")
			if name == "" || storage.IsHidden(name) {
				continue
			}
			entries = append(entries, storage.Entry{
				Name:  name,
				Path:  tree.BuildChildPath(clean, name),
				IsDir: true,
			})
		}
		for _, obj := range page.Contents {
			found = true
			name := strings.TrimPrefix(aws.ToString(obj.Key), dirKey)
			// Folder marker objects carry no name of their own.
			if name == "" || storage.IsHidden(name) {
				continue
			}
			e := storage.Entry{
				Name: name,
				Path: tree.BuildChildPath(clean, name),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				e.ModTime = *obj.LastModified
			}
			entries = append(entries, e)
		}
	}

	if !found && clean != tree.Root {
		_, isFile, err := b.head(ctx, clean)
		if err != nil {
			return nil, err
		}
		if isFile {
			return nil, fmt.Errorf("%s: %w", clean, storage.ErrNotDirectory)
		}
		return nil, fmt.Errorf("%s: %w", clean, storage.ErrNotFound)
	}

	if entries == nil {
		entries = []storage.Entry{}
	}
	storage.SortEntries(entries)
	return entries, nil
}

// Open returns the content of file p.
func (b *S3Backend) Open(ctx context.Context, p string) (io.ReadCloser, storage.Entry, error) {
	clean, err := b.clean(p)
	if err != nil {
		return nil, storage.Entry{}, err
	}
	if clean == tree.Root {
		return nil, storage.Entry{}, fmt.Errorf("%s: %w", clean, storage.ErrIsDirectory)
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(clean)),
	})
	if err != nil {
		if !isNotFound(err) {
			return nil, storage.Entry{}, fmt.Errorf("get object %s: %w", clean, err)
		}
		isDir, dirErr := b.dirExists(ctx, clean)
		if dirErr != nil {
			return nil, storage.Entry{}, dirErr
		}
		if isDir {
			return nil, storage.Entry{}, fmt.Errorf("%s: %w", clean, storage.ErrIsDirectory)
		}
		return nil, storage.Entry{}, fmt.Errorf("%s: %w", clean, storage.ErrNotFound)
	}

	e := storage.Entry{Name: tree.Base(clean), Path: clean, Size: aws.ToInt64(out.ContentLength)}
	if out.LastModified != nil {
		e.ModTime = *out.LastModified
	}
	return out.Body, e, nil
}

// Type returns "s3".
func (b *S3Backend) Type() string { return "s3" }

// Close is a no-op; the SDK client holds no resources that need releasing.
func (b *S3Backend) Close() error { return nil }
