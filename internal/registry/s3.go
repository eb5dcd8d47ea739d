package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/eteran/gallery/internal/media"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the connection settings for an S3-compatible gallery.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	Secure    bool
}

// NewMinioClient builds a path-style client for cfg. A nil transport uses
// the library default.
func NewMinioClient(cfg S3Config, transport http.RoundTripper) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return client, nil
}

type s3Pending struct {
	meta   media.Metadata
	key    string
	staged string
}

// S3Registry is a media.Registry that uploads payloads to an S3 bucket. The
// metadata record travels as the object's content type and user metadata.
// Bytes are staged to a local temp file until the entry is published.
type S3Registry struct {
	client *minio.Client
	bucket string
	prefix string

	mu      sync.Mutex
	pending map[string]*s3Pending
}

func NewS3Registry(client *minio.Client, bucket string, prefix string) *S3Registry {
	return &S3Registry{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		pending: make(map[string]*s3Pending),
	}
}

func (r *S3Registry) objectKey(meta media.Metadata) string {
	return path.Join(r.prefix, meta.RelativePath, meta.DisplayName)
}

func (r *S3Registry) lookup(h media.Handle) (*s3Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[h.ID]
	if !ok {
		return nil, ErrUnknownHandle
	}
	return p, nil
}

func (r *S3Registry) Allocate(ctx context.Context, meta media.Metadata) (media.Handle, error) {
	if err := validateMetadata(meta); err != nil {
		return media.Handle{}, err
	}

	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return media.Handle{}, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return media.Handle{}, fmt.Errorf("bucket %q does not exist", r.bucket)
	}

	id := uuid.NewString()
	key := r.objectKey(meta)

	r.mu.Lock()
	r.pending[id] = &s3Pending{meta: meta, key: key}
	r.mu.Unlock()

	return media.Handle{ID: id, Key: key}, nil
}

func (r *S3Registry) Open(_ context.Context, h media.Handle) (io.WriteCloser, error) {
	p, err := r.lookup(h)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "gallery-s3-*")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}

	r.mu.Lock()
	p.staged = f.Name()
	r.mu.Unlock()

	return f, nil
}

func (r *S3Registry) Publish(ctx context.Context, h media.Handle) (media.Location, error) {
	p, err := r.lookup(h)
	if err != nil {
		return media.Location{}, err
	}
	if p.staged == "" {
		return media.Location{}, fmt.Errorf("no payload written for %s", h.ID)
	}

	f, err := os.Open(p.staged)
	if err != nil {
		return media.Location{}, fmt.Errorf("open staged payload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return media.Location{}, fmt.Errorf("stat staged payload: %w", err)
	}

	_, err = r.client.PutObject(ctx, r.bucket, p.key, f, info.Size(), minio.PutObjectOptions{
		ContentType:      p.meta.MIMEType,
		DisableMultipart: true,
		UserMetadata: map[string]string{
			"display-name":  p.meta.DisplayName,
			"date-added":    strconv.FormatInt(p.meta.DateAdded.Unix(), 10),
			"relative-path": p.meta.RelativePath,
			"kind":          string(p.meta.Kind),
			"duration-ms":   strconv.FormatInt(p.meta.Duration.Milliseconds(), 10),
		},
	})
	if err != nil {
		return media.Location{}, fmt.Errorf("failed to upload object %q to bucket %q: %w", p.key, r.bucket, err)
	}

	r.forget(h.ID)

	return media.Location{
		ID:  h.ID,
		URI: fmt.Sprintf("s3://%s/%s", r.bucket, p.key),
	}, nil
}

// forget drops the pending record and its staged bytes.
func (r *S3Registry) forget(id string) {
	r.mu.Lock()
	p, ok := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()

	if ok && p.staged != "" {
		_ = os.Remove(p.staged)
	}
}

func (r *S3Registry) Discard(_ context.Context, h media.Handle) error {
	r.forget(h.ID)
	return nil
}
