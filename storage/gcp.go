package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ruteri/s3proxy/config"
	"github.com/ruteri/s3proxy/interfaces"
)

// GCPBackend implements the storage contract against a Google Cloud
// Storage bucket.
type GCPBackend struct {
	client *gcs.Client
	bucket string
	prefix string
	log    *slog.Logger
}

// NewGCPBackend creates a Google Cloud Storage backend.
//
// Managed-identity mode relies on Application Default Credentials
// (workload identity, metadata server, gcloud). Explicit mode takes a
// service account either as a file path or as inline JSON, exactly one of
// which must be set; the key material is handed to the client constructor
// directly.
func NewGCPBackend(ctx context.Context, cfg *config.BackendConfig, log *slog.Logger) (*GCPBackend, error) {
	gcpCfg := cfg.GCP

	var opts []option.ClientOption
	if !gcpCfg.UseManagedIdentity {
		switch {
		case gcpCfg.ServiceAccountPath != "" && gcpCfg.ServiceAccountKey != "":
			return nil, interfaces.NewConfigError("backend.gcp", "service_account_path and service_account_key are mutually exclusive")
		case gcpCfg.ServiceAccountPath != "":
			opts = append(opts, option.WithCredentialsFile(gcpCfg.ServiceAccountPath))
		case gcpCfg.ServiceAccountKey != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(gcpCfg.ServiceAccountKey)))
		default:
			return nil, interfaces.NewConfigError("backend.gcp", "service account required when use_managed_identity is false")
		}
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCPBackend{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log,
	}, nil
}

// Get retrieves the full object payload.
func (b *GCPBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	path := joinPrefix(b.prefix, key)

	reader, err := b.client.Bucket(b.bucket).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, interfaces.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open object %s in GCS: %w", path, err)
	}

	data, err := readAndClose(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	b.log.Debug("Fetched object from GCS",
		slog.String("bucket", b.bucket),
		slog.String("key", path),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Put stores the payload under the prefixed key. The writer's Close is
// where GCS commits the upload, so its error is the upload's error.
func (b *GCPBackend) Put(ctx context.Context, key string, data []byte) error {
	path := joinPrefix(b.prefix, key)

	writer := b.client.Bucket(b.bucket).Object(path).NewWriter(ctx)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write object %s to GCS: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to commit object %s to GCS: %w", path, err)
	}

	b.log.Debug("Stored object in GCS",
		slog.String("bucket", b.bucket),
		slog.String("key", path),
		slog.Int("size", len(data)))

	return nil
}

// Delete removes the object. GCS reports a missing object as an error,
// which surfaces as ErrObjectNotFound for the caller to interpret.
func (b *GCPBackend) Delete(ctx context.Context, key string) error {
	path := joinPrefix(b.prefix, key)

	if err := b.client.Bucket(b.bucket).Object(path).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return interfaces.ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete object %s from GCS: %w", path, err)
	}
	return nil
}

// List drains the objects iterator for the prefixed prefix into a single
// slice.
func (b *GCPBackend) List(ctx context.Context, prefix string) ([]interfaces.ObjectMeta, error) {
	path := joinPrefix(b.prefix, prefix)

	it := b.client.Bucket(b.bucket).Objects(ctx, &gcs.Query{Prefix: path})

	var metas []interfaces.ObjectMeta
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in GCS: %w", err)
		}
		metas = append(metas, interfaces.ObjectMeta{
			Location:     attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
			ETag:         trimETag(attrs.Etag),
		})
	}

	b.log.Debug("Listed objects in GCS",
		slog.String("bucket", b.bucket),
		slog.String("prefix", path),
		slog.Int("count", len(metas)))

	return metas, nil
}

// Head returns object metadata without the payload.
func (b *GCPBackend) Head(ctx context.Context, key string) (interfaces.ObjectMeta, error) {
	path := joinPrefix(b.prefix, key)

	attrs, err := b.client.Bucket(b.bucket).Object(path).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return interfaces.ObjectMeta{}, interfaces.ErrObjectNotFound
		}
		return interfaces.ObjectMeta{}, fmt.Errorf("failed to get object attrs for %s in GCS: %w", path, err)
	}

	return interfaces.ObjectMeta{
		Location:     path,
		Size:         attrs.Size,
		LastModified: attrs.Updated,
		ETag:         trimETag(attrs.Etag),
	}, nil
}

// Name returns an identifier for logging.
func (b *GCPBackend) Name() string {
	return fmt.Sprintf("gcs-%s", b.bucket)
}
