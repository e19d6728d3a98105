package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/ruteri/s3proxy/config"
	"github.com/ruteri/s3proxy/interfaces"
)

// Azurite ships a single well-known development account; the key is
// published in the Azurite documentation and carries no secrecy.
const (
	azuriteEndpointFormat = "http://127.0.0.1:10000/%s"
	azuriteAccountKey     = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

// AzureBackend implements the storage contract against an Azure Blob
// Storage container. The configured bucket names the container.
type AzureBackend struct {
	client    *azblob.Client
	container string
	prefix    string
	log       *slog.Logger
}

// NewAzureBackend creates an Azure Blob Storage backend.
//
// Credential resolution is three-way: the Azurite emulator uses its
// well-known development key against the local endpoint, managed-identity
// mode uses DefaultAzureCredential (workload identity, managed identity,
// CLI), and explicit mode builds a shared-key credential from the
// configured account key.
func NewAzureBackend(cfg *config.BackendConfig, log *slog.Logger) (*AzureBackend, error) {
	azCfg := cfg.Azure
	if azCfg.AccountName == "" {
		return nil, interfaces.NewConfigError("backend.azure.account_name", "account name is required")
	}

	var client *azblob.Client
	var err error

	switch {
	case azCfg.UseEmulator:
		cred, kerr := azblob.NewSharedKeyCredential(azCfg.AccountName, azuriteAccountKey)
		if kerr != nil {
			return nil, fmt.Errorf("failed to build emulator credential: %w", kerr)
		}
		endpoint := fmt.Sprintf(azuriteEndpointFormat, azCfg.AccountName)
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)

	case azCfg.UseManagedIdentity:
		cred, kerr := azidentity.NewDefaultAzureCredential(nil)
		if kerr != nil {
			return nil, fmt.Errorf("failed to resolve Azure managed identity: %w", kerr)
		}
		endpoint := fmt.Sprintf("https://%s.blob.core.windows.net/", azCfg.AccountName)
		client, err = azblob.NewClient(endpoint, cred, nil)

	default:
		if azCfg.AccessKey == "" {
			return nil, interfaces.NewConfigError("backend.azure.access_key", "access key required when use_managed_identity is false")
		}
		cred, kerr := azblob.NewSharedKeyCredential(azCfg.AccountName, azCfg.AccessKey)
		if kerr != nil {
			return nil, fmt.Errorf("failed to build shared key credential: %w", kerr)
		}
		endpoint := fmt.Sprintf("https://%s.blob.core.windows.net/", azCfg.AccountName)
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	return &AzureBackend{
		client:    client,
		container: cfg.Bucket,
		prefix:    cfg.Prefix,
		log:       log,
	}, nil
}

// Get retrieves the full blob payload.
func (b *AzureBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	path := joinPrefix(b.prefix, key)

	resp, err := b.client.DownloadStream(ctx, b.container, path, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, interfaces.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to download blob %s: %w", path, err)
	}

	data, err := readAndClose(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob body: %w", err)
	}

	b.log.Debug("Fetched blob from Azure",
		slog.String("container", b.container),
		slog.String("key", path),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Put stores the payload under the prefixed key, overwriting any existing
// blob.
func (b *AzureBackend) Put(ctx context.Context, key string, data []byte) error {
	path := joinPrefix(b.prefix, key)

	_, err := b.client.UploadBuffer(ctx, b.container, path, data, nil)
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", path, err)
	}

	b.log.Debug("Stored blob in Azure",
		slog.String("container", b.container),
		slog.String("key", path),
		slog.Int("size", len(data)))

	return nil
}

// Delete removes the blob. Azure reports a missing blob as an error, which
// surfaces as ErrObjectNotFound for the caller to interpret.
func (b *AzureBackend) Delete(ctx context.Context, key string) error {
	path := joinPrefix(b.prefix, key)

	_, err := b.client.DeleteBlob(ctx, b.container, path, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return interfaces.ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete blob %s: %w", path, err)
	}
	return nil
}

// List drains the flat-listing pager for the prefixed prefix into a
// single slice.
func (b *AzureBackend) List(ctx context.Context, prefix string) ([]interfaces.ObjectMeta, error) {
	path := joinPrefix(b.prefix, prefix)

	pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{
		Prefix: &path,
	})

	var metas []interfaces.ObjectMeta
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			meta := interfaces.ObjectMeta{}
			if item.Name != nil {
				meta.Location = *item.Name
			}
			if props := item.Properties; props != nil {
				if props.ContentLength != nil {
					meta.Size = *props.ContentLength
				}
				if props.LastModified != nil {
					meta.LastModified = *props.LastModified
				}
				if props.ETag != nil {
					meta.ETag = trimETag(string(*props.ETag))
				}
			}
			metas = append(metas, meta)
		}
	}

	b.log.Debug("Listed blobs in Azure",
		slog.String("container", b.container),
		slog.String("prefix", path),
		slog.Int("count", len(metas)))

	return metas, nil
}

// Head returns blob metadata without the payload.
func (b *AzureBackend) Head(ctx context.Context, key string) (interfaces.ObjectMeta, error) {
	path := joinPrefix(b.prefix, key)

	props, err := b.client.ServiceClient().
		NewContainerClient(b.container).
		NewBlobClient(path).
		GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return interfaces.ObjectMeta{}, interfaces.ErrObjectNotFound
		}
		return interfaces.ObjectMeta{}, fmt.Errorf("failed to get blob properties for %s: %w", path, err)
	}

	meta := interfaces.ObjectMeta{Location: path}
	if props.ContentLength != nil {
		meta.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		meta.LastModified = *props.LastModified
	}
	if props.ETag != nil {
		meta.ETag = trimETag(string(*props.ETag))
	}
	return meta, nil
}

// Name returns an identifier for logging.
func (b *AzureBackend) Name() string {
	return fmt.Sprintf("azure-%s", b.container)
}
