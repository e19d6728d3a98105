package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/s3proxy/config"
	"github.com/ruteri/s3proxy/interfaces"
)

// StorageBackendFactory constructs the single provider backend selected
// by configuration.
type StorageBackendFactory struct {
	log *slog.Logger
}

// NewStorageBackendFactory creates a factory that attaches the given
// logger to every backend it builds.
func NewStorageBackendFactory(log *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{log: log}
}

// BackendFor builds exactly one backend for the configured provider.
// Credential problems surface here, before the server starts serving.
func (f *StorageBackendFactory) BackendFor(ctx context.Context, cfg *config.BackendConfig) (interfaces.StorageBackend, error) {
	switch cfg.Type {
	case config.BackendAWS:
		return NewAWSBackend(ctx, cfg, f.log)
	case config.BackendAzure:
		return NewAzureBackend(cfg, f.log)
	case config.BackendGCP:
		return NewGCPBackend(ctx, cfg, f.log)
	default:
		return nil, fmt.Errorf("unsupported backend type %q", cfg.Type)
	}
}
