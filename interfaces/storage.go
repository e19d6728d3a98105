package interfaces

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrObjectNotFound indicates the requested object does not exist in the
// backend. Adapters map their provider's not-found condition to this error
// so callers can translate it uniformly.
var ErrObjectNotFound = errors.New("object not found")

// ConfigError is a fatal configuration problem detected at construction
// time, before any network call. The process must not start serving when
// one is returned.
type ConfigError struct {
	Field string
	Msg   string
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Msg)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Msg)
}

// NewConfigError creates a configuration error for the given field.
func NewConfigError(field, msg string) *ConfigError {
	return &ConfigError{Field: field, Msg: msg}
}

// ObjectMeta describes a stored object without its payload.
//
// Location is the provider-side key, i.e. the logical key after the
// configured prefix has been applied. Backends never strip the prefix from
// results; callers that need the logical key must remove it themselves.
type ObjectMeta struct {
	// Location is the full provider-side object key.
	Location string

	// Size is the object size in bytes.
	Size int64

	// LastModified is the provider-reported modification time.
	LastModified time.Time

	// ETag is the provider's entity tag with surrounding quotes stripped,
	// or empty if the provider did not report one.
	ETag string
}

// StorageBackend is the unified capability contract every provider adapter
// (AWS S3, Azure Blob Storage, Google Cloud Storage) satisfies.
//
// Keys are forward-slash segmented logical keys without a leading slash.
// Every operation applies the configured key prefix exactly once before
// delegating to the provider client.
type StorageBackend interface {
	// Get retrieves the full object payload.
	// Returns ErrObjectNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores the payload under the given key, overwriting any
	// existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the object. Returns ErrObjectNotFound if the key
	// does not exist; idempotent-delete policy is the caller's concern.
	Delete(ctx context.Context, key string) error

	// List returns metadata for all objects under the given prefix, in
	// the provider's enumeration order. The provider's paginated stream
	// is fully drained into memory before returning; an empty result is
	// valid and not an error.
	List(ctx context.Context, prefix string) ([]ObjectMeta, error)

	// Head returns metadata for a single object without its payload.
	// Returns ErrObjectNotFound if the key does not exist.
	Head(ctx context.Context, key string) (ObjectMeta, error)

	// Name returns an identifier for logging.
	Name() string
}
