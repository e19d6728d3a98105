// Package interfaces defines the core contracts of the proxy, separating
// interface definitions from implementations.
//
// # Storage Interfaces
//
// StorageBackend: the unified five-operation capability (get/put/delete/
// list/head) that every provider adapter satisfies. One adapter instance
// is constructed at startup and shared, read-only, across all concurrent
// requests.
//
// # Types
//
// ObjectMeta carries the provider-side key, size, last-modified timestamp
// and entity tag of a stored object.
//
// # Errors
//
// ErrObjectNotFound is the sentinel for absent objects; ConfigError marks
// fatal configuration problems detected before any network call.
package interfaces
