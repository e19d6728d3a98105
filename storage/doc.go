// Package storage implements the StorageBackend contract against the
// three supported providers (AWS S3, Azure Blob Storage, Google Cloud
// Storage) and the factory that constructs exactly one of them from
// configuration.
//
// # Key Prefixing
//
// A configured key prefix is applied to every logical key exactly once,
// inside the adapter, before it reaches the provider client. Results keep
// the provider-side (prefixed) key; adapters never map keys back.
//
// # Credentials
//
// Each adapter resolves credentials at construction time. Managed-identity
// mode defers to the provider SDK's default discovery chain; explicit mode
// passes credential objects directly into the client constructor. Missing
// secrets under explicit mode fail construction before any network call.
//
// # Listing
//
// List drains the provider's paginated stream fully into one in-memory
// slice. This bounds listings to what fits in memory; truncation happens
// later, at the protocol layer, via max-keys.
package storage
