// Package storage defines the repository contract for persisting fact-pod
// enablement records, per-user OAuth client configurations, and ephemeral
// authorization state.
//
// The package defines one interface per record family:
//   - FactPodConfigStore: per-site enablement records
//   - ClientConfigStore: registered OAuth clients, keyed by (user, site)
//   - StateStore: ephemeral CSRF states with TTL and atomic consumption
//   - CategoryStore: read-only paginated category listing
//
// Repository composes all four for callers that need the full contract.
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/mock: Mock storage for unit testing
//   - storage/valkey: Valkey/Redis-compatible distributed storage for production
package storage
