// Package registry resolves model identifiers against the remote model
// registry.
//
// Resolution is a pure query: given an identifier and optional version
// identifier it returns the artifact's display name, declared type, file
// URL and size. Transient registry failures (rate limiting, 5xx, network)
// are retried with bounded exponential backoff by the underlying HTTP
// client; missing models and rejected access tokens surface immediately as
// ErrNotFound and ErrUnauthorized.
package registry
