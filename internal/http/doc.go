// Package http provides a retrying HTTP client for registry queries and
// artifact transfers.
//
// The client wraps net/http with exponential backoff, jitter, and a small
// set of sentinel errors so callers can distinguish terminal failures
// (not found, unauthorized) from transient ones (rate limited, server
// error) with errors.Is.
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//	var doc modelDoc
//	err := client.GetJSON(ctx, url, token, &doc)
//
// Streaming transfers use Open, which returns the response body without an
// overall deadline; the caller owns per-read stall detection.
package http
