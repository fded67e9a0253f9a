// Package fetcher streams artifacts from their file URL into the models
// directory.
//
// A transfer writes into a hidden temp file colocated with the final
// destination and becomes visible only through an atomic rename once the
// full body arrived. Failure or cancellation at any point removes the
// temp file, so a consumer never observes a partial artifact.
//
// # Failure semantics
//
// Broken streams and server errors restart the transfer from byte zero up
// to a bounded attempt count; disk exhaustion aborts immediately.
// Cancellation is cooperative and observed within one read-chunk
// boundary. Stall detection applies per read, distinguishing a dead
// connection from a merely large file.
//
// # Recovery
//
// CleanupOrphans removes temp files left behind by a crashed process and
// runs before new jobs are accepted.
package fetcher
