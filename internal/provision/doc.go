// Package provision coordinates model provisioning end to end: registry
// resolution, destination classification, request coalescing, and the
// transfer lifecycle tracked through the job store.
package provision
