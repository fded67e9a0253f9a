// Package server exposes the provisioning engine as a small JSON API:
// submit a download, poll its job, cancel it.
package server
