// Package jobstore tracks provisioning jobs from submission to a terminal
// state. Snapshots returned by the store are copies and safe to read
// without further synchronization.
package jobstore
