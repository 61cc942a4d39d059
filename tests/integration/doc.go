// Package integration verifies upload history state in real databases after
// uploads through the page. These tests use real databases via testcontainers.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration
