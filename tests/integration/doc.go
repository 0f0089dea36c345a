// Package integration holds end-to-end tests that run against real Redis and
// MinIO containers. They are gated behind the "integration" build tag:
//
//	go test -tags integration ./tests/integration
package integration
