//go:build tools

// Package tools documents development tool dependencies.
// These tools are run with `go run` or installed via `go install`; they are not
// runtime dependencies of the portal.
package tools

// Development tools:
//
// mockgen - regenerates internal/mocks from the ports interfaces
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock v0.6.0
//
// Air - live reload for cmd/portal during template work
//   Install: go install github.com/air-verse/air@v1.63.0
//   Run: air --build.cmd "go build -o ./tmp/portal ./cmd/portal" --build.bin ./tmp/portal
