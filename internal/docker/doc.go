// Package docker provides Docker Engine API wrappers for running
// decompiler tools in throwaway containers.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Container labels that mark every container classlens creates, so
//     leftovers from interrupted runs can be found and removed
//   - One-shot runs: create, start, wait, collect demultiplexed logs,
//     remove
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
