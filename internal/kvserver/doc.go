//go:build linux

// Package kvserver implements the RESP command dispatcher: accept,
// per-connection state, the key-value store, and the single callback
// that ties them to an internal/ring Engine. Apart from creating and
// binding the listening socket, it does all its I/O through that
// Engine; command handling (Server.process) is a plain function over
// []byte that the package's tests cover without a kernel ring.
package kvserver
