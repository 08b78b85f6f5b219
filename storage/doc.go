// Package storage defines the key-value interface used to persist annotation
// documents.
//
// # Overview
//
// Store is a deliberately small interface: Put, Get, List and Delete over
// string keys and byte values. Two backends ship with the module:
//
//   - storage/filestore: files below a directory, written atomically by
//     rename. The default for a single workstation.
//   - storage/kvstore: a NATS JetStream KeyValue bucket, for viewers that
//     share comments through a NATS server.
//
// # Keys
//
// Keys may contain "/" separators. Backends that cannot store a character
// natively escape it and return the original key from List.
//
// # Error Handling
//
// Implementations return errors classified by the errors package:
//   - a missing key wraps errors.ErrKeyNotFound and is classified invalid
//   - backend I/O failures are classified transient
//
// Callers decide themselves whether to repeat a failed operation.
//
// # Testing
//
// The filestore tests run against a temporary directory. The kvstore tests
// run against a real NATS server started with testcontainers and are only
// built with the integration tag:
//
//	INTEGRATION_TESTS=1 go test -tags integration ./storage/kvstore/...
package storage
