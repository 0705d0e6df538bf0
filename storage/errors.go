package storage

import "errors"

// ErrNotFound reports that no record exists for the requested ID. Malformed
// or wrong-typed IDs resolve to it too, so HTTP handlers can map it straight
// to a 404 without leaking ID internals.
var ErrNotFound = errors.New("record not found")
