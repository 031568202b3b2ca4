//go:build !cgo

package store

import "errors"

// ErrSQLiteUnavailable is returned by binaries built without cgo.
var ErrSQLiteUnavailable = errors.New("store: sqlite requires a cgo build, use the memory store")

// SQLite is unavailable without cgo.
type SQLite struct {
	Backend
}

func OpenSQLite(_ string, _ int, _ string) (*SQLite, error) {
	return nil, ErrSQLiteUnavailable
}
