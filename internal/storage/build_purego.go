//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// Compiled without the sqlite_vec tag. Uses a pure Go SQLite implementation;
// every similarity search is an exact scan in Go.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vec_distance_cosine can be called from SQL
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
