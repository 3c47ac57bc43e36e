//go:build sqlite_vec
// +build sqlite_vec

package storage

// CGO build with the sqlite-vec extension loaded into go-sqlite3. Metadata
// and emotion KNN run as vec_distance_cosine queries inside SQLite.
//
//   CGO_ENABLED=1 go build -tags sqlite_vec ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
