// Package blobstore provides the object stores behind the pipeline's data
// source and artifact publisher. A store holds named byte blobs under
// slash-separated names; writes replace the whole blob atomically.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Read when no blob has the given name.
var ErrNotFound = errors.New("blob not found")

// Store is a flat namespace of named blobs.
type Store interface {
	// List returns the names starting with prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)
	// Read returns the full contents of a blob.
	Read(ctx context.Context, name string) ([]byte, error)
	// Write creates or replaces a blob. Readers observe either the old or
	// the new contents, never a partial write.
	Write(ctx context.Context, name string, data []byte) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

// Open returns a store for the given backend. For "fs" the location is a
// root directory; for "sqlite" it is a database file path.
func Open(backend, location string) (Store, error) {
	switch backend {
	case BackendFS:
		return NewFSStore(location)
	case BackendSQLite:
		return NewSQLiteStore(location)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// cleanName validates a blob name: non-empty, relative, slash-separated and
// free of "." and ".." elements.
func cleanName(name string) (string, error) {
	if name == "" {
		return "", errors.New("empty blob name")
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") || strings.Contains(name, "\\") {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	if path.Clean(name) != name {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	for _, elem := range strings.Split(name, "/") {
		if elem == ".." || elem == "." {
			return "", fmt.Errorf("invalid blob name %q", name)
		}
	}
	return name, nil
}
