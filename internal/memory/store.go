// Package memory provides the per-worker session memory that agents load at
// the start of an invocation and flush on every exit path.
package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
)

// Store persists one JSON-shaped document for one session. A Store is owned
// by exactly one worker. Implementations are safe for concurrent use, but a
// Load followed by a Save is not atomic: the owning worker serialises its
// load, process and save cycle so that overlapping runs keep every update.
type Store interface {
	// Load returns the stored document, or an empty map if nothing is stored.
	Load(ctx context.Context) (map[string]any, error)

	// Save replaces the stored document.
	Save(ctx context.Context, data map[string]any) error

	// Clear removes the stored document.
	Clear(ctx context.Context) error
}

// Backend selects a Store implementation.
type Backend string

const (
	BackendNone   Backend = "none"
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

// Factory creates an exclusive Store for each session ID. Two calls with
// different session IDs never share a document.
type Factory interface {
	ForSession(sessionID string) (Store, error)
	Close() error
}

// NewFactory builds a Factory for the given backend. For BackendFile, location
// is a directory; for BackendSQLite it is the database path. BackendNone
// returns a nil Factory.
func NewFactory(backend Backend, location string) (Factory, error) {
	switch backend {
	case BackendNone, "":
		return nil, nil
	case BackendFile:
		return &fileFactory{dir: location}, nil
	case BackendSQLite:
		db, err := OpenSQLite(location)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("memory: unknown backend %q", backend)
	}
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// sanitizeSessionID makes a session ID safe to embed in a file name.
func sanitizeSessionID(id string) string {
	return unsafeChars.ReplaceAllString(id, "_")
}

type fileFactory struct {
	dir string
}

func (f *fileFactory) ForSession(sessionID string) (Store, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("memory: empty session id")
	}
	path := filepath.Join(f.dir, sanitizeSessionID(sessionID)+"_memory.json")
	return NewFileStore(path), nil
}

func (f *fileFactory) Close() error { return nil }
