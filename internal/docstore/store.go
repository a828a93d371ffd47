package docstore

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// Revision identifies the version of a stored document. Backends pick
// the representation: the SQLite store uses a numeric counter, the
// GitHub store uses the blob SHA. Callers treat it as opaque.
type Revision string

var (
	// ErrNotFound is returned when a document has never been saved.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrConflict is returned by conditional saves when the stored
	// revision no longer matches the one passed in.
	ErrConflict = errors.New("docstore: revision conflict")
)

// Store persists named JSON documents. Load unmarshals the named
// document into out and reports its current revision. Save marshals
// doc and writes it: with an empty revision the write is
// unconditional, otherwise it succeeds only while the stored revision
// still matches and fails with ErrConflict after a concurrent write.
// The note describes the change for backends that keep history.
type Store interface {
	Load(ctx context.Context, name string, out any) (Revision, error)
	Save(ctx context.Context, name string, doc any, rev Revision, note string) (Revision, error)
}

// LoadOr loads a document, treating a missing one as a zero value so
// callers proceed with whatever out already holds. Other load failures
// are logged and treated the same way; use this only for documents
// where falling back to defaults is harmless.
func LoadOr(ctx context.Context, s Store, name string, out any) Revision {
	rev, err := s.Load(ctx, name, out)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Str("doc", name).Msg("Failed to load document, using defaults")
		}
		return ""
	}
	return rev
}
