package snapshot

import (
	"context"
	"errors"

	"github.com/mcdev12/racetrack/go/internal/models"
)

// CurrentVersion is written into every saved document.
const CurrentVersion = 1

// ErrUnsupportedVersion is returned for documents written by a newer build.
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// Document is everything needed to rebuild the engine after a restart.
type Document struct {
	Version  int               `json:"version"`
	SavedAt  models.Instant    `json:"savedAt"`
	Sessions []models.Session  `json:"sessions"`
	Race     *models.RaceState `json:"race"`
}

// Store loads and saves the single snapshot document.
type Store interface {
	// Load returns nil and no error when nothing has been saved yet.
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
	Close() error
}

func checkVersion(doc *Document) error {
	if doc.Version > CurrentVersion {
		return ErrUnsupportedVersion
	}
	if doc.Sessions == nil {
		doc.Sessions = []models.Session{}
	}
	return nil
}
