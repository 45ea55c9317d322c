// Package store persists book projects and chapter records.
package store

import (
	"context"
	"errors"

	"github.com/c360studio/bookwright/book"
)

// ErrNotFound is returned when a project or chapter does not exist.
var ErrNotFound = errors.New("not found")

// ProjectStore persists projects and their chapter records.
type ProjectStore interface {
	// Get loads a project by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*book.Project, error)

	// Save inserts or replaces a project.
	Save(ctx context.Context, p *book.Project) error

	// Delete removes a project and its chapters. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// ListSummaries returns lightweight views of all projects, most recently
	// updated first.
	ListSummaries(ctx context.Context) ([]book.Summary, error)

	// SaveChapter inserts or replaces one chapter record.
	SaveChapter(ctx context.Context, ch *book.Chapter) error

	// ListChapters returns a project's chapters in number order.
	ListChapters(ctx context.Context, projectID string) ([]book.Chapter, error)

	// Close releases underlying resources.
	Close() error
}
