// Package store abstracts the contact document store: CRUD plus a live
// change-event subscription. Implementations are interface-driven so the
// registry and intake service stay testable against the in-memory store.
package store

import (
	"context"

	"contacthub/internal/contact/models"
	dErrors "contacthub/pkg/domain-errors"
)

// Store is the document store contract. GetAll returns records ordered by
// creation time descending; that ordering is the registry's source of truth.
type Store interface {
	// Insert persists a new record, assigning its ID and creation timestamp.
	Insert(ctx context.Context, rec models.ContactRecord) (models.ContactRecord, error)
	GetAll(ctx context.Context) ([]models.ContactRecord, error)
	GetByID(ctx context.Context, id string) (models.ContactRecord, error)
	// UpdateFields merges the given document fields into the record.
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
	// Subscribe returns a stream of change-event batches. The channel closes
	// when ctx is cancelled or the underlying feed fails; it is not
	// restartable.
	Subscribe(ctx context.Context) (<-chan []models.ChangeEvent, error)
}

// ErrNotFound keeps store-level 404s consistent across implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "contact not found")
