// Package resolution implements contact identity resolution: matching an
// observation against known contacts, merging clusters that turn out to be
// the same person, and projecting the consolidated view.
package resolution

import (
	"context"
	"errors"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ErrEmptyObservation is returned when an observation carries neither an
// email nor a phone number. No store access happens in that case.
var ErrEmptyObservation = errors.New("at least one of email or phoneNumber is required")

// ErrResolveConflict is returned when repeated serialization conflicts
// exhausted the retry budget. The operation is safe for the caller to retry.
var ErrResolveConflict = errors.New("resolution aborted after repeated write conflicts")

// ContactStore is the persistence surface the resolution components depend
// on. Every read filters soft-deleted rows; the store owns that predicate so
// call sites cannot forget it.
type ContactStore interface {
	// FindByEmailOrPhone returns distinct non-deleted contacts whose email
	// equals email or whose phone_number equals phone. Nil fields are not
	// matched against.
	FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error)

	// GetByID returns a single non-deleted contact, or nil when absent.
	GetByID(ctx context.Context, id int64) (*models.Contact, error)

	// GetByIDs returns the non-deleted contacts for the id set, ordered by
	// created_at ascending (ties by id).
	GetByIDs(ctx context.Context, ids []int64) ([]models.Contact, error)

	// GetByIDsForUpdate is GetByIDs with row locks held until the enclosing
	// transaction ends.
	GetByIDsForUpdate(ctx context.Context, ids []int64) ([]models.Contact, error)

	// FindByLinkedID returns the non-deleted contacts linked to the given
	// primary, ordered by created_at ascending.
	FindByLinkedID(ctx context.Context, primaryID int64) ([]models.Contact, error)

	// Insert creates a contact and returns it with store-assigned id and
	// timestamps populated.
	Insert(ctx context.Context, email, phone *string, linkedID *int64, precedence models.LinkPrecedence) (*models.Contact, error)

	// Demote flips a primary to secondary and points it at the survivor.
	Demote(ctx context.Context, id, survivorID int64) error

	// RelinkSecondaries repoints every contact linked to fromPrimaryID at
	// toPrimaryID, returning the number of rows rewritten.
	RelinkSecondaries(ctx context.Context, fromPrimaryID, toPrimaryID int64) (int64, error)

	// List returns all non-deleted contacts ordered by created_at ascending.
	List(ctx context.Context) ([]models.Contact, error)
}

// TxContactStore is a ContactStore that can run a unit of work atomically.
// The store passed to fn is bound to the transaction; everything fn writes
// becomes visible only if fn returns nil.
type TxContactStore interface {
	ContactStore
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx ContactStore) error) error
}
