// Package contact implements the durable contact store on PostgreSQL.
package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolution"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var contactColumns = []string{"id", "email", "phone_number", "linked_id", "link_precedence", "created_at", "updated_at", "deleted_at"}

const insertContactQuery = `
	INSERT INTO contacts (email, phone_number, linked_id, link_precedence)
	VALUES ($1, $2, $3, $4)
	RETURNING id, email, phone_number, linked_id, link_precedence, created_at, updated_at, deleted_at
`

const getByIDsQuery = `
	SELECT id, email, phone_number, linked_id, link_precedence, created_at, updated_at, deleted_at
	FROM contacts
	WHERE id = ANY($1)
	  AND deleted_at IS NULL
	ORDER BY created_at ASC, id ASC
`

// The locking variant keeps the same deterministic ordering so concurrent
// reconciliations acquire row locks in a consistent order.
const getByIDsForUpdateQuery = getByIDsQuery + ` FOR UPDATE`

var _ resolution.TxContactStore = (*Repository)(nil)

// Repository handles contact persistence. It implements
// resolution.TxContactStore; a transaction-bound copy is handed to the
// reconciler's unit of work.
type Repository struct {
	db     database.DB
	pool   *sqlx.DB // nil when bound to a transaction
	logger logging.Logger
}

// NewRepository creates a new contact repository on the connection pool.
func NewRepository(db *sqlx.DB, logger logging.Logger) *Repository {
	return &Repository{db: db, pool: db, logger: logger}
}

// WithinTx runs fn with a repository bound to a SERIALIZABLE transaction.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx resolution.ContactStore) error) error {
	if r.pool == nil {
		return errors.New("nested transactions are not supported")
	}
	return database.WithinTx(ctx, r.pool, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, &Repository{db: tx, logger: r.logger})
	})
}

// notDeleted is the soft-delete predicate applied by every read. Call sites
// never filter deleted_at themselves.
func notDeleted(sb *sqlbuilder.SelectBuilder) string {
	return sb.IsNull("deleted_at")
}

// FindByEmailOrPhone returns distinct non-deleted contacts matching either
// observation field exactly.
func (r *Repository) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByEmailOrPhone")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns...)
	sb.From("contacts")

	fields := []string{}
	if email != nil {
		fields = append(fields, sb.Equal("email", *email))
	}
	if phone != nil {
		fields = append(fields, sb.Equal("phone_number", *phone))
	}
	if len(fields) == 0 {
		return nil, nil
	}
	sb.Where(sb.Or(fields...), notDeleted(sb))
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var contacts []models.Contact
	if err := r.db.SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find contacts by email or phone")
		return nil, fmt.Errorf("failed to find contacts: %w", err)
	}
	return contacts, nil
}

// GetByID returns a single non-deleted contact, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns...)
	sb.From("contacts")
	sb.Where(sb.Equal("id", id), notDeleted(sb))
	sb.Limit(1)

	query, args := sb.Build()
	var contact models.Contact
	if err := r.db.GetContext(ctx, &contact, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get contact")
		return nil, fmt.Errorf("failed to get contact %d: %w", id, err)
	}
	return &contact, nil
}

// GetByIDs returns non-deleted contacts for the id set, created_at ascending.
func (r *Repository) GetByIDs(ctx context.Context, ids []int64) ([]models.Contact, error) {
	return r.getByIDs(ctx, ids, false)
}

// GetByIDsForUpdate is GetByIDs with row locks held until the transaction
// ends. Only valid inside WithinTx.
func (r *Repository) GetByIDsForUpdate(ctx context.Context, ids []int64) ([]models.Contact, error) {
	return r.getByIDs(ctx, ids, true)
}

func (r *Repository) getByIDs(ctx context.Context, ids []int64, lock bool) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.getByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	query := getByIDsQuery
	if lock {
		query = getByIDsForUpdateQuery
	}

	var contacts []models.Contact
	if err := r.db.SelectContext(ctx, &contacts, query, pq.Array(ids)); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ids": ids, "lock": lock}).Error("Failed to get contacts by ids")
		return nil, fmt.Errorf("failed to get contacts by ids: %w", err)
	}
	return contacts, nil
}

// FindByLinkedID returns the non-deleted contacts linked to a primary.
func (r *Repository) FindByLinkedID(ctx context.Context, primaryID int64) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByLinkedID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns...)
	sb.From("contacts")
	sb.Where(sb.Equal("linked_id", primaryID), notDeleted(sb))
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var contacts []models.Contact
	if err := r.db.SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"linked_id": primaryID}).Error("Failed to find linked contacts")
		return nil, fmt.Errorf("failed to find linked contacts: %w", err)
	}
	return contacts, nil
}

// Insert creates a contact; id and timestamps come back from the store.
func (r *Repository) Insert(ctx context.Context, email, phone *string, linkedID *int64, precedence models.LinkPrecedence) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Insert")
	defer span.End()

	if !precedence.Valid() {
		return nil, fmt.Errorf("invalid link precedence %q", precedence)
	}

	var contact models.Contact
	if err := r.db.GetContext(ctx, &contact, insertContactQuery, email, phone, linkedID, string(precedence)); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert contact")
		return nil, fmt.Errorf("failed to insert contact: %w", err)
	}
	return &contact, nil
}

// Demote flips a primary to secondary, pointing it at the survivor.
func (r *Repository) Demote(ctx context.Context, id, survivorID int64) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Demote")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("contacts")
	ub.Set(
		ub.Assign("link_precedence", string(models.LinkPrecedenceSecondary)),
		ub.Assign("linked_id", survivorID),
		"updated_at = now()",
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "survivor_id": survivorID}).Error("Failed to demote contact")
		return fmt.Errorf("failed to demote contact %d: %w", id, err)
	}
	return nil
}

// RelinkSecondaries repoints every contact linked to fromPrimaryID at
// toPrimaryID and returns how many rows were rewritten.
func (r *Repository) RelinkSecondaries(ctx context.Context, fromPrimaryID, toPrimaryID int64) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.RelinkSecondaries")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("contacts")
	ub.Set(
		ub.Assign("linked_id", toPrimaryID),
		"updated_at = now()",
	)
	ub.Where(ub.Equal("linked_id", fromPrimaryID), ub.IsNull("deleted_at"))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from": fromPrimaryID, "to": toPrimaryID}).Error("Failed to relink secondaries")
		return 0, fmt.Errorf("failed to relink secondaries: %w", err)
	}

	relinked, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count relinked secondaries: %w", err)
	}
	return relinked, nil
}

// List returns all non-deleted contacts ordered by created_at ascending.
func (r *Repository) List(ctx context.Context) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns...)
	sb.From("contacts")
	sb.Where(notDeleted(sb))
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var contacts []models.Contact
	if err := r.db.SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list contacts")
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}
