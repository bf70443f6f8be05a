package contact

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolution"
)

var _ resolution.TxContactStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory ContactStore with the same observable
// behavior as the Postgres repository. It backs unit tests and local
// development without a database.
type MemoryStore struct {
	mu       sync.Mutex
	contacts map[int64]models.Contact
	nextID   int64

	// Clock supplies created_at/updated_at; tests override it to control
	// ordering and tie-breaks.
	Clock func() time.Time
}

// NewMemoryStore creates an empty in-memory contact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contacts: make(map[int64]models.Contact),
		nextID:   1,
		Clock:    time.Now,
	}
}

// WithinTx runs fn against the store itself. The in-memory store has no
// transaction isolation; it exists for tests and local use where a single
// caller owns the store.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx resolution.ContactStore) error) error {
	return fn(ctx, m)
}

func (m *MemoryStore) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Contact
	for _, c := range m.contacts {
		if c.DeletedAt != nil {
			continue
		}
		if email != nil && c.Email != nil && *c.Email == *email {
			out = append(out, c)
			continue
		}
		if phone != nil && c.PhoneNumber != nil && *c.PhoneNumber == *phone {
			out = append(out, c)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contacts[id]
	if !ok || c.DeletedAt != nil {
		return nil, nil
	}
	return &c, nil
}

func (m *MemoryStore) GetByIDs(ctx context.Context, ids []int64) ([]models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Contact
	for _, id := range ids {
		if c, ok := m.contacts[id]; ok && c.DeletedAt == nil {
			out = append(out, c)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (m *MemoryStore) GetByIDsForUpdate(ctx context.Context, ids []int64) ([]models.Contact, error) {
	return m.GetByIDs(ctx, ids)
}

func (m *MemoryStore) FindByLinkedID(ctx context.Context, primaryID int64) ([]models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Contact
	for _, c := range m.contacts {
		if c.DeletedAt != nil || c.LinkedID == nil || *c.LinkedID != primaryID {
			continue
		}
		out = append(out, c)
	}
	sortByCreatedAt(out)
	return out, nil
}

func (m *MemoryStore) Insert(ctx context.Context, email, phone *string, linkedID *int64, precedence models.LinkPrecedence) (*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Clock()
	c := models.Contact{
		ID:             m.nextID,
		Email:          copyString(email),
		PhoneNumber:    copyString(phone),
		LinkedID:       copyInt64(linkedID),
		LinkPrecedence: precedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.contacts[c.ID] = c
	m.nextID++
	return &c, nil
}

func (m *MemoryStore) Demote(ctx context.Context, id, survivorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contacts[id]
	if !ok {
		return nil
	}
	c.LinkPrecedence = models.LinkPrecedenceSecondary
	c.LinkedID = &survivorID
	c.UpdatedAt = m.Clock()
	m.contacts[id] = c
	return nil
}

func (m *MemoryStore) RelinkSecondaries(ctx context.Context, fromPrimaryID, toPrimaryID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var relinked int64
	for id, c := range m.contacts {
		if c.DeletedAt != nil || c.LinkedID == nil || *c.LinkedID != fromPrimaryID {
			continue
		}
		to := toPrimaryID
		c.LinkedID = &to
		c.UpdatedAt = m.Clock()
		m.contacts[id] = c
		relinked++
	}
	return relinked, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Contact
	for _, c := range m.contacts {
		if c.DeletedAt != nil {
			continue
		}
		out = append(out, c)
	}
	sortByCreatedAt(out)
	return out, nil
}

// SoftDelete marks a contact as deleted. Reads filter it from then on.
func (m *MemoryStore) SoftDelete(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.contacts[id]; ok {
		now := m.Clock()
		c.DeletedAt = &now
		c.UpdatedAt = now
		m.contacts[id] = c
	}
}

// Put stores a contact verbatim, bypassing id assignment. Tests use it to
// seed specific shapes, including corrupt ones.
func (m *MemoryStore) Put(c models.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.contacts[c.ID] = c
	if c.ID >= m.nextID {
		m.nextID = c.ID + 1
	}
}

func sortByCreatedAt(contacts []models.Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].CreatedAt.Equal(contacts[j].CreatedAt) {
			return contacts[i].ID < contacts[j].ID
		}
		return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
	})
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
