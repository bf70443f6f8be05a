package contact_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/repositories/contact"
	"github.com/Ramsey-B/clover/pkg/models"
)

func str(s string) *string { return &s }

func newStore() *contact.MemoryStore {
	store := contact.NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.Clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return store
}

func TestMemoryStore_InsertAssignsSequentialIDs(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	first, err := store.Insert(ctx, str("a@x.com"), str("100"), nil, models.LinkPrecedencePrimary)
	require.NoError(t, err)
	one := first.ID
	second, err := store.Insert(ctx, str("b@x.com"), nil, &one, models.LinkPrecedenceSecondary)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.True(t, second.CreatedAt.After(first.CreatedAt))
}

func TestMemoryStore_SoftDeletedRowsAreInvisible(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	c, err := store.Insert(ctx, str("a@x.com"), str("100"), nil, models.LinkPrecedencePrimary)
	require.NoError(t, err)
	store.SoftDelete(c.ID)

	got, err := store.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	matches, err := store.FindByEmailOrPhone(ctx, str("a@x.com"), str("100"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryStore_ListOrderedByCreatedAt(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store.Put(models.Contact{ID: 2, Email: str("later@x.com"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at.Add(time.Hour), UpdatedAt: at.Add(time.Hour)})
	store.Put(models.Contact{ID: 5, Email: str("earlier@x.com"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at, UpdatedAt: at})

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(5), all[0].ID)
	assert.Equal(t, int64(2), all[1].ID)
}

func TestMemoryStore_RelinkSecondariesCountsRows(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	one, two := int64(1), int64(2)
	store.Put(models.Contact{ID: 1, Email: str("a@x.com"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at, UpdatedAt: at})
	store.Put(models.Contact{ID: 2, Email: str("b@x.com"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at, UpdatedAt: at})
	store.Put(models.Contact{ID: 3, Email: str("c@x.com"), LinkedID: &two, LinkPrecedence: models.LinkPrecedenceSecondary, CreatedAt: at, UpdatedAt: at})
	store.Put(models.Contact{ID: 4, Email: str("d@x.com"), LinkedID: &two, LinkPrecedence: models.LinkPrecedenceSecondary, CreatedAt: at, UpdatedAt: at})
	store.Put(models.Contact{ID: 5, Email: str("e@x.com"), LinkedID: &one, LinkPrecedence: models.LinkPrecedenceSecondary, CreatedAt: at, UpdatedAt: at})

	moved, err := store.RelinkSecondaries(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)

	linked, err := store.FindByLinkedID(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, linked, 3)
}

func TestMemoryStore_DemoteSetsLinkAndPrecedence(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Put(models.Contact{ID: 1, Email: str("a@x.com"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at, UpdatedAt: at})
	store.Put(models.Contact{ID: 2, Email: str("b@x.com"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at, UpdatedAt: at})

	require.NoError(t, store.Demote(ctx, 2, 1))

	demoted, err := store.GetByID(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, demoted)
	assert.Equal(t, models.LinkPrecedenceSecondary, demoted.LinkPrecedence)
	require.NotNil(t, demoted.LinkedID)
	assert.Equal(t, int64(1), *demoted.LinkedID)
	assert.True(t, demoted.UpdatedAt.After(at))
}

func TestMemoryStore_GetByIDsForUpdateOrdering(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Put(models.Contact{ID: 3, Email: str("c@x.com"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at.Add(time.Second), UpdatedAt: at.Add(time.Second)})
	store.Put(models.Contact{ID: 9, Email: str("a@x.com"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at, UpdatedAt: at})

	rows, err := store.GetByIDsForUpdate(ctx, []int64{3, 9})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(9), rows[0].ID)
	assert.Equal(t, int64(3), rows[1].ID)
}
