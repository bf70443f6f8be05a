package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/repositories/contact"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolution"
)

// captureSink records emitted lifecycle events so the flow tests can assert
// on what would reach Kafka.
type captureSink struct {
	created []int64
	linked  []int64
	merged  [][]int64
}

func (s *captureSink) ContactCreated(ctx context.Context, c models.Contact) {
	s.created = append(s.created, c.ID)
}

func (s *captureSink) ContactLinked(ctx context.Context, secondary models.Contact, primaryID int64) {
	s.linked = append(s.linked, secondary.ID)
}

func (s *captureSink) IdentityMerged(ctx context.Context, survivorID int64, demotedIDs []int64) {
	s.merged = append(s.merged, append([]int64{survivorID}, demotedIDs...))
}

type harness struct {
	store *contact.MemoryStore
	sink  *captureSink
	r     *resolution.Reconciler
}

func newHarness() *harness {
	store := contact.NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.Clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	sink := &captureSink{}
	r := resolution.NewReconciler(store, logging.NewNop(), sink, nil, resolution.DefaultConfig())
	return &harness{store: store, sink: sink, r: r}
}

func str(s string) *string { return &s }

func TestResolveFlow_GrowingCluster(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	// First sighting creates a primary.
	view, err := h.r.Resolve(ctx, str("doc@x.com"), str("123456"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.PrimaryContactID)
	assert.Equal(t, []int64{1}, h.sink.created)

	// Known phone with a new email extends the cluster.
	view, err = h.r.Resolve(ctx, str("doc2@x.com"), str("123456"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.PrimaryContactID)
	assert.Equal(t, []string{"doc@x.com", "doc2@x.com"}, view.Emails)
	assert.Equal(t, []int64{2}, view.SecondaryContactIDs)
	assert.Equal(t, []int64{2}, h.sink.linked)

	// Replays change nothing and emit nothing.
	before := len(h.sink.created) + len(h.sink.linked)
	view2, err := h.r.Resolve(ctx, str("doc2@x.com"), str("123456"))
	require.NoError(t, err)
	assert.Equal(t, view, view2)
	assert.Equal(t, before, len(h.sink.created)+len(h.sink.linked))
}

func TestResolveFlow_BridgingObservationMergesClusters(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.r.Resolve(ctx, str("george@hillvalley.edu"), str("919191"))
	require.NoError(t, err)
	_, err = h.r.Resolve(ctx, str("biffsucks@hillvalley.edu"), str("717171"))
	require.NoError(t, err)

	view, err := h.r.Resolve(ctx, str("george@hillvalley.edu"), str("717171"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), view.PrimaryContactID)
	assert.Equal(t, []string{"george@hillvalley.edu", "biffsucks@hillvalley.edu"}, view.Emails)
	assert.Equal(t, []string{"919191", "717171"}, view.PhoneNumbers)

	require.Len(t, h.sink.merged, 1)
	assert.Equal(t, []int64{1, 2}, h.sink.merged[0])

	// The whole store is now one cluster rooted at the oldest contact.
	all, err := h.store.List(ctx)
	require.NoError(t, err)
	primaries := 0
	for _, c := range all {
		if c.IsPrimary() {
			primaries++
			continue
		}
		require.NotNil(t, c.LinkedID)
		assert.Equal(t, int64(1), *c.LinkedID)
	}
	assert.Equal(t, 1, primaries)
}

func TestResolveFlow_ListingExcludesSoftDeleted(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.r.Resolve(ctx, str("a@x.com"), str("100"))
	require.NoError(t, err)
	_, err = h.r.Resolve(ctx, str("b@x.com"), str("200"))
	require.NoError(t, err)

	h.store.SoftDelete(1)

	all, err := h.r.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(2), all[0].ID)

	// Deleted rows no longer participate in matching either: the pair is
	// treated as never seen and becomes a fresh primary.
	view, err := h.r.Resolve(ctx, str("a@x.com"), str("100"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.PrimaryContactID)
	assert.Empty(t, view.SecondaryContactIDs)
}
