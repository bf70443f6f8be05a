package resolution_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/resolution"
)

func TestMatchFinder_MatchesEitherField(t *testing.T) {
	store := newStore()
	seedStar(store)
	finder := resolution.NewMatchFinder(logging.NewNop())
	ctx := context.Background()

	matches, err := finder.FindMatches(ctx, store, str("nobody@x.com"), str("200"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(3), matches[0].ID)
}

func TestMatchFinder_NoFieldsNoMatches(t *testing.T) {
	store := newStore()
	seedStar(store)
	finder := resolution.NewMatchFinder(logging.NewNop())

	matches, err := finder.FindMatches(context.Background(), store, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchFinder_RowMatchingBothAppearsOnce(t *testing.T) {
	store := newStore()
	seedStar(store)
	finder := resolution.NewMatchFinder(logging.NewNop())

	matches, err := finder.FindMatches(context.Background(), store, str("p@x.com"), str("100"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].ID)
}
