package resolution_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/repositories/contact"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/resolution"
)

// conflictStore fails the first failures transactions with txErr, then
// delegates.
type conflictStore struct {
	*contact.MemoryStore
	failures int
	txErr    error
}

func (s *conflictStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx resolution.ContactStore) error) error {
	if s.failures > 0 {
		s.failures--
		return s.txErr
	}
	return s.MemoryStore.WithinTx(ctx, fn)
}

func serializationFailure() error {
	return &pq.Error{Code: "40001"}
}

func TestResolve_RetriesSerializationConflicts(t *testing.T) {
	store := &conflictStore{MemoryStore: newStore(), failures: 2, txErr: serializationFailure()}
	r := resolution.NewReconciler(store, logging.NewNop(), nil, nil, resolution.Config{MaxTxRetries: 3})

	view, err := r.Resolve(context.Background(), str("a@x.com"), str("100"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.PrimaryContactID)
}

func TestResolve_ConflictRetriesExhausted(t *testing.T) {
	store := &conflictStore{MemoryStore: newStore(), failures: 10, txErr: serializationFailure()}
	r := resolution.NewReconciler(store, logging.NewNop(), nil, nil, resolution.Config{MaxTxRetries: 2})

	_, err := r.Resolve(context.Background(), str("a@x.com"), str("100"))
	assert.ErrorIs(t, err, resolution.ErrResolveConflict)
}

func TestResolve_NonSerializationErrorNotRetried(t *testing.T) {
	boom := errors.New("connection reset")
	store := &conflictStore{MemoryStore: newStore(), failures: 1, txErr: boom}
	r := resolution.NewReconciler(store, logging.NewNop(), nil, nil, resolution.DefaultConfig())

	_, err := r.Resolve(context.Background(), str("a@x.com"), nil)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, resolution.ErrResolveConflict)
	assert.Zero(t, store.failures, "the transaction ran exactly once")
}
