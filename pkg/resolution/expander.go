package resolution

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// maxChainDepth bounds linked_id traversal. Clusters are stars of depth 1;
// anything deeper is corrupt data and the walk must still terminate.
const maxChainDepth = 10

// ClusterExpander resolves the full membership of the cluster a contact
// belongs to.
type ClusterExpander struct {
	logger logging.Logger
}

// NewClusterExpander creates a new cluster expander.
func NewClusterExpander(logger logging.Logger) *ClusterExpander {
	return &ClusterExpander{logger: logger}
}

// Expand returns the ids of every contact in the seed's cluster: the seed
// itself, its primary, and every contact linked to that primary.
func (e *ClusterExpander) Expand(ctx context.Context, store ContactStore, seed *models.Contact) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.ClusterExpander.Expand")
	defer span.End()

	primary, err := e.ResolvePrimary(ctx, store, seed)
	if err != nil {
		return nil, err
	}

	ids := map[int64]struct{}{seed.ID: {}, primary.ID: {}}

	linked, err := store.FindByLinkedID(ctx, primary.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range linked {
		ids[c.ID] = struct{}{}
	}

	out := make([]int64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out, nil
}

// ResolvePrimary walks linked_id to the cluster's primary. A healthy cluster
// resolves in one hop. Longer chains mean a secondary points at another
// secondary; the walk continues to the ultimate primary and the corruption
// is logged so it can be repaired.
func (e *ClusterExpander) ResolvePrimary(ctx context.Context, store ContactStore, seed *models.Contact) (*models.Contact, error) {
	current := seed
	for depth := 0; current.LinkedID != nil; depth++ {
		if depth >= maxChainDepth {
			return nil, fmt.Errorf("linked_id chain exceeds %d hops starting at contact %d", maxChainDepth, seed.ID)
		}

		next, err := store.GetByID(ctx, *current.LinkedID)
		if err != nil {
			return nil, err
		}
		if next == nil {
			// Dangling link; treat the current row as the cluster head.
			e.logger.WithContext(ctx).WithFields(map[string]any{
				"contact_id": current.ID,
				"linked_id":  *current.LinkedID,
			}).Warn("Contact links to a missing primary")
			break
		}

		if depth > 0 {
			e.logger.WithContext(ctx).WithFields(map[string]any{
				"seed_id":    seed.ID,
				"contact_id": current.ID,
				"depth":      depth + 1,
			}).Warn("Secondary contact links to another secondary; resolving to ultimate primary")
		}

		current = next
	}
	return current, nil
}
