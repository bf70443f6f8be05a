package resolution

import (
	"context"
	"errors"
	"sort"

	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ClusterMerger unifies clusters whose membership was bridged by a single
// observation. The oldest primary survives; everything else re-links to it.
type ClusterMerger struct {
	logger logging.Logger
}

// NewClusterMerger creates a new cluster merger.
func NewClusterMerger(logger logging.Logger) *ClusterMerger {
	return &ClusterMerger{logger: logger}
}

// MergeResult describes the outcome of a cluster merge.
type MergeResult struct {
	Survivor   models.Contact
	DemotedIDs []int64
	// Relinked counts secondaries repointed from demoted primaries to the
	// survivor, including rows outside the original candidate set.
	Relinked int64
}

// Merge unifies the clusters represented by contacts. Among members with
// primary precedence the one with the earliest created_at survives, ties
// broken by the smaller id. Every other primary is demoted to secondary and
// every contact anywhere in storage that linked to a demoted primary is
// re-pointed at the survivor, so no two-hop chains persist.
//
// With a single primary present this is a no-op and returns it unchanged.
func (m *ClusterMerger) Merge(ctx context.Context, store ContactStore, contacts []models.Contact) (*MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.ClusterMerger.Merge")
	defer span.End()

	primaries := make([]models.Contact, 0, len(contacts))
	for _, c := range contacts {
		if c.IsPrimary() {
			primaries = append(primaries, c)
		}
	}
	if len(primaries) == 0 {
		return nil, errors.New("merge requires at least one primary contact")
	}

	// created_at can collide at low timestamp resolution; the id tie-break
	// keeps the survivor deterministic.
	sort.Slice(primaries, func(i, j int) bool {
		if primaries[i].CreatedAt.Equal(primaries[j].CreatedAt) {
			return primaries[i].ID < primaries[j].ID
		}
		return primaries[i].CreatedAt.Before(primaries[j].CreatedAt)
	})

	survivor := primaries[0]
	result := &MergeResult{Survivor: survivor}

	if len(primaries) == 1 {
		return result, nil
	}

	for _, demoted := range primaries[1:] {
		if err := store.Demote(ctx, demoted.ID, survivor.ID); err != nil {
			return nil, err
		}

		// Skipping this rewrite would orphan the demoted primary's
		// secondaries behind a two-hop chain and corrupt future lookups.
		relinked, err := store.RelinkSecondaries(ctx, demoted.ID, survivor.ID)
		if err != nil {
			return nil, err
		}

		result.DemotedIDs = append(result.DemotedIDs, demoted.ID)
		result.Relinked += relinked
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"survivor_id": survivor.ID,
		"demoted_ids": result.DemotedIDs,
		"relinked":    result.Relinked,
	}).Info("Merged contact clusters")

	return result, nil
}
