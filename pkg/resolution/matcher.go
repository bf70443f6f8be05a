package resolution

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MatchFinder finds the existing contacts an observation touches. Matching
// is exact string equality on email or phone; no fuzzy matching.
type MatchFinder struct {
	logger logging.Logger
}

// NewMatchFinder creates a new match finder.
func NewMatchFinder(logger logging.Logger) *MatchFinder {
	return &MatchFinder{logger: logger}
}

// FindMatches returns the distinct non-deleted contacts whose email or phone
// equals the corresponding observation field. Callers guarantee at least one
// field is non-nil; an empty result means storage has no matching rows.
func (f *MatchFinder) FindMatches(ctx context.Context, store ContactStore, email, phone *string) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.MatchFinder.FindMatches")
	defer span.End()

	matches, err := store.FindByEmailOrPhone(ctx, email, phone)
	if err != nil {
		return nil, err
	}

	f.logger.WithContext(ctx).WithFields(map[string]any{
		"match_count": len(matches),
	}).Debug("Observation matched existing contacts")

	return matches, nil
}
