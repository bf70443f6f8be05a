package resolution

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Config contains configuration for the reconciler.
type Config struct {
	// MaxTxRetries is how many times a serialization conflict is retried
	// before ErrResolveConflict surfaces.
	MaxTxRetries int
	// NormalizeEmails lowercases emails before matching. Off by default:
	// matching is exact string equality, and stored history was matched raw.
	NormalizeEmails bool
	// NormalizePhoneNumbers strips phone numbers to digits before matching.
	NormalizePhoneNumbers bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxTxRetries: 3}
}

// EventSink receives contact lifecycle notifications after a reconciliation
// commits. Implementations must not fail the request.
type EventSink interface {
	ContactCreated(ctx context.Context, contact models.Contact)
	ContactLinked(ctx context.Context, secondary models.Contact, primaryID int64)
	IdentityMerged(ctx context.Context, survivorID int64, demotedIDs []int64)
}

// ClusterSink receives the final cluster after a reconciliation commits,
// e.g. to mirror it into the graph projection.
type ClusterSink interface {
	MirrorCluster(ctx context.Context, primary models.Contact, members []models.Contact) error
}

// Reconciler orchestrates identity resolution for one observation: find
// matches, merge conflicting clusters, decide whether a new alias record is
// needed, and project the consolidated view. The whole decision runs as one
// atomic unit of work against the store.
type Reconciler struct {
	store    TxContactStore
	matcher  *MatchFinder
	expander *ClusterExpander
	merger   *ClusterMerger
	emitter  EventSink
	mirror   ClusterSink
	logger   logging.Logger
	cfg      Config
}

// NewReconciler creates a new observation reconciler. emitter and mirror are
// optional; pass nil to disable.
func NewReconciler(store TxContactStore, logger logging.Logger, emitter EventSink, mirror ClusterSink, cfg Config) *Reconciler {
	if cfg.MaxTxRetries < 0 {
		cfg.MaxTxRetries = 0
	}
	return &Reconciler{
		store:    store,
		matcher:  NewMatchFinder(logger),
		expander: NewClusterExpander(logger),
		merger:   NewClusterMerger(logger),
		emitter:  emitter,
		mirror:   mirror,
		logger:   logger,
		cfg:      cfg,
	}
}

// sideEffects records what a committed reconciliation changed so events and
// the graph mirror run strictly after commit.
type sideEffects struct {
	created *models.Contact
	linked  *models.Contact
	merge   *MergeResult
	primary models.Contact
	members []models.Contact
}

// Resolve processes one observation and returns the consolidated cluster
// view. Empty observations fail with ErrEmptyObservation before any store
// access. Serialization conflicts are retried from the match step; the
// algorithm has no side effects outside the store, so a retry is a clean
// re-evaluation of current state.
func (r *Reconciler) Resolve(ctx context.Context, email, phone *string) (*models.ClusterView, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Reconciler.Resolve")
	defer span.End()

	email = r.normalizeEmail(email)
	phone = r.normalizePhone(phone)
	if email == nil && phone == nil {
		return nil, ErrEmptyObservation
	}

	log := r.logger.WithContext(ctx)

	var view models.ClusterView
	var effects *sideEffects
	var err error

	for attempt := 0; attempt <= r.cfg.MaxTxRetries; attempt++ {
		err = r.store.WithinTx(ctx, func(ctx context.Context, tx ContactStore) error {
			var txErr error
			view, effects, txErr = r.resolveInTx(ctx, tx, email, phone)
			return txErr
		})
		if err == nil {
			break
		}
		if !database.IsSerializationFailure(err) {
			return nil, err
		}
		log.WithError(err).WithFields(map[string]any{"attempt": attempt + 1}).Warn("Reconciliation hit a write conflict, retrying")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolveConflict, err)
	}

	r.flush(ctx, effects)

	return &view, nil
}

// resolveInTx is the transactional body of Resolve.
func (r *Reconciler) resolveInTx(ctx context.Context, tx ContactStore, email, phone *string) (models.ClusterView, *sideEffects, error) {
	effects := &sideEffects{}

	matches, err := r.matcher.FindMatches(ctx, tx, email, phone)
	if err != nil {
		return models.ClusterView{}, nil, err
	}

	// No matches: the observation is a brand-new identity.
	if len(matches) == 0 {
		created, err := tx.Insert(ctx, email, phone, nil, models.LinkPrecedencePrimary)
		if err != nil {
			return models.ClusterView{}, nil, err
		}
		effects.created = created
		effects.primary = *created
		effects.members = []models.Contact{*created}
		return BuildClusterView(created, effects.members), effects, nil
	}

	// Union the clusters every match belongs to, then fetch and lock the
	// full rows in a deterministic order.
	idSet := map[int64]struct{}{}
	for i := range matches {
		ids, err := r.expander.Expand(ctx, tx, &matches[i])
		if err != nil {
			return models.ClusterView{}, nil, err
		}
		for _, id := range ids {
			idSet[id] = struct{}{}
		}
	}
	candidateIDs := make([]int64, 0, len(idSet))
	for id := range idSet {
		candidateIDs = append(candidateIDs, id)
	}

	members, err := tx.GetByIDsForUpdate(ctx, candidateIDs)
	if err != nil {
		return models.ClusterView{}, nil, err
	}

	primary, members, err := r.unify(ctx, tx, members, effects)
	if err != nil {
		return models.ClusterView{}, nil, err
	}

	// The new information is only recorded when the exact (email, phone)
	// pair is novel; a repeat observation creates nothing.
	if !pairExists(members, email, phone) {
		secondary, err := tx.Insert(ctx, email, phone, &primary.ID, models.LinkPrecedenceSecondary)
		if err != nil {
			return models.ClusterView{}, nil, err
		}
		members = append(members, *secondary)
		effects.linked = secondary
	}

	effects.primary = *primary
	effects.members = members
	return BuildClusterView(primary, members), effects, nil
}

// unify merges the candidate rows down to a single primary. When more than
// one primary is present the merger runs and the membership is re-fetched
// from the survivor, because re-linking can pull in contacts that were not
// part of the original candidate set.
func (r *Reconciler) unify(ctx context.Context, tx ContactStore, members []models.Contact, effects *sideEffects) (*models.Contact, []models.Contact, error) {
	var primary *models.Contact
	primaryCount := 0
	for i := range members {
		if members[i].IsPrimary() {
			primaryCount++
			if primary == nil {
				primary = &members[i]
			}
		}
	}

	if primaryCount > 1 {
		result, err := r.merger.Merge(ctx, tx, members)
		if err != nil {
			return nil, nil, err
		}
		effects.merge = result
		return r.refetchCluster(ctx, tx, result.Survivor.ID)
	}

	if primary == nil {
		// Every fetched row is a secondary, which a healthy star never
		// produces. Resolve to the ultimate primary instead of failing.
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"member_count": len(members),
		}).Warn("Candidate set contains no primary contact; resolving defensively")
		resolved, err := r.expander.ResolvePrimary(ctx, tx, &members[0])
		if err != nil {
			return nil, nil, err
		}
		return r.refetchCluster(ctx, tx, resolved.ID)
	}

	return primary, members, nil
}

// refetchCluster reloads and locks the full membership of the cluster headed
// by primaryID, guaranteeing a consistent final view.
func (r *Reconciler) refetchCluster(ctx context.Context, tx ContactStore, primaryID int64) (*models.Contact, []models.Contact, error) {
	linked, err := tx.FindByLinkedID(ctx, primaryID)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]int64, 0, len(linked)+1)
	ids = append(ids, primaryID)
	for _, c := range linked {
		ids = append(ids, c.ID)
	}

	members, err := tx.GetByIDsForUpdate(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	for i := range members {
		if members[i].ID == primaryID {
			return &members[i], members, nil
		}
	}
	return nil, nil, fmt.Errorf("primary contact %d disappeared during reconciliation", primaryID)
}

// flush delivers post-commit notifications. Failures here never fail the
// request; the emitter and mirror log their own errors.
func (r *Reconciler) flush(ctx context.Context, effects *sideEffects) {
	if effects == nil {
		return
	}

	if r.emitter != nil {
		if effects.created != nil {
			r.emitter.ContactCreated(ctx, *effects.created)
		}
		if effects.linked != nil {
			r.emitter.ContactLinked(ctx, *effects.linked, effects.primary.ID)
		}
		if effects.merge != nil && len(effects.merge.DemotedIDs) > 0 {
			r.emitter.IdentityMerged(ctx, effects.merge.Survivor.ID, effects.merge.DemotedIDs)
		}
	}

	if r.mirror != nil {
		if err := r.mirror.MirrorCluster(ctx, effects.primary, effects.members); err != nil {
			r.logger.WithContext(ctx).WithError(err).Warn("Failed to mirror cluster to graph")
		}
	}
}

// pairExists reports whether any member already carries the exact
// (email, phone) pair of the observation.
func pairExists(members []models.Contact, email, phone *string) bool {
	for i := range members {
		if members[i].HasPair(email, phone) {
			return true
		}
	}
	return false
}

func (r *Reconciler) normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	v := normalizers.Apply(*email, "trim")
	if r.cfg.NormalizeEmails {
		v = normalizers.Apply(v, "nemail")
	}
	if v == "" {
		return nil
	}
	return &v
}

func (r *Reconciler) normalizePhone(phone *string) *string {
	if phone == nil {
		return nil
	}
	v := normalizers.Apply(*phone, "trim")
	if r.cfg.NormalizePhoneNumbers {
		v = normalizers.Apply(v, "nphone")
	}
	if v == "" {
		return nil
	}
	return &v
}

// ListAll returns every non-deleted contact ordered by created_at ascending.
func (r *Reconciler) ListAll(ctx context.Context) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Reconciler.ListAll")
	defer span.End()

	return r.store.List(ctx)
}
