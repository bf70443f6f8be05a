// Package processor drives identity resolution from the observation topic.
// It is the ingestion twin of the HTTP identify route: same reconciler, same
// semantics, different transport.
package processor

import (
	"context"
	"errors"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolution"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Resolver is the reconciler surface the processor needs.
type Resolver interface {
	Resolve(ctx context.Context, email, phone *string) (*models.ClusterView, error)
}

// Processor handles observation messages from Kafka.
type Processor struct {
	resolver Resolver
	logger   logging.Logger
}

// NewProcessor creates a new observation processor.
func NewProcessor(resolver Resolver, logger logging.Logger) *Processor {
	return &Processor{
		resolver: resolver,
		logger:   logger,
	}
}

// HandleMessage resolves one observation message. Empty observations are
// logged and skipped (committed) so a bad producer cannot wedge the
// partition; transient failures propagate so the message is redelivered.
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":  msg.Topic,
		"offset": msg.Offset,
	})

	obs := msg.Observation
	if obs == nil {
		log.Warn("Message has no parsed observation; skipping")
		return nil
	}

	view, err := p.resolver.Resolve(ctx, obs.Email, obs.PhoneNumber)
	if err != nil {
		if errors.Is(err, resolution.ErrEmptyObservation) {
			log.Warn("Observation has neither email nor phone; skipping")
			return nil
		}
		return err
	}

	log.WithFields(map[string]any{
		"primary_contact_id": view.PrimaryContactID,
		"secondary_count":    len(view.SecondaryContactIDs),
	}).Debug("Observation resolved")
	return nil
}
