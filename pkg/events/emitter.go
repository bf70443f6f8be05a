// Package events handles event emission for contact lifecycle changes
package events

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Publisher is the producer surface the emitter needs.
type Publisher interface {
	PublishContactEvent(ctx context.Context, event *kafka.ContactEvent) error
}

// Emitter emits contact lifecycle events after reconciliations commit. It
// implements resolution.EventSink: emission failures are logged, never
// propagated, because the store is already committed.
type Emitter struct {
	producer Publisher
	logger   logging.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer Publisher, logger logging.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// ContactCreated emits a contact.created event for a fresh primary.
func (e *Emitter) ContactCreated(ctx context.Context, contact models.Contact) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.ContactCreated")
	defer span.End()

	e.publish(ctx, &kafka.ContactEvent{
		EventID:          uuid.NewString(),
		EventType:        "contact.created",
		ContactID:        contact.ID,
		PrimaryContactID: contact.ID,
		Email:            contact.Email,
		PhoneNumber:      contact.PhoneNumber,
	})
}

// ContactLinked emits a contact.linked event for a new secondary.
func (e *Emitter) ContactLinked(ctx context.Context, secondary models.Contact, primaryID int64) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.ContactLinked")
	defer span.End()

	e.publish(ctx, &kafka.ContactEvent{
		EventID:          uuid.NewString(),
		EventType:        "contact.linked",
		ContactID:        secondary.ID,
		PrimaryContactID: primaryID,
		Email:            secondary.Email,
		PhoneNumber:      secondary.PhoneNumber,
	})
}

// IdentityMerged emits an identity.merged event after clusters unify.
func (e *Emitter) IdentityMerged(ctx context.Context, survivorID int64, demotedIDs []int64) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.IdentityMerged")
	defer span.End()

	e.publish(ctx, &kafka.ContactEvent{
		EventID:          uuid.NewString(),
		EventType:        "identity.merged",
		PrimaryContactID: survivorID,
		DemotedIDs:       demotedIDs,
	})
}

func (e *Emitter) publish(ctx context.Context, event *kafka.ContactEvent) {
	if err := e.producer.PublishContactEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
		}).Error("Failed to emit contact event")
	}
}
