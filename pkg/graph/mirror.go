package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const upsertContactCypher = `
	MERGE (c:Contact {id: $id})
	SET c.email = $email,
	    c.phone_number = $phone_number,
	    c.link_precedence = $link_precedence
`

const linkContactCypher = `
	MATCH (s:Contact {id: $secondary_id})
	MATCH (p:Contact {id: $primary_id})
	OPTIONAL MATCH (s)-[stale:LINKED_TO]->(o:Contact) WHERE o.id <> $primary_id
	DELETE stale
	MERGE (s)-[:LINKED_TO]->(p)
`

// Mirror projects committed clusters into the graph database. It implements
// resolution.ClusterSink and runs off the request's critical path; the
// relational store stays the source of truth.
type Mirror struct {
	client *Client
	logger logging.Logger
}

// NewMirror creates a new cluster mirror.
func NewMirror(client *Client, logger logging.Logger) *Mirror {
	return &Mirror{client: client, logger: logger}
}

// MirrorCluster upserts every member of a resolved cluster and points each
// secondary's LINKED_TO edge at the current primary, dropping edges left
// over from before a merge.
func (m *Mirror) MirrorCluster(ctx context.Context, primary models.Contact, members []models.Contact) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Mirror.MirrorCluster")
	defer span.End()

	_, err := m.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for i := range members {
			if _, err := tx.Run(ctx, upsertContactCypher, contactParams(&members[i])); err != nil {
				return nil, err
			}
		}
		for i := range members {
			if members[i].ID == primary.ID {
				continue
			}
			params := map[string]any{
				"secondary_id": members[i].ID,
				"primary_id":   primary.ID,
			}
			if _, err := tx.Run(ctx, linkContactCypher, params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"primary_contact_id": primary.ID,
			"member_count":       len(members),
		}).Error("Failed to mirror cluster")
		return err
	}
	return nil
}

func contactParams(c *models.Contact) map[string]any {
	params := map[string]any{
		"id":              c.ID,
		"email":           nil,
		"phone_number":    nil,
		"link_precedence": string(c.LinkPrecedence),
	}
	if c.Email != nil {
		params["email"] = *c.Email
	}
	if c.PhoneNumber != nil {
		params["phone_number"] = *c.PhoneNumber
	}
	return params
}
