package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// AggregateSite is the aggregate type of every activation event; the
// aggregate id is the site id.
const AggregateSite = "site"

// SiteEvent builds a pending event about siteID with payload as JSON.
func SiteEvent(siteID, routingKey string, payload any) (*Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}
	return &Event{
		AggregateType: AggregateSite,
		AggregateID:   siteID,
		RoutingKey:    routingKey,
		Payload:       body,
		Status:        StatusPending,
	}, nil
}

// Enqueue writes a site event inside tx so it commits with the change it
// describes.
func (r *Repository) Enqueue(ctx context.Context, tx pgx.Tx, siteID, routingKey string, payload any) error {
	event, err := SiteEvent(siteID, routingKey, payload)
	if err != nil {
		return err
	}
	return r.InsertEvent(ctx, tx, event)
}
