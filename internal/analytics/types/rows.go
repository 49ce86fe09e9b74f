package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// MarketplaceEventRow mirrors the marketplace_events BigQuery schema.
type MarketplaceEventRow struct {
	EventID     string             `bigquery:"event_id"`
	EventType   string             `bigquery:"event_type"`
	OccurredAt  time.Time          `bigquery:"occurred_at"`
	GigID       *string            `bigquery:"gig_id"`
	CategoryID  *string            `bigquery:"category_id"`
	ClientID    *string            `bigquery:"client_id"`
	ProviderID  *string            `bigquery:"provider_id"`
	City        *string            `bigquery:"city"`
	AmountCents *int64             `bigquery:"amount_cents"`
	FeeCents    *int64             `bigquery:"fee_cents"`
	Rating      *int64             `bigquery:"rating"`
	Payload     cbigquery.NullJSON `bigquery:"payload"`
}

// GigViewRow mirrors the gig_views BigQuery schema.
type GigViewRow struct {
	EventID    string    `bigquery:"event_id"`
	ViewedAt   time.Time `bigquery:"viewed_at"`
	GigID      string    `bigquery:"gig_id"`
	CategoryID string    `bigquery:"category_id"`
	ViewerID   *string   `bigquery:"viewer_id"`
	City       *string   `bigquery:"city"`
}
