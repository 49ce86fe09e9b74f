// Package router projects analytics envelopes into BigQuery rows.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/gigmarket-backend/internal/analytics/types"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

type Writer interface {
	InsertMarketplace(ctx context.Context, row types.MarketplaceEventRow) error
	InsertGigView(ctx context.Context, row types.GigViewRow) error
}

// projection decodes one envelope and writes the rows it yields.
type projection interface {
	project(ctx context.Context, w Writer, env types.Envelope) error
}

type Router struct {
	writer Writer
	logg   *logger.Logger
	table  map[enums.AnalyticsEventType]projection
}

func NewRouter(writer Writer, logg *logger.Logger) (*Router, error) {
	switch {
	case writer == nil:
		return nil, errors.New("writer is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Router{writer: writer, logg: logg, table: projections()}, nil
}

// Handle fails with ErrUnsupportedEventType for types without a projection
// and with types.ErrMalformedPayload when the payload cannot be decoded.
func (r *Router) Handle(ctx context.Context, env types.Envelope) error {
	p, ok := r.table[env.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, env.EventType)
	}
	if err := p.project(ctx, r.writer, env); err != nil {
		if !errors.Is(err, types.ErrMalformedPayload) {
			r.logg.Error(r.logg.WithFields(ctx, map[string]any{
				"event_type":   env.EventType,
				"aggregate_id": env.AggregateID,
			}), "analytics projection failed", err)
		}
		return err
	}
	return nil
}
