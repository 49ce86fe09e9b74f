// Package query reads the admin dashboard KPIs back out of BigQuery.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cloudbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"

	"github.com/angelmondragon/gigmarket-backend/internal/analytics/types"
	"github.com/angelmondragon/gigmarket-backend/pkg/bigquery"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

// Dashboard queries are independent; this caps how many run at once.
const maxParallelQueries = 4

const topN = 5

type MarketplaceService interface {
	Query(ctx context.Context, req types.MarketplaceQueryRequest) (*types.MarketplaceQueryResponse, error)
	CategoryViews(ctx context.Context, since time.Time) (map[uuid.UUID]int64, error)
}

type marketplaceService struct {
	client *bigquery.Client
	events string
	views  string
}

func NewMarketplaceService(client *bigquery.Client, project, dataset, eventsTable, viewsTable string) (MarketplaceService, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	for _, part := range []string{project, dataset, eventsTable, viewsTable} {
		if strings.TrimSpace(part) == "" {
			return nil, errors.New("project, dataset and tables are required")
		}
	}
	return &marketplaceService{
		client: client,
		events: tableRef(project, dataset, eventsTable),
		views:  tableRef(project, dataset, viewsTable),
	}, nil
}

func tableRef(project, dataset, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", project, dataset, table)
}

// Query runs every dashboard query concurrently; the first failure cancels
// the rest.
func (s *marketplaceService) Query(ctx context.Context, req types.MarketplaceQueryRequest) (*types.MarketplaceQueryResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	w := newWindow(s.events, req)
	out := &types.MarketplaceQueryResponse{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelQueries)
	series := func(dst *[]types.TimeSeriesPoint, st statement) {
		g.Go(func() (err error) { *dst, err = s.series(gctx, st); return })
	}
	labels := func(dst *[]types.LabelValue, st statement) {
		g.Go(func() (err error) { *dst, err = s.labels(gctx, st); return })
	}

	series(&out.GigsPosted, w.daily("COUNT(*)", enums.AnalyticsEventGigCreated))
	series(&out.GigsCompleted, w.daily("COUNT(*)", enums.AnalyticsEventGigCompleted))
	series(&out.Proposals, w.daily("COUNT(*)", enums.AnalyticsEventProposalSubmitted))
	series(&out.ReleasedVolume, w.daily("SUM(COALESCE(amount_cents, 0))", enums.AnalyticsEventPaymentReleased))
	series(&out.PlatformFees, w.daily("SUM(COALESCE(fee_cents, 0))", enums.AnalyticsEventPaymentReleased))
	labels(&out.TopCategories, w.top("category_id", enums.AnalyticsEventGigCreated))
	labels(&out.TopCities, w.top("city", enums.AnalyticsEventGigCreated))
	g.Go(func() (err error) {
		out.AvgReleasedCents, err = s.average(gctx, w.total("AVG(amount_cents)", enums.AnalyticsEventPaymentReleased))
		return
	})
	g.Go(func() (err error) {
		out.AvgRating, err = s.average(gctx, w.total("AVG(rating)", enums.AnalyticsEventReviewCreated))
		return
	})
	g.Go(func() (err error) {
		out.EmergencyRequests, err = s.count(gctx, w.total("COUNT(*)", enums.AnalyticsEventEmergencyRequested))
		return
	})

	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query marketplace analytics")
	}
	return out, nil
}

// CategoryViews counts gig page views per category since the given instant.
// Rows with an unparsable category id are skipped.
func (s *marketplaceService) CategoryViews(ctx context.Context, since time.Time) (map[uuid.UUID]int64, error) {
	type viewRow struct {
		CategoryID string `bigquery:"category_id"`
		Views      int64  `bigquery:"views"`
	}
	rows, err := collect[viewRow](ctx, s.client, statement{
		sql:    "SELECT category_id, COUNT(*) AS views FROM " + s.views + " WHERE viewed_at >= @since GROUP BY category_id",
		params: []cloudbigquery.QueryParameter{{Name: "since", Value: since.UTC()}},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query category views")
	}
	out := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		if id, err := uuid.Parse(row.CategoryID); err == nil {
			out[id] = row.Views
		}
	}
	return out, nil
}

func validateRequest(req types.MarketplaceQueryRequest) error {
	switch {
	case req.Start.IsZero() || req.End.IsZero():
		return pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	case req.End.Before(req.Start):
		return pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	return nil
}

type statement struct {
	sql    string
	params []cloudbigquery.QueryParameter
}

// window is the table, time range and optional category shared by every
// dashboard query.
type window struct {
	table  string
	where  string
	params []cloudbigquery.QueryParameter
}

func newWindow(table string, req types.MarketplaceQueryRequest) window {
	w := window{
		table: table,
		where: "occurred_at BETWEEN @start AND @end AND event_type = @eventType",
		params: []cloudbigquery.QueryParameter{
			{Name: "start", Value: req.Start.UTC()},
			{Name: "end", Value: req.End.UTC()},
		},
	}
	if req.CategoryID != nil {
		w.where += " AND category_id = @categoryID"
		w.params = append(w.params, cloudbigquery.QueryParameter{Name: "categoryID", Value: req.CategoryID.String()})
	}
	return w
}

func (w window) bind(sql string, event enums.AnalyticsEventType) statement {
	params := make([]cloudbigquery.QueryParameter, len(w.params), len(w.params)+1)
	copy(params, w.params)
	return statement{
		sql:    sql,
		params: append(params, cloudbigquery.QueryParameter{Name: "eventType", Value: string(event)}),
	}
}

func (w window) daily(agg string, event enums.AnalyticsEventType) statement {
	return w.bind(fmt.Sprintf(
		"SELECT FORMAT_DATE('%%F', DATE(occurred_at)) AS day, %s AS value FROM %s WHERE %s GROUP BY day ORDER BY day",
		agg, w.table, w.where), event)
}

func (w window) top(column string, event enums.AnalyticsEventType) statement {
	return w.bind(fmt.Sprintf(
		"SELECT %s AS label, COUNT(*) AS value FROM %s WHERE %s AND %s IS NOT NULL GROUP BY label ORDER BY value DESC LIMIT %d",
		column, w.table, w.where, column, topN), event)
}

func (w window) total(agg string, event enums.AnalyticsEventType) statement {
	return w.bind(fmt.Sprintf("SELECT %s AS value FROM %s WHERE %s", agg, w.table, w.where), event)
}

func (s *marketplaceService) series(ctx context.Context, st statement) ([]types.TimeSeriesPoint, error) {
	type row struct {
		Day   string `bigquery:"day"`
		Value int64  `bigquery:"value"`
	}
	rows, err := collect[row](ctx, s.client, st)
	if err != nil {
		return nil, err
	}
	points := make([]types.TimeSeriesPoint, len(rows))
	for i, r := range rows {
		points[i] = types.TimeSeriesPoint{Date: r.Day, Value: r.Value}
	}
	return points, nil
}

func (s *marketplaceService) labels(ctx context.Context, st statement) ([]types.LabelValue, error) {
	type row struct {
		Label string `bigquery:"label"`
		Value int64  `bigquery:"value"`
	}
	rows, err := collect[row](ctx, s.client, st)
	if err != nil {
		return nil, err
	}
	out := make([]types.LabelValue, len(rows))
	for i, r := range rows {
		out[i] = types.LabelValue{Label: r.Label, Value: r.Value}
	}
	return out, nil
}

// average reports 0 when no rows matched.
func (s *marketplaceService) average(ctx context.Context, st statement) (float64, error) {
	rows, err := collect[struct {
		Value cloudbigquery.NullFloat64 `bigquery:"value"`
	}](ctx, s.client, st)
	if err != nil || len(rows) == 0 || !rows[0].Value.Valid {
		return 0, err
	}
	return rows[0].Value.Float64, nil
}

func (s *marketplaceService) count(ctx context.Context, st statement) (int64, error) {
	rows, err := collect[struct {
		Value int64 `bigquery:"value"`
	}](ctx, s.client, st)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return rows[0].Value, nil
}

func collect[T any](ctx context.Context, client *bigquery.Client, st statement) ([]T, error) {
	it, err := client.Query(ctx, st.sql, st.params)
	if err != nil {
		return nil, err
	}
	var out []T
	for {
		var row T
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		out = append(out, row)
	}
}
