package bigquery

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	full := config.BigQueryConfig{Dataset: "gigmarket", MarketplaceEventsTable: "marketplace_events"}

	_, err := NewClient(ctx, config.GCPConfig{}, full, nil)
	assert.ErrorContains(t, err, "project id")

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{MarketplaceEventsTable: "m"}, nil)
	assert.ErrorContains(t, err, "dataset")

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d", GigViewsTable: "  "}, nil)
	assert.ErrorContains(t, err, "table")
}

func TestNonEmptyTrims(t *testing.T) {
	assert.Equal(t, []string{"marketplace_events", "gig_views"}, nonEmpty(" marketplace_events ", "", "gig_views"))
	assert.Empty(t, nonEmpty(" ", ""))
}

func TestDescribeLookup(t *testing.T) {
	assert.NoError(t, describeLookup("table", "gig_views", nil))

	missing := describeLookup("table", "gig_views", &googleapi.Error{Code: http.StatusNotFound})
	assert.EqualError(t, missing, `bigquery table "gig_views" does not exist`)

	denied := &googleapi.Error{Code: http.StatusForbidden}
	err := describeLookup("dataset", "gigmarket", denied)
	assert.ErrorIs(t, err, denied)
}

func TestNilClient(t *testing.T) {
	var c *Client
	ctx := context.Background()

	assert.ErrorIs(t, c.Ping(ctx), errNotInitialized)
	assert.ErrorIs(t, c.InsertRows(ctx, "gig_views", []any{1}), errNotInitialized)
	_, err := c.Query(ctx, "SELECT 1", nil)
	assert.True(t, errors.Is(err, errNotInitialized))
	assert.NoError(t, c.Close())
}
