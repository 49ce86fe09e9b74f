package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

const verifyTimeout = 10 * time.Second

var errNotInitialized = errors.New("bigquery client not initialized")

// Client reads and streams analytics rows for one dataset. Tables are checked
// on startup so a typo in config fails the deploy rather than every insert.
type Client struct {
	bq      *bigquery.Client
	dataset *bigquery.Dataset
	tables  []string
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	dataset := strings.TrimSpace(cfg.Dataset)
	tables := nonEmpty(cfg.MarketplaceEventsTable, cfg.GigViewsTable)
	switch {
	case project == "":
		return nil, errors.New("gcp project id is required")
	case dataset == "":
		return nil, errors.New("bigquery dataset is required")
	case len(tables) == 0:
		return nil, errors.New("at least one bigquery table is required")
	}

	bq, err := bigquery.NewClient(ctx, project, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(dataset), tables: tables}
	if err := c.verify(ctx, tables); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": dataset, "tables": tables}), "bigquery client ready")
	}
	return c, nil
}

// verify checks the dataset and the given tables concurrently.
func (c *Client) verify(ctx context.Context, tables []string) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := c.dataset.Metadata(gctx)
		return describeLookup("dataset", c.dataset.DatasetID, err)
	})
	for _, name := range tables {
		g.Go(func() error {
			_, err := c.dataset.Table(name).Metadata(gctx)
			return describeLookup("table", name, err)
		})
	}
	return g.Wait()
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errNotInitialized
	}
	return c.verify(ctx, c.tables)
}

// InsertRows streams rows into table. Per-row rejections are folded into one
// error naming how many rows failed.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errors.New("bigquery table name is required")
	}
	if len(rows) == 0 {
		return nil
	}

	err := c.dataset.Table(table).Inserter().Put(ctx, rows)
	var rowErrs bigquery.PutMultiError
	if errors.As(err, &rowErrs) && len(rowErrs) > 0 {
		return fmt.Errorf("insert into %s: %d of %d rows rejected, first: %w", table, len(rowErrs), len(rows), rowErrs[0].Errors)
	}
	return err
}

// Query runs a parameterised statement and returns the row iterator.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.bq == nil {
		return nil, errNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New("sql query is required")
	}
	q := c.bq.Query(sql)
	q.Parameters = params
	return q.Read(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func describeLookup(kind, name string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("bigquery %s %q does not exist", kind, name)
	}
	return fmt.Errorf("bigquery %s %q: %w", kind, name, err)
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
