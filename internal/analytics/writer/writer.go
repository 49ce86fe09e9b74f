// Package writer streams analytics rows into BigQuery.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/gigmarket-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/gigmarket-backend/pkg/bigquery"
)

// Config names the destination tables. BatchSize 1 writes every row as it
// arrives, which is what a Pub/Sub ack-per-message worker needs.
type Config struct {
	MarketplaceTable string
	GigViewsTable    string
	BatchSize        int
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaximumBackoff   time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter buffers rows per table and flushes them with retry on
// transient BigQuery failures. Safe for concurrent use by Receive callbacks.
type BigQueryWriter struct {
	client  tableInserter
	cfg     Config
	market  *buffer[types.MarketplaceEventRow]
	views   *buffer[types.GigViewRow]
	backoff func() retry.Backoff
}

func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	cfg.MarketplaceTable = strings.TrimSpace(cfg.MarketplaceTable)
	cfg.GigViewsTable = strings.TrimSpace(cfg.GigViewsTable)
	if cfg.MarketplaceTable == "" {
		return nil, errors.New("marketplace table is required")
	}
	if cfg.GigViewsTable == "" {
		return nil, errors.New("gig views table is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 250 * time.Millisecond
	}
	if cfg.MaximumBackoff <= 0 {
		cfg.MaximumBackoff = 2 * time.Second
	}
	cfg.MaximumBackoff = max(cfg.MaximumBackoff, cfg.InitialBackoff)

	w := &BigQueryWriter{
		client: client,
		cfg:    cfg,
		market: &buffer[types.MarketplaceEventRow]{table: cfg.MarketplaceTable},
		views:  &buffer[types.GigViewRow]{table: cfg.GigViewsTable},
	}
	w.backoff = func() retry.Backoff {
		b := retry.NewExponential(w.cfg.InitialBackoff)
		b = retry.WithCappedDuration(w.cfg.MaximumBackoff, b)
		return retry.WithMaxRetries(uint64(w.cfg.MaxAttempts-1), b)
	}
	return w, nil
}

func (w *BigQueryWriter) InsertMarketplace(ctx context.Context, row types.MarketplaceEventRow) error {
	return add(ctx, w, w.market, row)
}

func (w *BigQueryWriter) InsertGigView(ctx context.Context, row types.GigViewRow) error {
	return add(ctx, w, w.views, row)
}

// Flush writes whatever is buffered in both tables.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	if err := flush(ctx, w, w.market); err != nil {
		return err
	}
	return flush(ctx, w, w.views)
}

type buffer[T any] struct {
	mu    sync.Mutex
	table string
	rows  []T
}

func add[T any](ctx context.Context, w *BigQueryWriter, b *buffer[T], row T) error {
	b.mu.Lock()
	b.rows = append(b.rows, row)
	full := len(b.rows) >= w.cfg.BatchSize
	b.mu.Unlock()
	if !full {
		return nil
	}
	return flush(ctx, w, b)
}

// flush holds the buffer lock across the insert so rows are written once and
// in arrival order. Rows stay buffered when the insert fails.
func flush[T any](ctx context.Context, w *BigQueryWriter, b *buffer[T]) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.rows) == 0 {
		return nil
	}

	rows := make([]any, len(b.rows))
	for i := range b.rows {
		rows[i] = &b.rows[i]
	}
	err := retry.Do(ctx, w.backoff(), func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, b.table, rows)
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %s rows: %w", b.table, err)
	}
	b.rows = b.rows[:0]
	return nil
}

// retryable reports whether every error inside err is transient. Row level
// errors from streaming inserts are nested, so the check recurses.
func retryable(err error) bool {
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return all(multi, retryable)
	}
	var rowsErr cbigquery.PutMultiError
	if errors.As(err, &rowsErr) {
		return all(rowsErr, func(r cbigquery.RowInsertionError) bool { return retryable(r.Errors) })
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func all[T any](items []T, fn func(T) bool) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !fn(item) {
			return false
		}
	}
	return true
}

// EncodeJSON turns a payload into a BigQuery JSON column value. Raw JSON
// passes through untouched; empty input becomes NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
