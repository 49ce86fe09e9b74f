package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/gigmarket-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/gigmarket-backend/pkg/bigquery"
)

func TestNewWriterValidation(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
	_, err = New(&pkgbigquery.Client{}, Config{MarketplaceTable: " ", GigViewsTable: "gig_views"})
	assert.Error(t, err)
	_, err = New(&pkgbigquery.Client{}, Config{MarketplaceTable: "marketplace", GigViewsTable: " "})
	assert.Error(t, err)
}

func TestNewWriterDefaults(t *testing.T) {
	w, err := New(&pkgbigquery.Client{}, Config{MarketplaceTable: "m", GigViewsTable: "v", InitialBackoff: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 1, w.cfg.BatchSize)
	assert.Equal(t, 3, w.cfg.MaxAttempts)
	assert.Equal(t, 5*time.Second, w.cfg.MaximumBackoff, "cap never below the initial backoff")
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"gig": "logo design"})
	require.NoError(t, err)
	assert.True(t, nj.Valid)
	assert.JSONEq(t, `{"gig":"logo design"}`, nj.JSONVal)

	nj, err = EncodeJSON(nil)
	require.NoError(t, err)
	assert.False(t, nj.Valid)

	nj, err = EncodeJSON(json.RawMessage(`{"budget":120}`))
	require.NoError(t, err)
	assert.Equal(t, `{"budget":120}`, nj.JSONVal)

	nj, err = EncodeJSON([]byte{})
	require.NoError(t, err)
	assert.False(t, nj.Valid)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&googleapi.Error{Code: http.StatusServiceUnavailable}))
	assert.False(t, retryable(&googleapi.Error{Code: http.StatusBadRequest}))
	assert.True(t, retryable(status.Error(codes.Unavailable, "down")))
	assert.False(t, retryable(status.Error(codes.InvalidArgument, "bad row")))
	assert.False(t, retryable(errors.New("plain")))

	mixed := cbigquery.PutMultiError{
		{InsertID: "1", Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusServiceUnavailable}}},
		{InsertID: "2", Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusBadRequest}}},
	}
	assert.False(t, retryable(mixed), "one bad row makes the batch permanent")
	assert.False(t, retryable(cbigquery.PutMultiError{}))
}

func TestWriterRetriesOnTransientError(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	fake.responses = []error{&googleapi.Error{Code: http.StatusServiceUnavailable}, nil}

	require.NoError(t, w.InsertMarketplace(context.Background(), types.MarketplaceEventRow{EventID: "1"}))
	require.Len(t, fake.calls, 2)
	assert.Equal(t, "marketplace_events", fake.calls[1].table)
	assert.Empty(t, w.market.rows)
}

func TestWriterStopsOnPermanentError(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	assert.Error(t, w.InsertGigView(context.Background(), types.GigViewRow{EventID: "1"}))
	assert.Len(t, fake.calls, 1)
	assert.Len(t, w.views.rows, 1, "failed rows stay buffered")
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	unavailable := &googleapi.Error{Code: http.StatusServiceUnavailable}
	fake.responses = []error{unavailable, unavailable, unavailable, nil}

	assert.Error(t, w.InsertMarketplace(context.Background(), types.MarketplaceEventRow{EventID: "1"}))
	assert.Len(t, fake.calls, 3)
}

func TestWriterBatching(t *testing.T) {
	w, fake := newTestWriter(t, 2)

	require.NoError(t, w.InsertMarketplace(context.Background(), types.MarketplaceEventRow{EventID: "1"}))
	assert.Empty(t, fake.calls)

	require.NoError(t, w.InsertMarketplace(context.Background(), types.MarketplaceEventRow{EventID: "2"}))
	require.Len(t, fake.calls, 1)
	assert.Equal(t, 2, fake.calls[0].rowCount)
}

func TestWriterFlushWritesBothTables(t *testing.T) {
	w, fake := newTestWriter(t, 10)
	require.NoError(t, w.InsertMarketplace(context.Background(), types.MarketplaceEventRow{EventID: "1"}))
	require.NoError(t, w.InsertGigView(context.Background(), types.GigViewRow{EventID: "2"}))
	require.NoError(t, w.Flush(context.Background()))

	require.Len(t, fake.calls, 2)
	assert.Equal(t, "marketplace_events", fake.calls[0].table)
	assert.Equal(t, "gig_views", fake.calls[1].table)
	assert.Empty(t, w.market.rows)
	assert.Empty(t, w.views.rows)
}

func TestWriterConcurrentInserts(t *testing.T) {
	w, fake := newTestWriter(t, 5)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.InsertGigView(context.Background(), types.GigViewRow{EventID: "v"}))
		}()
	}
	wg.Wait()
	require.NoError(t, w.Flush(context.Background()))

	total := 0
	for _, call := range fake.calls {
		total += call.rowCount
	}
	assert.Equal(t, 20, total)
}

type insertCall struct {
	table    string
	rowCount int
}

type fakeInserter struct {
	mu        sync.Mutex
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if idx := len(f.calls); idx < len(f.responses) {
		err = f.responses[idx]
	}
	f.calls = append(f.calls, insertCall{table: table, rowCount: len(rows)})
	return err
}

func newTestWriter(t *testing.T, batch int) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	w, err := New(&pkgbigquery.Client{}, Config{
		MarketplaceTable: "marketplace_events",
		GigViewsTable:    "gig_views",
		BatchSize:        batch,
		InitialBackoff:   time.Millisecond,
		MaximumBackoff:   2 * time.Millisecond,
	})
	require.NoError(t, err)
	fake := &fakeInserter{}
	w.client = fake
	return w, fake
}
