package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 30, 0, 123, time.UTC), ID: uuid.New()}
	token := EncodeCursor(want)
	assert.NotContains(t, token, "=")

	got, err := ParseCursor(token)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(want.CreatedAt))
	assert.Equal(t, want.ID, got.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	c, err := ParseCursor("  ")
	assert.NoError(t, err)
	assert.Nil(t, c)

	for _, token := range []string{
		"not base64!!",
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("zz!.00000000-0000-0000-0000-000000000000")),
		base64.RawURLEncoding.EncodeToString([]byte("1.not-a-uuid")),
	} {
		_, err := ParseCursor(token)
		assert.ErrorIs(t, err, ErrBadCursor, token)
	}
}

func TestLimits(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, MaxLimit, NormalizeLimit(1000))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, 11, LimitWithBuffer(10))
}

type item struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time
}

func cursorOf(it item) Cursor { return Cursor{CreatedAt: it.CreatedAt, ID: it.ID} }

func TestBuildPage(t *testing.T) {
	now := time.Now().UTC()
	rows := []item{{uuid.New(), now}, {uuid.New(), now.Add(-time.Minute)}, {uuid.New(), now.Add(-2 * time.Minute)}}

	page := BuildPage(rows, 2, cursorOf)
	require.Len(t, page.Items, 2)
	next, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, rows[1].ID, next.ID)

	assert.Empty(t, BuildPage(rows[:1], 2, cursorOf).NextCursor)
	empty := BuildPage[item](nil, 2, nil)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
}

func TestAfterWalksEveryRowOnce(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:pagination_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&item{}))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 7 {
		// pairs share a timestamp so the id tiebreak is exercised
		require.NoError(t, db.Create(&item{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i/2) * time.Second)}).Error)
	}

	for _, newest := range []bool{true, false} {
		order := "created_at ASC, id ASC"
		if newest {
			order = "created_at DESC, id DESC"
		}
		seen := map[uuid.UUID]bool{}
		token := ""
		for {
			cur, err := ParseCursor(token)
			require.NoError(t, err)
			var rows []item
			require.NoError(t, db.Scopes(After(cur, newest)).Order(order).Limit(LimitWithBuffer(3)).Find(&rows).Error)
			page := BuildPage(rows, 3, cursorOf)
			for _, it := range page.Items {
				assert.False(t, seen[it.ID], "row repeated")
				seen[it.ID] = true
			}
			if page.NextCursor == "" {
				break
			}
			token = page.NextCursor
		}
		assert.Len(t, seen, 7, "newestFirst=%v", newest)
	}
}
