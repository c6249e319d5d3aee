package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStores returns an SQLite store, plus a PostgreSQL one when
// PODGRAB_TEST_POSTGRES_DSN is set.
func newTestStores(t *testing.T) map[string]*DB {
	t.Helper()

	stores := map[string]*DB{}

	db, err := New(filepath.Join(t.TempDir(), "podgrab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	stores["sqlite"] = db

	if dsn := os.Getenv("PODGRAB_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := NewPostgres(dsn)
		require.NoError(t, err)
		_, err = pg.conn.Exec("TRUNCATE subscriptions, email")
		require.NoError(t, err)
		t.Cleanup(func() { pg.Close() })
		stores["postgres"] = pg
	}
	return stores
}

func TestSubscriptions(t *testing.T) {
	for name, db := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, db.InsertSubscription(ctx, "Show B", "http://b/feed"))
			require.NoError(t, db.InsertSubscription(ctx, "Show A", "http://a/feed"))

			err := db.InsertSubscription(ctx, "Show A again", "http://a/feed")
			assert.ErrorIs(t, err, ErrConflict)

			sub, err := db.GetSubscription(ctx, "http://a/feed")
			require.NoError(t, err)
			assert.Equal(t, "Show A", sub.ChannelName)
			assert.Nil(t, sub.Watermark)

			wm := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)
			require.NoError(t, db.UpdateWatermark(ctx, "http://a/feed", wm))

			sub, err = db.GetSubscription(ctx, "http://a/feed")
			require.NoError(t, err)
			require.NotNil(t, sub.Watermark)
			assert.True(t, wm.Equal(*sub.Watermark), "got %s", sub.Watermark)

			subs, err := db.ListSubscriptions(ctx)
			require.NoError(t, err)
			require.Len(t, subs, 2)
			assert.Equal(t, "Show A", subs[0].ChannelName)
			assert.Equal(t, "Show B", subs[1].ChannelName)

			require.NoError(t, db.DeleteSubscription(ctx, "http://a/feed"))
			_, err = db.GetSubscription(ctx, "http://a/feed")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, db.DeleteSubscription(ctx, "http://nope/feed"))
		})
	}
}

func TestUpdateWatermark_UnknownFeed(t *testing.T) {
	for name, db := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := db.UpdateWatermark(ctx, "http://gone/feed", time.Now())
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = db.GetSubscription(ctx, "http://gone/feed")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestUpdateWatermark_ForeignOffsets(t *testing.T) {
	zones := []*time.Location{
		time.FixedZone("", -5*60*60),
		time.FixedZone("", 9*60*60+30*60),
		time.FixedZone("EST", -5*60*60),
		time.UTC,
	}

	for name, db := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i, loc := range zones {
				feed := fmt.Sprintf("http://zone%d/feed", i)
				require.NoError(t, db.InsertSubscription(ctx, "Zone", feed))

				wm := time.Date(2026, time.October, 18, 19, 34, 43, 0, loc)
				require.NoError(t, db.UpdateWatermark(ctx, feed, wm))

				sub, err := db.GetSubscription(ctx, feed)
				require.NoError(t, err)
				require.NotNil(t, sub.Watermark)
				assert.True(t, wm.Equal(*sub.Watermark), "zone %d: got %s", i, sub.Watermark)
				assert.Equal(t, time.UTC, sub.Watermark.Location())
			}

			subs, err := db.ListSubscriptions(ctx)
			require.NoError(t, err)
			assert.Len(t, subs, len(zones))
		})
	}
}

func TestMailAddresses(t *testing.T) {
	for name, db := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, db.AddMailAddress(ctx, "b@example.com"))
			require.NoError(t, db.AddMailAddress(ctx, "a@example.com"))
			require.NoError(t, db.AddMailAddress(ctx, "a@example.com"))

			addrs, err := db.MailAddresses(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a@example.com", "b@example.com"}, addrs)

			require.NoError(t, db.DeleteMailAddress(ctx, "a@example.com"))
			addrs, err = db.MailAddresses(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b@example.com"}, addrs)
		})
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podgrab.db")
	ctx := context.Background()

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.InsertSubscription(ctx, "Persisted", "http://p/feed"))
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	sub, err := db.GetSubscription(ctx, "http://p/feed")
	require.NoError(t, err)
	assert.Equal(t, "Persisted", sub.ChannelName)
	assert.Equal(t, "SQLite", db.DatabaseType())
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "x")
	assert.Error(t, err)
}
