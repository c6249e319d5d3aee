package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/bryan-buckman/podgrab/internal/model"
)

//go:embed migrations
var migrationsFS embed.FS

// DB is a subscription store on top of an SQL database.
type DB struct {
	conn *sqlx.DB
	sb   sq.StatementBuilderType
	kind string
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	// Times are written as "2006-01-02 15:04:05.999999999-07:00", which the
	// driver parses back for any offset.
	conn, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	driver, err := sqlite.WithInstance(conn.DB, &sqlite.Config{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	if err := runMigrations(driver, "sqlite", "migrations/sqlite"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
		kind: "SQLite",
	}, nil
}

// runMigrations applies every embedded migration in dir.
func runMigrations(driver migratedb.Driver, name, dir string) error {
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	slog.Debug("database migrated", "driver", name)
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return db.kind
}

// --- Subscription Methods ---

// ListSubscriptions returns all subscriptions ordered by channel name.
func (db *DB) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	query, args, err := db.sb.Select("channel", "feed", "last_ep").
		From("subscriptions").
		OrderBy("channel", "feed").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	subs := []model.Subscription{}
	if err := db.conn.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	for i := range subs {
		normalize(&subs[i])
	}
	return subs, nil
}

// GetSubscription finds a subscription by feed URL.
func (db *DB) GetSubscription(ctx context.Context, feedURL string) (model.Subscription, error) {
	query, args, err := db.sb.Select("channel", "feed", "last_ep").
		From("subscriptions").
		Where(sq.Eq{"feed": feedURL}).
		ToSql()
	if err != nil {
		return model.Subscription{}, fmt.Errorf("build query: %w", err)
	}

	var sub model.Subscription
	err = db.conn.GetContext(ctx, &sub, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscription{}, ErrNotFound
	}
	if err != nil {
		return model.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	normalize(&sub)
	return sub, nil
}

// normalize reports watermarks in UTC regardless of how the backend
// returned them.
func normalize(sub *model.Subscription) {
	if sub.Watermark != nil {
		wm := sub.Watermark.UTC()
		sub.Watermark = &wm
	}
}

// InsertSubscription adds a never-updated subscription. Returns ErrConflict
// when the feed is already subscribed.
func (db *DB) InsertSubscription(ctx context.Context, channel, feedURL string) error {
	query, args, err := db.sb.Insert("subscriptions").
		Columns("channel", "feed", "last_ep").
		Values(channel, feedURL, nil).
		Suffix("ON CONFLICT(feed) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subscription %s: %w", feedURL, ErrConflict)
	}
	return nil
}

// UpdateWatermark stores the watermark of an existing subscription. It
// returns ErrNotFound when the feed is not subscribed, so a sync that
// outlived its subscription never brings it back.
func (db *DB) UpdateWatermark(ctx context.Context, feedURL string, watermark time.Time) error {
	query, args, err := db.sb.Update("subscriptions").
		Set("last_ep", watermark.UTC()).
		Where(sq.Eq{"feed": feedURL}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update watermark: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subscription %s: %w", feedURL, ErrNotFound)
	}
	return nil
}

// DeleteSubscription removes a subscription. Deleting an unknown feed is not an error.
func (db *DB) DeleteSubscription(ctx context.Context, feedURL string) error {
	query, args, err := db.sb.Delete("subscriptions").Where(sq.Eq{"feed": feedURL}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// --- Mail Methods ---

// AddMailAddress registers an address for update mails.
func (db *DB) AddMailAddress(ctx context.Context, address string) error {
	query, args, err := db.sb.Insert("email").
		Columns("address").
		Values(address).
		Suffix("ON CONFLICT(address) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("add mail address: %w", err)
	}
	return nil
}

// DeleteMailAddress removes an address.
func (db *DB) DeleteMailAddress(ctx context.Context, address string) error {
	query, args, err := db.sb.Delete("email").Where(sq.Eq{"address": address}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete mail address: %w", err)
	}
	return nil
}

// MailAddresses returns all registered addresses.
func (db *DB) MailAddresses(ctx context.Context) ([]string, error) {
	query, args, err := db.sb.Select("address").From("email").OrderBy("address").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	addrs := []string{}
	if err := db.conn.SelectContext(ctx, &addrs, query, args...); err != nil {
		return nil, fmt.Errorf("list mail addresses: %w", err)
	}
	return addrs, nil
}
