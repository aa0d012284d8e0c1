package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Config holds database configuration
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "feverd",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DB wraps the sql.DB connection
type DB struct {
	*sql.DB
	config Config
}

// New creates a new database connection
func New(config Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, config: config}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Migrate runs database migrations
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationUsers,
		migrationFavicons,
		migrationGroups,
		migrationFeeds,
		migrationFeedsGroups,
		migrationItems,
		migrationLinks,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

// Migration SQL statements. The column set mirrors the classic Fever
// schema; timestamps are epoch seconds stored as BIGINT.
const migrationUsers = `
CREATE TABLE IF NOT EXISTS fever_users (
    id BIGSERIAL PRIMARY KEY,
    email VARCHAR(255) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL DEFAULT '',
    api_key CHAR(32) NOT NULL DEFAULT '',
    activation_key VARCHAR(255) NOT NULL DEFAULT '',
    installed_on_time BIGINT NOT NULL DEFAULT 0,
    last_viewed_on_time BIGINT NOT NULL DEFAULT 0,
    last_session_on_time BIGINT NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 143
);

CREATE INDEX IF NOT EXISTS idx_fever_users_api_key ON fever_users(api_key);
`

const migrationFavicons = `
CREATE TABLE IF NOT EXISTS fever_favicons (
    id BIGSERIAL PRIMARY KEY,
    cache TEXT NOT NULL DEFAULT '',
    url VARCHAR(255) NOT NULL DEFAULT '',
    url_checksum BIGINT NOT NULL UNIQUE,
    last_cached_on_time BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_fever_favicons_cached ON fever_favicons(last_cached_on_time);
`

const migrationGroups = `
CREATE TABLE IF NOT EXISTS fever_groups (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES fever_users(id) ON DELETE CASCADE,
    title VARCHAR(255) NOT NULL DEFAULT '',
    item_excerpts SMALLINT NOT NULL DEFAULT -1,
    item_allows SMALLINT NOT NULL DEFAULT -1,
    unread_counts SMALLINT NOT NULL DEFAULT -1,
    sort_order SMALLINT NOT NULL DEFAULT -1
);

CREATE INDEX IF NOT EXISTS idx_fever_groups_user ON fever_groups(user_id);
CREATE INDEX IF NOT EXISTS idx_fever_groups_title ON fever_groups(title);
`

const migrationFeeds = `
CREATE TABLE IF NOT EXISTS fever_feeds (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES fever_users(id) ON DELETE CASCADE,
    favicon_id BIGINT REFERENCES fever_favicons(id) ON DELETE SET NULL,
    title VARCHAR(255) NOT NULL DEFAULT '',
    user_title VARCHAR(255) NOT NULL DEFAULT '',
    url VARCHAR(255) NOT NULL,
    url_checksum BIGINT NOT NULL UNIQUE,
    site_url VARCHAR(255) NOT NULL DEFAULT '',
    domain VARCHAR(255) NOT NULL DEFAULT '',
    is_spark BOOLEAN NOT NULL DEFAULT FALSE,
    item_excerpts SMALLINT NOT NULL DEFAULT -1,
    item_allows SMALLINT NOT NULL DEFAULT -1,
    unread_counts SMALLINT NOT NULL DEFAULT -1,
    sort_order SMALLINT NOT NULL DEFAULT -1,
    last_refreshed_on_time BIGINT NOT NULL DEFAULT 0,
    last_updated_on_time BIGINT NOT NULL DEFAULT 0,
    last_added_on_time BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_fever_feeds_user ON fever_feeds(user_id);
CREATE INDEX IF NOT EXISTS idx_fever_feeds_domain ON fever_feeds(domain);
CREATE INDEX IF NOT EXISTS idx_fever_feeds_is_spark ON fever_feeds(is_spark);
CREATE INDEX IF NOT EXISTS idx_fever_feeds_refreshed ON fever_feeds(last_refreshed_on_time);
`

const migrationFeedsGroups = `
CREATE TABLE IF NOT EXISTS fever_feeds_groups (
    id BIGSERIAL PRIMARY KEY,
    feed_id BIGINT NOT NULL REFERENCES fever_feeds(id) ON DELETE CASCADE,
    group_id BIGINT NOT NULL REFERENCES fever_groups(id) ON DELETE CASCADE,
    UNIQUE(feed_id, group_id)
);

CREATE INDEX IF NOT EXISTS idx_fever_feeds_groups_group ON fever_feeds_groups(group_id);
`

// The unique (feed_id, uid) index is what makes concurrent refreshes of the
// same feed safe: inserts race through ON CONFLICT DO NOTHING instead of
// creating duplicates.
const migrationItems = `
CREATE TABLE IF NOT EXISTS fever_items (
    id BIGSERIAL PRIMARY KEY,
    feed_id BIGINT NOT NULL REFERENCES fever_feeds(id) ON DELETE CASCADE,
    uid VARCHAR(255) NOT NULL DEFAULT '',
    title VARCHAR(255) NOT NULL DEFAULT '',
    author VARCHAR(255) NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    link VARCHAR(255) NOT NULL DEFAULT '',
    url_checksum BIGINT NOT NULL DEFAULT 0,
    read_on_time BIGINT NOT NULL DEFAULT 0,
    is_saved BOOLEAN NOT NULL DEFAULT FALSE,
    created_on_time BIGINT NOT NULL DEFAULT 0,
    added_on_time BIGINT NOT NULL DEFAULT 0,
    UNIQUE(feed_id, uid)
);

CREATE INDEX IF NOT EXISTS idx_fever_items_feed ON fever_items(feed_id);
CREATE INDEX IF NOT EXISTS idx_fever_items_read ON fever_items(read_on_time);
CREATE INDEX IF NOT EXISTS idx_fever_items_saved ON fever_items(is_saved);
CREATE INDEX IF NOT EXISTS idx_fever_items_created ON fever_items(created_on_time);
`

const migrationLinks = `
CREATE TABLE IF NOT EXISTS fever_links (
    id BIGSERIAL PRIMARY KEY,
    feed_id BIGINT NOT NULL REFERENCES fever_feeds(id) ON DELETE CASCADE,
    item_id BIGINT NOT NULL REFERENCES fever_items(id) ON DELETE CASCADE,
    is_blacklisted BOOLEAN NOT NULL DEFAULT FALSE,
    is_item BOOLEAN NOT NULL DEFAULT FALSE,
    is_local BOOLEAN NOT NULL DEFAULT FALSE,
    is_first BOOLEAN NOT NULL DEFAULT FALSE,
    title VARCHAR(255) NOT NULL DEFAULT '',
    url VARCHAR(255) NOT NULL DEFAULT '',
    url_checksum BIGINT NOT NULL DEFAULT 0,
    title_url_checksum BIGINT NOT NULL DEFAULT 0,
    weight INTEGER NOT NULL DEFAULT 0,
    created_on_time BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_fever_links_feed ON fever_links(feed_id);
CREATE INDEX IF NOT EXISTS idx_fever_links_item ON fever_links(item_id);
CREATE INDEX IF NOT EXISTS idx_fever_links_weight ON fever_links(weight);
`
