package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/feverd/feverd/internal/models"
)

// ErrDuplicateFeed is returned when a feed's URL fingerprint collides with
// an existing feed. Collisions are rejected, never merged.
var ErrDuplicateFeed = fmt.Errorf("feed with this URL already exists")

// FeedStore handles feed database operations
type FeedStore struct {
	db *DB
}

// NewFeedStore creates a new feed store
func NewFeedStore(db *DB) *FeedStore {
	return &FeedStore{db: db}
}

const feedColumns = `id, user_id, COALESCE(favicon_id, 0), title, user_title, url, url_checksum,
       site_url, domain, is_spark, item_excerpts, item_allows, unread_counts, sort_order,
       last_refreshed_on_time, last_updated_on_time, last_added_on_time`

// Create inserts a new feed for a user
func (s *FeedStore) Create(ctx context.Context, feed *models.Feed) (*models.Feed, error) {
	query := `
		INSERT INTO fever_feeds (user_id, title, url, url_checksum, site_url, domain, is_spark)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + feedColumns

	return s.scanFeed(s.db.QueryRowContext(ctx, query,
		feed.UserID, feed.Title, feed.URL, feed.URLChecksum, feed.SiteURL, feed.Domain, feed.IsSpark,
	), true)
}

// GetByID retrieves a feed by id
func (s *FeedStore) GetByID(ctx context.Context, id int64) (*models.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM fever_feeds WHERE id = $1`
	return s.scanFeed(s.db.QueryRowContext(ctx, query, id), false)
}

// ListByUser retrieves all feeds owned by a user
func (s *FeedStore) ListByUser(ctx context.Context, userID int64) ([]models.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM fever_feeds WHERE user_id = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	feeds := make([]models.Feed, 0)
	for rows.Next() {
		var f models.Feed
		if err := scanFeedColumns(rows, &f); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feeds: %w", err)
	}

	return feeds, nil
}

// ListAll retrieves every feed across all users, for batch refreshes
func (s *FeedStore) ListAll(ctx context.Context) ([]models.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM fever_feeds ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list all feeds: %w", err)
	}
	defer rows.Close()

	feeds := make([]models.Feed, 0)
	for rows.Next() {
		var f models.Feed
		if err := scanFeedColumns(rows, &f); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feeds: %w", err)
	}

	return feeds, nil
}

// UpdateMetadata overwrites the canonical title, site URL, and domain with
// parsed values. Empty arguments never overwrite existing values, so a
// source that momentarily drops its title cannot blank the stored one.
func (s *FeedStore) UpdateMetadata(ctx context.Context, id int64, title, siteURL, domain string) error {
	query := `
		UPDATE fever_feeds SET
			title = CASE WHEN $2 <> '' THEN $2 ELSE title END,
			site_url = CASE WHEN $3 <> '' THEN $3 ELSE site_url END,
			domain = CASE WHEN $4 <> '' THEN $4 ELSE domain END
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, id, title, siteURL, domain)
	return err
}

// TouchRefreshed stamps last_refreshed_on_time. Called on every refresh
// attempt, success or not.
func (s *FeedStore) TouchRefreshed(ctx context.Context, id int64, ts int64) error {
	query := `UPDATE fever_feeds SET last_refreshed_on_time = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id, ts)
	return err
}

// TouchUpdated stamps last_updated_on_time and last_added_on_time. Called
// only when a refresh actually inserted new items.
func (s *FeedStore) TouchUpdated(ctx context.Context, id int64, ts int64) error {
	query := `UPDATE fever_feeds SET last_updated_on_time = $2, last_added_on_time = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id, ts)
	return err
}

// SetUserTitle sets or clears (empty string) the per-user title override
func (s *FeedStore) SetUserTitle(ctx context.Context, id int64, userID int64, title string) error {
	query := `UPDATE fever_feeds SET user_title = $3 WHERE id = $1 AND user_id = $2`
	_, err := s.db.ExecContext(ctx, query, id, userID, title)
	return err
}

// SetFavicon associates a favicon with a feed
func (s *FeedStore) SetFavicon(ctx context.Context, id int64, faviconID int64) error {
	query := `UPDATE fever_feeds SET favicon_id = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id, faviconID)
	return err
}

// MaxLastRefreshed returns the newest last_refreshed_on_time across the
// user's feeds. ok is false when the user has no feeds.
func (s *FeedStore) MaxLastRefreshed(ctx context.Context, userID int64) (int64, bool, error) {
	query := `SELECT MAX(last_refreshed_on_time) FROM fever_feeds WHERE user_id = $1`

	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&max); err != nil {
		return 0, false, fmt.Errorf("max last refreshed: %w", err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return max.Int64, true, nil
}

func (s *FeedStore) scanFeed(row *sql.Row, creating bool) (*models.Feed, error) {
	f := &models.Feed{}
	err := row.Scan(
		&f.ID, &f.UserID, &f.FaviconID, &f.Title, &f.UserTitle, &f.URL, &f.URLChecksum,
		&f.SiteURL, &f.Domain, &f.IsSpark, &f.ItemExcerpts, &f.ItemAllows, &f.UnreadCounts, &f.SortOrder,
		&f.LastRefreshedOnTime, &f.LastUpdatedOnTime, &f.LastAddedOnTime,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		if creating && strings.Contains(err.Error(), "duplicate key") {
			return nil, ErrDuplicateFeed
		}
		return nil, err
	}
	return f, nil
}

func scanFeedColumns(rows *sql.Rows, f *models.Feed) error {
	return rows.Scan(
		&f.ID, &f.UserID, &f.FaviconID, &f.Title, &f.UserTitle, &f.URL, &f.URLChecksum,
		&f.SiteURL, &f.Domain, &f.IsSpark, &f.ItemExcerpts, &f.ItemAllows, &f.UnreadCounts, &f.SortOrder,
		&f.LastRefreshedOnTime, &f.LastUpdatedOnTime, &f.LastAddedOnTime,
	)
}
