package database

import (
	"context"
	"fmt"

	"github.com/feverd/feverd/internal/models"
)

// LinkStore persists hyperlinks extracted from item bodies
type LinkStore struct {
	db *DB
}

// NewLinkStore creates a new link store
func NewLinkStore(db *DB) *LinkStore {
	return &LinkStore{db: db}
}

// InsertAll inserts a batch of extracted links in one transaction
func (s *LinkStore) InsertAll(ctx context.Context, links []models.Link) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fever_links (
			feed_id, item_id,
			is_blacklisted, is_item, is_local, is_first,
			title, url, url_checksum, title_url_checksum,
			weight, created_on_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`)
	if err != nil {
		return fmt.Errorf("prepare link insert: %w", err)
	}
	defer stmt.Close()

	for _, link := range links {
		if _, err := stmt.ExecContext(ctx,
			link.FeedID, link.ItemID,
			link.IsBlacklisted, link.IsItem, link.IsLocal, link.IsFirst,
			link.Title, link.URL, link.URLChecksum, link.TitleURLChecksum,
			link.Weight, link.CreatedOnTime,
		); err != nil {
			return fmt.Errorf("insert link %s: %w", link.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// TopByUser returns the user's highest-weighted links, descending
func (s *LinkStore) TopByUser(ctx context.Context, userID int64, limit int) ([]models.Link, error) {
	query := `
		SELECT l.id, l.feed_id, l.item_id,
		       l.is_blacklisted, l.is_item, l.is_local, l.is_first,
		       l.title, l.url, l.url_checksum, l.title_url_checksum,
		       l.weight, l.created_on_time
		FROM fever_links l
		JOIN fever_feeds f ON f.id = l.feed_id
		WHERE f.user_id = $1
		ORDER BY l.weight DESC, l.id
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	links := make([]models.Link, 0)
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(
			&l.ID, &l.FeedID, &l.ItemID,
			&l.IsBlacklisted, &l.IsItem, &l.IsLocal, &l.IsFirst,
			&l.Title, &l.URL, &l.URLChecksum, &l.TitleURLChecksum,
			&l.Weight, &l.CreatedOnTime,
		); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}

	return links, nil
}
