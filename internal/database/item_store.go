package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/feverd/feverd/internal/models"
)

// PageLimit caps the number of items returned by any single items page.
const PageLimit = 50

// ItemPage selects one page of items. Exactly one pagination mode applies,
// chosen by priority: MaxID > WithIDs > SinceID > default (newest PageLimit).
// FeedIDs/GroupFeedIDs narrow the candidate set before pagination.
type ItemPage struct {
	MaxID   int64 // items with id < MaxID, newest first; -1 means unset
	WithIDs []int64
	SinceID int64 // items with id > SinceID, oldest first; -1 means unset
	FeedIDs []int64
}

// DefaultItemPage returns an ItemPage with every mode unset
func DefaultItemPage() ItemPage {
	return ItemPage{MaxID: -1, SinceID: -1}
}

// ItemStore handles item database operations
type ItemStore struct {
	db *DB
}

// NewItemStore creates a new item store
func NewItemStore(db *DB) *ItemStore {
	return &ItemStore{db: db}
}

const itemColumns = `id, feed_id, uid, title, author, description, link, url_checksum,
       read_on_time, is_saved, created_on_time, added_on_time`

// InsertIfAbsent inserts an item unless one with the same (feed_id, uid)
// already exists. Returns true when a row was actually inserted. This is
// the atomic primitive that keeps concurrent refreshes of one feed from
// duplicating items.
func (s *ItemStore) InsertIfAbsent(ctx context.Context, item *models.Item) (bool, error) {
	query := `
		INSERT INTO fever_items (feed_id, uid, title, author, description, link,
		                         url_checksum, created_on_time, added_on_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (feed_id, uid) DO NOTHING
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		item.FeedID, item.UID, item.Title, item.Author, item.Description, item.Link,
		item.URLChecksum, item.CreatedOnTime, item.AddedOnTime,
	).Scan(&item.ID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert item: %w", err)
	}
	return true, nil
}

// Exists reports whether an item with the given dedup identity exists
func (s *ItemStore) Exists(ctx context.Context, feedID int64, uid string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM fever_items WHERE feed_id = $1 AND uid = $2)`,
		feedID, uid,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("item exists: %w", err)
	}
	return exists, nil
}

// TotalForUser counts every item across all of the user's feeds,
// regardless of any page filter.
func (s *ItemStore) TotalForUser(ctx context.Context, userID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM fever_items i
		JOIN fever_feeds f ON f.id = i.feed_id
		WHERE f.user_id = $1
	`

	var total int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return total, nil
}

// Page returns one page of the user's items per the ItemPage selection
func (s *ItemStore) Page(ctx context.Context, userID int64, page ItemPage) ([]models.Item, error) {
	whereParts := []string{"f.user_id = $1"}
	args := []interface{}{userID}
	argPos := 2

	if len(page.FeedIDs) > 0 {
		whereParts = append(whereParts, fmt.Sprintf("i.feed_id = ANY($%d)", argPos))
		args = append(args, pq.Array(page.FeedIDs))
		argPos++
	}

	orderSQL := "ORDER BY i.id DESC"
	limitSQL := fmt.Sprintf("LIMIT %d", PageLimit)

	switch {
	case page.MaxID >= 0:
		if page.MaxID > 0 {
			whereParts = append(whereParts, fmt.Sprintf("i.id < $%d", argPos))
			args = append(args, page.MaxID)
			argPos++
		}
	case len(page.WithIDs) > 0:
		whereParts = append(whereParts, fmt.Sprintf("i.id = ANY($%d)", argPos))
		args = append(args, pq.Array(page.WithIDs))
		argPos++
		orderSQL = "ORDER BY i.id"
		limitSQL = ""
	case page.SinceID >= 0:
		whereParts = append(whereParts, fmt.Sprintf("i.id > $%d", argPos))
		args = append(args, page.SinceID)
		argPos++
		orderSQL = "ORDER BY i.id"
	}

	query := `
		SELECT ` + itemPrefixedColumns() + `
		FROM fever_items i
		JOIN fever_feeds f ON f.id = i.feed_id
		WHERE ` + strings.Join(whereParts, " AND ") + "\n\t\t" + orderSQL
	if limitSQL != "" {
		query += "\n\t\t" + limitSQL
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := make([]models.Item, 0)
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(
			&item.ID, &item.FeedID, &item.UID, &item.Title, &item.Author, &item.Description,
			&item.Link, &item.URLChecksum, &item.ReadOnTime, &item.IsSaved,
			&item.CreatedOnTime, &item.AddedOnTime,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	return items, nil
}

// UnreadIDs returns every unread item id for the user, unpaged
func (s *ItemStore) UnreadIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.idList(ctx, userID, "i.read_on_time = 0")
}

// SavedIDs returns every saved item id for the user, unpaged
func (s *ItemStore) SavedIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.idList(ctx, userID, "i.is_saved = TRUE")
}

func (s *ItemStore) idList(ctx context.Context, userID int64, cond string) ([]int64, error) {
	query := `
		SELECT i.id
		FROM fever_items i
		JOIN fever_feeds f ON f.id = i.feed_id
		WHERE f.user_id = $1 AND ` + cond + `
		ORDER BY i.id
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query item ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item ids: %w", err)
	}

	return ids, nil
}

// SetReadByIDs sets read_on_time for an explicit id list. readOn of 0
// marks the items unread again. Items whose feed belongs to another user
// match zero rows.
func (s *ItemStore) SetReadByIDs(ctx context.Context, userID int64, ids []int64, readOn int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE fever_items SET read_on_time = $3
		WHERE id = ANY($2)
		  AND feed_id IN (SELECT id FROM fever_feeds WHERE user_id = $1)
	`
	_, err := s.db.ExecContext(ctx, query, userID, pq.Array(ids), readOn)
	return err
}

// SetSavedByIDs sets is_saved for an explicit id list, scoped to the user
func (s *ItemStore) SetSavedByIDs(ctx context.Context, userID int64, ids []int64, saved bool) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE fever_items SET is_saved = $3
		WHERE id = ANY($2)
		  AND feed_id IN (SELECT id FROM fever_feeds WHERE user_id = $1)
	`
	_, err := s.db.ExecContext(ctx, query, userID, pq.Array(ids), saved)
	return err
}

// SetReadByFeeds sets read_on_time for every item in the given feeds,
// optionally limited to items created at or before the cutoff (before > 0).
// Feeds owned by another user match zero rows.
func (s *ItemStore) SetReadByFeeds(ctx context.Context, userID int64, feedIDs []int64, before int64, readOn int64) error {
	if len(feedIDs) == 0 {
		return nil
	}

	query := `
		UPDATE fever_items SET read_on_time = $3
		WHERE feed_id = ANY($2)
		  AND feed_id IN (SELECT id FROM fever_feeds WHERE user_id = $1)
	`
	args := []interface{}{userID, pq.Array(feedIDs), readOn}
	if before > 0 {
		query += " AND created_on_time <= $4"
		args = append(args, before)
	}

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func itemPrefixedColumns() string {
	cols := strings.Split(itemColumns, ",")
	for i, c := range cols {
		cols[i] = "i." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
