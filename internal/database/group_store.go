package database

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/feverd/feverd/internal/models"
)

// GroupStore handles group and feed-group database operations
type GroupStore struct {
	db *DB
}

// NewGroupStore creates a new group store
func NewGroupStore(db *DB) *GroupStore {
	return &GroupStore{db: db}
}

// Create inserts a new group for a user
func (s *GroupStore) Create(ctx context.Context, userID int64, title string) (*models.Group, error) {
	query := `
		INSERT INTO fever_groups (user_id, title)
		VALUES ($1, $2)
		RETURNING id, user_id, title, item_excerpts, item_allows, unread_counts, sort_order
	`

	g := &models.Group{}
	err := s.db.QueryRowContext(ctx, query, userID, title).Scan(
		&g.ID, &g.UserID, &g.Title, &g.ItemExcerpts, &g.ItemAllows, &g.UnreadCounts, &g.SortOrder,
	)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

// ListByUser retrieves all groups owned by a user
func (s *GroupStore) ListByUser(ctx context.Context, userID int64) ([]models.Group, error) {
	query := `
		SELECT id, user_id, title, item_excerpts, item_allows, unread_counts, sort_order
		FROM fever_groups
		WHERE user_id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	groups := make([]models.Group, 0)
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.UserID, &g.Title, &g.ItemExcerpts, &g.ItemAllows, &g.UnreadCounts, &g.SortOrder); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}

	return groups, nil
}

// AddFeed links a feed to a group. Adding the same pair twice is a no-op.
func (s *GroupStore) AddFeed(ctx context.Context, feedID, groupID int64) error {
	query := `
		INSERT INTO fever_feeds_groups (feed_id, group_id)
		VALUES ($1, $2)
		ON CONFLICT (feed_id, group_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, feedID, groupID)
	return err
}

// FeedGroupMap returns the group -> member feed ids mapping for a user's
// non-spark feeds. Spark feeds never appear in any group's member list.
func (s *GroupStore) FeedGroupMap(ctx context.Context, userID int64) (map[int64][]int64, error) {
	query := `
		SELECT fg.group_id, fg.feed_id
		FROM fever_feeds_groups fg
		JOIN fever_feeds f ON f.id = fg.feed_id
		WHERE f.user_id = $1 AND f.is_spark = FALSE
		ORDER BY fg.group_id, fg.feed_id
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("feed group map: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]int64)
	for rows.Next() {
		var groupID, feedID int64
		if err := rows.Scan(&groupID, &feedID); err != nil {
			return nil, fmt.Errorf("scan feed group: %w", err)
		}
		result[groupID] = append(result[groupID], feedID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed groups: %w", err)
	}

	return result, nil
}

// FeedIDsInGroups resolves a set of group ids to their member feed ids,
// scoped to the given user. Groups that belong to someone else contribute
// nothing.
func (s *GroupStore) FeedIDsInGroups(ctx context.Context, userID int64, groupIDs []int64) ([]int64, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT fg.feed_id
		FROM fever_feeds_groups fg
		JOIN fever_groups g ON g.id = fg.group_id
		WHERE g.user_id = $1 AND fg.group_id = ANY($2)
	`

	rows, err := s.db.QueryContext(ctx, query, userID, pq.Array(groupIDs))
	if err != nil {
		return nil, fmt.Errorf("feed ids in groups: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan feed id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed ids: %w", err)
	}

	return ids, nil
}
