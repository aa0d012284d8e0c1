package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/feverd/feverd/internal/models"
)

// FaviconStore handles favicon database operations
type FaviconStore struct {
	db *DB
}

// NewFaviconStore creates a new favicon store
func NewFaviconStore(db *DB) *FaviconStore {
	return &FaviconStore{db: db}
}

// Create inserts a favicon keyed by its URL fingerprint. Inserting the
// same URL again refreshes the cached data instead of failing.
func (s *FaviconStore) Create(ctx context.Context, favicon *models.Favicon) (*models.Favicon, error) {
	query := `
		INSERT INTO fever_favicons (cache, url, url_checksum, last_cached_on_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url_checksum) DO UPDATE SET
			cache = EXCLUDED.cache,
			last_cached_on_time = EXCLUDED.last_cached_on_time
		RETURNING id, cache, url, url_checksum, last_cached_on_time
	`

	f := &models.Favicon{}
	err := s.db.QueryRowContext(ctx, query,
		favicon.Cache, favicon.URL, favicon.URLChecksum, favicon.LastCachedOnTime,
	).Scan(&f.ID, &f.Cache, &f.URL, &f.URLChecksum, &f.LastCachedOnTime)
	if err != nil {
		return nil, fmt.Errorf("create favicon: %w", err)
	}
	return f, nil
}

// GetByChecksum retrieves a favicon by its URL fingerprint
func (s *FaviconStore) GetByChecksum(ctx context.Context, checksum int64) (*models.Favicon, error) {
	query := `
		SELECT id, cache, url, url_checksum, last_cached_on_time
		FROM fever_favicons
		WHERE url_checksum = $1
	`

	f := &models.Favicon{}
	err := s.db.QueryRowContext(ctx, query, checksum).Scan(
		&f.ID, &f.Cache, &f.URL, &f.URLChecksum, &f.LastCachedOnTime,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// All returns the full favicon inventory. The Fever protocol always ships
// every favicon when the key is requested; there is no filtering.
func (s *FaviconStore) All(ctx context.Context) ([]models.Favicon, error) {
	query := `SELECT id, cache, url, url_checksum, last_cached_on_time FROM fever_favicons ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list favicons: %w", err)
	}
	defer rows.Close()

	favicons := make([]models.Favicon, 0)
	for rows.Next() {
		var f models.Favicon
		if err := rows.Scan(&f.ID, &f.Cache, &f.URL, &f.URLChecksum, &f.LastCachedOnTime); err != nil {
			return nil, fmt.Errorf("scan favicon: %w", err)
		}
		favicons = append(favicons, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favicons: %w", err)
	}

	return favicons, nil
}
