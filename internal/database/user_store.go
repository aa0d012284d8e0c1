package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/feverd/feverd/internal/models"
)

// UserStore handles user database operations
type UserStore struct {
	db *DB
}

// NewUserStore creates a new user store
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// CreateUserParams holds the fields required to insert a user. Password
// hashing and API key derivation happen in the auth service; the store
// persists what it is given.
type CreateUserParams struct {
	Email           string
	PasswordHash    string
	APIKey          string
	ActivationKey   string
	InstalledOnTime int64
}

// Create inserts a new user. Email is normalized to lowercase and must be
// unique.
func (s *UserStore) Create(ctx context.Context, params CreateUserParams) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))

	query := `
		INSERT INTO fever_users (email, password_hash, api_key, activation_key, installed_on_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, email, password_hash, api_key, activation_key,
		          installed_on_time, last_viewed_on_time, last_session_on_time, version
	`

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query,
		email, params.PasswordHash, params.APIKey, params.ActivationKey, params.InstalledOnTime,
	).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.APIKey, &user.ActivationKey,
		&user.InstalledOnTime, &user.LastViewedOnTime, &user.LastSessionOnTime, &user.Version,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, fmt.Errorf("user with email %s already exists", email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user.APIKey = strings.TrimSpace(user.APIKey)
	return user, nil
}

// GetByAPIKey looks up the user whose stored API key exactly matches the
// presented key, compared case-insensitively. Returns nil without error
// when no user matches.
func (s *UserStore) GetByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	apiKey = strings.ToLower(strings.TrimSpace(apiKey))
	if apiKey == "" {
		return nil, nil
	}

	query := `
		SELECT id, email, password_hash, api_key, activation_key,
		       installed_on_time, last_viewed_on_time, last_session_on_time, version
		FROM fever_users
		WHERE api_key = $1
	`

	return s.scanUser(s.db.QueryRowContext(ctx, query, apiKey))
}

// GetByEmail retrieves a user by email (case-insensitive)
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	query := `
		SELECT id, email, password_hash, api_key, activation_key,
		       installed_on_time, last_viewed_on_time, last_session_on_time, version
		FROM fever_users
		WHERE LOWER(email) = $1
	`

	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// GetByID retrieves a user by id
func (s *UserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, api_key, activation_key,
		       installed_on_time, last_viewed_on_time, last_session_on_time, version
		FROM fever_users
		WHERE id = $1
	`

	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// TouchLastSession stamps the user's last_session_on_time
func (s *UserStore) TouchLastSession(ctx context.Context, id int64, ts int64) error {
	query := `UPDATE fever_users SET last_session_on_time = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id, ts)
	return err
}

// SetPassword updates the password hash and the derived API key together.
// The two must always change in lockstep; the API key is the credential
// Fever clients present.
func (s *UserStore) SetPassword(ctx context.Context, id int64, passwordHash, apiKey string) error {
	query := `UPDATE fever_users SET password_hash = $2, api_key = $3 WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id, passwordHash, apiKey)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

func (s *UserStore) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.APIKey, &user.ActivationKey,
		&user.InstalledOnTime, &user.LastViewedOnTime, &user.LastSessionOnTime, &user.Version,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// api_key is CHAR(32); trim the padding Postgres adds.
	user.APIKey = strings.TrimSpace(user.APIKey)
	return user, nil
}
