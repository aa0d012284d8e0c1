// Package auth handles account management and admin API authentication.
// Fever protocol auth itself is just an API key lookup; this package owns
// deriving that key and issuing JWTs for the admin surface.
package auth

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/feverd/feverd/internal/config"
	"github.com/feverd/feverd/internal/database"
	"github.com/feverd/feverd/internal/logging"
	"github.com/feverd/feverd/internal/models"
)

// DeriveAPIKey computes the Fever API key for a credential pair: the
// lowercase hex md5 of "email:password". The email is lowercased first so
// the key survives case changes in how the client stores the address.
func DeriveAPIKey(email, password string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	sum := md5.Sum([]byte(email + ":" + password))
	return hex.EncodeToString(sum[:])
}

// Service handles account creation, admin login, and token validation
type Service struct {
	config    config.AuthConfig
	userStore *database.UserStore
	logger    *logging.Logger
}

// NewService creates a new auth service
func NewService(userStore *database.UserStore, cfg config.AuthConfig, logger *logging.Logger) *Service {
	return &Service{
		config:    cfg,
		userStore: userStore,
		logger:    logger,
	}
}

// CreateUser registers a new account. The password is bcrypt-hashed for
// admin login and md5-combined with the email for the Fever API key; the
// two credentials always derive from the same password.
func (s *Service) CreateUser(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if email == "" {
		return nil, &AuthError{Code: "invalid_input", Message: "email is required"}
	}
	if password == "" {
		return nil, &AuthError{Code: "invalid_input", Message: "password is required"}
	}
	if len(password) < 8 {
		return nil, &AuthError{Code: "invalid_input", Message: "password must be at least 8 characters"}
	}

	existing, err := s.userStore.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, &AuthError{Code: "user_exists", Message: "a user with this email already exists"}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.userStore.Create(ctx, database.CreateUserParams{
		Email:           email,
		PasswordHash:    string(passwordHash),
		APIKey:          DeriveAPIKey(email, password),
		ActivationKey:   uuid.NewString(),
		InstalledOnTime: time.Now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User created", logging.WithFields(map[string]interface{}{
		"userId": user.ID,
		"email":  user.Email,
	}))

	return user, nil
}

// Login authenticates an admin credential pair and returns a signed
// access token along with the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if email == "" || password == "" {
		return "", nil, &AuthError{Code: "invalid_input", Message: "email and password are required"}
	}

	user, err := s.userStore.GetByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return "", nil, &AuthError{Code: "invalid_credentials", Message: "invalid email or password"}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, &AuthError{Code: "invalid_credentials", Message: "invalid email or password"}
	}

	token, err := s.generateAccessToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("User logged in", logging.WithField("userId", user.ID))

	return token, user, nil
}

// SetPassword changes a user's password, recomputing the Fever API key in
// lockstep so the two credentials never drift apart.
func (s *Service) SetPassword(ctx context.Context, userID int64, newPassword string) error {
	if len(newPassword) < 8 {
		return &AuthError{Code: "invalid_input", Message: "password must be at least 8 characters"}
	}

	user, err := s.userStore.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return &AuthError{Code: "user_not_found", Message: "user not found"}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.userStore.SetPassword(ctx, userID, string(passwordHash), DeriveAPIKey(user.Email, newPassword))
}

// ValidateAccessToken validates a JWT access token and returns the user ID
func (s *Service) ValidateAccessToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil {
		return 0, &AuthError{Code: "invalid_token", Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, &AuthError{Code: "invalid_token", Message: "invalid token claims"}
	}

	if iss, _ := claims["iss"].(string); iss != s.config.JWTIssuer {
		return 0, &AuthError{Code: "invalid_token", Message: "invalid token issuer"}
	}
	if aud, _ := claims["aud"].(string); aud != s.config.JWTAudience {
		return 0, &AuthError{Code: "invalid_token", Message: "invalid token audience"}
	}

	sub, _ := claims["sub"].(string)
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return 0, &AuthError{Code: "invalid_token", Message: "invalid token subject"}
	}

	return userID, nil
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.userStore.GetByID(ctx, userID)
}

func (s *Service) generateAccessToken(user *models.User) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"sub":   strconv.FormatInt(user.ID, 10),
		"email": user.Email,
		"iss":   s.config.JWTIssuer,
		"aud":   s.config.JWTAudience,
		"iat":   now.Unix(),
		"exp":   now.Add(s.config.AccessTokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *AuthError) Error() string {
	return e.Message
}
