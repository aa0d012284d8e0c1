package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/feverd/feverd/internal/auth"
	"github.com/feverd/feverd/internal/cache"
	"github.com/feverd/feverd/internal/checksum"
	"github.com/feverd/feverd/internal/database"
	"github.com/feverd/feverd/internal/fever"
	"github.com/feverd/feverd/internal/ingest"
	"github.com/feverd/feverd/internal/logging"
	"github.com/feverd/feverd/internal/models"
)

// AdminAPI is the JWT-protected management surface: accounts, feeds,
// groups, favicons, and out-of-band refreshes. Reader clients never
// touch these routes; they speak the Fever endpoint only.
type AdminAPI struct {
	authSvc        *auth.Service
	authMiddleware *auth.Middleware
	feedStore      *database.FeedStore
	groupStore     *database.GroupStore
	faviconStore   *database.FaviconStore
	ingestor       *ingest.Service
	cache          cache.Cache
	logger         *logging.Logger
}

// NewAdminAPI creates the admin API handler
func NewAdminAPI(
	authSvc *auth.Service,
	authMiddleware *auth.Middleware,
	feedStore *database.FeedStore,
	groupStore *database.GroupStore,
	faviconStore *database.FaviconStore,
	ingestor *ingest.Service,
	c cache.Cache,
	logger *logging.Logger,
) *AdminAPI {
	return &AdminAPI{
		authSvc:        authSvc,
		authMiddleware: authMiddleware,
		feedStore:      feedStore,
		groupStore:     groupStore,
		faviconStore:   faviconStore,
		ingestor:       ingestor,
		cache:          c,
		logger:         logger,
	}
}

// RegisterRoutes registers admin routes on the given mux
func (api *AdminAPI) RegisterRoutes(mux *http.ServeMux, corsMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("/api/admin/users", corsMiddleware(api.handleCreateUser))
	mux.HandleFunc("/api/admin/login", corsMiddleware(api.handleLogin))

	requireAuth := api.authMiddleware.RequireAuth
	mux.HandleFunc("/api/admin/groups", corsMiddleware(requireAuth(api.handleGroups)))
	mux.HandleFunc("/api/admin/feeds", corsMiddleware(requireAuth(api.handleFeeds)))
	mux.HandleFunc("/api/admin/feeds/title", corsMiddleware(requireAuth(api.handleSetFeedTitle)))
	mux.HandleFunc("/api/admin/feeds_groups", corsMiddleware(requireAuth(api.handleAddFeedToGroup)))
	mux.HandleFunc("/api/admin/favicons", corsMiddleware(requireAuth(api.handleUpsertFavicon)))
	mux.HandleFunc("/api/admin/refresh", corsMiddleware(requireAuth(api.handleRefresh)))
}

// handleCreateUser registers an account and returns the derived Fever
// API key once; clients are expected to store it.
func (api *AdminAPI) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	user, err := api.authSvc.CreateUser(r.Context(), params.Email, params.Password)
	if err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			status := http.StatusBadRequest
			if authErr.Code == "user_exists" {
				status = http.StatusConflict
			}
			api.writeError(w, status, authErr.Code, authErr.Message)
			return
		}
		api.logger.Error("Failed to create user", logging.WithField("error", err.Error()))
		api.writeError(w, http.StatusInternalServerError, "internal_error", "failed to create user")
		return
	}

	api.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"user":    user,
		"api_key": user.APIKey,
	})
}

func (api *AdminAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	token, user, err := api.authSvc.Login(r.Context(), params.Email, params.Password)
	if err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			api.writeError(w, http.StatusUnauthorized, authErr.Code, authErr.Message)
			return
		}
		api.logger.Error("Login failed", logging.WithField("error", err.Error()))
		api.writeError(w, http.StatusInternalServerError, "internal_error", "login failed")
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

func (api *AdminAPI) handleGroups(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	switch r.Method {
	case http.MethodGet:
		groups, err := api.groupStore.ListByUser(r.Context(), userID)
		if err != nil {
			api.logger.Error("Failed to list groups", logging.WithField("error", err.Error()))
			api.writeError(w, http.StatusInternalServerError, "internal_error", "failed to list groups")
			return
		}
		api.writeJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})

	case http.MethodPost:
		var params struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil || strings.TrimSpace(params.Title) == "" {
			api.writeError(w, http.StatusBadRequest, "invalid_request", "title is required")
			return
		}

		group, err := api.groupStore.Create(r.Context(), userID, strings.TrimSpace(params.Title))
		if err != nil {
			api.logger.Error("Failed to create group", logging.WithField("error", err.Error()))
			api.writeError(w, http.StatusInternalServerError, "internal_error", "failed to create group")
			return
		}
		api.writeJSON(w, http.StatusCreated, group)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (api *AdminAPI) handleFeeds(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	switch r.Method {
	case http.MethodGet:
		feeds, err := api.feedStore.ListByUser(r.Context(), userID)
		if err != nil {
			api.logger.Error("Failed to list feeds", logging.WithField("error", err.Error()))
			api.writeError(w, http.StatusInternalServerError, "internal_error", "failed to list feeds")
			return
		}
		api.writeJSON(w, http.StatusOK, map[string]interface{}{"feeds": feeds})

	case http.MethodPost:
		var params struct {
			URL     string `json:"url"`
			Title   string `json:"title"`
			SiteURL string `json:"site_url"`
			IsSpark bool   `json:"is_spark"`
		}
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			api.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
			return
		}

		feedURL := strings.TrimSpace(params.URL)
		if feedURL == "" {
			api.writeError(w, http.StatusBadRequest, "invalid_request", "url is required")
			return
		}

		feed, err := api.feedStore.Create(r.Context(), &models.Feed{
			UserID:      userID,
			Title:       strings.TrimSpace(params.Title),
			URL:         feedURL,
			URLChecksum: checksum.Fingerprint(feedURL),
			SiteURL:     strings.TrimSpace(params.SiteURL),
			Domain:      domainOf(params.SiteURL, feedURL),
			IsSpark:     params.IsSpark,
		})
		if err != nil {
			if errors.Is(err, database.ErrDuplicateFeed) {
				api.writeError(w, http.StatusConflict, "duplicate_feed", "a feed with this URL already exists")
				return
			}
			api.logger.Error("Failed to create feed", logging.WithField("error", err.Error()))
			api.writeError(w, http.StatusInternalServerError, "internal_error", "failed to create feed")
			return
		}
		api.writeJSON(w, http.StatusCreated, feed)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSetFeedTitle sets or clears (empty title) the per-user override
func (api *AdminAPI) handleSetFeedTitle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params struct {
		FeedID int64  `json:"feed_id"`
		Title  string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil || params.FeedID <= 0 {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "feed_id is required")
		return
	}

	userID := auth.GetUserID(r.Context())
	if err := api.feedStore.SetUserTitle(r.Context(), params.FeedID, userID, strings.TrimSpace(params.Title)); err != nil {
		api.logger.Error("Failed to set feed title", logging.WithField("error", err.Error()))
		api.writeError(w, http.StatusInternalServerError, "internal_error", "failed to set feed title")
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (api *AdminAPI) handleAddFeedToGroup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params struct {
		FeedID  int64 `json:"feed_id"`
		GroupID int64 `json:"group_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil || params.FeedID <= 0 || params.GroupID <= 0 {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "feed_id and group_id are required")
		return
	}

	userID := auth.GetUserID(r.Context())
	feed, err := api.feedStore.GetByID(r.Context(), params.FeedID)
	if err != nil {
		api.writeError(w, http.StatusInternalServerError, "internal_error", "failed to load feed")
		return
	}
	if feed == nil || feed.UserID != userID {
		api.writeError(w, http.StatusNotFound, "not_found", "feed not found")
		return
	}

	if err := api.groupStore.AddFeed(r.Context(), params.FeedID, params.GroupID); err != nil {
		api.logger.Error("Failed to add feed to group", logging.WithField("error", err.Error()))
		api.writeError(w, http.StatusInternalServerError, "internal_error", "failed to add feed to group")
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpsertFavicon stores a favicon blob and invalidates the cached
// favicons projection so the next Fever call sees it.
func (api *AdminAPI) handleUpsertFavicon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params struct {
		URL    string `json:"url"`
		Data   string `json:"data"`
		FeedID int64  `json:"feed_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil || strings.TrimSpace(params.URL) == "" {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}

	favicon, err := api.faviconStore.Create(r.Context(), &models.Favicon{
		Cache:            params.Data,
		URL:              params.URL,
		URLChecksum:      checksum.Fingerprint(params.URL),
		LastCachedOnTime: time.Now().Unix(),
	})
	if err != nil {
		api.logger.Error("Failed to store favicon", logging.WithField("error", err.Error()))
		api.writeError(w, http.StatusInternalServerError, "internal_error", "failed to store favicon")
		return
	}

	if params.FeedID > 0 {
		userID := auth.GetUserID(r.Context())
		feed, err := api.feedStore.GetByID(r.Context(), params.FeedID)
		if err == nil && feed != nil && feed.UserID == userID {
			if err := api.feedStore.SetFavicon(r.Context(), params.FeedID, favicon.ID); err != nil {
				api.logger.Warn("Failed to link favicon to feed", logging.WithField("error", err.Error()))
			}
		}
	}

	if api.cache != nil {
		api.cache.Delete(fever.FaviconCacheKey)
	}

	api.writeJSON(w, http.StatusCreated, favicon)
}

// handleRefresh runs an out-of-band refresh: one feed when feed_id is
// given, otherwise all of the caller's feeds.
func (api *AdminAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params struct {
		FeedID int64 `json:"feed_id"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&params)
	}

	userID := auth.GetUserID(r.Context())

	if params.FeedID > 0 {
		feed, err := api.feedStore.GetByID(r.Context(), params.FeedID)
		if err != nil {
			api.writeError(w, http.StatusInternalServerError, "internal_error", "failed to load feed")
			return
		}
		if feed == nil || feed.UserID != userID {
			api.writeError(w, http.StatusNotFound, "not_found", "feed not found")
			return
		}

		count, err := api.ingestor.Refresh(r.Context(), params.FeedID)
		if err != nil {
			api.logger.Error("Refresh failed", logging.WithField("error", err.Error()))
			api.writeError(w, http.StatusBadGateway, "refresh_failed", err.Error())
			return
		}
		api.writeJSON(w, http.StatusOK, map[string]interface{}{"new_items": count})
		return
	}

	count, err := api.ingestor.RefreshUser(r.Context(), userID)
	if err != nil {
		api.logger.Error("Refresh failed", logging.WithField("error", err.Error()))
		api.writeError(w, http.StatusInternalServerError, "internal_error", "refresh failed")
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]interface{}{"new_items": count})
}

// domainOf prefers the site URL's host, falling back to the feed URL's
func domainOf(siteURL, feedURL string) string {
	for _, raw := range []string{siteURL, feedURL} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return ""
}

func (api *AdminAPI) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (api *AdminAPI) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
