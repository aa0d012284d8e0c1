// Package fever implements the Fever API protocol: API-key auth, mark
// operations, and the multi-resource response envelope third-party
// reader clients sync against.
package fever

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/feverd/feverd/internal/cache"
	"github.com/feverd/feverd/internal/database"
	"github.com/feverd/feverd/internal/logging"
	"github.com/feverd/feverd/internal/models"
)

// Params is the merged request parameter set: query string plus body,
// body winning on conflict. Presence of a key triggers its projection
// even when the value is empty.
type Params map[string]string

// Has reports whether a parameter was present in the request
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Get returns a parameter's value, "" if absent
func (p Params) Get(key string) string {
	return p[key]
}

// UserStore is the user lookup surface the handler needs
type UserStore interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*models.User, error)
	TouchLastSession(ctx context.Context, id int64, ts int64) error
}

// FeedStore is the feed read surface the handler needs
type FeedStore interface {
	ListByUser(ctx context.Context, userID int64) ([]models.Feed, error)
	MaxLastRefreshed(ctx context.Context, userID int64) (int64, bool, error)
}

// GroupStore is the group read surface the handler needs
type GroupStore interface {
	ListByUser(ctx context.Context, userID int64) ([]models.Group, error)
	FeedGroupMap(ctx context.Context, userID int64) (map[int64][]int64, error)
	FeedIDsInGroups(ctx context.Context, userID int64, groupIDs []int64) ([]int64, error)
}

// ItemStore is the item read/mutation surface the handler needs
type ItemStore interface {
	TotalForUser(ctx context.Context, userID int64) (int, error)
	Page(ctx context.Context, userID int64, page database.ItemPage) ([]models.Item, error)
	UnreadIDs(ctx context.Context, userID int64) ([]int64, error)
	SavedIDs(ctx context.Context, userID int64) ([]int64, error)
	SetReadByIDs(ctx context.Context, userID int64, ids []int64, readOn int64) error
	SetSavedByIDs(ctx context.Context, userID int64, ids []int64, saved bool) error
	SetReadByFeeds(ctx context.Context, userID int64, feedIDs []int64, before int64, readOn int64) error
}

// FaviconStore is the favicon read surface the handler needs
type FaviconStore interface {
	All(ctx context.Context) ([]models.Favicon, error)
}

// LinkStore is the link read surface the handler needs
type LinkStore interface {
	TopByUser(ctx context.Context, userID int64, limit int) ([]models.Link, error)
}

// Refresher runs the ingestion pipeline over a user's feeds
type Refresher interface {
	RefreshUser(ctx context.Context, userID int64) (int, error)
}

// FaviconCacheKey is where the favicons projection is cached; the admin
// API invalidates it when favicons change.
const FaviconCacheKey = "favicons"

const linksLimit = 50

// Handler processes one Fever API call into a response envelope
type Handler struct {
	users     UserStore
	feeds     FeedStore
	groups    GroupStore
	items     ItemStore
	favicons  FaviconStore
	links     LinkStore
	refresher Refresher
	cache     cache.Cache
	logger    *logging.Logger

	now func() time.Time
}

// NewHandler creates a protocol handler. refresher and cache may be nil;
// the refresh directive becomes a no-op and favicons are always computed.
func NewHandler(
	users UserStore,
	feeds FeedStore,
	groups GroupStore,
	items ItemStore,
	favicons FaviconStore,
	links LinkStore,
	refresher Refresher,
	c cache.Cache,
	logger *logging.Logger,
) *Handler {
	return &Handler{
		users:     users,
		feeds:     feeds,
		groups:    groups,
		items:     items,
		favicons:  favicons,
		links:     links,
		refresher: refresher,
		cache:     c,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle runs one protocol call. Auth failure returns the two-key
// envelope with no side effects; every other failure is a server error.
// Side-effecting directives run before projections so the projections
// reflect them.
func (h *Handler) Handle(ctx context.Context, params Params) (*Envelope, error) {
	user, err := h.users.GetByAPIKey(ctx, params.Get("api_key"))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return NewEnvelope(false), nil
	}

	if err := h.users.TouchLastSession(ctx, user.ID, h.now().Unix()); err != nil {
		return nil, err
	}

	env := NewEnvelope(true)

	if params.Has("refresh") && h.refresher != nil {
		// per-feed failures are already isolated and logged inside the
		// refresher; the client never sees them
		if _, err := h.refresher.RefreshUser(ctx, user.ID); err != nil {
			h.logger.Error("refresh directive failed", logging.WithField("error", err.Error()))
		}
	}

	if params.Has("mark") {
		if req, ok := parseMark(params); ok {
			if err := h.applyMark(ctx, user.ID, req); err != nil {
				return nil, err
			}
		}
	}

	lastRefreshed, ok, err := h.feeds.MaxLastRefreshed(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if ok {
		env.Set("last_refreshed_on_time", lastRefreshed)
	}

	if params.Has("groups") {
		if err := h.attachGroups(ctx, user.ID, env); err != nil {
			return nil, err
		}
	}

	// feeds and groups are coupled: either key computes the feed-group
	// mapping, but the feed list only attaches when "feeds" was asked for
	if params.Has("feeds") {
		feeds, err := h.computeFeedList(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		env.Set("feeds", feeds)
	}
	if params.Has("feeds") || params.Has("groups") {
		feedsGroups, err := h.computeFeedGroupMap(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		env.Set("feeds_groups", feedsGroups)
	}

	if params.Has("favicons") {
		if err := h.attachFavicons(ctx, env); err != nil {
			return nil, err
		}
	}

	if params.Has("items") {
		if err := h.attachItems(ctx, user.ID, params, env); err != nil {
			return nil, err
		}
	}

	if params.Has("unread_item_ids") {
		ids, err := h.items.UnreadIDs(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		env.Set("unread_item_ids", joinIDs(ids))
	}

	if params.Has("saved_item_ids") {
		ids, err := h.items.SavedIDs(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		env.Set("saved_item_ids", joinIDs(ids))
	}

	if params.Has("links") {
		if err := h.attachLinks(ctx, user.ID, env); err != nil {
			return nil, err
		}
	}

	return env, nil
}

type groupView struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type feedView struct {
	ID                int64  `json:"id"`
	FaviconID         int64  `json:"favicon_id"`
	Title             string `json:"title"`
	URL               string `json:"url"`
	SiteURL           string `json:"site_url"`
	IsSpark           int    `json:"is_spark"`
	LastUpdatedOnTime int64  `json:"last_updated_on_time"`
}

type feedsGroupView struct {
	GroupID int64  `json:"group_id"`
	FeedIDs string `json:"feed_ids"`
}

type faviconView struct {
	ID   int64  `json:"id"`
	Data string `json:"data"`
}

type itemView struct {
	ID            int64  `json:"id"`
	FeedID        int64  `json:"feed_id"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	HTML          string `json:"html"`
	URL           string `json:"url"`
	IsSaved       int    `json:"is_saved"`
	IsRead        int    `json:"is_read"`
	CreatedOnTime int64  `json:"created_on_time"`
}

type linkView struct {
	ID            int64  `json:"id"`
	FeedID        int64  `json:"feed_id"`
	ItemID        int64  `json:"item_id"`
	URL           string `json:"url"`
	Title         string `json:"title"`
	Weight        int    `json:"weight"`
	CreatedOnTime int64  `json:"created_on_time"`
}

func (h *Handler) attachGroups(ctx context.Context, userID int64, env *Envelope) error {
	groups, err := h.groups.ListByUser(ctx, userID)
	if err != nil {
		return err
	}

	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, groupView{ID: g.ID, Title: g.Title})
	}
	env.Set("groups", views)
	return nil
}

func (h *Handler) computeFeedList(ctx context.Context, userID int64) ([]feedView, error) {
	feeds, err := h.feeds.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]feedView, 0, len(feeds))
	for i := range feeds {
		f := &feeds[i]
		views = append(views, feedView{
			ID:                f.ID,
			FaviconID:         f.FaviconID,
			Title:             f.DisplayTitle(),
			URL:               f.URL,
			SiteURL:           f.SiteURL,
			IsSpark:           boolFlag(f.IsSpark),
			LastUpdatedOnTime: f.LastUpdatedOnTime,
		})
	}
	return views, nil
}

// computeFeedGroupMap builds the group-to-feeds mapping. Spark feeds
// are excluded at the store layer and never appear in any member list.
func (h *Handler) computeFeedGroupMap(ctx context.Context, userID int64) ([]feedsGroupView, error) {
	mapping, err := h.groups.FeedGroupMap(ctx, userID)
	if err != nil {
		return nil, err
	}

	groupIDs := make([]int64, 0, len(mapping))
	for groupID := range mapping {
		groupIDs = append(groupIDs, groupID)
	}
	sort.Slice(groupIDs, func(i, j int) bool { return groupIDs[i] < groupIDs[j] })

	views := make([]feedsGroupView, 0, len(groupIDs))
	for _, groupID := range groupIDs {
		views = append(views, feedsGroupView{
			GroupID: groupID,
			FeedIDs: joinIDs(mapping[groupID]),
		})
	}
	return views, nil
}

// attachFavicons attaches the full favicon inventory, never filtered.
// The rendered projection is cached since favicon blobs churn rarely
// and dominate response size.
func (h *Handler) attachFavicons(ctx context.Context, env *Envelope) error {
	if h.cache != nil {
		if cached, ok := h.cache.Get(FaviconCacheKey); ok {
			if raw, ok := cached.(string); ok {
				env.Set("favicons", json.RawMessage(raw))
				return nil
			}
		}
	}

	favicons, err := h.favicons.All(ctx)
	if err != nil {
		return err
	}

	views := make([]faviconView, 0, len(favicons))
	for _, f := range favicons {
		views = append(views, faviconView{ID: f.ID, Data: f.Cache})
	}

	raw, err := json.Marshal(views)
	if err != nil {
		return err
	}
	if h.cache != nil {
		h.cache.Set(FaviconCacheKey, string(raw))
	}
	env.Set("favicons", json.RawMessage(raw))
	return nil
}

// attachItems attaches total_items and one page of items. total_items
// counts the whole corpus before any feed/group filter narrows the page.
func (h *Handler) attachItems(ctx context.Context, userID int64, params Params, env *Envelope) error {
	total, err := h.items.TotalForUser(ctx, userID)
	if err != nil {
		return err
	}
	env.Set("total_items", total)

	page, err := h.buildItemPage(ctx, userID, params)
	if err != nil {
		return err
	}

	items, err := h.items.Page(ctx, userID, page)
	if err != nil {
		return err
	}

	views := make([]itemView, 0, len(items))
	for i := range items {
		item := &items[i]
		views = append(views, itemView{
			ID:            item.ID,
			FeedID:        item.FeedID,
			Title:         item.Title,
			Author:        item.Author,
			HTML:          item.Description,
			URL:           item.Link,
			IsSaved:       boolFlag(item.IsSaved),
			IsRead:        boolFlag(item.IsRead()),
			CreatedOnTime: item.CreatedOnTime,
		})
	}
	env.Set("items", views)
	return nil
}

// buildItemPage translates request parameters into a page selection.
// Malformed numerics drop the directive they belong to; the rest of the
// request still runs.
func (h *Handler) buildItemPage(ctx context.Context, userID int64, params Params) (database.ItemPage, error) {
	page := database.DefaultItemPage()

	if params.Has("feed_ids") {
		if ids, ok := parseIDList(params.Get("feed_ids")); ok {
			page.FeedIDs = ids
		}
	}
	if params.Has("group_ids") {
		if groupIDs, ok := parseIDList(params.Get("group_ids")); ok {
			feedIDs, err := h.groups.FeedIDsInGroups(ctx, userID, groupIDs)
			if err != nil {
				return page, err
			}
			page.FeedIDs = intersectOrAssign(page.FeedIDs, feedIDs)
		}
	}

	switch {
	case params.Has("max_id"):
		if maxID, err := strconv.ParseInt(params.Get("max_id"), 10, 64); err == nil && maxID >= 0 {
			page.MaxID = maxID
		}
	case params.Has("with_ids"):
		if ids, ok := parseIDList(params.Get("with_ids")); ok {
			page.WithIDs = ids
		}
	case params.Has("since_id"):
		if sinceID, err := strconv.ParseInt(params.Get("since_id"), 10, 64); err == nil && sinceID >= 0 {
			page.SinceID = sinceID
		}
	}

	return page, nil
}

func (h *Handler) attachLinks(ctx context.Context, userID int64, env *Envelope) error {
	links, err := h.links.TopByUser(ctx, userID, linksLimit)
	if err != nil {
		return err
	}

	views := make([]linkView, 0, len(links))
	for _, l := range links {
		views = append(views, linkView{
			ID:            l.ID,
			FeedID:        l.FeedID,
			ItemID:        l.ItemID,
			URL:           l.URL,
			Title:         l.Title,
			Weight:        l.Weight,
			CreatedOnTime: l.CreatedOnTime,
		})
	}
	env.Set("links", views)
	return nil
}

// intersectOrAssign narrows an existing feed filter by another one, or
// assigns it when no filter was set yet. Both feed_ids and group_ids on
// one request must both hold.
func intersectOrAssign(existing, incoming []int64) []int64 {
	if existing == nil {
		return incoming
	}

	in := make(map[int64]bool, len(incoming))
	for _, id := range incoming {
		in[id] = true
	}

	out := make([]int64, 0, len(existing))
	for _, id := range existing {
		if in[id] {
			out = append(out, id)
		}
	}
	return out
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}
