// Package models defines the entities persisted by the feed store.
// All *_on_time fields are Unix epoch seconds; zero means "never".
package models

// User is an account that owns feeds, groups, and items. APIKey is the
// lowercase hex md5 of "email:password" and is the sole credential the
// Fever protocol accepts; it is recomputed whenever the password changes.
type User struct {
	ID                int64  `json:"id"`
	Email             string `json:"email"`
	PasswordHash      string `json:"-"`
	APIKey            string `json:"-"`
	ActivationKey     string `json:"-"`
	InstalledOnTime   int64  `json:"installed_on_time"`
	LastViewedOnTime  int64  `json:"last_viewed_on_time"`
	LastSessionOnTime int64  `json:"last_session_on_time"`
	Version           int    `json:"version"`
}

// Feed is a subscribed RSS/Atom source. URLChecksum is unique across all
// feeds; an insert with a colliding checksum is rejected, never merged.
//
// The three timestamps are independent: LastRefreshedOnTime moves on every
// refresh attempt, LastUpdatedOnTime only when new items were inserted,
// LastAddedOnTime when the most recent item arrived.
type Feed struct {
	ID                  int64  `json:"id"`
	UserID              int64  `json:"user_id"`
	FaviconID           int64  `json:"favicon_id"`
	Title               string `json:"title"`
	UserTitle           string `json:"user_title"`
	URL                 string `json:"url"`
	URLChecksum         int64  `json:"-"`
	SiteURL             string `json:"site_url"`
	Domain              string `json:"domain"`
	IsSpark             bool   `json:"is_spark"`
	ItemExcerpts        int    `json:"item_excerpts"`
	ItemAllows          int    `json:"item_allows"`
	UnreadCounts        int    `json:"unread_counts"`
	SortOrder           int    `json:"sort_order"`
	LastRefreshedOnTime int64  `json:"last_refreshed_on_time"`
	LastUpdatedOnTime   int64  `json:"last_updated_on_time"`
	LastAddedOnTime     int64  `json:"last_added_on_time"`
}

// DisplayTitle resolves the title shown to clients: the user override if
// set, else the canonical title, else the raw URL.
func (f *Feed) DisplayTitle() string {
	if f.UserTitle != "" {
		return f.UserTitle
	}
	if f.Title != "" {
		return f.Title
	}
	return f.URL
}

// Group is a user-defined feed folder
type Group struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	Title        string `json:"title"`
	ItemExcerpts int    `json:"item_excerpts"`
	ItemAllows   int    `json:"item_allows"`
	UnreadCounts int    `json:"unread_counts"`
	SortOrder    int    `json:"sort_order"`
}

// FeedGroup links a feed to a group; the pair is unique
type FeedGroup struct {
	FeedID  int64 `json:"feed_id"`
	GroupID int64 `json:"group_id"`
}

// Item is a single ingested entry. Its dedup identity is (FeedID, UID)
// where UID falls back to the entry link when the source provides no id.
// Items are immutable after insert except ReadOnTime and IsSaved.
type Item struct {
	ID            int64  `json:"id"`
	FeedID        int64  `json:"feed_id"`
	UID           string `json:"-"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	Description   string `json:"description"`
	Link          string `json:"link"`
	URLChecksum   int64  `json:"-"`
	ReadOnTime    int64  `json:"read_on_time"`
	IsSaved       bool   `json:"is_saved"`
	CreatedOnTime int64  `json:"created_on_time"`
	AddedOnTime   int64  `json:"added_on_time"`
}

// IsRead reports whether the item has been marked read
func (i *Item) IsRead() bool {
	return i.ReadOnTime > 0
}

// Favicon is a cached encoded image blob keyed by its URL fingerprint
type Favicon struct {
	ID               int64  `json:"id"`
	Cache            string `json:"data"`
	URL              string `json:"url"`
	URLChecksum      int64  `json:"-"`
	LastCachedOnTime int64  `json:"last_cached_on_time"`
}

// Link is a hyperlink extracted from an item body, used for hot-link
// ranking. Weight orders the links projection, highest first.
type Link struct {
	ID               int64  `json:"id"`
	FeedID           int64  `json:"feed_id"`
	ItemID           int64  `json:"item_id"`
	IsBlacklisted    bool   `json:"is_blacklisted"`
	IsItem           bool   `json:"is_item"`
	IsLocal          bool   `json:"is_local"`
	IsFirst          bool   `json:"is_first"`
	Title            string `json:"title"`
	URL              string `json:"url"`
	URLChecksum      int64  `json:"-"`
	TitleURLChecksum int64  `json:"-"`
	Weight           int    `json:"weight"`
	CreatedOnTime    int64  `json:"created_on_time"`
}
