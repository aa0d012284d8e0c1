// Package ingest fetches subscribed feeds, deduplicates their entries,
// and records new items and their extracted links.
package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"

	"github.com/feverd/feverd/internal/checksum"
	"github.com/feverd/feverd/internal/logging"
	"github.com/feverd/feverd/internal/models"
	"github.com/feverd/feverd/internal/ratelimit"
)

// Parser fetches and parses a feed document
type Parser interface {
	ParseURL(ctx context.Context, url string) (*gofeed.Feed, error)
}

// FeedStore is the feed persistence surface the ingestor needs
type FeedStore interface {
	GetByID(ctx context.Context, id int64) (*models.Feed, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Feed, error)
	UpdateMetadata(ctx context.Context, id int64, title, siteURL, domain string) error
	TouchRefreshed(ctx context.Context, id int64, ts int64) error
	TouchUpdated(ctx context.Context, id int64, ts int64) error
}

// ItemStore is the item persistence surface the ingestor needs
type ItemStore interface {
	InsertIfAbsent(ctx context.Context, item *models.Item) (bool, error)
}

// LinkStore is the link persistence surface the ingestor needs
type LinkStore interface {
	InsertAll(ctx context.Context, links []models.Link) error
}

// GofeedParser fetches feeds over HTTP with a per-request timeout
type GofeedParser struct {
	timeout time.Duration
}

// NewParser creates a parser with the given fetch timeout
func NewParser(timeout time.Duration) *GofeedParser {
	return &GofeedParser{timeout: timeout}
}

func (p *GofeedParser) ParseURL(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return gofeed.NewParser().ParseURLWithContext(feedURL, ctx)
}

// Service refreshes feeds. Same-feed refreshes are serialized by a
// per-feed mutex; the unique (feed_id, uid) index is the backstop for
// refreshes racing from separate processes.
type Service struct {
	feeds   FeedStore
	items   ItemStore
	links   LinkStore
	parser  Parser
	limiter *ratelimit.Limiter
	logger  *logging.Logger

	mu        sync.Mutex
	feedLocks map[int64]*sync.Mutex

	now func() time.Time
}

// NewService creates an ingestion service
func NewService(feeds FeedStore, items ItemStore, links LinkStore, parser Parser, limiter *ratelimit.Limiter, logger *logging.Logger) *Service {
	return &Service{
		feeds:     feeds,
		items:     items,
		links:     links,
		parser:    parser,
		limiter:   limiter,
		logger:    logger,
		feedLocks: make(map[int64]*sync.Mutex),
		now:       time.Now,
	}
}

// Refresh fetches one feed and inserts entries not seen before. It
// returns the number of newly inserted items. The refresh attempt is
// stamped on the feed even when fetching or parsing fails.
func (s *Service) Refresh(ctx context.Context, feedID int64) (int, error) {
	feed, err := s.feeds.GetByID(ctx, feedID)
	if err != nil {
		return 0, fmt.Errorf("load feed %d: %w", feedID, err)
	}
	if feed == nil {
		return 0, fmt.Errorf("feed %d not found", feedID)
	}

	lock := s.feedLock(feed.ID)
	lock.Lock()
	defer lock.Unlock()

	if s.limiter != nil {
		s.limiter.Wait(hostOf(feed.URL))
	}

	now := s.now().Unix()
	if err := s.feeds.TouchRefreshed(ctx, feed.ID, now); err != nil {
		return 0, fmt.Errorf("stamp refresh on feed %d: %w", feed.ID, err)
	}

	parsed, err := s.parser.ParseURL(ctx, feed.URL)
	if err != nil {
		s.logger.Warn("feed fetch failed",
			logging.WithField("feed_id", feed.ID),
			logging.WithField("url", feed.URL),
			logging.WithField("error", err.Error()))
		return 0, fmt.Errorf("fetch feed %d: %w", feed.ID, err)
	}

	title := normalize(parsed.Title)
	siteURL := strings.TrimSpace(parsed.Link)
	if err := s.feeds.UpdateMetadata(ctx, feed.ID, title, siteURL, hostOf(siteURL)); err != nil {
		return 0, fmt.Errorf("update feed %d metadata: %w", feed.ID, err)
	}

	inserted := 0
	for _, entry := range parsed.Items {
		ok, err := s.ingestEntry(ctx, feed, entry, now)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}

	if inserted > 0 {
		if err := s.feeds.TouchUpdated(ctx, feed.ID, now); err != nil {
			return inserted, fmt.Errorf("stamp update on feed %d: %w", feed.ID, err)
		}
	}

	s.logger.Info("feed refreshed",
		logging.WithField("feed_id", feed.ID),
		logging.WithField("new_items", inserted))

	return inserted, nil
}

// RefreshUser refreshes every feed the user owns. A failing feed is
// logged and skipped; the rest of the batch still runs.
func (s *Service) RefreshUser(ctx context.Context, userID int64) (int, error) {
	feeds, err := s.feeds.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list feeds for user %d: %w", userID, err)
	}
	return s.refreshBatch(ctx, feeds), nil
}

// RefreshFeeds refreshes the given feeds with per-feed failure isolation
func (s *Service) RefreshFeeds(ctx context.Context, feeds []models.Feed) int {
	return s.refreshBatch(ctx, feeds)
}

func (s *Service) refreshBatch(ctx context.Context, feeds []models.Feed) int {
	total := 0
	for _, feed := range feeds {
		n, err := s.Refresh(ctx, feed.ID)
		if err != nil {
			s.logger.Error("feed refresh failed",
				logging.WithField("feed_id", feed.ID),
				logging.WithField("error", err.Error()))
			continue
		}
		total += n
	}
	return total
}

func (s *Service) ingestEntry(ctx context.Context, feed *models.Feed, entry *gofeed.Item, now int64) (bool, error) {
	uid := entry.GUID
	if uid == "" {
		uid = entry.Link
	}
	if uid == "" {
		return false, nil
	}

	description := entry.Content
	if description == "" {
		description = entry.Description
	}

	created := now
	switch {
	case entry.PublishedParsed != nil:
		created = entry.PublishedParsed.Unix()
	case entry.UpdatedParsed != nil:
		created = entry.UpdatedParsed.Unix()
	}

	item := &models.Item{
		FeedID:        feed.ID,
		UID:           uid,
		Title:         normalize(entry.Title),
		Author:        entryAuthor(entry),
		Description:   description,
		Link:          entry.Link,
		URLChecksum:   checksum.Fingerprint(entry.Link),
		CreatedOnTime: created,
		AddedOnTime:   now,
	}

	inserted, err := s.items.InsertIfAbsent(ctx, item)
	if err != nil {
		return false, fmt.Errorf("insert item for feed %d: %w", feed.ID, err)
	}
	if !inserted {
		return false, nil
	}

	links := ExtractLinks(feed, item, now)
	if len(links) > 0 {
		if err := s.links.InsertAll(ctx, links); err != nil {
			return true, fmt.Errorf("insert links for item %d: %w", item.ID, err)
		}
	}

	return true, nil
}

func (s *Service) feedLock(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.feedLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.feedLocks[id] = lock
	}
	return lock
}

func entryAuthor(entry *gofeed.Item) string {
	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		return entry.Authors[0].Name
	}
	if entry.Author != nil {
		return entry.Author.Name
	}
	return ""
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
