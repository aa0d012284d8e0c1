package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/feverd/feverd/internal/logging"
	"github.com/feverd/feverd/internal/models"
)

type fakeParser struct {
	feeds map[string]*gofeed.Feed
	errs  map[string]error
}

func (p *fakeParser) ParseURL(_ context.Context, url string) (*gofeed.Feed, error) {
	if err, ok := p.errs[url]; ok {
		return nil, err
	}
	if f, ok := p.feeds[url]; ok {
		return f, nil
	}
	return nil, errors.New("no such feed")
}

type fakeFeedStore struct {
	feeds       map[int64]*models.Feed
	refreshedAt map[int64]int64
	updatedAt   map[int64]int64
	metaTitle   map[int64]string
}

func newFakeFeedStore(feeds ...*models.Feed) *fakeFeedStore {
	s := &fakeFeedStore{
		feeds:       make(map[int64]*models.Feed),
		refreshedAt: make(map[int64]int64),
		updatedAt:   make(map[int64]int64),
		metaTitle:   make(map[int64]string),
	}
	for _, f := range feeds {
		s.feeds[f.ID] = f
	}
	return s
}

func (s *fakeFeedStore) GetByID(_ context.Context, id int64) (*models.Feed, error) {
	return s.feeds[id], nil
}

func (s *fakeFeedStore) ListByUser(_ context.Context, userID int64) ([]models.Feed, error) {
	out := make([]models.Feed, 0)
	for _, f := range s.feeds {
		if f.UserID == userID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (s *fakeFeedStore) UpdateMetadata(_ context.Context, id int64, title, siteURL, domain string) error {
	if title != "" {
		s.metaTitle[id] = title
	}
	return nil
}

func (s *fakeFeedStore) TouchRefreshed(_ context.Context, id int64, ts int64) error {
	s.refreshedAt[id] = ts
	return nil
}

func (s *fakeFeedStore) TouchUpdated(_ context.Context, id int64, ts int64) error {
	s.updatedAt[id] = ts
	return nil
}

type fakeItemStore struct {
	byUID  map[string]*models.Item
	nextID int64
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{byUID: make(map[string]*models.Item)}
}

func (s *fakeItemStore) InsertIfAbsent(_ context.Context, item *models.Item) (bool, error) {
	key := fmt.Sprintf("%d|%s", item.FeedID, item.UID)
	if _, ok := s.byUID[key]; ok {
		return false, nil
	}
	s.nextID++
	item.ID = s.nextID
	stored := *item
	s.byUID[key] = &stored
	return true, nil
}

type fakeLinkStore struct {
	links []models.Link
}

func (s *fakeLinkStore) InsertAll(_ context.Context, links []models.Link) error {
	s.links = append(s.links, links...)
	return nil
}

func testService(feeds *fakeFeedStore, items *fakeItemStore, links *fakeLinkStore, parser Parser) *Service {
	return NewService(feeds, items, links, parser, nil, logging.New(logging.LevelError))
}

func entry(guid, link, title string) *gofeed.Item {
	return &gofeed.Item{GUID: guid, Link: link, Title: title}
}

func TestRefresh_InsertsNewItems(t *testing.T) {
	feedStore := newFakeFeedStore(&models.Feed{ID: 1, UserID: 1, URL: "http://example.com/rss"})
	itemStore := newFakeItemStore()
	parser := &fakeParser{feeds: map[string]*gofeed.Feed{
		"http://example.com/rss": {
			Title: "Example",
			Link:  "http://example.com",
			Items: []*gofeed.Item{
				entry("guid-1", "http://example.com/1", "First"),
				entry("guid-2", "http://example.com/2", "Second"),
			},
		},
	}}

	svc := testService(feedStore, itemStore, &fakeLinkStore{}, parser)

	n, err := svc.Refresh(context.Background(), 1)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Refresh() inserted %d items, want 2", n)
	}
	if feedStore.metaTitle[1] != "Example" {
		t.Errorf("feed title = %q, want Example", feedStore.metaTitle[1])
	}
	if feedStore.updatedAt[1] == 0 {
		t.Error("last_updated_on_time should be stamped when items were inserted")
	}
}

func TestRefresh_SecondRunInsertsNothing(t *testing.T) {
	feedStore := newFakeFeedStore(&models.Feed{ID: 1, UserID: 1, URL: "http://example.com/rss"})
	itemStore := newFakeItemStore()
	parser := &fakeParser{feeds: map[string]*gofeed.Feed{
		"http://example.com/rss": {
			Items: []*gofeed.Item{entry("guid-1", "http://example.com/1", "First")},
		},
	}}

	svc := testService(feedStore, itemStore, &fakeLinkStore{}, parser)

	if _, err := svc.Refresh(context.Background(), 1); err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	n, err := svc.Refresh(context.Background(), 1)
	if err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second Refresh() inserted %d items, want 0", n)
	}
}

func TestRefresh_UIDFallsBackToLink(t *testing.T) {
	feedStore := newFakeFeedStore(&models.Feed{ID: 1, UserID: 1, URL: "http://example.com/rss"})
	itemStore := newFakeItemStore()
	parser := &fakeParser{feeds: map[string]*gofeed.Feed{
		"http://example.com/rss": {
			Items: []*gofeed.Item{entry("", "http://example.com/1", "No GUID")},
		},
	}}

	svc := testService(feedStore, itemStore, &fakeLinkStore{}, parser)

	if _, err := svc.Refresh(context.Background(), 1); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if _, ok := itemStore.byUID["1|http://example.com/1"]; !ok {
		t.Error("item uid should fall back to the entry link")
	}
}

func TestRefresh_SkipsEntryWithoutIdentity(t *testing.T) {
	feedStore := newFakeFeedStore(&models.Feed{ID: 1, UserID: 1, URL: "http://example.com/rss"})
	itemStore := newFakeItemStore()
	parser := &fakeParser{feeds: map[string]*gofeed.Feed{
		"http://example.com/rss": {
			Items: []*gofeed.Item{entry("", "", "Neither GUID nor link")},
		},
	}}

	svc := testService(feedStore, itemStore, &fakeLinkStore{}, parser)

	n, err := svc.Refresh(context.Background(), 1)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Refresh() inserted %d items, want 0", n)
	}
}

func TestRefresh_CreatedOnTimeFromPublished(t *testing.T) {
	published := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	feedStore := newFakeFeedStore(&models.Feed{ID: 1, UserID: 1, URL: "http://example.com/rss"})
	itemStore := newFakeItemStore()
	parser := &fakeParser{feeds: map[string]*gofeed.Feed{
		"http://example.com/rss": {
			Items: []*gofeed.Item{{
				GUID:            "guid-1",
				Link:            "http://example.com/1",
				PublishedParsed: &published,
			}},
		},
	}}

	svc := testService(feedStore, itemStore, &fakeLinkStore{}, parser)

	if _, err := svc.Refresh(context.Background(), 1); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	item := itemStore.byUID["1|guid-1"]
	if item.CreatedOnTime != 1672574400 {
		t.Errorf("CreatedOnTime = %d, want 1672574400", item.CreatedOnTime)
	}
}

func TestRefresh_ContentPreferredOverDescription(t *testing.T) {
	feedStore := newFakeFeedStore(&models.Feed{ID: 1, UserID: 1, URL: "http://example.com/rss"})
	itemStore := newFakeItemStore()
	parser := &fakeParser{feeds: map[string]*gofeed.Feed{
		"http://example.com/rss": {
			Items: []*gofeed.Item{{
				GUID:        "guid-1",
				Link:        "http://example.com/1",
				Content:     "<p>full body</p>",
				Description: "summary",
			}},
		},
	}}

	svc := testService(feedStore, itemStore, &fakeLinkStore{}, parser)

	if _, err := svc.Refresh(context.Background(), 1); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	item := itemStore.byUID["1|guid-1"]
	if item.Description != "<p>full body</p>" {
		t.Errorf("Description = %q, want the content body", item.Description)
	}
}

func TestRefresh_StampsAttemptOnFetchFailure(t *testing.T) {
	feedStore := newFakeFeedStore(&models.Feed{ID: 1, UserID: 1, URL: "http://example.com/rss"})
	parser := &fakeParser{errs: map[string]error{
		"http://example.com/rss": errors.New("connection refused"),
	}}

	svc := testService(feedStore, newFakeItemStore(), &fakeLinkStore{}, parser)

	_, err := svc.Refresh(context.Background(), 1)
	if err == nil {
		t.Fatal("Refresh() should return the fetch error")
	}
	if feedStore.refreshedAt[1] == 0 {
		t.Error("last_refreshed_on_time should be stamped even when the fetch fails")
	}
	if feedStore.updatedAt[1] != 0 {
		t.Error("last_updated_on_time should not move on a failed refresh")
	}
}

func TestRefreshUser_FailingFeedDoesNotStopBatch(t *testing.T) {
	feedStore := newFakeFeedStore(
		&models.Feed{ID: 1, UserID: 1, URL: "http://bad.example.com/rss"},
		&models.Feed{ID: 2, UserID: 1, URL: "http://good.example.com/rss"},
	)
	itemStore := newFakeItemStore()
	parser := &fakeParser{
		errs: map[string]error{"http://bad.example.com/rss": errors.New("timeout")},
		feeds: map[string]*gofeed.Feed{
			"http://good.example.com/rss": {
				Items: []*gofeed.Item{entry("guid-1", "http://good.example.com/1", "Survivor")},
			},
		},
	}

	svc := testService(feedStore, itemStore, &fakeLinkStore{}, parser)

	n, err := svc.RefreshUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("RefreshUser() error = %v", err)
	}
	if n != 1 {
		t.Errorf("RefreshUser() inserted %d items, want 1 from the healthy feed", n)
	}
}

func TestRefresh_ExtractsLinksFromNewItems(t *testing.T) {
	feedStore := newFakeFeedStore(&models.Feed{ID: 1, UserID: 1, URL: "http://example.com/rss", Domain: "example.com"})
	itemStore := newFakeItemStore()
	linkStore := &fakeLinkStore{}
	parser := &fakeParser{feeds: map[string]*gofeed.Feed{
		"http://example.com/rss": {
			Items: []*gofeed.Item{{
				GUID:        "guid-1",
				Link:        "http://example.com/1",
				Description: `<p>see <a href="http://other.example.org/post">this</a></p>`,
			}},
		},
	}}

	svc := testService(feedStore, itemStore, linkStore, parser)

	if _, err := svc.Refresh(context.Background(), 1); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(linkStore.links) != 1 {
		t.Fatalf("got %d extracted links, want 1", len(linkStore.links))
	}
	if linkStore.links[0].URL != "http://other.example.org/post" {
		t.Errorf("link URL = %q", linkStore.links[0].URL)
	}
}
