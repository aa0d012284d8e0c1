package ingest

import (
	"testing"

	"github.com/feverd/feverd/internal/models"
)

func TestExtractLinks_Classification(t *testing.T) {
	feed := &models.Feed{ID: 1, Domain: "example.com"}
	item := &models.Item{
		ID:   10,
		Link: "http://example.com/post",
		Description: `<p>
			<a href="http://example.com/post">the post itself</a>
			<a href="http://example.com/about">local nav</a>
			<a href="http://elsewhere.org/cited">a citation</a>
		</p>`,
	}

	links := ExtractLinks(feed, item, 1700000000)
	if len(links) != 3 {
		t.Fatalf("got %d links, want 3", len(links))
	}

	first := links[0]
	if !first.IsFirst {
		t.Error("first anchor should be flagged is_first")
	}
	if !first.IsItem {
		t.Error("anchor matching the item link should be flagged is_item")
	}
	if !first.IsLocal {
		t.Error("anchor on the feed domain should be flagged is_local")
	}

	if links[1].IsFirst || links[2].IsFirst {
		t.Error("only the first anchor should be flagged is_first")
	}
	if links[2].IsLocal {
		t.Error("off-domain anchor should not be flagged is_local")
	}
	if links[2].IsItem {
		t.Error("off-domain anchor should not be flagged is_item")
	}
}

func TestExtractLinks_SkipsDuplicatesAndNonHTTP(t *testing.T) {
	feed := &models.Feed{ID: 1}
	item := &models.Item{
		ID: 10,
		Description: `
			<a href="http://example.com/a">once</a>
			<a href="http://example.com/a">twice</a>
			<a href="mailto:someone@example.com">mail</a>
			<a href="#fragment">fragment</a>`,
	}

	links := ExtractLinks(feed, item, 1700000000)
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	if links[0].URL != "http://example.com/a" {
		t.Errorf("link URL = %q", links[0].URL)
	}
}

func TestExtractLinks_EmptyBody(t *testing.T) {
	feed := &models.Feed{ID: 1}
	item := &models.Item{ID: 10, Description: ""}

	if links := ExtractLinks(feed, item, 1700000000); len(links) != 0 {
		t.Errorf("got %d links from an empty body, want 0", len(links))
	}
}

func TestLinkWeight_BlacklistedIsZero(t *testing.T) {
	feed := &models.Feed{ID: 1}
	item := &models.Item{
		ID:          10,
		Description: `<a href="http://feeds.feedburner.com/whatever">tracker</a>`,
	}

	links := ExtractLinks(feed, item, 1700000000)
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	if !links[0].IsBlacklisted {
		t.Error("tracker host should be flagged is_blacklisted")
	}
	if links[0].Weight != 0 {
		t.Errorf("blacklisted link weight = %d, want 0", links[0].Weight)
	}
}

func TestLinkWeight_ItemLinkOutweighsPlainAnchor(t *testing.T) {
	item := linkWeight(models.Link{IsItem: true, IsFirst: true})
	plain := linkWeight(models.Link{})

	if item <= plain {
		t.Errorf("item link weight %d should exceed plain anchor weight %d", item, plain)
	}
}
