package ingest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/feverd/feverd/internal/checksum"
	"github.com/feverd/feverd/internal/models"
)

// blacklistedHosts are ad and tracker hosts whose links never count
// toward hot-link ranking.
var blacklistedHosts = map[string]bool{
	"feeds.feedburner.com":      true,
	"feedproxy.google.com":      true,
	"ad.doubleclick.net":        true,
	"pheedo.com":                true,
	"www.pheedo.com":            true,
	"feedads.g.doubleclick.net": true,
}

// ExtractLinks pulls the anchors out of an item's body and classifies
// them for hot-link ranking. The item link itself and the first anchor
// carry extra weight; blacklisted hosts carry none.
func ExtractLinks(feed *models.Feed, item *models.Item, now int64) []models.Link {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(item.Description))
	if err != nil {
		return nil
	}

	links := make([]models.Link, 0)
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || !strings.HasPrefix(href, "http") || seen[href] {
			return
		}
		seen[href] = true

		title := strings.TrimSpace(sel.Text())
		host := hostOf(href)

		link := models.Link{
			FeedID:           feed.ID,
			ItemID:           item.ID,
			IsBlacklisted:    blacklistedHosts[host],
			IsItem:           href == item.Link,
			IsLocal:          host != "" && host == feed.Domain,
			IsFirst:          len(links) == 0,
			Title:            title,
			URL:              href,
			URLChecksum:      checksum.Fingerprint(href),
			TitleURLChecksum: checksum.Combined(title, href),
			CreatedOnTime:    now,
		}
		link.Weight = linkWeight(link)
		links = append(links, link)
	})

	return links
}

func linkWeight(link models.Link) int {
	if link.IsBlacklisted {
		return 0
	}

	weight := 1
	if link.IsItem {
		weight += 2
	}
	if link.IsFirst {
		weight++
	}
	if link.IsLocal {
		// local anchors are navigation more often than citation
		weight--
	}
	if weight < 0 {
		weight = 0
	}
	return weight
}
