// Command refresh runs the ingestion pipeline out-of-band: every feed,
// one feed by id, or one user's feeds.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/feverd/feverd/internal/config"
	"github.com/feverd/feverd/internal/database"
	"github.com/feverd/feverd/internal/ingest"
	"github.com/feverd/feverd/internal/logging"
	"github.com/feverd/feverd/internal/ratelimit"
)

func main() {
	feedID := flag.Int64("feed-id", 0, "Refresh a specific feed id")
	userEmail := flag.String("user", "", "Refresh all feeds owned by this user email")
	cfg := config.Load() // parses the shared flags too

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level))

	db, err := database.New(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Error("Failed to connect to database", logging.WithField("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	feedStore := database.NewFeedStore(db)
	itemStore := database.NewItemStore(db)
	linkStore := database.NewLinkStore(db)
	userStore := database.NewUserStore(db)

	ingestor := ingest.NewService(
		feedStore, itemStore, linkStore,
		ingest.NewParser(cfg.Ingest.FetchTimeout),
		ratelimit.New(cfg.Ingest.RateLimitDur),
		logger,
	)

	ctx := context.Background()

	switch {
	case *userEmail != "":
		user, err := userStore.GetByEmail(ctx, *userEmail)
		if err != nil {
			logger.Error("Failed to look up user", logging.WithField("error", err.Error()))
			os.Exit(1)
		}
		if user == nil {
			fmt.Fprintf(os.Stderr, "user %s not found\n", *userEmail)
			os.Exit(1)
		}

		count, err := ingestor.RefreshUser(ctx, user.ID)
		if err != nil {
			logger.Error("Refresh failed", logging.WithField("error", err.Error()))
			os.Exit(1)
		}
		fmt.Printf("Added %d new items for %s\n", count, user.Email)

	case *feedID > 0:
		count, err := ingestor.Refresh(ctx, *feedID)
		if err != nil {
			logger.Error("Refresh failed", logging.WithField("error", err.Error()))
			os.Exit(1)
		}
		fmt.Printf("Added %d new items\n", count)

	default:
		feeds, err := feedStore.ListAll(ctx)
		if err != nil {
			logger.Error("Failed to list feeds", logging.WithField("error", err.Error()))
			os.Exit(1)
		}

		count := ingestor.RefreshFeeds(ctx, feeds)
		fmt.Printf("Refreshed %d feeds, added %d new items\n", len(feeds), count)
	}
}
