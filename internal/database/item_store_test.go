package database

import (
	"context"
	"testing"

	"github.com/feverd/feverd/internal/checksum"
	"github.com/feverd/feverd/internal/models"
	"github.com/feverd/feverd/internal/testutil"
)

// setupStores connects to the test database, runs migrations, and wipes
// the fever tables. Tests are skipped when no database is reachable.
func setupStores(t *testing.T) (*DB, func()) {
	t.Helper()

	testDB := testutil.NewTestDB(t)
	db := &DB{DB: testDB.DB}

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		testDB.Close()
		t.Skipf("Skipping test: unable to run migrations: %v", err)
	}
	testDB.Cleanup(ctx)

	return db, func() {
		testDB.Cleanup(context.Background())
		testDB.Close()
	}
}

func seedUserAndFeed(t *testing.T, db *DB) (*models.User, *models.Feed) {
	t.Helper()
	ctx := context.Background()

	user, err := NewUserStore(db).Create(ctx, CreateUserParams{
		Email:           "store-test@example.com",
		PasswordHash:    "x",
		APIKey:          "00000000000000000000000000000001",
		InstalledOnTime: 1700000000,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	feed, err := NewFeedStore(db).Create(ctx, &models.Feed{
		UserID:      user.ID,
		Title:       "Store Test",
		URL:         "http://store-test.example.com/rss",
		URLChecksum: checksum.Fingerprint("http://store-test.example.com/rss"),
	})
	if err != nil {
		t.Fatalf("create feed: %v", err)
	}

	return user, feed
}

func TestInsertIfAbsent_DuplicateUIDIsNoop(t *testing.T) {
	db, teardown := setupStores(t)
	defer teardown()

	ctx := context.Background()
	_, feed := seedUserAndFeed(t, db)
	items := NewItemStore(db)

	first := &models.Item{FeedID: feed.ID, UID: "uid-1", Title: "one", CreatedOnTime: 1, AddedOnTime: 1}
	inserted, err := items.InsertIfAbsent(ctx, first)
	if err != nil {
		t.Fatalf("InsertIfAbsent() error = %v", err)
	}
	if !inserted {
		t.Fatal("first insert should report true")
	}

	dup := &models.Item{FeedID: feed.ID, UID: "uid-1", Title: "one again", CreatedOnTime: 2, AddedOnTime: 2}
	inserted, err = items.InsertIfAbsent(ctx, dup)
	if err != nil {
		t.Fatalf("InsertIfAbsent() duplicate error = %v", err)
	}
	if inserted {
		t.Error("duplicate (feed_id, uid) must not insert")
	}
}

func TestPage_MaxIDOrderingAndCap(t *testing.T) {
	db, teardown := setupStores(t)
	defer teardown()

	ctx := context.Background()
	user, feed := seedUserAndFeed(t, db)
	items := NewItemStore(db)

	for i := 0; i < PageLimit+10; i++ {
		item := &models.Item{FeedID: feed.ID, UID: joinedUID(i), CreatedOnTime: int64(i), AddedOnTime: int64(i)}
		if _, err := items.InsertIfAbsent(ctx, item); err != nil {
			t.Fatalf("seed item %d: %v", i, err)
		}
	}

	page := DefaultItemPage()
	page.MaxID = 1 << 40
	got, err := items.Page(ctx, user.ID, page)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if len(got) != PageLimit {
		t.Errorf("page length = %d, want the cap of %d", len(got), PageLimit)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].ID <= got[i].ID {
			t.Fatal("max_id page must be ordered newest-first")
		}
	}
}

func TestSetReadByIDs_OwnershipScoped(t *testing.T) {
	db, teardown := setupStores(t)
	defer teardown()

	ctx := context.Background()
	user, feed := seedUserAndFeed(t, db)
	items := NewItemStore(db)

	item := &models.Item{FeedID: feed.ID, UID: "uid-owned", AddedOnTime: 1}
	if _, err := items.InsertIfAbsent(ctx, item); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	otherUser := user.ID + 1000
	if err := items.SetReadByIDs(ctx, otherUser, []int64{item.ID}, 1700000000); err != nil {
		t.Fatalf("SetReadByIDs() error = %v", err)
	}

	unread, err := items.UnreadIDs(ctx, user.ID)
	if err != nil {
		t.Fatalf("UnreadIDs() error = %v", err)
	}
	if len(unread) != 1 {
		t.Error("another user's mark must match zero rows")
	}
}

func joinedUID(i int) string {
	return "uid-" + string(rune('a'+i%26)) + "-" + string(rune('0'+i/26))
}
