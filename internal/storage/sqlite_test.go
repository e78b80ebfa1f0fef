package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/masahif/steamharvest/internal/catalog"
	"github.com/masahif/steamharvest/internal/crawler"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test_steam.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func saveApp(t *testing.T, store *SQLiteStore, app *catalog.App) {
	t.Helper()
	err := store.WithTx(context.Background(), func(tx crawler.Tx) error {
		return tx.UpsertApp(context.Background(), app)
	})
	if err != nil {
		t.Fatalf("Failed to save app %d: %v", app.ID, err)
	}
}

func parentOf(t *testing.T, store *SQLiteStore, id int64) int64 {
	t.Helper()
	var parent sql.NullInt64
	if err := store.db.QueryRow("SELECT parent_id FROM apps WHERE id = ?", id).Scan(&parent); err != nil {
		t.Fatalf("Failed to read parent of %d: %v", id, err)
	}
	return parent.Int64
}

func countRows(t *testing.T, store *SQLiteStore, query string, args ...any) int {
	t.Helper()
	var n int
	if err := store.db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	return n
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("UpsertApp", func(t *testing.T) {
		app := &catalog.App{ID: 10, Kind: catalog.KindGame, Name: "Half-Life", Price: 9.99, ReleaseDate: "1998-11-08"}
		saveApp(t, store, app)

		app.Name = "Half-Life Source"
		saveApp(t, store, app)

		var name, release string
		if err := store.db.QueryRow("SELECT name, release_date FROM apps WHERE id = 10").Scan(&name, &release); err != nil {
			t.Fatalf("Failed to read app: %v", err)
		}
		if name != "Half-Life Source" {
			t.Errorf("Expected updated name, got %q", name)
		}
		if release != "1998-11-08" {
			t.Errorf("Expected release date 1998-11-08, got %q", release)
		}
		if n := countRows(t, store, "SELECT COUNT(*) FROM apps WHERE id = 10"); n != 1 {
			t.Errorf("Expected one row, got %d", n)
		}
	})

	t.Run("ParentKeptWhenAbsent", func(t *testing.T) {
		saveApp(t, store, &catalog.App{ID: 20, Kind: catalog.KindGame, Name: "Base"})
		saveApp(t, store, &catalog.App{ID: 21, Kind: catalog.KindDLC, Name: "Addon", ParentID: 20})
		saveApp(t, store, &catalog.App{ID: 21, Kind: catalog.KindDLC, Name: "Addon v2"})

		if got := parentOf(t, store, 21); got != 20 {
			t.Errorf("Expected parent 20 to survive re-upsert, got %d", got)
		}
	})

	t.Run("AppExists", func(t *testing.T) {
		err := store.WithTx(ctx, func(tx crawler.Tx) error {
			exists, err := tx.AppExists(ctx, 10)
			if err != nil {
				return err
			}
			if !exists {
				t.Error("Expected app 10 to exist")
			}
			exists, err = tx.AppExists(ctx, 9999)
			if err != nil {
				return err
			}
			if exists {
				t.Error("Expected app 9999 to be missing")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("WithTx failed: %v", err)
		}
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.WithTx(ctx, func(tx crawler.Tx) error {
			if err := tx.UpsertApp(ctx, &catalog.App{ID: 30, Kind: catalog.KindGame, Name: "Ghost"}); err != nil {
				return err
			}
			if err := tx.MarkProcessed(ctx, 30, catalog.StatusSuccess); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Expected boom, got %v", err)
		}
		if n := countRows(t, store, "SELECT COUNT(*) FROM apps WHERE id = 30"); n != 0 {
			t.Error("Expected app row to be rolled back")
		}
		if _, found, _ := store.LookupStatus(ctx, 30); found {
			t.Error("Expected status to be rolled back")
		}
	})
}

func TestSQLiteLookupID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	lookup := func(dim catalog.Dimension, name string) (int64, error) {
		var id int64
		err := store.WithTx(ctx, func(tx crawler.Tx) error {
			var err error
			id, err = tx.LookupID(ctx, dim, name)
			return err
		})
		return id, err
	}

	first, err := lookup(catalog.DimDeveloper, "Valve")
	if err != nil {
		t.Fatalf("LookupID failed: %v", err)
	}
	second, err := lookup(catalog.DimDeveloper, "Valve")
	if err != nil {
		t.Fatalf("LookupID failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected stable id, got %d then %d", first, second)
	}

	other, err := lookup(catalog.DimDeveloper, "Hidden Path")
	if err != nil {
		t.Fatalf("LookupID failed: %v", err)
	}
	if other == first {
		t.Error("Expected distinct names to get distinct ids")
	}

	// Dimensions do not share tables
	if _, err := lookup(catalog.DimPublisher, "Valve"); err != nil {
		t.Fatalf("LookupID failed: %v", err)
	}
	if n := countRows(t, store, "SELECT COUNT(*) FROM developers"); n != 2 {
		t.Errorf("Expected 2 developers, got %d", n)
	}

	if _, err := lookup(catalog.DimDeveloper, ""); !errors.Is(err, ErrEmptyName) {
		t.Errorf("Expected ErrEmptyName, got %v", err)
	}
	if _, err := lookup(catalog.Dimension("studio"), "x"); !errors.Is(err, ErrUnknownDimension) {
		t.Errorf("Expected ErrUnknownDimension, got %v", err)
	}
}

func TestSQLiteLookupIDConcurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]int64, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.WithTx(ctx, func(tx crawler.Tx) error {
				var err error
				ids[i], err = tx.LookupID(ctx, catalog.DimTag, "Roguelike")
				return err
			})
		}(i)
	}
	wg.Wait()

	for i := range workers {
		if errs[i] != nil {
			t.Fatalf("Worker %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("Worker %d got id %d, expected %d", i, ids[i], ids[0])
		}
	}
	if n := countRows(t, store, "SELECT COUNT(*) FROM tags WHERE name = 'Roguelike'"); n != 1 {
		t.Errorf("Expected one tag row, got %d", n)
	}
}

func TestSQLiteLinkEntities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	saveApp(t, store, &catalog.App{ID: 400, Kind: catalog.KindGame, Name: "Portal"})

	link := func(dim catalog.Dimension, name string, l catalog.Link) {
		t.Helper()
		err := store.WithTx(ctx, func(tx crawler.Tx) error {
			id, err := tx.LookupID(ctx, dim, name)
			if err != nil {
				return err
			}
			l.EntityID = id
			return tx.LinkEntities(ctx, 400, dim, []catalog.Link{l})
		})
		if err != nil {
			t.Fatalf("Failed to link %s %s: %v", dim, name, err)
		}
	}

	link(catalog.DimGenre, "Puzzle", catalog.Link{})
	link(catalog.DimGenre, "Puzzle", catalog.Link{})
	if n := countRows(t, store, "SELECT COUNT(*) FROM app_genres WHERE app_id = 400"); n != 1 {
		t.Errorf("Expected one genre link, got %d", n)
	}

	link(catalog.DimLanguage, "English", catalog.Link{FullAudio: false})
	link(catalog.DimLanguage, "English", catalog.Link{FullAudio: true})
	var fullAudio bool
	if err := store.db.QueryRow("SELECT is_full_audio FROM app_languages WHERE app_id = 400").Scan(&fullAudio); err != nil {
		t.Fatalf("Failed to read language link: %v", err)
	}
	if !fullAudio {
		t.Error("Expected full audio flag to be updated")
	}

	link(catalog.DimTag, "Puzzle", catalog.Link{Votes: 10})
	link(catalog.DimTag, "Puzzle", catalog.Link{Votes: 42})
	var votes int64
	if err := store.db.QueryRow("SELECT votes FROM app_tags WHERE app_id = 400").Scan(&votes); err != nil {
		t.Fatalf("Failed to read tag link: %v", err)
	}
	if votes != 42 {
		t.Errorf("Expected 42 votes, got %d", votes)
	}

	// Empty input is a no-op
	err := store.WithTx(ctx, func(tx crawler.Tx) error {
		return tx.LinkEntities(ctx, 400, catalog.DimGenre, nil)
	})
	if err != nil {
		t.Errorf("Expected no error for empty links, got %v", err)
	}
}

func TestSQLiteDeferredLinks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Addon arrives before its base game
	err := store.WithTx(ctx, func(tx crawler.Tx) error {
		if err := tx.UpsertApp(ctx, &catalog.App{ID: 501, Kind: catalog.KindDLC, Name: "Episode"}); err != nil {
			return err
		}
		return tx.RecordDeferredLink(ctx, 501, 500)
	})
	if err != nil {
		t.Fatalf("Failed to record deferred link: %v", err)
	}

	// Recording twice is idempotent
	err = store.WithTx(ctx, func(tx crawler.Tx) error {
		return tx.RecordDeferredLink(ctx, 501, 500)
	})
	if err != nil {
		t.Fatalf("Failed to re-record deferred link: %v", err)
	}

	pending, err := store.PendingLinkCount(ctx)
	if err != nil {
		t.Fatalf("PendingLinkCount failed: %v", err)
	}
	if pending != 1 {
		t.Errorf("Expected 1 pending link, got %d", pending)
	}

	// Parent still missing: nothing to resolve
	resolved, err := store.ResolveDeferredLinks(ctx)
	if err != nil {
		t.Fatalf("ResolveDeferredLinks failed: %v", err)
	}
	if resolved != 0 {
		t.Errorf("Expected 0 resolved links, got %d", resolved)
	}
	if got := parentOf(t, store, 501); got != 0 {
		t.Errorf("Expected no parent yet, got %d", got)
	}

	saveApp(t, store, &catalog.App{ID: 500, Kind: catalog.KindGame, Name: "Base Game"})

	resolved, err = store.ResolveDeferredLinks(ctx)
	if err != nil {
		t.Fatalf("ResolveDeferredLinks failed: %v", err)
	}
	if resolved != 1 {
		t.Errorf("Expected 1 resolved link, got %d", resolved)
	}
	if got := parentOf(t, store, 501); got != 500 {
		t.Errorf("Expected parent 500, got %d", got)
	}
	if pending, _ := store.PendingLinkCount(ctx); pending != 0 {
		t.Errorf("Expected no pending links, got %d", pending)
	}

	// Resolution is safe to repeat
	resolved, err = store.ResolveDeferredLinks(ctx)
	if err != nil {
		t.Fatalf("ResolveDeferredLinks failed: %v", err)
	}
	if resolved != 0 {
		t.Errorf("Expected 0 resolved links on second pass, got %d", resolved)
	}
}

func TestSQLiteDeferredLinkReplaced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx crawler.Tx) error {
		if err := tx.UpsertApp(ctx, &catalog.App{ID: 601, Kind: catalog.KindDLC, Name: "Pack"}); err != nil {
			return err
		}
		if err := tx.RecordDeferredLink(ctx, 601, 600); err != nil {
			return err
		}
		return tx.RecordDeferredLink(ctx, 601, 602)
	})
	if err != nil {
		t.Fatalf("Failed to record deferred links: %v", err)
	}
	if n := countRows(t, store, "SELECT COUNT(*) FROM pending_parent_links WHERE addon_id = 601 AND parent_id = 602"); n != 1 {
		t.Error("Expected latest deferred parent to be kept")
	}
	if pending, _ := store.PendingLinkCount(ctx); pending != 1 {
		t.Errorf("Expected 1 pending link, got %d", pending)
	}

	// A direct parent clears the deferred one
	saveApp(t, store, &catalog.App{ID: 602, Kind: catalog.KindGame, Name: "Game"})
	saveApp(t, store, &catalog.App{ID: 601, Kind: catalog.KindDLC, Name: "Pack", ParentID: 602})
	if pending, _ := store.PendingLinkCount(ctx); pending != 0 {
		t.Errorf("Expected deferred link to be cleared, got %d", pending)
	}
}

func TestSQLiteProcessingStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	marks := map[int64]catalog.Status{
		1: catalog.StatusSuccess,
		2: catalog.StatusUnavailable,
		3: catalog.SkippedStatus("video"),
		4: catalog.StatusFailed,
	}
	for id, status := range marks {
		if err := store.MarkProcessed(ctx, id, status); err != nil {
			t.Fatalf("MarkProcessed(%d) failed: %v", id, err)
		}
	}

	tests := []struct {
		id   int64
		want bool
	}{
		{1, true},
		{2, true},
		{3, true},
		{4, false}, // failed is retried
		{5, false},
	}
	for _, tt := range tests {
		got, err := store.IsProcessed(ctx, tt.id)
		if err != nil {
			t.Fatalf("IsProcessed(%d) failed: %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("IsProcessed(%d) = %v, want %v", tt.id, got, tt.want)
		}
	}

	status, found, err := store.LookupStatus(ctx, 3)
	if err != nil || !found {
		t.Fatalf("LookupStatus(3) = %v, %v", found, err)
	}
	if status != "skipped: video" {
		t.Errorf("Expected skipped: video, got %q", status)
	}

	// Last write wins
	if err := store.MarkProcessed(ctx, 4, catalog.StatusSuccess); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if ok, _ := store.IsProcessed(ctx, 4); !ok {
		t.Error("Expected app 4 to be processed after success")
	}

	statuses, err := store.ProcessedStatuses(ctx)
	if err != nil {
		t.Fatalf("ProcessedStatuses failed: %v", err)
	}
	if len(statuses) != 4 {
		t.Errorf("Expected 4 statuses, got %d", len(statuses))
	}

	counts, err := store.StatusCounts(ctx)
	if err != nil {
		t.Fatalf("StatusCounts failed: %v", err)
	}
	if counts[catalog.StatusSuccess] != 2 {
		t.Errorf("Expected 2 successes, got %d", counts[catalog.StatusSuccess])
	}
	if counts[catalog.StatusFailed] != 0 {
		t.Errorf("Expected no failures, got %d", counts[catalog.StatusFailed])
	}
}

func TestSQLiteAchievementsAndReviews(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	saveApp(t, store, &catalog.App{ID: 700, Kind: catalog.KindGame, Name: "Game"})

	achievements := []catalog.Achievement{
		{AppID: 700, APIName: "ACH_WIN", DisplayName: "Winner", CompletionRate: 12.3456},
		{AppID: 700, APIName: "ACH_LOSE", DisplayName: "Loser", CompletionRate: 100},
	}
	reviews := []catalog.Review{
		{RecommendationID: "r1", Body: "Great", VotedUp: true, VotesUp: 3, CreatedAt: time.Unix(1700000000, 0)},
		{RecommendationID: "r2", Body: "Meh"},
	}

	for range 2 {
		err := store.WithTx(ctx, func(tx crawler.Tx) error {
			if err := tx.UpsertAchievements(ctx, achievements); err != nil {
				return err
			}
			return tx.UpsertReviews(ctx, 700, reviews)
		})
		if err != nil {
			t.Fatalf("Failed to write achievements and reviews: %v", err)
		}
	}

	if n := countRows(t, store, "SELECT COUNT(*) FROM achievements WHERE app_id = 700"); n != 2 {
		t.Errorf("Expected 2 achievements, got %d", n)
	}
	if n := countRows(t, store, "SELECT COUNT(*) FROM reviews"); n != 2 {
		t.Errorf("Expected 2 reviews, got %d", n)
	}
	if n := countRows(t, store, "SELECT COUNT(*) FROM app_reviews WHERE app_id = 700"); n != 2 {
		t.Errorf("Expected 2 review links, got %d", n)
	}

	// Out of range rates are rejected by the schema
	err := store.WithTx(ctx, func(tx crawler.Tx) error {
		return tx.UpsertAchievements(ctx, []catalog.Achievement{{AppID: 700, APIName: "BAD", CompletionRate: 150}})
	})
	if err == nil {
		t.Error("Expected check constraint violation")
	}
}

func TestSQLiteMeta(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	value, err := store.GetMeta(ctx, "missing")
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if value != "" {
		t.Errorf("Expected empty value, got %q", value)
	}

	if err := store.SetMeta(ctx, "session_id", "abc"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	if err := store.SetMeta(ctx, "session_id", "def"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	value, _ = store.GetMeta(ctx, "session_id")
	if value != "def" {
		t.Errorf("Expected def, got %q", value)
	}
}

func TestSQLiteDropAll(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "drop.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	ctx := context.Background()

	saveApp(t, store, &catalog.App{ID: 1, Kind: catalog.KindGame, Name: "Game"})
	if err := store.MarkProcessed(ctx, 1, catalog.StatusSuccess); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	if err := store.DropAll(ctx); err != nil {
		t.Fatalf("DropAll failed: %v", err)
	}
	if n := countRows(t, store, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'"); n != 0 {
		t.Errorf("Expected no tables, got %d", n)
	}
	_ = store.Close()

	// Reopening recreates an empty schema
	store, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer func() { _ = store.Close() }()
	if ok, _ := store.IsProcessed(ctx, 1); ok {
		t.Error("Expected ledger to be empty after drop")
	}
}

func TestSQLitePragmasSurviveReconnect(t *testing.T) {
	store := newTestStore(t)

	readPragmas := func() (foreignKeys, busyTimeout int) {
		t.Helper()
		if err := store.db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
			t.Fatalf("Failed to read foreign_keys: %v", err)
		}
		if err := store.db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
			t.Fatalf("Failed to read busy_timeout: %v", err)
		}
		return foreignKeys, busyTimeout
	}

	if fk, busy := readPragmas(); fk != 1 || busy != 30000 {
		t.Fatalf("Expected foreign_keys=1 busy_timeout=30000, got %d and %d", fk, busy)
	}

	// Temp tables live on one connection, so the marker shows a reconnect
	if _, err := store.db.Exec("CREATE TEMP TABLE connection_marker (x INTEGER)"); err != nil {
		t.Fatalf("Failed to create marker: %v", err)
	}
	store.db.SetConnMaxLifetime(time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	defer store.db.SetConnMaxLifetime(0)

	if n := countRows(t, store, "SELECT COUNT(*) FROM sqlite_temp_master WHERE name = 'connection_marker'"); n != 0 {
		t.Fatal("Expected a fresh connection")
	}
	if fk, busy := readPragmas(); fk != 1 || busy != 30000 {
		t.Errorf("Expected pragmas on the new connection, got foreign_keys=%d busy_timeout=%d", fk, busy)
	}

	// Foreign keys are still enforced on the new connection
	err := store.WithTx(context.Background(), func(tx crawler.Tx) error {
		return tx.RecordDeferredLink(context.Background(), 404, 1)
	})
	if err == nil {
		t.Error("Expected a foreign key violation for an unknown addon")
	}
}
