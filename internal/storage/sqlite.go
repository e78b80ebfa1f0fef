// Package storage provides the catalog store backends: SQLite for a single
// local writer and PostgreSQL through a pgx pool.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/masahif/steamharvest/internal/catalog"
	"github.com/masahif/steamharvest/internal/crawler"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

var sqliteUpsertApp = upsertAppSQL(func(int) string { return "?" })

// sqlitePragmas run on every new connection
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"cache_size(-64000)", // 64MB cache
	"temp_store(MEMORY)",
	"busy_timeout(30000)", // 30 second timeout for locks
}

// sqliteDSN appends the connection pragmas to dbPath
func sqliteDSN(dbPath string) string {
	params := url.Values{"_pragma": sqlitePragmas}
	return dbPath + "?" + params.Encode()
}

// SQLiteStore implements crawler.Store using SQLite
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens or creates the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: one writer serializes get-or-create and resolution
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db, now: time.Now}

	if err := store.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// InitSchema creates the database schema
func (s *SQLiteStore) InitSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn in one transaction
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx crawler.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteTx{q: tx, now: s.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MarkProcessed records the current status of an app
func (s *SQLiteStore) MarkProcessed(ctx context.Context, id int64, status catalog.Status) error {
	return (&sqliteTx{q: s.db, now: s.now}).MarkProcessed(ctx, id, status)
}

// IsProcessed reports whether an app has a status other than failed
func (s *SQLiteStore) IsProcessed(ctx context.Context, id int64) (bool, error) {
	status, found, err := s.LookupStatus(ctx, id)
	if err != nil {
		return false, err
	}
	return found && status != catalog.StatusFailed, nil
}

// LookupStatus returns the current status of an app
func (s *SQLiteStore) LookupStatus(ctx context.Context, id int64) (catalog.Status, bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM scrape_status WHERE app_id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get status of app %d: %w", id, err)
	}
	return catalog.Status(status), true, nil
}

// ProcessedStatuses returns every ledger entry
func (s *SQLiteStore) ProcessedStatuses(ctx context.Context) (map[int64]catalog.Status, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT app_id, status FROM scrape_status")
	if err != nil {
		return nil, fmt.Errorf("failed to query statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	statuses := make(map[int64]catalog.Status)
	for rows.Next() {
		var id int64
		var status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		statuses[id] = catalog.Status(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read statuses: %w", err)
	}
	return statuses, nil
}

// StatusCounts returns the number of ledger entries per status
func (s *SQLiteStore) StatusCounts(ctx context.Context) (map[catalog.Status]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM scrape_status GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[catalog.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[catalog.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read status counts: %w", err)
	}
	return counts, nil
}

// ResolveDeferredLinks sets parent_id for every deferred pair whose parent
// is stored and removes exactly those pairs
func (s *SQLiteStore) ResolveDeferredLinks(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE apps
		SET parent_id = (
			SELECT MIN(p.parent_id) FROM pending_parent_links p
			JOIN apps g ON g.id = p.parent_id
			WHERE p.addon_id = apps.id
		), updated_at = ?
		WHERE id IN (
			SELECT p.addon_id FROM pending_parent_links p
			JOIN apps g ON g.id = p.parent_id
		)
	`, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to resolve deferred links: %w", err)
	}
	resolved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count resolved links: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM pending_parent_links
		WHERE EXISTS (
			SELECT 1 FROM apps a
			WHERE a.id = pending_parent_links.addon_id
			AND a.parent_id = pending_parent_links.parent_id
		)
	`); err != nil {
		return 0, fmt.Errorf("failed to clear resolved links: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit resolution: %w", err)
	}
	return resolved, nil
}

// PendingLinkCount returns the number of unresolved deferred links
func (s *SQLiteStore) PendingLinkCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_parent_links").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending links: %w", err)
	}
	return n, nil
}

// GetMeta retrieves a metadata value
func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM crawl_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value.String, nil
}

// SetMeta stores a metadata value
func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO crawl_meta (key, value, updated_at) VALUES (?, ?, ?)",
		key, value, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

// DropAll drops every catalog table
func (s *SQLiteStore) DropAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("failed to disable foreign keys: %w", err)
	}
	defer func() { _, _ = s.db.ExecContext(context.WithoutCancel(ctx), "PRAGMA foreign_keys = ON") }()

	for _, table := range dropOrder {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

// sqliteTx implements crawler.Tx on a transaction, or on the database for
// single statements
type sqliteTx struct {
	q   queryer
	now func() time.Time
}

func (t *sqliteTx) UpsertApp(ctx context.Context, app *catalog.App) error {
	if _, err := t.q.ExecContext(ctx, sqliteUpsertApp, appArgs(app, t.now())...); err != nil {
		return fmt.Errorf("failed to upsert app %d: %w", app.ID, err)
	}
	if app.ParentID != 0 {
		// A materialized parent supersedes any deferred one
		if _, err := t.q.ExecContext(ctx, "DELETE FROM pending_parent_links WHERE addon_id = ?", app.ID); err != nil {
			return fmt.Errorf("failed to clear deferred links of app %d: %w", app.ID, err)
		}
	}
	return nil
}

func (t *sqliteTx) AppExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := t.q.QueryRowContext(ctx, "SELECT 1 FROM apps WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check app %d: %w", id, err)
	}
	return true, nil
}

// LookupID inserts the name when missing, then selects its id
func (t *sqliteTx) LookupID(ctx context.Context, dim catalog.Dimension, name string) (int64, error) {
	if name == "" {
		return 0, ErrEmptyName
	}
	table, err := tableFor(dim)
	if err != nil {
		return 0, err
	}

	if _, err := t.q.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (name) VALUES (?) ON CONFLICT (name) DO NOTHING", table.lookup), name); err != nil {
		return 0, fmt.Errorf("failed to insert %s %q: %w", dim, name, err)
	}

	var id int64
	if err := t.q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE name = ?", table.lookup), name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get %s id for %q: %w", dim, name, err)
	}
	return id, nil
}

func (t *sqliteTx) LinkEntities(ctx context.Context, appID int64, dim catalog.Dimension, links []catalog.Link) error {
	if len(links) == 0 {
		return nil
	}
	table, err := tableFor(dim)
	if err != nil {
		return err
	}

	var query string
	switch dim {
	case catalog.DimLanguage:
		query = fmt.Sprintf(`INSERT INTO %s (app_id, %s, is_full_audio) VALUES (?, ?, ?)
			ON CONFLICT (app_id, %s) DO UPDATE SET is_full_audio = excluded.is_full_audio`,
			table.link, table.column, table.column)
	case catalog.DimTag:
		query = fmt.Sprintf(`INSERT INTO %s (app_id, %s, votes) VALUES (?, ?, ?)
			ON CONFLICT (app_id, %s) DO UPDATE SET votes = excluded.votes`,
			table.link, table.column, table.column)
	default:
		query = fmt.Sprintf("INSERT INTO %s (app_id, %s) VALUES (?, ?) ON CONFLICT DO NOTHING",
			table.link, table.column)
	}

	stmt, err := t.q.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, link := range links {
		args := []any{appID, link.EntityID}
		switch dim {
		case catalog.DimLanguage:
			args = append(args, link.FullAudio)
		case catalog.DimTag:
			args = append(args, link.Votes)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to link app %d to %s %d: %w", appID, dim, link.EntityID, err)
		}
	}
	return nil
}

// RecordDeferredLink keeps one deferred parent per addon, the latest one
func (t *sqliteTx) RecordDeferredLink(ctx context.Context, addonID, parentID int64) error {
	if _, err := t.q.ExecContext(ctx,
		"DELETE FROM pending_parent_links WHERE addon_id = ? AND parent_id <> ?", addonID, parentID); err != nil {
		return fmt.Errorf("failed to replace deferred link of app %d: %w", addonID, err)
	}
	if _, err := t.q.ExecContext(ctx, `
		INSERT INTO pending_parent_links (addon_id, parent_id, recorded_at) VALUES (?, ?, ?)
		ON CONFLICT (addon_id, parent_id) DO NOTHING
	`, addonID, parentID, t.now()); err != nil {
		return fmt.Errorf("failed to record deferred link %d -> %d: %w", addonID, parentID, err)
	}
	return nil
}

func (t *sqliteTx) UpsertAchievements(ctx context.Context, items []catalog.Achievement) error {
	if len(items) == 0 {
		return nil
	}

	stmt, err := t.q.PrepareContext(ctx, `
		INSERT INTO achievements (app_id, api_name, display_name, description, global_completion_rate)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (app_id, api_name) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			global_completion_rate = excluded.global_completion_rate
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, a := range items {
		if _, err := stmt.ExecContext(ctx, a.AppID, a.APIName, a.DisplayName, a.Description, a.CompletionRate); err != nil {
			return fmt.Errorf("failed to upsert achievement %s of app %d: %w", a.APIName, a.AppID, err)
		}
	}
	return nil
}

func (t *sqliteTx) UpsertReviews(ctx context.Context, appID int64, items []catalog.Review) error {
	if len(items) == 0 {
		return nil
	}

	reviewStmt, err := t.q.PrepareContext(ctx, `
		INSERT INTO reviews (recommendation_id, author_steam_id, language, body, voted_up,
			votes_up, votes_funny, weighted_vote_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (recommendation_id) DO UPDATE SET
			body = excluded.body,
			voted_up = excluded.voted_up,
			votes_up = excluded.votes_up,
			votes_funny = excluded.votes_funny,
			weighted_vote_score = excluded.weighted_vote_score
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = reviewStmt.Close() }()

	linkStmt, err := t.q.PrepareContext(ctx,
		"INSERT INTO app_reviews (app_id, recommendation_id) VALUES (?, ?) ON CONFLICT DO NOTHING")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = linkStmt.Close() }()

	for _, r := range items {
		if _, err := reviewStmt.ExecContext(ctx, r.RecommendationID, nullString(r.AuthorSteamID), r.Language, r.Body,
			r.VotedUp, r.VotesUp, r.VotesFunny, r.WeightedVoteScore, nullTime(r.CreatedAt)); err != nil {
			return fmt.Errorf("failed to upsert review %s: %w", r.RecommendationID, err)
		}
		if _, err := linkStmt.ExecContext(ctx, appID, r.RecommendationID); err != nil {
			return fmt.Errorf("failed to link review %s to app %d: %w", r.RecommendationID, appID, err)
		}
	}
	return nil
}

// MarkProcessed records the status, last write wins
func (t *sqliteTx) MarkProcessed(ctx context.Context, id int64, status catalog.Status) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO scrape_status (app_id, status, processed_at) VALUES (?, ?, ?)
		ON CONFLICT (app_id) DO UPDATE SET status = excluded.status, processed_at = excluded.processed_at
	`, id, string(status), t.now())
	if err != nil {
		return fmt.Errorf("failed to mark app %d as %s: %w", id, status, err)
	}
	return nil
}
