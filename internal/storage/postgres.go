package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/masahif/steamharvest/internal/catalog"
	"github.com/masahif/steamharvest/internal/config"
	"github.com/masahif/steamharvest/internal/crawler"
)

// pgQuerier is satisfied by *pgxpool.Pool and pgx.Tx
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgPool is the part of a pgx pool the store uses
type pgPool interface {
	pgQuerier
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

var postgresUpsertApp = upsertAppSQL(func(i int) string { return fmt.Sprintf("$%d", i) })

// PostgresStore implements crawler.Store using PostgreSQL
type PostgresStore struct {
	pool pgPool
	now  func() time.Time
}

// NewPostgresStore connects to cfg.DSN and creates the schema
func NewPostgresStore(ctx context.Context, cfg config.StorageConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := NewPostgresStoreWithPool(pool)
	if err := store.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewPostgresStoreWithPool wraps an existing pool without touching the schema
func NewPostgresStoreWithPool(pool pgPool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// InitSchema creates the database schema
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// WithTx runs fn in one transaction
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx crawler.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(&pgTx{q: tx, now: s.now}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MarkProcessed records the current status of an app
func (s *PostgresStore) MarkProcessed(ctx context.Context, id int64, status catalog.Status) error {
	return (&pgTx{q: s.pool, now: s.now}).MarkProcessed(ctx, id, status)
}

// IsProcessed reports whether an app has a status other than failed
func (s *PostgresStore) IsProcessed(ctx context.Context, id int64) (bool, error) {
	status, found, err := s.LookupStatus(ctx, id)
	if err != nil {
		return false, err
	}
	return found && status != catalog.StatusFailed, nil
}

// LookupStatus returns the current status of an app
func (s *PostgresStore) LookupStatus(ctx context.Context, id int64) (catalog.Status, bool, error) {
	var status string
	err := s.pool.QueryRow(ctx, "SELECT status FROM scrape_status WHERE app_id = $1", id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get status of app %d: %w", id, err)
	}
	return catalog.Status(status), true, nil
}

// ProcessedStatuses returns every ledger entry
func (s *PostgresStore) ProcessedStatuses(ctx context.Context) (map[int64]catalog.Status, error) {
	rows, err := s.pool.Query(ctx, "SELECT app_id, status FROM scrape_status")
	if err != nil {
		return nil, fmt.Errorf("failed to query statuses: %w", err)
	}
	defer rows.Close()

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
func (s *PostgresStore) StatusCounts(ctx context.Context) (map[catalog.Status]int64, error) {
	rows, err := s.pool.Query(ctx, "SELECT status, COUNT(*) FROM scrape_status GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}
	defer rows.Close()

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
// is stored and removes exactly those pairs, in one transaction
func (s *PostgresStore) ResolveDeferredLinks(ctx context.Context) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	tag, err := tx.Exec(ctx, `
		UPDATE apps a
		SET parent_id = r.parent_id, updated_at = $1
		FROM (
			SELECT p.addon_id, MIN(p.parent_id) AS parent_id
			FROM pending_parent_links p
			JOIN apps g ON g.id = p.parent_id
			GROUP BY p.addon_id
		) r
		WHERE a.id = r.addon_id
	`, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to resolve deferred links: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM pending_parent_links p
		USING apps a
		WHERE a.id = p.addon_id AND a.parent_id = p.parent_id
	`); err != nil {
		return 0, fmt.Errorf("failed to clear resolved links: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit resolution: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PendingLinkCount returns the number of unresolved deferred links
func (s *PostgresStore) PendingLinkCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM pending_parent_links").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending links: %w", err)
	}
	return n, nil
}

// GetMeta retrieves a metadata value
func (s *PostgresStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value *string
	err := s.pool.QueryRow(ctx, "SELECT value FROM crawl_meta WHERE key = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

// SetMeta stores a metadata value
func (s *PostgresStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO crawl_meta (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value, s.now())
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

// DropAll drops every catalog table
func (s *PostgresStore) DropAll(ctx context.Context) error {
	for _, table := range dropOrder {
		if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

// pgTx implements crawler.Tx on a transaction, or on the pool for single
// statements
type pgTx struct {
	q   pgQuerier
	now func() time.Time
}

func (t *pgTx) UpsertApp(ctx context.Context, app *catalog.App) error {
	if _, err := t.q.Exec(ctx, postgresUpsertApp, appArgs(app, t.now())...); err != nil {
		return fmt.Errorf("failed to upsert app %d: %w", app.ID, err)
	}
	if app.ParentID != 0 {
		if _, err := t.q.Exec(ctx, "DELETE FROM pending_parent_links WHERE addon_id = $1", app.ID); err != nil {
			return fmt.Errorf("failed to clear deferred links of app %d: %w", app.ID, err)
		}
	}
	return nil
}

func (t *pgTx) AppExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM apps WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check app %d: %w", id, err)
	}
	return exists, nil
}

// LookupID is one atomic get-or-create. The no-op update makes RETURNING
// yield the existing row on conflict.
func (t *pgTx) LookupID(ctx context.Context, dim catalog.Dimension, name string) (int64, error) {
	if name == "" {
		return 0, ErrEmptyName
	}
	table, err := tableFor(dim)
	if err != nil {
		return 0, err
	}

	var id int64
	err = t.q.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, table.lookup), name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get %s id for %q: %w", dim, name, err)
	}
	return id, nil
}

func (t *pgTx) LinkEntities(ctx context.Context, appID int64, dim catalog.Dimension, links []catalog.Link) error {
	if len(links) == 0 {
		return nil
	}
	table, err := tableFor(dim)
	if err != nil {
		return err
	}

	for _, link := range links {
		var err error
		switch dim {
		case catalog.DimLanguage:
			_, err = t.q.Exec(ctx, fmt.Sprintf(`
				INSERT INTO %s (app_id, %s, is_full_audio) VALUES ($1, $2, $3)
				ON CONFLICT (app_id, %s) DO UPDATE SET is_full_audio = EXCLUDED.is_full_audio
			`, table.link, table.column, table.column), appID, link.EntityID, link.FullAudio)
		case catalog.DimTag:
			_, err = t.q.Exec(ctx, fmt.Sprintf(`
				INSERT INTO %s (app_id, %s, votes) VALUES ($1, $2, $3)
				ON CONFLICT (app_id, %s) DO UPDATE SET votes = EXCLUDED.votes
			`, table.link, table.column, table.column), appID, link.EntityID, link.Votes)
		default:
			_, err = t.q.Exec(ctx, fmt.Sprintf(
				"INSERT INTO %s (app_id, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING",
				table.link, table.column), appID, link.EntityID)
		}
		if err != nil {
			return fmt.Errorf("failed to link app %d to %s %d: %w", appID, dim, link.EntityID, err)
		}
	}
	return nil
}

func (t *pgTx) RecordDeferredLink(ctx context.Context, addonID, parentID int64) error {
	if _, err := t.q.Exec(ctx,
		"DELETE FROM pending_parent_links WHERE addon_id = $1 AND parent_id <> $2", addonID, parentID); err != nil {
		return fmt.Errorf("failed to replace deferred link of app %d: %w", addonID, err)
	}
	if _, err := t.q.Exec(ctx, `
		INSERT INTO pending_parent_links (addon_id, parent_id, recorded_at) VALUES ($1, $2, $3)
		ON CONFLICT (addon_id, parent_id) DO NOTHING
	`, addonID, parentID, t.now()); err != nil {
		return fmt.Errorf("failed to record deferred link %d -> %d: %w", addonID, parentID, err)
	}
	return nil
}

func (t *pgTx) UpsertAchievements(ctx context.Context, items []catalog.Achievement) error {
	for _, a := range items {
		_, err := t.q.Exec(ctx, `
			INSERT INTO achievements (app_id, api_name, display_name, description, global_completion_rate)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (app_id, api_name) DO UPDATE SET
				display_name = EXCLUDED.display_name,
				description = EXCLUDED.description,
				global_completion_rate = EXCLUDED.global_completion_rate
		`, a.AppID, a.APIName, a.DisplayName, a.Description, a.CompletionRate)
		if err != nil {
			return fmt.Errorf("failed to upsert achievement %s of app %d: %w", a.APIName, a.AppID, err)
		}
	}
	return nil
}

func (t *pgTx) UpsertReviews(ctx context.Context, appID int64, items []catalog.Review) error {
	for _, r := range items {
		_, err := t.q.Exec(ctx, `
			INSERT INTO reviews (recommendation_id, author_steam_id, language, body, voted_up,
				votes_up, votes_funny, weighted_vote_score, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (recommendation_id) DO UPDATE SET
				body = EXCLUDED.body,
				voted_up = EXCLUDED.voted_up,
				votes_up = EXCLUDED.votes_up,
				votes_funny = EXCLUDED.votes_funny,
				weighted_vote_score = EXCLUDED.weighted_vote_score
		`, r.RecommendationID, nullString(r.AuthorSteamID), r.Language, r.Body,
			r.VotedUp, r.VotesUp, r.VotesFunny, r.WeightedVoteScore, nullTime(r.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert review %s: %w", r.RecommendationID, err)
		}
		if _, err := t.q.Exec(ctx,
			"INSERT INTO app_reviews (app_id, recommendation_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			appID, r.RecommendationID); err != nil {
			return fmt.Errorf("failed to link review %s to app %d: %w", r.RecommendationID, appID, err)
		}
	}
	return nil
}

func (t *pgTx) MarkProcessed(ctx context.Context, id int64, status catalog.Status) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO scrape_status (app_id, status, processed_at) VALUES ($1, $2, $3)
		ON CONFLICT (app_id) DO UPDATE SET status = EXCLUDED.status, processed_at = EXCLUDED.processed_at
	`, id, string(status), t.now())
	if err != nil {
		return fmt.Errorf("failed to mark app %d as %s: %w", id, status, err)
	}
	return nil
}
