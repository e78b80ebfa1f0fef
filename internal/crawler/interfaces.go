package crawler

import (
	"context"

	"github.com/masahif/steamharvest/internal/catalog"
	"github.com/masahif/steamharvest/internal/source"
)

// Source fetches raw payloads. *source.Client implements it.
type Source interface {
	AppIDs(ctx context.Context) source.Result[[]int64]
	AppDetails(ctx context.Context, id int64) source.Result[*catalog.RawApp]
	Enrichment(ctx context.Context, id int64) source.Result[*catalog.RawEnrichment]
	AchievementSchema(ctx context.Context, id int64) source.Result[[]catalog.RawAchievement]
	GlobalAchievementRates(ctx context.Context, id int64) source.Result[map[string]float64]
	Reviews(ctx context.Context, id int64) source.Result[[]catalog.RawReview]
	Close()
}

// Tx is one unit of work on the catalog. Nothing it writes is visible
// until the enclosing WithTx returns nil.
type Tx interface {
	// UpsertApp inserts or updates an app by id. A zero ParentID keeps
	// the stored parent.
	UpsertApp(ctx context.Context, app *catalog.App) error
	AppExists(ctx context.Context, id int64) (bool, error)

	// LookupID returns the surrogate id of a named entity, creating it on
	// first sight
	LookupID(ctx context.Context, dim catalog.Dimension, name string) (int64, error)
	LinkEntities(ctx context.Context, appID int64, dim catalog.Dimension, links []catalog.Link) error
	RecordDeferredLink(ctx context.Context, addonID, parentID int64) error

	UpsertAchievements(ctx context.Context, items []catalog.Achievement) error
	UpsertReviews(ctx context.Context, appID int64, items []catalog.Review) error

	MarkProcessed(ctx context.Context, id int64, status catalog.Status) error
}

// Store owns all durable state
type Store interface {
	// WithTx runs fn in one transaction, committing when fn returns nil
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Processing status ledger
	MarkProcessed(ctx context.Context, id int64, status catalog.Status) error
	IsProcessed(ctx context.Context, id int64) (bool, error)
	LookupStatus(ctx context.Context, id int64) (catalog.Status, bool, error)
	ProcessedStatuses(ctx context.Context) (map[int64]catalog.Status, error)
	StatusCounts(ctx context.Context) (map[catalog.Status]int64, error)

	// Deferred parent links
	ResolveDeferredLinks(ctx context.Context) (int64, error)
	PendingLinkCount(ctx context.Context) (int64, error)

	// Meta-data management
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	// Database lifecycle
	DropAll(ctx context.Context) error
	Close() error
}
