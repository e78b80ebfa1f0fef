// Package crawler drives the harvest loop. It walks the app universe minus
// the processing ledger in random order, fetches and normalizes each app,
// persists it as one unit of work and paces requests. On shutdown it
// resolves deferred parent links once and releases the store and source.
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/masahif/steamharvest/internal/catalog"
	"github.com/masahif/steamharvest/internal/config"
	"github.com/masahif/steamharvest/internal/metrics"
	"github.com/masahif/steamharvest/internal/parser"
	"github.com/masahif/steamharvest/internal/source"
)

// ErrEmptyUniverse is returned when the source lists no app ids
var ErrEmptyUniverse = errors.New("app universe is empty")

// errInterrupted marks an item abandoned because the context ended
var errInterrupted = errors.New("item interrupted")

// Option customizes a Crawler
type Option func(*Crawler)

// WithRand sets the random source used to shuffle the schedule
func WithRand(r *rand.Rand) Option {
	return func(c *Crawler) { c.rng = r }
}

// WithProgress renders a progress line to w after every item
func WithProgress(w io.Writer) Option {
	return func(c *Crawler) { c.progress = w }
}

// WithSleep replaces the pause function
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Crawler) { c.sleep = sleep }
}

// Crawler runs one harvest session
type Crawler struct {
	cfg    *config.CrawlConfig
	source Source
	store  Store
	logger *slog.Logger

	rng      *rand.Rand
	progress io.Writer
	sleep    func(ctx context.Context, d time.Duration) error
	pacer    *rate.Limiter // shared by workers, nil for a single worker

	stats      Stats
	statsMutex sync.RWMutex

	resolveOnce sync.Once
	stopOnce    sync.Once
	stopErr     error
}

// New creates a crawler over src and store
func New(cfg *config.CrawlConfig, src Source, store Store, logger *slog.Logger, opts ...Option) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Crawler{
		cfg:    cfg,
		source: src,
		store:  store,
		logger: logger,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		seed := uint64(cfg.Seed)
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		c.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if cfg.Concurrency > 1 && cfg.RequestDelay > 0 {
		// Two tokens per full pause, one per half pause
		c.pacer = rate.NewLimiter(rate.Every(cfg.RequestDelay/2), 2)
	}
	return c
}

// Run executes one session until the schedule is exhausted, the limit is
// reached or ctx is cancelled. Cancellation is not an error.
func (c *Crawler) Run(ctx context.Context) (err error) {
	metrics.Init()
	defer func() {
		c.shutdown(ctx)
		if stopErr := c.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	c.beginSession(ctx)

	universe := c.source.AppIDs(ctx)
	if ctx.Err() != nil {
		c.logger.Info("Crawl cancelled before start")
		return nil
	}
	if !universe.OK() || len(universe.Value) == 0 {
		if universe.Err != nil {
			return fmt.Errorf("%w: %v", ErrEmptyUniverse, universe.Err)
		}
		return ErrEmptyUniverse
	}

	statuses, err := c.store.ProcessedStatuses(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to load processing status: %w", err)
	}

	remaining := c.schedule(universe.Value, statuses)
	c.statsMutex.Lock()
	c.stats.Universe = int64(len(universe.Value))
	c.stats.Processed = int64(len(universe.Value) - len(remaining))
	c.stats.Remaining = int64(len(remaining))
	c.statsMutex.Unlock()
	metrics.SetProgress(c.stats.Processed, c.stats.Remaining)

	c.logger.Info("Starting crawl",
		"universe", len(universe.Value),
		"processed", len(universe.Value)-len(remaining),
		"remaining", len(remaining),
		"concurrency", c.cfg.Concurrency,
		"limit", c.cfg.Limit,
	)

	reporterCtx, stopReporter := context.WithCancel(ctx)
	var reporter sync.WaitGroup
	reporter.Add(1)
	go func() {
		defer reporter.Done()
		c.statsReporter(reporterCtx)
	}()

	if c.cfg.Concurrency > 1 {
		c.runWorkers(ctx, remaining)
	} else {
		for _, id := range remaining {
			if ctx.Err() != nil || c.limitReached() {
				break
			}
			c.visit(ctx, 0, id)
		}
	}

	stopReporter()
	reporter.Wait()

	if ctx.Err() != nil {
		c.logger.Info("Crawl cancelled")
	} else {
		c.logger.Info("Crawl completed")
	}
	return nil
}

// Stop releases the store and the source. It is safe to call more than
// once; only the first call has an effect.
func (c *Crawler) Stop() error {
	c.stopOnce.Do(func() {
		c.source.Close()
		if err := c.store.Close(); err != nil {
			c.stopErr = fmt.Errorf("failed to close store: %w", err)
		}
	})
	return c.stopErr
}

// GetStats returns a snapshot of the session statistics
func (c *Crawler) GetStats() Stats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()

	stats := c.stats
	stats.Duration = time.Since(stats.StartTime)
	return stats
}

// schedule subtracts processed ids from the universe and shuffles the rest
func (c *Crawler) schedule(universe []int64, statuses map[int64]catalog.Status) []int64 {
	remaining := make([]int64, 0, len(universe))
	for _, id := range universe {
		if status, ok := statuses[id]; ok && c.done(status) {
			continue
		}
		remaining = append(remaining, id)
	}
	c.rng.Shuffle(len(remaining), func(i, j int) {
		remaining[i], remaining[j] = remaining[j], remaining[i]
	})
	return remaining
}

// done reports whether a ledger status excludes the id from this session
func (c *Crawler) done(status catalog.Status) bool {
	switch status {
	case catalog.StatusFailed:
		return false
	case catalog.StatusUnavailable:
		return !c.cfg.RetryUnavailable
	default:
		return true
	}
}

// runWorkers feeds ids to the configured number of workers
func (c *Crawler) runWorkers(ctx context.Context, remaining []int64) {
	ids := make(chan int64)
	var wg sync.WaitGroup

	for i := 0; i < c.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.logger.Debug("Worker started", "worker_id", workerID)
			for id := range ids {
				c.visit(ctx, workerID, id)
			}
			c.logger.Debug("Worker stopped", "worker_id", workerID)
		}(i)
	}

feed:
	for _, id := range remaining {
		if c.limitReached() {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case ids <- id:
		}
	}
	close(ids)
	wg.Wait()
}

// visit processes one id and records the outcome in the session stats
func (c *Crawler) visit(ctx context.Context, workerID int, id int64) {
	if ctx.Err() != nil || c.limitReached() {
		return
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	c.statsMutex.Lock()
	c.stats.Visited++
	c.statsMutex.Unlock()

	status, err := c.processApp(ctx, id)
	switch {
	case errors.Is(err, errInterrupted):
		c.logger.Debug("App interrupted", "worker_id", workerID, "app_id", id)
		return
	case err != nil:
		c.logger.Error("Failed to record app status", "worker_id", workerID, "app_id", id, "error", err)
		return
	case status == "":
		return
	}

	c.record(status)
	metrics.ObserveApp(string(status))
	c.logger.Info("Processed app", "worker_id", workerID, "app_id", id, "status", string(status))
	c.renderProgress()
}

// processApp runs the per-item state machine. An empty status means the
// ledger already had a terminal entry.
func (c *Crawler) processApp(ctx context.Context, id int64) (catalog.Status, error) {
	current, found, err := c.store.LookupStatus(ctx, id)
	if err != nil {
		return "", c.interruptedOr(ctx, fmt.Errorf("failed to check status of app %d: %w", id, err))
	}
	if found && c.done(current) {
		return "", nil
	}

	detail := c.source.AppDetails(ctx, id)
	if ctx.Err() != nil {
		return "", errInterrupted
	}
	if !detail.OK() || detail.Value == nil {
		if err := c.pause(ctx, c.cfg.RequestDelay); err != nil {
			return "", errInterrupted
		}
		return c.mark(ctx, id, catalog.StatusUnavailable)
	}

	if err := c.pause(ctx, c.cfg.RequestDelay/2); err != nil {
		return "", errInterrupted
	}

	kind, supported := parser.Classify(detail.Value)
	if !supported {
		return c.mark(ctx, id, catalog.SkippedStatus(string(kind)))
	}

	var enrichment *catalog.RawEnrichment
	if kind == catalog.KindGame && c.cfg.Steam.UseSteamSpy {
		if res := c.source.Enrichment(ctx, id); res.OK() {
			enrichment = res.Value
		}
	}

	rec := parser.NormalizeApp(id, detail.Value, enrichment)

	var achievements []catalog.Achievement
	if rec.App.AchievementsCount > 0 {
		achievements = c.fetchAchievements(ctx, rec.App.ID)
	}

	var reviews []catalog.Review
	if res := c.source.Reviews(ctx, rec.App.ID); res.OK() {
		reviews = parser.NormalizeReviews(res.Value)
	}

	if ctx.Err() != nil {
		return "", errInterrupted
	}

	status := catalog.StatusSuccess
	if err := c.persist(ctx, id, rec, achievements, reviews); err != nil {
		if ctx.Err() != nil {
			return "", errInterrupted
		}
		c.logger.Error("Failed to persist app", "app_id", id, "error", err)
		metrics.ObservePersistFailure()
		if _, markErr := c.mark(ctx, id, catalog.StatusFailed); markErr != nil {
			return "", markErr
		}
		status = catalog.StatusFailed
	}

	// The status is already durable, an interrupted pause changes nothing
	_ = c.pause(ctx, c.cfg.RequestDelay)
	return status, nil
}

func (c *Crawler) fetchAchievements(ctx context.Context, appID int64) []catalog.Achievement {
	schema := c.source.AchievementSchema(ctx, appID)
	if !schema.OK() {
		return nil
	}
	var rates map[string]float64
	if res := c.source.GlobalAchievementRates(ctx, appID); res.OK() {
		rates = res.Value
	}
	return parser.NormalizeAchievements(appID, schema.Value, rates)
}

// mark writes a terminal status outside a unit of work
func (c *Crawler) mark(ctx context.Context, id int64, status catalog.Status) (catalog.Status, error) {
	if err := c.store.MarkProcessed(ctx, id, status); err != nil {
		return "", c.interruptedOr(ctx, err)
	}
	return status, nil
}

func (c *Crawler) interruptedOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errInterrupted
	}
	return err
}

// pause waits d, through the shared pacer when several workers run
func (c *Crawler) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if c.pacer != nil {
		n := 1
		if d >= c.cfg.RequestDelay {
			n = 2
		}
		return c.pacer.WaitN(ctx, n)
	}
	return c.sleep(ctx, d)
}

func (c *Crawler) record(status catalog.Status) {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()

	switch {
	case status == catalog.StatusSuccess:
		c.stats.Succeeded++
	case status == catalog.StatusUnavailable:
		c.stats.Unavailable++
	case status == catalog.StatusFailed:
		c.stats.Failed++
		return
	case status.Skipped():
		c.stats.Skipped++
	}
	c.stats.NewlyDone++
	if c.stats.Remaining > 0 {
		c.stats.Remaining--
	}
	c.stats.Processed++
	metrics.SetProgress(c.stats.Processed, c.stats.Remaining)
}

// limitReached checks if the session limit is reached
func (c *Crawler) limitReached() bool {
	if c.cfg.Limit <= 0 {
		return false
	}
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats.NewlyDone >= int64(c.cfg.Limit)
}

// beginSession stores a fresh session id
func (c *Crawler) beginSession(ctx context.Context) {
	c.statsMutex.Lock()
	c.stats.SessionID = uuid.NewString()
	c.stats.StartTime = time.Now()
	c.statsMutex.Unlock()

	if err := c.store.SetMeta(ctx, MetaSessionID, c.stats.SessionID); err != nil {
		c.logger.Warn("Failed to store session id", "error", err)
	}
	if err := c.store.SetMeta(ctx, MetaSessionStarted, c.stats.StartTime.UTC().Format(time.RFC3339)); err != nil {
		c.logger.Warn("Failed to store session start", "error", err)
	}
}

// shutdown resolves deferred links exactly once and records the summary.
// It runs on a context that ignores cancellation.
func (c *Crawler) shutdown(ctx context.Context) {
	c.resolveOnce.Do(func() {
		ctx = context.WithoutCancel(ctx)

		resolved, err := c.store.ResolveDeferredLinks(ctx)
		if err != nil {
			c.logger.Error("Failed to resolve deferred links", "error", err)
		} else {
			metrics.ObserveResolvedLinks(resolved)
			c.statsMutex.Lock()
			c.stats.ResolvedLinks = resolved
			c.statsMutex.Unlock()
		}

		stats := c.GetStats()
		c.finishProgress()
		c.logger.Info("Crawl summary",
			"session_id", stats.SessionID,
			"visited", stats.Visited,
			"newly_done", stats.NewlyDone,
			"succeeded", stats.Succeeded,
			"unavailable", stats.Unavailable,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
			"resolved_links", stats.ResolvedLinks,
			"duration", stats.Duration,
		)

		if summary, err := json.Marshal(stats); err == nil {
			if err := c.store.SetMeta(ctx, MetaLastSummary, string(summary)); err != nil {
				c.logger.Warn("Failed to store session summary", "error", err)
			}
		}
	})
}

// statsReporter periodically reports crawling statistics
func (c *Crawler) statsReporter(ctx context.Context) {
	interval := c.cfg.StatsInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.GetStats()
			pending, err := c.store.PendingLinkCount(ctx)
			if err != nil && ctx.Err() == nil {
				c.logger.Warn("Failed to count pending links", "error", err)
			}
			c.logger.Info("Crawling stats",
				"processed", stats.Processed,
				"remaining", stats.Remaining,
				"new", stats.NewlyDone,
				"failed", stats.Failed,
				"pending_links", pending,
				"duration", stats.Duration,
			)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Source = (*source.Client)(nil)
