package crawler

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/masahif/steamharvest/internal/catalog"
	"github.com/masahif/steamharvest/internal/source"
)

// MockSource serves canned payloads and counts calls
type MockSource struct {
	mu sync.Mutex

	ids          []int64
	details      map[int64]*catalog.RawApp
	enrichment   map[int64]*catalog.RawEnrichment
	achievements map[int64][]catalog.RawAchievement
	reviews      map[int64][]catalog.RawReview

	// onDetails runs before every detail fetch
	onDetails func(id int64)

	calls      map[string]int
	fetched    []int64
	closeCalls int
}

func newMockSource(ids ...int64) *MockSource {
	return &MockSource{
		ids:          ids,
		details:      make(map[int64]*catalog.RawApp),
		enrichment:   make(map[int64]*catalog.RawEnrichment),
		achievements: make(map[int64][]catalog.RawAchievement),
		reviews:      make(map[int64][]catalog.RawReview),
		calls:        make(map[string]int),
	}
}

func (m *MockSource) count(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
}

func (m *MockSource) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockSource) Fetched() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.fetched...)
}

func (m *MockSource) AppIDs(ctx context.Context) source.Result[[]int64] {
	m.count("AppIDs")
	if len(m.ids) == 0 {
		return source.Result[[]int64]{Status: source.NotFound}
	}
	return source.Result[[]int64]{Value: m.ids, Status: source.Found}
}

func (m *MockSource) AppDetails(ctx context.Context, id int64) source.Result[*catalog.RawApp] {
	m.count("AppDetails")
	if m.onDetails != nil {
		m.onDetails(id)
	}
	m.mu.Lock()
	m.fetched = append(m.fetched, id)
	raw, ok := m.details[id]
	m.mu.Unlock()
	if ctx.Err() != nil {
		return source.Result[*catalog.RawApp]{Status: source.Failed, Err: ctx.Err()}
	}
	if !ok {
		return source.Result[*catalog.RawApp]{Status: source.NotFound}
	}
	return source.Result[*catalog.RawApp]{Value: raw, Status: source.Found}
}

func (m *MockSource) Enrichment(ctx context.Context, id int64) source.Result[*catalog.RawEnrichment] {
	m.count("Enrichment")
	m.mu.Lock()
	defer m.mu.Unlock()
	if enr, ok := m.enrichment[id]; ok {
		return source.Result[*catalog.RawEnrichment]{Value: enr, Status: source.Found}
	}
	return source.Result[*catalog.RawEnrichment]{Status: source.NotFound}
}

func (m *MockSource) AchievementSchema(ctx context.Context, id int64) source.Result[[]catalog.RawAchievement] {
	m.count("AchievementSchema")
	m.mu.Lock()
	defer m.mu.Unlock()
	if items, ok := m.achievements[id]; ok {
		return source.Result[[]catalog.RawAchievement]{Value: items, Status: source.Found}
	}
	return source.Result[[]catalog.RawAchievement]{Status: source.NotFound}
}

func (m *MockSource) GlobalAchievementRates(ctx context.Context, id int64) source.Result[map[string]float64] {
	m.count("GlobalAchievementRates")
	return source.Result[map[string]float64]{Value: map[string]float64{"ACH_WIN": 55.5}, Status: source.Found}
}

func (m *MockSource) Reviews(ctx context.Context, id int64) source.Result[[]catalog.RawReview] {
	m.count("Reviews")
	m.mu.Lock()
	defer m.mu.Unlock()
	if items, ok := m.reviews[id]; ok {
		return source.Result[[]catalog.RawReview]{Value: items, Status: source.Found}
	}
	return source.Result[[]catalog.RawReview]{Status: source.NotFound}
}

func (m *MockSource) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
}

var errMockWrite = errors.New("mock write failure")

// MockStore is an in-memory Store. WithTx restores a snapshot when fn fails.
type MockStore struct {
	mu sync.Mutex

	apps     map[int64]catalog.App
	lookups  map[catalog.Dimension]map[string]int64
	links    map[catalog.Dimension]map[[2]int64]catalog.Link
	pending  map[int64]int64
	statuses map[int64]catalog.Status
	meta     map[string]string

	achievements int
	reviews      int
	nextID       int64

	// failApps makes UpsertApp fail for these ids
	failApps map[int64]bool

	resolveCalls int
	closeCalls   int
}

func newMockStore() *MockStore {
	return &MockStore{
		apps:     make(map[int64]catalog.App),
		lookups:  make(map[catalog.Dimension]map[string]int64),
		links:    make(map[catalog.Dimension]map[[2]int64]catalog.Link),
		pending:  make(map[int64]int64),
		statuses: make(map[int64]catalog.Status),
		meta:     make(map[string]string),
		failApps: make(map[int64]bool),
	}
}

func (m *MockStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	apps := maps.Clone(m.apps)
	pending := maps.Clone(m.pending)
	statuses := maps.Clone(m.statuses)
	achievements, reviews := m.achievements, m.reviews

	if err := fn(&mockTx{store: m}); err != nil {
		m.apps, m.pending, m.statuses = apps, pending, statuses
		m.achievements, m.reviews = achievements, reviews
		return err
	}
	return nil
}

func (m *MockStore) MarkProcessed(ctx context.Context, id int64, status catalog.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = status
	return nil
}

func (m *MockStore) IsProcessed(ctx context.Context, id int64) (bool, error) {
	status, found, err := m.LookupStatus(ctx, id)
	return found && status != catalog.StatusFailed, err
}

func (m *MockStore) LookupStatus(ctx context.Context, id int64) (catalog.Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.statuses[id]
	return status, ok, nil
}

func (m *MockStore) ProcessedStatuses(ctx context.Context) (map[int64]catalog.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.statuses), nil
}

func (m *MockStore) StatusCounts(ctx context.Context) (map[catalog.Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[catalog.Status]int64)
	for _, status := range m.statuses {
		counts[status]++
	}
	return counts, nil
}

func (m *MockStore) ResolveDeferredLinks(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveCalls++

	var resolved int64
	for addon, parent := range m.pending {
		if _, ok := m.apps[parent]; !ok {
			continue
		}
		app := m.apps[addon]
		app.ParentID = parent
		m.apps[addon] = app
		delete(m.pending, addon)
		resolved++
	}
	return resolved, nil
}

func (m *MockStore) PendingLinkCount(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pending)), nil
}

func (m *MockStore) GetMeta(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[key], nil
}

func (m *MockStore) SetMeta(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
	return nil
}

func (m *MockStore) DropAll(ctx context.Context) error {
	return nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

func (m *MockStore) Status(id int64) (catalog.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.statuses[id]
	return status, ok
}

func (m *MockStore) App(id int64) (catalog.App, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	return app, ok
}

// mockTx runs with the store mutex held by WithTx
type mockTx struct {
	store *MockStore
}

func (t *mockTx) UpsertApp(ctx context.Context, app *catalog.App) error {
	if t.store.failApps[app.ID] {
		return errMockWrite
	}
	stored := *app
	if old, ok := t.store.apps[app.ID]; ok && stored.ParentID == 0 {
		stored.ParentID = old.ParentID
	}
	t.store.apps[app.ID] = stored
	if app.ParentID != 0 {
		delete(t.store.pending, app.ID)
	}
	return nil
}

func (t *mockTx) AppExists(ctx context.Context, id int64) (bool, error) {
	_, ok := t.store.apps[id]
	return ok, nil
}

func (t *mockTx) LookupID(ctx context.Context, dim catalog.Dimension, name string) (int64, error) {
	names, ok := t.store.lookups[dim]
	if !ok {
		names = make(map[string]int64)
		t.store.lookups[dim] = names
	}
	if id, ok := names[name]; ok {
		return id, nil
	}
	t.store.nextID++
	names[name] = t.store.nextID
	return t.store.nextID, nil
}

func (t *mockTx) LinkEntities(ctx context.Context, appID int64, dim catalog.Dimension, links []catalog.Link) error {
	pairs, ok := t.store.links[dim]
	if !ok {
		pairs = make(map[[2]int64]catalog.Link)
		t.store.links[dim] = pairs
	}
	for _, link := range links {
		pairs[[2]int64{appID, link.EntityID}] = link
	}
	return nil
}

func (t *mockTx) RecordDeferredLink(ctx context.Context, addonID, parentID int64) error {
	t.store.pending[addonID] = parentID
	return nil
}

func (t *mockTx) UpsertAchievements(ctx context.Context, items []catalog.Achievement) error {
	t.store.achievements += len(items)
	return nil
}

func (t *mockTx) UpsertReviews(ctx context.Context, appID int64, items []catalog.Review) error {
	t.store.reviews += len(items)
	return nil
}

func (t *mockTx) MarkProcessed(ctx context.Context, id int64, status catalog.Status) error {
	t.store.statuses[id] = status
	return nil
}
