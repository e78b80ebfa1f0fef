package storage

import "github.com/masahif/steamharvest/internal/catalog"

// dimensionTable names the lookup table, the link table and the link
// column of one dimension
type dimensionTable struct {
	lookup string
	link   string
	column string
}

var dimensionTables = map[catalog.Dimension]dimensionTable{
	catalog.DimDeveloper: {lookup: "developers", link: "app_developers", column: "developer_id"},
	catalog.DimPublisher: {lookup: "publishers", link: "app_publishers", column: "publisher_id"},
	catalog.DimCategory:  {lookup: "categories", link: "app_categories", column: "category_id"},
	catalog.DimGenre:     {lookup: "genres", link: "app_genres", column: "genre_id"},
	catalog.DimLanguage:  {lookup: "languages", link: "app_languages", column: "language_id"},
	catalog.DimTag:       {lookup: "tags", link: "app_tags", column: "tag_id"},
}

// dropOrder lists every table so that dependents go first
var dropOrder = []string{
	"app_reviews",
	"reviews",
	"achievements",
	"app_developers",
	"app_publishers",
	"app_categories",
	"app_genres",
	"app_languages",
	"app_tags",
	"pending_parent_links",
	"scrape_status",
	"developers",
	"publishers",
	"categories",
	"genres",
	"languages",
	"tags",
	"apps",
	"crawl_meta",
}

const schemaSQL = `
-- One row per stored app; parent_id is set for dlc once its base game exists
CREATE TABLE IF NOT EXISTS apps (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    parent_id INTEGER REFERENCES apps(id),
    release_date TEXT,
    price REAL NOT NULL DEFAULT 0,
    positive_reviews INTEGER NOT NULL DEFAULT 0,
    negative_reviews INTEGER NOT NULL DEFAULT 0,
    recommendations INTEGER NOT NULL DEFAULT 0,
    peak_ccu INTEGER NOT NULL DEFAULT 0,
    metacritic_score INTEGER NOT NULL DEFAULT 0,
    metacritic_url TEXT,
    required_age INTEGER NOT NULL DEFAULT 0,
    achievements_count INTEGER NOT NULL DEFAULT 0,
    supports_windows BOOLEAN NOT NULL DEFAULT 0,
    supports_mac BOOLEAN NOT NULL DEFAULT 0,
    supports_linux BOOLEAN NOT NULL DEFAULT 0,
    header_image_url TEXT,
    website_url TEXT,
    estimated_owners TEXT,
    user_score INTEGER NOT NULL DEFAULT 0,
    score_rank TEXT,
    about_the_game TEXT,
    detailed_description TEXT,
    short_description TEXT,
    reviews_summary TEXT,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_apps_type ON apps(type);
CREATE INDEX IF NOT EXISTS idx_apps_parent ON apps(parent_id);

-- Lookup tables
CREATE TABLE IF NOT EXISTS developers (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS publishers (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS categories (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS genres (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS languages (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS tags (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT UNIQUE NOT NULL);

-- Link tables
CREATE TABLE IF NOT EXISTS app_developers (
    app_id INTEGER NOT NULL REFERENCES apps(id),
    developer_id INTEGER NOT NULL REFERENCES developers(id),
    PRIMARY KEY (app_id, developer_id)
);
CREATE TABLE IF NOT EXISTS app_publishers (
    app_id INTEGER NOT NULL REFERENCES apps(id),
    publisher_id INTEGER NOT NULL REFERENCES publishers(id),
    PRIMARY KEY (app_id, publisher_id)
);
CREATE TABLE IF NOT EXISTS app_categories (
    app_id INTEGER NOT NULL REFERENCES apps(id),
    category_id INTEGER NOT NULL REFERENCES categories(id),
    PRIMARY KEY (app_id, category_id)
);
CREATE TABLE IF NOT EXISTS app_genres (
    app_id INTEGER NOT NULL REFERENCES apps(id),
    genre_id INTEGER NOT NULL REFERENCES genres(id),
    PRIMARY KEY (app_id, genre_id)
);
CREATE TABLE IF NOT EXISTS app_languages (
    app_id INTEGER NOT NULL REFERENCES apps(id),
    language_id INTEGER NOT NULL REFERENCES languages(id),
    is_full_audio BOOLEAN NOT NULL DEFAULT 0,
    PRIMARY KEY (app_id, language_id)
);
CREATE TABLE IF NOT EXISTS app_tags (
    app_id INTEGER NOT NULL REFERENCES apps(id),
    tag_id INTEGER NOT NULL REFERENCES tags(id),
    votes INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (app_id, tag_id)
);

-- Parent links recorded before the parent app was stored
CREATE TABLE IF NOT EXISTS pending_parent_links (
    addon_id INTEGER NOT NULL REFERENCES apps(id),
    parent_id INTEGER NOT NULL,
    recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (addon_id, parent_id)
);

CREATE INDEX IF NOT EXISTS idx_pending_parent ON pending_parent_links(parent_id);

-- Processing status ledger; one current status per app id
CREATE TABLE IF NOT EXISTS scrape_status (
    app_id INTEGER PRIMARY KEY,
    status TEXT NOT NULL,
    processed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_scrape_status_status ON scrape_status(status);

CREATE TABLE IF NOT EXISTS achievements (
    app_id INTEGER NOT NULL REFERENCES apps(id),
    api_name TEXT NOT NULL,
    display_name TEXT,
    description TEXT,
    global_completion_rate REAL NOT NULL DEFAULT 0 CHECK (global_completion_rate BETWEEN 0 AND 100),
    PRIMARY KEY (app_id, api_name)
);

CREATE TABLE IF NOT EXISTS reviews (
    recommendation_id TEXT PRIMARY KEY,
    author_steam_id TEXT,
    language TEXT,
    body TEXT,
    voted_up BOOLEAN NOT NULL DEFAULT 0,
    votes_up INTEGER NOT NULL DEFAULT 0,
    votes_funny INTEGER NOT NULL DEFAULT 0,
    weighted_vote_score REAL NOT NULL DEFAULT 0,
    created_at DATETIME
);

CREATE TABLE IF NOT EXISTS app_reviews (
    app_id INTEGER NOT NULL REFERENCES apps(id),
    recommendation_id TEXT NOT NULL REFERENCES reviews(recommendation_id),
    PRIMARY KEY (app_id, recommendation_id)
);

-- Crawl metadata
CREATE TABLE IF NOT EXISTS crawl_meta (
    key TEXT PRIMARY KEY,
    value TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
