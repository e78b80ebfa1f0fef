package storage

// postgresSchemaSQL mirrors schemaSQL with PostgreSQL types
const postgresSchemaSQL = `
-- One row per stored app; parent_id is set for dlc once its base game exists
CREATE TABLE IF NOT EXISTS apps (
    id BIGINT PRIMARY KEY,
    type TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    parent_id BIGINT REFERENCES apps(id),
    release_date TEXT,
    price DOUBLE PRECISION NOT NULL DEFAULT 0,
    positive_reviews BIGINT NOT NULL DEFAULT 0,
    negative_reviews BIGINT NOT NULL DEFAULT 0,
    recommendations BIGINT NOT NULL DEFAULT 0,
    peak_ccu BIGINT NOT NULL DEFAULT 0,
    metacritic_score BIGINT NOT NULL DEFAULT 0,
    metacritic_url TEXT,
    required_age BIGINT NOT NULL DEFAULT 0,
    achievements_count BIGINT NOT NULL DEFAULT 0,
    supports_windows BOOLEAN NOT NULL DEFAULT FALSE,
    supports_mac BOOLEAN NOT NULL DEFAULT FALSE,
    supports_linux BOOLEAN NOT NULL DEFAULT FALSE,
    header_image_url TEXT,
    website_url TEXT,
    estimated_owners TEXT,
    user_score BIGINT NOT NULL DEFAULT 0,
    score_rank TEXT,
    about_the_game TEXT,
    detailed_description TEXT,
    short_description TEXT,
    reviews_summary TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_apps_type ON apps(type);
CREATE INDEX IF NOT EXISTS idx_apps_parent ON apps(parent_id);

-- Lookup tables
CREATE TABLE IF NOT EXISTS developers (id BIGSERIAL PRIMARY KEY, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS publishers (id BIGSERIAL PRIMARY KEY, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS categories (id BIGSERIAL PRIMARY KEY, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS genres (id BIGSERIAL PRIMARY KEY, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS languages (id BIGSERIAL PRIMARY KEY, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS tags (id BIGSERIAL PRIMARY KEY, name TEXT UNIQUE NOT NULL);

-- Link tables
CREATE TABLE IF NOT EXISTS app_developers (
    app_id BIGINT NOT NULL REFERENCES apps(id),
    developer_id BIGINT NOT NULL REFERENCES developers(id),
    PRIMARY KEY (app_id, developer_id)
);
CREATE TABLE IF NOT EXISTS app_publishers (
    app_id BIGINT NOT NULL REFERENCES apps(id),
    publisher_id BIGINT NOT NULL REFERENCES publishers(id),
    PRIMARY KEY (app_id, publisher_id)
);
CREATE TABLE IF NOT EXISTS app_categories (
    app_id BIGINT NOT NULL REFERENCES apps(id),
    category_id BIGINT NOT NULL REFERENCES categories(id),
    PRIMARY KEY (app_id, category_id)
);
CREATE TABLE IF NOT EXISTS app_genres (
    app_id BIGINT NOT NULL REFERENCES apps(id),
    genre_id BIGINT NOT NULL REFERENCES genres(id),
    PRIMARY KEY (app_id, genre_id)
);
CREATE TABLE IF NOT EXISTS app_languages (
    app_id BIGINT NOT NULL REFERENCES apps(id),
    language_id BIGINT NOT NULL REFERENCES languages(id),
    is_full_audio BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (app_id, language_id)
);
CREATE TABLE IF NOT EXISTS app_tags (
    app_id BIGINT NOT NULL REFERENCES apps(id),
    tag_id BIGINT NOT NULL REFERENCES tags(id),
    votes BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (app_id, tag_id)
);

-- Parent links recorded before the parent app was stored
CREATE TABLE IF NOT EXISTS pending_parent_links (
    addon_id BIGINT NOT NULL REFERENCES apps(id),
    parent_id BIGINT NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (addon_id, parent_id)
);

CREATE INDEX IF NOT EXISTS idx_pending_parent ON pending_parent_links(parent_id);

-- Processing status ledger; one current status per app id
CREATE TABLE IF NOT EXISTS scrape_status (
    app_id BIGINT PRIMARY KEY,
    status TEXT NOT NULL,
    processed_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_scrape_status_status ON scrape_status(status);

CREATE TABLE IF NOT EXISTS achievements (
    app_id BIGINT NOT NULL REFERENCES apps(id),
    api_name TEXT NOT NULL,
    display_name TEXT,
    description TEXT,
    global_completion_rate DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (global_completion_rate BETWEEN 0 AND 100),
    PRIMARY KEY (app_id, api_name)
);

CREATE TABLE IF NOT EXISTS reviews (
    recommendation_id TEXT PRIMARY KEY,
    author_steam_id TEXT,
    language TEXT,
    body TEXT,
    voted_up BOOLEAN NOT NULL DEFAULT FALSE,
    votes_up BIGINT NOT NULL DEFAULT 0,
    votes_funny BIGINT NOT NULL DEFAULT 0,
    weighted_vote_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS app_reviews (
    app_id BIGINT NOT NULL REFERENCES apps(id),
    recommendation_id TEXT NOT NULL REFERENCES reviews(recommendation_id),
    PRIMARY KEY (app_id, recommendation_id)
);

-- Crawl metadata
CREATE TABLE IF NOT EXISTS crawl_meta (
    key TEXT PRIMARY KEY,
    value TEXT,
    updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);
`
