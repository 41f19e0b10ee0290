package store

// Schema is the SQL DDL for the relational store. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS feeds (
    id              TEXT PRIMARY KEY,
    rss_url         TEXT NOT NULL UNIQUE,
    title           TEXT,
    image_url       TEXT,
    last_polled_at  TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS episodes (
    id              TEXT PRIMARY KEY,
    feed_id         TEXT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    guid            TEXT NOT NULL UNIQUE,
    title           TEXT,
    audio_url       TEXT,
    published_at    TIMESTAMPTZ,
    status          TEXT NOT NULL DEFAULT 'pending',
    transcript_text TEXT,
    error_message   TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_episodes_feed ON episodes(feed_id);
CREATE INDEX IF NOT EXISTS idx_episodes_status ON episodes(status);

CREATE TABLE IF NOT EXISTS keywords (
    id         TEXT PRIMARY KEY,
    phrase     TEXT NOT NULL UNIQUE,
    match_type TEXT NOT NULL DEFAULT 'contains',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS mentions (
    id                   TEXT PRIMARY KEY,
    episode_id           TEXT NOT NULL REFERENCES episodes(id) ON DELETE CASCADE,
    keyword_id           TEXT NOT NULL REFERENCES keywords(id) ON DELETE CASCADE,
    matched_text         TEXT NOT NULL,
    transcript_segment   TEXT NOT NULL,
    sentiment            TEXT,
    sentiment_score      DOUBLE PRECISION,
    context_summary      TEXT,
    topics               JSONB NOT NULL DEFAULT '[]',
    is_buying_signal     BOOLEAN NOT NULL DEFAULT false,
    is_pain_point        BOOLEAN NOT NULL DEFAULT false,
    is_recommendation    BOOLEAN NOT NULL DEFAULT false,
    raw_llm_response     JSONB,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (episode_id, keyword_id, matched_text, transcript_segment)
);
CREATE INDEX IF NOT EXISTS idx_mentions_episode ON mentions(episode_id);
CREATE INDEX IF NOT EXISTS idx_mentions_keyword ON mentions(keyword_id);

CREATE TABLE IF NOT EXISTS app_settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
