package store

const schema = `
CREATE TABLE IF NOT EXISTS mentions (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    topic            TEXT NOT NULL,
    source           TEXT NOT NULL,
    title            TEXT NOT NULL,
    link             TEXT NOT NULL DEFAULT '',
    summary          TEXT NOT NULL DEFAULT '',
    image_url        TEXT NOT NULL DEFAULT '',
    metrics          TEXT NOT NULL DEFAULT '{}',
    popularity_score REAL NOT NULL DEFAULT 0,
    published_at     DATETIME NOT NULL,
    created_at       DATETIME NOT NULL,
    UNIQUE(title, source, link)
);

CREATE INDEX IF NOT EXISTS idx_mentions_topic ON mentions(topic);
CREATE INDEX IF NOT EXISTS idx_mentions_created_at ON mentions(created_at);
CREATE INDEX IF NOT EXISTS idx_mentions_score ON mentions(popularity_score);

CREATE TABLE IF NOT EXISTS popularity_samples (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    topic     TEXT NOT NULL,
    source    TEXT NOT NULL,
    score     REAL NOT NULL,
    timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_topic_source ON popularity_samples(topic, source);
CREATE INDEX IF NOT EXISTS idx_samples_timestamp ON popularity_samples(timestamp);
`
