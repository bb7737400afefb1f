// ABOUTME: SQLite database schema for ragchat storage
// ABOUTME: Creates the session log, cache and index build tables
package sqlite

// Schema contains all SQL statements for database initialization
const Schema = `
-- Sessions (one row per conversation)
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    title TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Session turns (append-only log, ordered by seq within a session)
CREATE TABLE IF NOT EXISTS session_turns (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('human', 'assistant')),
    text TEXT NOT NULL,
    attachment_kind TEXT,
    attachment_filename TEXT,
    attachment_ref TEXT,
    attachment_size INTEGER,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (session_id, seq)
);

-- Retrieval cache entries (content addressed, immutable)
CREATE TABLE IF NOT EXISTS cache_entries (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Index builds (one row per completed ingest)
CREATE TABLE IF NOT EXISTS index_builds (
    id TEXT PRIMARY KEY,
    index_dir TEXT NOT NULL,
    source_file TEXT,
    documents INTEGER NOT NULL,
    chunks INTEGER NOT NULL,
    dimension INTEGER NOT NULL,
    embedding_model TEXT,
    vectors_sha256 TEXT,
    duration_ms INTEGER,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for efficient querying
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
CREATE INDEX IF NOT EXISTS idx_turns_session ON session_turns(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_cache_created ON cache_entries(created_at);
CREATE INDEX IF NOT EXISTS idx_builds_created ON index_builds(created_at);
`

// SchemaVersion is the current schema version for migrations
const SchemaVersion = 2
