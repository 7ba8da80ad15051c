package sqlite

const schema = `
-- One row per run token; payload is the checkpoint JSON written wholesale
CREATE TABLE IF NOT EXISTS checkpoints (
    token TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    processed INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    cumulative_cost REAL NOT NULL DEFAULT 0,
    saved_at TEXT NOT NULL -- fixed-width UTC, sorts lexically
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_saved_at ON checkpoints(saved_at);
`
