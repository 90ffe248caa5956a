package db

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                   TEXT PRIMARY KEY,
    handle               TEXT DEFAULT '',
    encrypted_credential TEXT NOT NULL,
    created_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS debate_roots (
    id         TEXT PRIMARY KEY,
    topic      TEXT NOT NULL,
    op_handle  TEXT DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS debate_branches (
    id            TEXT PRIMARY KEY,
    root_id       TEXT NOT NULL REFERENCES debate_roots(id),
    challenger_id TEXT NOT NULL REFERENCES users(id),
    last_reply_id TEXT NOT NULL UNIQUE,
    history       TEXT NOT NULL DEFAULT '[]',
    created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_branches_root ON debate_branches(root_id);
CREATE INDEX IF NOT EXISTS idx_branches_challenger ON debate_branches(challenger_id, created_at);

CREATE TABLE IF NOT EXISTS bot_state (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
