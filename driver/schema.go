package driver

// Schema creates the tables used by the SQL stores.
// It is idempotent and applied by the migrate command.
const Schema = `
CREATE TABLE IF NOT EXISTS agentloop_messages (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    position        INTEGER NOT NULL,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL DEFAULT '',
    thinking        TEXT NOT NULL DEFAULT '',
    tool_calls      JSONB NOT NULL DEFAULT '[]',
    tool_call_id    TEXT NOT NULL DEFAULT '',
    name            TEXT NOT NULL DEFAULT '',
    token_count     INTEGER NOT NULL DEFAULT 0,
    summary_id      TEXT,
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (conversation_id, position)
);

CREATE INDEX IF NOT EXISTS idx_agentloop_messages_conversation
    ON agentloop_messages (conversation_id, position);

CREATE TABLE IF NOT EXISTS agentloop_summaries (
    id                     TEXT PRIMARY KEY,
    conversation_id        TEXT NOT NULL,
    from_position          INTEGER NOT NULL,
    to_position            INTEGER NOT NULL,
    content                TEXT NOT NULL DEFAULT '',
    token_count            INTEGER NOT NULL DEFAULT 0,
    original_token_count   INTEGER NOT NULL DEFAULT 0,
    backend_used           TEXT NOT NULL DEFAULT '',
    model_used             TEXT NOT NULL DEFAULT '',
    summarized_message_ids TEXT[] NOT NULL DEFAULT '{}',
    status                 TEXT NOT NULL,
    error_message          TEXT NOT NULL DEFAULT '',
    metadata               JSONB NOT NULL DEFAULT '{}',
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at           TIMESTAMPTZ,
    CHECK (from_position <= to_position)
);

CREATE INDEX IF NOT EXISTS idx_agentloop_summaries_conversation
    ON agentloop_summaries (conversation_id, from_position);
`

// Tables lists the tables created by Schema, children first.
var Tables = []string{"agentloop_summaries", "agentloop_messages"}
