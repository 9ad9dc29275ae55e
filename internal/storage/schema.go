package storage

const schema = `
-- The 'cards' table stores every flashcard with its SM-2 scheduling state.
-- Rows are listed in rowid order, which is insertion order.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    repetitions INTEGER NOT NULL DEFAULT 0,
    interval_days INTEGER NOT NULL DEFAULT 0,
    ease_factor REAL NOT NULL DEFAULT 2.5,
    next_review TEXT, -- NULL: never scheduled, always due
    last_reviewed TEXT,
    created TEXT NOT NULL,
    source_id INTEGER,
    extra TEXT, -- JSON object of fields not modelled by the columns above

    FOREIGN KEY(source_id) REFERENCES sources(id)
);

-- The 'review_logs' table is an append-only history of reviews.
CREATE TABLE IF NOT EXISTS review_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id TEXT NOT NULL,
    reviewed_at TEXT NOT NULL,
    quality INTEGER NOT NULL,
    interval_days INTEGER NOT NULL,
    ease_factor REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_logs_card ON review_logs(card_id);

-- The 'progress' table holds a single row with the learner's XP and streak.
CREATE TABLE IF NOT EXISTS progress (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    xp INTEGER NOT NULL DEFAULT 0,
    streak INTEGER NOT NULL DEFAULT 0,
    last_active TEXT NOT NULL DEFAULT '',
    completed_skills TEXT NOT NULL DEFAULT '[]',  -- JSON array of challenge ids
    completed_lessons TEXT NOT NULL DEFAULT '[]'  -- JSON array of lesson ids
);

-- The 'sources' table tracks the origin of imported decks, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned TEXT
);
`
