package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/learning-accelerator/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB is the SQLite-backed Store.
type DB struct {
	conn *sql.DB
}

var _ Store = (*DB)(nil)

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serialises writers, so each read-modify-write
	// transaction runs alone.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

const cardColumns = `id, front, back, context, repetitions, interval_days, ease_factor,
	next_review, last_reviewed, created, source_id, extra`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (domain.ReviewCard, error) {
	var (
		c            domain.ReviewCard
		nextReview   sql.NullString
		lastReviewed sql.NullString
		created      string
		sourceID     sql.NullInt64
		extra        sql.NullString
	)
	err := row.Scan(
		&c.ID,
		&c.Front,
		&c.Back,
		&c.Context,
		&c.Repetitions,
		&c.Interval,
		&c.EaseFactor,
		&nextReview,
		&lastReviewed,
		&created,
		&sourceID,
		&extra,
	)
	if err != nil {
		return c, err
	}

	if c.Created, err = parseTime(created); err != nil {
		return c, err
	}
	if nextReview.Valid {
		at, err := parseTime(nextReview.String)
		if err != nil {
			return c, err
		}
		c.NextReview = domain.ScheduledFor(at)
	}
	if lastReviewed.Valid {
		at, err := parseTime(lastReviewed.String)
		if err != nil {
			return c, err
		}
		c.LastReviewed = &at
	}
	c.SourceID = sourceID.Int64
	if extra.Valid {
		if err := json.Unmarshal([]byte(extra.String), &c.Extra); err != nil {
			return c, err
		}
	}
	return c, nil
}

// Get retrieves a card by id.
func (db *DB) Get(ctx context.Context, id string) (domain.ReviewCard, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, &CardNotFoundError{ID: id}
		}
		return c, persistErr("get card "+id, err)
	}
	return c, nil
}

// List retrieves every card in insertion order.
func (db *DB) List(ctx context.Context) ([]domain.ReviewCard, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY rowid`)
	if err != nil {
		return nil, persistErr("list cards", err)
	}
	defer rows.Close()

	cards := []domain.ReviewCard{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, persistErr("scan card row", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list cards", err)
	}
	return cards, nil
}

// Count returns the number of stored cards.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return 0, persistErr("count cards", err)
	}
	return n, nil
}

// Insert inserts a new card.
func (db *DB) Insert(ctx context.Context, card domain.ReviewCard) error {
	var exists int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE id = ?`, card.ID).Scan(&exists)
	if err != nil {
		return persistErr("insert card "+card.ID, err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrCardExists, card.ID)
	}

	extra, err := extraValue(card.Extra)
	if err != nil {
		return persistErr("encode card "+card.ID, err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.ID,
		card.Front,
		card.Back,
		card.Context,
		card.Repetitions,
		card.Interval,
		card.EaseFactor,
		scheduleValue(card.NextReview),
		timePtrValue(card.LastReviewed),
		formatTime(card.Created),
		sourceValue(card.SourceID),
		extra,
	)
	if err != nil {
		return persistErr("insert card "+card.ID, err)
	}
	return nil
}

// Update applies fn to the card inside a transaction. The identity and
// content fields are not writable through fn.
func (db *DB) Update(ctx context.Context, id string, fn func(*domain.ReviewCard) error) (domain.ReviewCard, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return domain.ReviewCard{}, persistErr("begin update "+id, err)
	}
	defer tx.Rollback()

	current, err := scanCard(tx.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return current, &CardNotFoundError{ID: id}
		}
		return current, persistErr("load card "+id, err)
	}

	next := current
	if err := fn(&next); err != nil {
		return current, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE cards
		SET repetitions = ?, interval_days = ?, ease_factor = ?, next_review = ?, last_reviewed = ?
		WHERE id = ?
	`,
		next.Repetitions,
		next.Interval,
		next.EaseFactor,
		scheduleValue(next.NextReview),
		timePtrValue(next.LastReviewed),
		id,
	)
	if err != nil {
		return current, persistErr("update card "+id, err)
	}
	if err := tx.Commit(); err != nil {
		return current, persistErr("commit card "+id, err)
	}

	next.ID, next.Front, next.Back, next.Context = current.ID, current.Front, current.Back, current.Context
	next.Created, next.SourceID, next.Extra = current.Created, current.SourceID, current.Extra
	return next, nil
}

// Delete removes a card by id.
func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return persistErr("delete card "+id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &CardNotFoundError{ID: id}
	}
	return nil
}

// AppendReviewLog records a review event.
func (db *DB) AppendReviewLog(ctx context.Context, log domain.ReviewLog) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO review_logs (card_id, reviewed_at, quality, interval_days, ease_factor)
		VALUES (?, ?, ?, ?, ?)
	`, log.CardID, formatTime(log.ReviewedAt), log.Quality, log.Interval, log.EaseFactor)
	if err != nil {
		return persistErr("append review log for "+log.CardID, err)
	}
	return nil
}

// ReviewLogs returns the review history of a card, oldest first.
func (db *DB) ReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_id, reviewed_at, quality, interval_days, ease_factor
		FROM review_logs WHERE card_id = ? ORDER BY id
	`, cardID)
	if err != nil {
		return nil, persistErr("review logs for "+cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var (
			l          domain.ReviewLog
			reviewedAt string
		)
		if err := rows.Scan(&l.CardID, &reviewedAt, &l.Quality, &l.Interval, &l.EaseFactor); err != nil {
			return nil, persistErr("scan review log", err)
		}
		if l.ReviewedAt, err = parseTime(reviewedAt); err != nil {
			return nil, persistErr("scan review log", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanProgress(row rowScanner) (domain.Progress, error) {
	var (
		p                domain.Progress
		skills, lessons string
	)
	if err := row.Scan(&p.XP, &p.Streak, &p.LastActive, &skills, &lessons); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(skills), &p.CompletedSkills); err != nil {
		return p, fmt.Errorf("decode completed skills: %w", err)
	}
	if err := json.Unmarshal([]byte(lessons), &p.CompletedLessons); err != nil {
		return p, fmt.Errorf("decode completed lessons: %w", err)
	}
	return p, nil
}

const progressQuery = `SELECT xp, streak, last_active, completed_skills, completed_lessons FROM progress WHERE id = 1`

// GetProgress returns the learner's progress, or a fresh one if none was saved.
func (db *DB) GetProgress(ctx context.Context) (domain.Progress, error) {
	p, err := scanProgress(db.conn.QueryRowContext(ctx, progressQuery))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewProgress(), nil
	}
	if err != nil {
		return p, persistErr("get progress", err)
	}
	return p, nil
}

// UpdateProgress applies fn to the progress document inside a transaction.
func (db *DB) UpdateProgress(ctx context.Context, fn func(*domain.Progress) error) (domain.Progress, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return domain.Progress{}, persistErr("begin progress update", err)
	}
	defer tx.Rollback()

	current, err := scanProgress(tx.QueryRowContext(ctx, progressQuery))
	if errors.Is(err, sql.ErrNoRows) {
		current, err = domain.NewProgress(), nil
	}
	if err != nil {
		return current, persistErr("load progress", err)
	}

	next := current
	next.CompletedSkills = append([]string{}, current.CompletedSkills...)
	next.CompletedLessons = append([]string{}, current.CompletedLessons...)
	if err := fn(&next); err != nil {
		return current, err
	}

	skills, err := json.Marshal(next.CompletedSkills)
	if err != nil {
		return current, persistErr("encode completed skills", err)
	}
	lessons, err := json.Marshal(next.CompletedLessons)
	if err != nil {
		return current, persistErr("encode completed lessons", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO progress (id, xp, streak, last_active, completed_skills, completed_lessons)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			xp = excluded.xp,
			streak = excluded.streak,
			last_active = excluded.last_active,
			completed_skills = excluded.completed_skills,
			completed_lessons = excluded.completed_lessons
	`, next.XP, next.Streak, next.LastActive, string(skills), string(lessons))
	if err != nil {
		return current, persistErr("save progress", err)
	}
	if err := tx.Commit(); err != nil {
		return current, persistErr("commit progress", err)
	}
	return next, nil
}

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(ctx context.Context, path, sourceType string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

func scanSource(row rowScanner) (domain.Source, error) {
	var (
		s           domain.Source
		lastScanned sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Path, &s.Type, &lastScanned); err != nil {
		return s, err
	}
	if lastScanned.Valid {
		at, err := parseTime(lastScanned.String)
		if err != nil {
			return s, err
		}
		s.LastScanned = &at
	}
	return s, nil
}

// FindSourceByPath retrieves a source by its path. It returns nil, nil when absent.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*domain.Source, error) {
	s, err := scanSource(db.conn.QueryRowContext(ctx, `
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`, path))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources.
func (db *DB) GetAllSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, type, last_scanned
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	sources := []domain.Source{}
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, formatTime(at), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source. Cards imported from it are kept and detached.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to delete source ID %d: %w", sourceID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source ID %d: %w", sourceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrSourceNotFound, sourceID)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE cards SET source_id = NULL WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to detach cards of source ID %d: %w", sourceID, err)
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func scheduleValue(s domain.Schedule) any {
	if at, ok := s.Time(); ok {
		return formatTime(at)
	}
	return nil
}

func timePtrValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func sourceValue(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func extraValue(extra map[string]json.RawMessage) (any, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
