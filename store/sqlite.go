package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/c360studio/bookwright/book"
	"github.com/c360studio/bookwright/llm"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	genre TEXT,
	style TEXT,
	target_length INTEGER NOT NULL DEFAULT 0,
	phase TEXT NOT NULL,
	outline TEXT,
	chapter_plans_json TEXT,
	research_notes TEXT,
	chapters_completed INTEGER NOT NULL DEFAULT 0,
	total_words INTEGER NOT NULL DEFAULT 0,
	history_json TEXT,
	metadata_json TEXT,
	error TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_updated ON projects(updated_at);

CREATE TABLE IF NOT EXISTS chapters (
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	number INTEGER NOT NULL,
	title TEXT,
	word_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (project_id, number)
);
`

// SQLiteStore is a ProjectStore backed by a SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite creates or opens the project database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*book.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, genre, style, target_length, phase,
		       outline, chapter_plans_json, research_notes,
		       chapters_completed, total_words, history_json, metadata_json,
		       error, created_at, updated_at
		FROM projects WHERE id = ?`, id)

	var (
		p                               book.Project
		phase                           string
		plansJSON, historyJSON, metaJSON sql.NullString
		description, genre, style       sql.NullString
		outline, research, errText      sql.NullString
	)
	err := row.Scan(&p.ID, &p.Title, &description, &genre, &style,
		&p.TargetLength, &phase, &outline, &plansJSON, &research,
		&p.ChaptersCompleted, &p.TotalWords, &historyJSON, &metaJSON,
		&errText, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", id, err)
	}

	p.Description = description.String
	p.Genre = genre.String
	p.Style = style.String
	p.Phase = book.Phase(phase)
	p.Outline = outline.String
	p.ResearchNotes = research.String
	p.Error = errText.String

	if err := decodeJSON(plansJSON, &p.ChapterPlans); err != nil {
		return nil, fmt.Errorf("decode chapter plans for %s: %w", id, err)
	}
	if err := decodeJSON(historyJSON, &p.History); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", id, err)
	}
	if err := decodeJSON(metaJSON, &p.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
	}

	return &p, nil
}

func (s *SQLiteStore) Save(ctx context.Context, p *book.Project) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	plansJSON, err := encodeJSON(p.ChapterPlans)
	if err != nil {
		return fmt.Errorf("encode chapter plans: %w", err)
	}
	historyJSON, err := encodeHistory(p.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	metaJSON, err := encodeJSON(p.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (
			id, title, description, genre, style, target_length, phase,
			outline, chapter_plans_json, research_notes,
			chapters_completed, total_words, history_json, metadata_json,
			error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			genre = excluded.genre,
			style = excluded.style,
			target_length = excluded.target_length,
			phase = excluded.phase,
			outline = excluded.outline,
			chapter_plans_json = excluded.chapter_plans_json,
			research_notes = excluded.research_notes,
			chapters_completed = excluded.chapters_completed,
			total_words = excluded.total_words,
			history_json = excluded.history_json,
			metadata_json = excluded.metadata_json,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		p.ID, p.Title, p.Description, p.Genre, p.Style, p.TargetLength,
		p.Phase.String(), p.Outline, plansJSON, p.ResearchNotes,
		p.ChaptersCompleted, p.TotalWords, historyJSON, metaJSON,
		p.Error, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListSummaries(ctx context.Context) ([]book.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, genre, phase, target_length,
		       chapters_completed, total_words, updated_at
		FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var summaries []book.Summary
	for rows.Next() {
		var (
			sum   book.Summary
			genre sql.NullString
			phase string
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &genre, &phase,
			&sum.TargetLength, &sum.ChaptersCompleted, &sum.TotalWords,
			&sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		sum.Genre = genre.String
		sum.Phase = book.Phase(phase)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (s *SQLiteStore) SaveChapter(ctx context.Context, ch *book.Chapter) error {
	now := time.Now().UTC()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = now
	}
	ch.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chapters (project_id, number, title, word_count, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, number) DO UPDATE SET
			title = excluded.title,
			word_count = excluded.word_count,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		ch.ProjectID, ch.Number, ch.Title, ch.WordCount, ch.Status,
		ch.CreatedAt, ch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save chapter %d of %s: %w", ch.Number, ch.ProjectID, err)
	}
	return nil
}

func (s *SQLiteStore) ListChapters(ctx context.Context, projectID string) ([]book.Chapter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, number, title, word_count, status, created_at, updated_at
		FROM chapters WHERE project_id = ? ORDER BY number`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list chapters of %s: %w", projectID, err)
	}
	defer rows.Close()

	var chapters []book.Chapter
	for rows.Next() {
		var (
			ch    book.Chapter
			title sql.NullString
		)
		if err := rows.Scan(&ch.ProjectID, &ch.Number, &title, &ch.WordCount,
			&ch.Status, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chapter row: %w", err)
		}
		ch.Title = title.String
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// encodeHistory avoids storing "null" for an empty conversation.
func encodeHistory(history []llm.Message) (sql.NullString, error) {
	if len(history) == 0 {
		return sql.NullString{}, nil
	}
	return encodeJSON(history)
}

func decodeJSON(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}
