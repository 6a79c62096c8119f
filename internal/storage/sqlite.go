// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dummi-ai/dummi/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		interests TEXT,
		skill_level TEXT,
		history TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS content (
		content_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		category TEXT,
		tags TEXT,
		description TEXT,
		embedding TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_content_category ON content(category);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		content_id TEXT NOT NULL,
		interaction_type TEXT NOT NULL,
		duration_seconds INTEGER,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id, timestamp);

	CREATE TABLE IF NOT EXISTS cf_models (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		model_data BLOB NOT NULL,
		n_users INTEGER NOT NULL,
		n_items INTEGER NOT NULL,
		rmse REAL NOT NULL DEFAULT 0,
		trained_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateUser inserts a user profile.
func (s *SQLiteStorage) CreateUser(ctx context.Context, user *models.UserProfile) error {
	interestsJSON, err := json.Marshal(user.Interests)
	if err != nil {
		return fmt.Errorf("failed to marshal interests: %w", err)
	}
	if user.History == nil {
		user.History = []string{}
	}
	historyJSON, err := json.Marshal(user.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, interests, skill_level, history, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.UserID, string(interestsJSON), user.SkillLevel, string(historyJSON), user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// GetUser returns a user by ID.
func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*models.UserProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, interests, skill_level, history, created_at, updated_at
		 FROM users WHERE user_id = ?`, id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return user, err
}

// ListUsers returns all users.
func (s *SQLiteStorage) ListUsers(ctx context.Context) ([]*models.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, interests, skill_level, history, created_at, updated_at
		 FROM users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.UserProfile
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.UserProfile, error) {
	var user models.UserProfile
	var interestsJSON, historyJSON string
	err := row.Scan(&user.UserID, &interestsJSON, &user.SkillLevel, &historyJSON, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if interestsJSON != "" {
		if err := json.Unmarshal([]byte(interestsJSON), &user.Interests); err != nil {
			return nil, fmt.Errorf("failed to unmarshal interests: %w", err)
		}
	}
	if historyJSON != "" {
		if err := json.Unmarshal([]byte(historyJSON), &user.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %w", err)
		}
	}
	return &user, nil
}

// UpdateUser updates interests, skill level, and history of an existing user.
func (s *SQLiteStorage) UpdateUser(ctx context.Context, user *models.UserProfile) error {
	interestsJSON, err := json.Marshal(user.Interests)
	if err != nil {
		return fmt.Errorf("failed to marshal interests: %w", err)
	}
	historyJSON, err := json.Marshal(user.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	user.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET interests = ?, skill_level = ?, history = ?, updated_at = ?
		 WHERE user_id = ?`,
		string(interestsJSON), user.SkillLevel, string(historyJSON), user.UpdatedAt, user.UserID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user %s: %w", user.UserID, ErrNotFound)
	}
	return nil
}

// AppendUserHistory appends contentID to the user's history unless already present.
func (s *SQLiteStorage) AppendUserHistory(ctx context.Context, userID, contentID string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range user.History {
		if id == contentID {
			return nil
		}
	}
	user.History = append(user.History, contentID)
	return s.UpdateUser(ctx, user)
}

// CreateContent inserts a content item.
func (s *SQLiteStorage) CreateContent(ctx context.Context, item *models.ContentItem) error {
	tagsJSON, err := json.Marshal(item.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO content (content_id, title, category, tags, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ContentID, item.Title, item.Category, string(tagsJSON), item.Description, item.CreatedAt, item.UpdatedAt,
	)
	return err
}

// GetContent returns a content item by ID.
func (s *SQLiteStorage) GetContent(ctx context.Context, id string) (*models.ContentItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT content_id, title, category, tags, description, embedding, created_at, updated_at
		 FROM content WHERE content_id = ?`, id)
	item, err := scanContent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("content %s: %w", id, ErrNotFound)
	}
	return item, err
}

// ListContent returns the full catalog ordered by content id.
func (s *SQLiteStorage) ListContent(ctx context.Context) ([]*models.ContentItem, error) {
	return s.queryContent(ctx,
		`SELECT content_id, title, category, tags, description, embedding, created_at, updated_at
		 FROM content ORDER BY content_id`)
}

// ListContentByCategory returns content in the given category.
func (s *SQLiteStorage) ListContentByCategory(ctx context.Context, category string) ([]*models.ContentItem, error) {
	return s.queryContent(ctx,
		`SELECT content_id, title, category, tags, description, embedding, created_at, updated_at
		 FROM content WHERE category = ? ORDER BY content_id`, category)
}

func (s *SQLiteStorage) queryContent(ctx context.Context, query string, args ...interface{}) ([]*models.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanContent(row rowScanner) (*models.ContentItem, error) {
	var item models.ContentItem
	var tagsJSON string
	var description, embeddingJSON sql.NullString
	err := row.Scan(&item.ContentID, &item.Title, &item.Category, &tagsJSON,
		&description, &embeddingJSON, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Description = description.String
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &item.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &item.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
		}
	}
	return &item, nil
}

// UpdateContentEmbedding caches the embedding vector on a content row.
func (s *SQLiteStorage) UpdateContentEmbedding(ctx context.Context, id string, embedding []float32) error {
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE content SET embedding = ?, updated_at = ? WHERE content_id = ?`,
		string(embeddingJSON), time.Now(), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("content %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateInteraction appends an event to the interaction log.
func (s *SQLiteStorage) CreateInteraction(ctx context.Context, event *models.InteractionEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, user_id, content_id, interaction_type, duration_seconds, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.UserID, event.ContentID, event.Type, event.DurationSeconds, event.Timestamp,
	)
	return err
}

// ListUserInteractions returns a user's events, most recent first. limit <= 0 means no limit.
func (s *SQLiteStorage) ListUserInteractions(ctx context.Context, userID string, limit int) ([]*models.InteractionEvent, error) {
	query := `SELECT id, user_id, content_id, interaction_type, duration_seconds, timestamp
		 FROM interactions WHERE user_id = ? ORDER BY timestamp DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryInteractions(ctx, query, args...)
}

// ListInteractions returns the complete event log in insertion order.
func (s *SQLiteStorage) ListInteractions(ctx context.Context) ([]*models.InteractionEvent, error) {
	return s.queryInteractions(ctx,
		`SELECT id, user_id, content_id, interaction_type, duration_seconds, timestamp
		 FROM interactions ORDER BY timestamp, id`)
}

func (s *SQLiteStorage) queryInteractions(ctx context.Context, query string, args ...interface{}) ([]*models.InteractionEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.InteractionEvent
	for rows.Next() {
		var ev models.InteractionEvent
		var duration sql.NullInt64
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.ContentID, &ev.Type, &duration, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.DurationSeconds = int(duration.Int64)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// CountUserInteractions returns the number of logged events for a user.
func (s *SQLiteStorage) CountUserInteractions(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interactions WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// SaveSnapshot appends a new model snapshot row. The latest row is the served one.
func (s *SQLiteStorage) SaveSnapshot(ctx context.Context, rec *SnapshotRecord) error {
	if rec.TrainedAt.IsZero() {
		rec.TrainedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO cf_models (model_data, n_users, n_items, rmse, trained_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Data, rec.NUsers, rec.NItems, rec.RMSE, rec.TrainedAt,
	)
	if err != nil {
		return err
	}
	rec.ID, _ = result.LastInsertId()
	return nil
}

// LatestSnapshot returns the most recently saved model snapshot.
func (s *SQLiteStorage) LatestSnapshot(ctx context.Context) (*SnapshotRecord, error) {
	var rec SnapshotRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, model_data, n_users, n_items, rmse, trained_at
		 FROM cf_models ORDER BY id DESC LIMIT 1`).
		Scan(&rec.ID, &rec.Data, &rec.NUsers, &rec.NItems, &rec.RMSE, &rec.TrainedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("model snapshot: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
