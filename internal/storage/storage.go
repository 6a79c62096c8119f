// Package storage defines the persistence interface for users, content,
// interaction events, and factorization model snapshots.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dummi-ai/dummi/internal/models"
)

// ErrNotFound is returned when a record does not exist. Callers check it with
// errors.Is.
var ErrNotFound = errors.New("record not found")

// SnapshotRecord is a persisted factorization model snapshot. Data is the
// encoded snapshot blob; the remaining fields are denormalized for status
// reporting without decoding.
type SnapshotRecord struct {
	ID        int64
	Data      []byte
	NUsers    int
	NItems    int
	RMSE      float64
	TrainedAt time.Time
}

// Storage defines record persistence operations. The recommendation core only
// reads users, content, and interactions; it owns snapshot records.
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, user *models.UserProfile) error
	GetUser(ctx context.Context, id string) (*models.UserProfile, error)
	ListUsers(ctx context.Context) ([]*models.UserProfile, error)
	UpdateUser(ctx context.Context, user *models.UserProfile) error
	// AppendUserHistory appends contentID to the user's history unless already present.
	AppendUserHistory(ctx context.Context, userID, contentID string) error

	// Content operations
	CreateContent(ctx context.Context, item *models.ContentItem) error
	GetContent(ctx context.Context, id string) (*models.ContentItem, error)
	ListContent(ctx context.Context) ([]*models.ContentItem, error)
	ListContentByCategory(ctx context.Context, category string) ([]*models.ContentItem, error)
	UpdateContentEmbedding(ctx context.Context, id string, embedding []float32) error

	// Interaction operations (append-only log)
	CreateInteraction(ctx context.Context, event *models.InteractionEvent) error
	ListUserInteractions(ctx context.Context, userID string, limit int) ([]*models.InteractionEvent, error)
	ListInteractions(ctx context.Context) ([]*models.InteractionEvent, error)
	CountUserInteractions(ctx context.Context, userID string) (int64, error)

	// Model snapshot operations
	SaveSnapshot(ctx context.Context, rec *SnapshotRecord) error
	LatestSnapshot(ctx context.Context) (*SnapshotRecord, error)

	Close() error
}
