// Package models defines core data structures for users, content, and interactions.
package models

import "time"

// Skill levels accepted for a user profile.
const (
	SkillBeginner     = "beginner"
	SkillIntermediate = "intermediate"
	SkillAdvanced     = "advanced"
)

// UserProfile represents a registered user. History is append-only and
// chronological; duplicate content ids are suppressed on append.
type UserProfile struct {
	UserID     string    `json:"user_id"`
	Interests  []string  `json:"interests"`
	SkillLevel string    `json:"skill_level"`
	History    []string  `json:"history"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ContentItem represents a recommendable piece of content. Embedding is the
// cached embedding vector from the last embedding run, if any.
type ContentItem struct {
	ContentID   string    `json:"content_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	Description string    `json:"description,omitempty"`
	Embedding   []float32 `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Interaction types understood by the engine. Unrecognized types are still
// recorded and weighted with a default.
const (
	InteractionClick    = "click"
	InteractionLike     = "like"
	InteractionSkip     = "skip"
	InteractionViewTime = "view_time"
)

// InteractionEvent is one logged user-content interaction. The event log is
// append-only; multiple events per (user, content) pair are legal and all count.
type InteractionEvent struct {
	ID              string    `json:"interaction_id"`
	UserID          string    `json:"user_id"`
	ContentID       string    `json:"content_id"`
	Type            string    `json:"interaction_type"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
