package models

import "time"

// UserInput is the payload for creating a user.
type UserInput struct {
	UserID     string   `json:"user_id"`
	Interests  []string `json:"interests"`
	SkillLevel string   `json:"skill_level"`
}

// UserUpdate is the payload for updating a user. Nil fields are left unchanged.
type UserUpdate struct {
	Interests  []string `json:"interests,omitempty"`
	SkillLevel string   `json:"skill_level,omitempty"`
}

// ContentInput is the payload for creating a content item.
type ContentInput struct {
	ContentID   string   `json:"content_id"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Description string   `json:"description,omitempty"`
}

// InteractionInput is the payload for recording an interaction event.
type InteractionInput struct {
	UserID          string `json:"user_id"`
	ContentID       string `json:"content_id"`
	InteractionType string `json:"interaction_type"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// FeedbackInput maps coarse feedback onto an interaction type:
// positive becomes a like, negative a skip, anything else a click.
type FeedbackInput struct {
	UserID       string `json:"user_id"`
	ContentID    string `json:"content_id"`
	FeedbackType string `json:"feedback_type"`
}

// RecommendationRequest asks for n recommendations for a user. CFWeight is the
// blend weight in [0,1]: the fraction of the final score attributed to
// collaborative filtering versus embedding similarity.
type RecommendationRequest struct {
	UserID        string   `json:"user_id"`
	N             int      `json:"n_recommendations"`
	UseCF         *bool    `json:"use_cf,omitempty"`
	UseEmbeddings *bool    `json:"use_embeddings,omitempty"`
	CFWeight      *float64 `json:"cf_weight,omitempty"`
}

// Recommendation is one scored item in a recommendation response.
type Recommendation struct {
	ContentID string  `json:"content_id"`
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	Score     float64 `json:"score"`
	Method    string  `json:"method"`
}

// RecommendationResponse is the ranked recommendation list for a user.
type RecommendationResponse struct {
	UserID          string           `json:"user_id"`
	Recommendations []Recommendation `json:"recommendations"`
	Timestamp       time.Time        `json:"timestamp"`
}

// TrainingRequest selects which training jobs to run.
type TrainingRequest struct {
	RegenerateEmbeddings bool `json:"regenerate_embeddings"`
	RetrainCF            bool `json:"retrain_cf"`
}

// TrainingResponse reports the outcome of a training run.
type TrainingResponse struct {
	Status              string    `json:"status"`
	EmbeddingsGenerated int       `json:"embeddings_generated"`
	CFModelTrained      bool      `json:"cf_model_trained"`
	Timestamp           time.Time `json:"timestamp"`
}

// CFStatus describes the currently served factorization snapshot.
type CFStatus struct {
	Trained   bool       `json:"trained"`
	TrainedAt *time.Time `json:"trained_at,omitempty"`
	NUsers    int        `json:"n_users"`
	NItems    int        `json:"n_items"`
	RMSE      *float64   `json:"rmse,omitempty"`
}
