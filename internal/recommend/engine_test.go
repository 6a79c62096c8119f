package recommend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/dummi-ai/dummi/internal/cf"
	"github.com/dummi-ai/dummi/internal/embedding"
	"github.com/dummi-ai/dummi/internal/models"
	"github.com/dummi-ai/dummi/internal/storage"
	"github.com/dummi-ai/dummi/internal/vector"
)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(t.TempDir() + "/db.sqlite")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestEngine(t *testing.T, store storage.Storage, registry *Registry, opts Options) *Engine {
	t.Helper()
	return NewEngine(store, embedding.NewMockEmbedder(8), registry, opts, zap.NewNop())
}

func seedUser(t *testing.T, store storage.Storage, id string, interests []string) {
	t.Helper()
	err := store.CreateUser(context.Background(), &models.UserProfile{
		UserID:    id,
		Interests: interests,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func seedContent(t *testing.T, store storage.Storage, id, title string, tags []string) {
	t.Helper()
	err := store.CreateContent(context.Background(), &models.ContentItem{
		ContentID: id,
		Title:     title,
		Category:  "general",
		Tags:      tags,
	})
	if err != nil {
		t.Fatal(err)
	}
}

// seedInteractions logs n like events for the user against distinct "seen-*"
// items, pushing the user past the cold-start threshold without touching the
// candidate catalog.
func seedInteractions(t *testing.T, store storage.Storage, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		contentID := fmt.Sprintf("seen-%d", i)
		err := store.CreateInteraction(context.Background(), &models.InteractionEvent{
			ID:        fmt.Sprintf("%s-ev-%d", userID, i),
			UserID:    userID,
			ContentID: contentID,
			Type:      models.InteractionLike,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestRecommendUnknownUser(t *testing.T) {
	store := newTestStorage(t)
	engine := newTestEngine(t, store, NewRegistry(nil, nil), Options{ColdStartThreshold: 5})
	_, err := engine.Recommend(context.Background(), &models.RecommendationRequest{UserID: "nobody"})
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("got %v, want ErrUserNotFound", err)
	}
}

func TestRecommendColdStartTagFallback(t *testing.T) {
	store := newTestStorage(t)
	seedUser(t, store, "alice", []string{"python", "ml"})
	seedContent(t, store, "c1", "ML with Python", []string{"python", "ml"})
	seedContent(t, store, "c2", "Python Basics", []string{"python"})
	seedContent(t, store, "c3", "Java Patterns", []string{"java"})

	engine := newTestEngine(t, store, NewRegistry(nil, nil), Options{ColdStartThreshold: 5})
	resp, err := engine.Recommend(context.Background(), &models.RecommendationRequest{UserID: "alice", N: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Recommendations) != 2 {
		t.Fatalf("recs: got %d, want 2 (zero-overlap items dropped)", len(resp.Recommendations))
	}
	if resp.Recommendations[0].ContentID != "c1" || resp.Recommendations[0].Score != 1.0 {
		t.Errorf("top: got %+v", resp.Recommendations[0])
	}
	if resp.Recommendations[1].ContentID != "c2" || resp.Recommendations[1].Score != 0.5 {
		t.Errorf("second: got %+v", resp.Recommendations[1])
	}
	for _, rec := range resp.Recommendations {
		if rec.Method != "tag_overlap" {
			t.Errorf("method: got %s, want tag_overlap", rec.Method)
		}
	}
}

func TestRecommendColdStartNoInterests(t *testing.T) {
	store := newTestStorage(t)
	seedUser(t, store, "alice", nil)
	seedContent(t, store, "c1", "Something", []string{"tag"})

	engine := newTestEngine(t, store, NewRegistry(nil, nil), Options{ColdStartThreshold: 5})
	resp, err := engine.Recommend(context.Background(), &models.RecommendationRequest{UserID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Recommendations) != 0 {
		t.Errorf("no interests should yield no fallback recs, got %v", resp.Recommendations)
	}
}

func TestRecommendCFOnly(t *testing.T) {
	store := newTestStorage(t)
	seedUser(t, store, "alice", nil)
	seedInteractions(t, store, "alice", 5)
	seedContent(t, store, "c1", "First", nil)
	seedContent(t, store, "c2", "Second", nil)

	snapshot := &cf.Snapshot{
		UserFactors: [][]float64{{1, 0}},
		ItemFactors: [][]float64{{3, 0}, {1, 0}},
		UserIndex:   map[string]int{"alice": 0},
		ItemIndex:   map[string]int{"c1": 0, "c2": 1},
		UserIDs:     []string{"alice"},
		ItemIDs:     []string{"c1", "c2"},
		Factors:     2,
	}
	weight := 1.0
	engine := newTestEngine(t, store, NewRegistry(nil, snapshot), Options{ColdStartThreshold: 5})
	resp, err := engine.Recommend(context.Background(), &models.RecommendationRequest{
		UserID: "alice", N: 10, CFWeight: &weight,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Recommendations) != 2 {
		t.Fatalf("recs: got %d, want 2", len(resp.Recommendations))
	}
	if resp.Recommendations[0].ContentID != "c1" {
		t.Errorf("top: got %s, want c1", resp.Recommendations[0].ContentID)
	}
	for _, rec := range resp.Recommendations {
		if rec.Method != "cf" {
			t.Errorf("method: got %s, want cf", rec.Method)
		}
	}
	// Min-max normalization: best candidate ~1, worst ~0.
	if resp.Recommendations[0].Score < 0.99 {
		t.Errorf("top score: got %f, want ~1.0", resp.Recommendations[0].Score)
	}
	if resp.Recommendations[1].Score > 0.01 {
		t.Errorf("bottom score: got %f, want ~0.0", resp.Recommendations[1].Score)
	}
}

func TestRecommendExcludesInteracted(t *testing.T) {
	store := newTestStorage(t)
	seedUser(t, store, "alice", nil)
	seedInteractions(t, store, "alice", 5)
	seedContent(t, store, "c1", "Candidate", nil)
	// alice already interacted with c2.
	seedContent(t, store, "c2", "Seen", nil)
	err := store.CreateInteraction(context.Background(), &models.InteractionEvent{
		ID: "extra", UserID: "alice", ContentID: "c2", Type: models.InteractionClick,
	})
	if err != nil {
		t.Fatal(err)
	}

	snapshot := &cf.Snapshot{
		UserFactors: [][]float64{{1}},
		ItemFactors: [][]float64{{1}, {5}},
		UserIndex:   map[string]int{"alice": 0},
		ItemIndex:   map[string]int{"c1": 0, "c2": 1},
		UserIDs:     []string{"alice"},
		ItemIDs:     []string{"c1", "c2"},
		Factors:     1,
	}
	weight := 1.0
	engine := newTestEngine(t, store, NewRegistry(nil, snapshot), Options{ColdStartThreshold: 5})
	resp, err := engine.Recommend(context.Background(), &models.RecommendationRequest{
		UserID: "alice", N: 10, CFWeight: &weight,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range resp.Recommendations {
		if rec.ContentID == "c2" {
			t.Error("interacted content was recommended")
		}
	}
	if len(resp.Recommendations) != 1 || resp.Recommendations[0].ContentID != "c1" {
		t.Errorf("recs: got %v", resp.Recommendations)
	}
}

func TestRecommendEmbeddingSignal(t *testing.T) {
	store := newTestStorage(t)
	embedder := embedding.NewMockEmbedder(8)
	seedUser(t, store, "alice", []string{"python", "ml"})
	seedInteractions(t, store, "alice", 5)
	seedContent(t, store, "c1", "Match", nil)
	seedContent(t, store, "c2", "Other", nil)

	// c1 carries exactly the vector of alice's interest text, so its
	// similarity is 1.0; c2 is a different deterministic vector.
	interestVec, err := embedder.Embed(context.Background(), "python ml")
	if err != nil {
		t.Fatal(err)
	}
	otherVec, err := embedder.Embed(context.Background(), "completely unrelated")
	if err != nil {
		t.Fatal(err)
	}
	index, err := vector.NewIVFIndex(8, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := index.Add([]string{"c1", "c2"}, [][]float32{interestVec, otherVec}); err != nil {
		t.Fatal(err)
	}

	weight := 0.0
	engine := NewEngine(store, embedder, NewRegistry(index, nil), Options{
		ColdStartThreshold:  5,
		SimilarityThreshold: 0.9,
	}, zap.NewNop())
	resp, err := engine.Recommend(context.Background(), &models.RecommendationRequest{
		UserID: "alice", N: 10, CFWeight: &weight,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Recommendations) != 1 {
		t.Fatalf("recs: got %d, want 1 (below-threshold hit dropped)", len(resp.Recommendations))
	}
	rec := resp.Recommendations[0]
	if rec.ContentID != "c1" || rec.Method != "embedding" {
		t.Errorf("got %+v", rec)
	}
	// cfWeight 0 leaves the full similarity as the score.
	if rec.Score < 0.999 {
		t.Errorf("score: got %f, want ~1.0", rec.Score)
	}
}

func TestRecommendHybridMethod(t *testing.T) {
	store := newTestStorage(t)
	embedder := embedding.NewMockEmbedder(8)
	seedUser(t, store, "alice", []string{"python"})
	seedInteractions(t, store, "alice", 5)
	seedContent(t, store, "c1", "Both Signals", nil)

	interestVec, err := embedder.Embed(context.Background(), "python")
	if err != nil {
		t.Fatal(err)
	}
	index, err := vector.NewIVFIndex(8, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := index.Add([]string{"c1"}, [][]float32{interestVec}); err != nil {
		t.Fatal(err)
	}
	snapshot := &cf.Snapshot{
		UserFactors: [][]float64{{1}},
		ItemFactors: [][]float64{{2}},
		UserIndex:   map[string]int{"alice": 0},
		ItemIndex:   map[string]int{"c1": 0},
		UserIDs:     []string{"alice"},
		ItemIDs:     []string{"c1"},
		Factors:     1,
	}

	weight := 0.5
	engine := NewEngine(store, embedder, NewRegistry(index, snapshot), Options{
		ColdStartThreshold:  5,
		SimilarityThreshold: 0.3,
	}, zap.NewNop())
	resp, err := engine.Recommend(context.Background(), &models.RecommendationRequest{
		UserID: "alice", N: 10, CFWeight: &weight,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Recommendations) != 1 || resp.Recommendations[0].Method != "hybrid" {
		t.Errorf("got %v", resp.Recommendations)
	}
}

func TestRecommendTruncatesToN(t *testing.T) {
	store := newTestStorage(t)
	seedUser(t, store, "alice", []string{"go"})
	for i := 0; i < 5; i++ {
		seedContent(t, store, fmt.Sprintf("c%d", i), fmt.Sprintf("Item %d", i), []string{"go"})
	}
	engine := newTestEngine(t, store, NewRegistry(nil, nil), Options{ColdStartThreshold: 5})
	resp, err := engine.Recommend(context.Background(), &models.RecommendationRequest{UserID: "alice", N: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Recommendations) != 2 {
		t.Errorf("recs: got %d, want 2", len(resp.Recommendations))
	}
	// Equal scores: ascending content id breaks the tie.
	if resp.Recommendations[0].ContentID != "c0" || resp.Recommendations[1].ContentID != "c1" {
		t.Errorf("tie break: got %v", resp.Recommendations)
	}
}

func TestRecommendDropsDeletedContent(t *testing.T) {
	store := newTestStorage(t)
	seedUser(t, store, "alice", nil)
	seedInteractions(t, store, "alice", 5)
	seedContent(t, store, "c1", "Exists", nil)

	// Snapshot also knows c-gone, which has no storage row.
	snapshot := &cf.Snapshot{
		UserFactors: [][]float64{{1}},
		ItemFactors: [][]float64{{1}, {2}},
		UserIndex:   map[string]int{"alice": 0},
		ItemIndex:   map[string]int{"c1": 0, "c-gone": 1},
		UserIDs:     []string{"alice"},
		ItemIDs:     []string{"c1", "c-gone"},
		Factors:     1,
	}
	weight := 1.0
	engine := newTestEngine(t, store, NewRegistry(nil, snapshot), Options{ColdStartThreshold: 5})
	resp, err := engine.Recommend(context.Background(), &models.RecommendationRequest{
		UserID: "alice", N: 10, CFWeight: &weight,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Recommendations) != 1 || resp.Recommendations[0].ContentID != "c1" {
		t.Errorf("got %v", resp.Recommendations)
	}
}
