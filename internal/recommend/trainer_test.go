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

func newTestTrainer(t *testing.T, store storage.Storage, registry *Registry, indexPath string) *Trainer {
	t.Helper()
	return NewTrainer(store, embedding.NewMockEmbedder(8), registry, TrainerOptions{
		IndexPath: indexPath,
		NList:     4,
		NProbe:    4,
		CF:        cf.Config{Factors: 2, Epochs: 10, Seed: 42},
	}, zap.NewNop())
}

func TestTrainEmbeddingsBuildsIndex(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		seedContent(t, store, fmt.Sprintf("c%d", i), fmt.Sprintf("Item %d", i), []string{"go"})
	}

	registry := NewRegistry(nil, nil)
	indexPath := t.TempDir() + "/index.bin"
	trainer := newTestTrainer(t, store, registry, indexPath)

	n, err := trainer.TrainEmbeddings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("embedded: got %d, want 3", n)
	}
	index := registry.Index()
	if index == nil || index.Size() != 3 {
		t.Fatalf("registry index: got %v", index)
	}

	// Embeddings cached on the content rows.
	item, err := store.GetContent(ctx, "c0")
	if err != nil {
		t.Fatal(err)
	}
	if len(item.Embedding) != 8 {
		t.Errorf("stored embedding length: got %d, want 8", len(item.Embedding))
	}

	// Index persisted and loadable.
	restored, err := vector.NewIVFIndex(8, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := restored.Load(indexPath); err != nil {
		t.Fatal(err)
	}
	if restored.Size() != 3 {
		t.Errorf("restored size: got %d, want 3", restored.Size())
	}
}

func TestTrainEmbeddingsEmptyCatalog(t *testing.T) {
	store := newTestStorage(t)
	registry := NewRegistry(nil, nil)
	trainer := newTestTrainer(t, store, registry, "")
	n, err := trainer.TrainEmbeddings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("embedded: got %d, want 0", n)
	}
	if registry.Index() != nil {
		t.Error("empty catalog must not swap in an index")
	}
}

func TestTrainCFNoData(t *testing.T) {
	store := newTestStorage(t)
	registry := NewRegistry(nil, nil)
	trainer := newTestTrainer(t, store, registry, "")
	trained, err := trainer.TrainCF(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if trained {
		t.Error("empty log must report trained=false")
	}
	if registry.Snapshot() != nil {
		t.Error("empty log must not swap in a snapshot")
	}
}

func TestTrainCFPersistsSnapshot(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	events := []*models.InteractionEvent{
		{ID: "e1", UserID: "u1", ContentID: "c1", Type: models.InteractionLike},
		{ID: "e2", UserID: "u1", ContentID: "c2", Type: models.InteractionClick},
		{ID: "e3", UserID: "u2", ContentID: "c1", Type: models.InteractionLike},
	}
	for _, ev := range events {
		if err := store.CreateInteraction(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	registry := NewRegistry(nil, nil)
	trainer := newTestTrainer(t, store, registry, "")
	trained, err := trainer.TrainCF(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !trained {
		t.Fatal("expected trained=true")
	}
	snapshot := registry.Snapshot()
	if snapshot == nil || snapshot.NUsers() != 2 || snapshot.NItems() != 2 {
		t.Fatalf("registry snapshot: got %v", snapshot)
	}

	rec, err := store.LatestSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	restored, err := cf.DecodeSnapshot(rec.Data)
	if err != nil {
		t.Fatal(err)
	}
	if restored.NUsers() != 2 || restored.NItems() != 2 {
		t.Errorf("persisted snapshot shape: got %d/%d", restored.NUsers(), restored.NItems())
	}
	if rec.NUsers != 2 || rec.NItems != 2 {
		t.Errorf("denormalized counts: got %d/%d", rec.NUsers, rec.NItems)
	}
}

func TestTrainRunsRequestedJobs(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	seedContent(t, store, "c1", "Item", nil)
	if err := store.CreateInteraction(ctx, &models.InteractionEvent{
		ID: "e1", UserID: "u1", ContentID: "c1", Type: models.InteractionLike,
	}); err != nil {
		t.Fatal(err)
	}

	registry := NewRegistry(nil, nil)
	trainer := newTestTrainer(t, store, registry, "")
	resp, err := trainer.Train(ctx, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "completed" {
		t.Errorf("status: got %s", resp.Status)
	}
	if resp.EmbeddingsGenerated != 1 {
		t.Errorf("embeddings_generated: got %d, want 1", resp.EmbeddingsGenerated)
	}
	if !resp.CFModelTrained {
		t.Error("cf_model_trained: got false")
	}
}

func TestTrainBusy(t *testing.T) {
	store := newTestStorage(t)
	registry := NewRegistry(nil, nil)
	trainer := newTestTrainer(t, store, registry, "")

	if err := registry.TryBeginTraining(); err != nil {
		t.Fatal(err)
	}
	defer registry.EndTraining()

	if _, err := trainer.Train(context.Background(), true, true); !errors.Is(err, ErrBusy) {
		t.Errorf("got %v, want ErrBusy", err)
	}
}

func TestStatusUntrained(t *testing.T) {
	store := newTestStorage(t)
	trainer := newTestTrainer(t, store, NewRegistry(nil, nil), "")
	vstats, cfStatus := trainer.Status()
	if vstats.TotalVectors != 0 || vstats.Trained {
		t.Errorf("vector stats: got %+v", vstats)
	}
	if cfStatus.Trained || cfStatus.TrainedAt != nil || cfStatus.RMSE != nil {
		t.Errorf("cf status: got %+v", cfStatus)
	}
}

func TestStatusAfterTraining(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	seedContent(t, store, "c1", "Item", nil)
	if err := store.CreateInteraction(ctx, &models.InteractionEvent{
		ID: "e1", UserID: "u1", ContentID: "c1", Type: models.InteractionLike,
	}); err != nil {
		t.Fatal(err)
	}

	registry := NewRegistry(nil, nil)
	trainer := newTestTrainer(t, store, registry, "")
	if _, err := trainer.Train(ctx, true, true); err != nil {
		t.Fatal(err)
	}

	vstats, cfStatus := trainer.Status()
	if vstats.TotalVectors != 1 || !vstats.Trained {
		t.Errorf("vector stats: got %+v", vstats)
	}
	if !cfStatus.Trained || cfStatus.NUsers != 1 || cfStatus.NItems != 1 {
		t.Errorf("cf status: got %+v", cfStatus)
	}
	if cfStatus.TrainedAt == nil || cfStatus.RMSE == nil {
		t.Error("trained status should carry trained_at and rmse")
	}
}
