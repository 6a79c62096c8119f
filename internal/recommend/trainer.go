package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dummi-ai/dummi/internal/cf"
	"github.com/dummi-ai/dummi/internal/embedding"
	"github.com/dummi-ai/dummi/internal/models"
	"github.com/dummi-ai/dummi/internal/storage"
	"github.com/dummi-ai/dummi/internal/vector"
)

// TrainerOptions configures the training pipeline.
type TrainerOptions struct {
	IndexPath string // where the vector index is persisted; "" disables persistence
	NList     int
	NProbe    int
	CF        cf.Config
}

// Trainer rebuilds the serving models from storage: the vector index from the
// full content catalog and the factorization snapshot from the full event
// log. Completed models are swapped into the registry atomically.
type Trainer struct {
	store    storage.Storage
	embedder embedding.Embedder
	registry *Registry
	opts     TrainerOptions
	logger   *zap.Logger
}

// NewTrainer creates a trainer writing into the given registry.
func NewTrainer(store storage.Storage, embedder embedding.Embedder, registry *Registry, opts TrainerOptions, logger *zap.Logger) *Trainer {
	return &Trainer{
		store:    store,
		embedder: embedder,
		registry: registry,
		opts:     opts,
		logger:   logger,
	}
}

// Train runs the requested jobs concurrently under the registry's training
// latch and reports the combined outcome. A second call while one is running
// returns ErrBusy.
func (t *Trainer) Train(ctx context.Context, regenerateEmbeddings, retrainCF bool) (*models.TrainingResponse, error) {
	if err := t.registry.TryBeginTraining(); err != nil {
		return nil, err
	}
	defer t.registry.EndTraining()

	resp := &models.TrainingResponse{Status: "completed"}
	g, ctx := errgroup.WithContext(ctx)
	if regenerateEmbeddings {
		g.Go(func() error {
			n, err := t.TrainEmbeddings(ctx)
			if err != nil {
				return err
			}
			resp.EmbeddingsGenerated = n
			return nil
		})
	}
	if retrainCF {
		g.Go(func() error {
			trained, err := t.TrainCF(ctx)
			if err != nil {
				return err
			}
			resp.CFModelTrained = trained
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	resp.Timestamp = time.Now().UTC()
	return resp, nil
}

// TrainEmbeddings embeds the full catalog and builds a fresh vector index
// from it. The index is rebuilt from scratch rather than updated
// incrementally, so the quantizer always reflects the whole catalog. Returns
// the number of items embedded; an empty catalog is zero, not an error.
func (t *Trainer) TrainEmbeddings(ctx context.Context) (int, error) {
	items, err := t.store.ListContent(ctx)
	if err != nil {
		return 0, fmt.Errorf("list content: %w", err)
	}
	if len(items) == 0 {
		t.logger.Info("embedding run skipped, empty catalog")
		return 0, nil
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = embedding.ContentText(item)
	}
	vectors, err := t.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed catalog: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	index, err := vector.NewIVFIndex(t.embedder.Dimensions(), t.opts.NList, t.opts.NProbe)
	if err != nil {
		return 0, fmt.Errorf("create index: %w", err)
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ContentID
	}
	if err := index.Add(ids, vectors); err != nil {
		return 0, fmt.Errorf("populate index: %w", err)
	}

	for i, item := range items {
		if err := t.store.UpdateContentEmbedding(ctx, item.ContentID, vectors[i]); err != nil {
			return 0, fmt.Errorf("store embedding for %s: %w", item.ContentID, err)
		}
	}
	if err := index.Save(t.opts.IndexPath); err != nil {
		return 0, fmt.Errorf("save index: %w", err)
	}

	t.registry.SwapIndex(index)
	t.logger.Info("vector index rebuilt",
		zap.Int("vectors", len(items)),
		zap.Int("dimension", t.embedder.Dimensions()))
	return len(items), nil
}

// TrainCF factorizes the full interaction log and publishes the resulting
// snapshot. An empty log reports trained=false without error; the previously
// served snapshot, if any, keeps serving.
func (t *Trainer) TrainCF(ctx context.Context) (bool, error) {
	events, err := t.store.ListInteractions(ctx)
	if err != nil {
		return false, fmt.Errorf("list interactions: %w", err)
	}

	matrix := cf.BuildInteractionMatrix(events)
	snapshot, err := cf.Train(matrix, t.opts.CF)
	if err != nil {
		if errors.Is(err, cf.ErrNoData) {
			t.logger.Info("cf training skipped, no interaction data")
			return false, nil
		}
		return false, fmt.Errorf("train cf model: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	data, err := snapshot.Encode()
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}
	rec := &storage.SnapshotRecord{
		Data:      data,
		NUsers:    snapshot.NUsers(),
		NItems:    snapshot.NItems(),
		RMSE:      snapshot.RMSE,
		TrainedAt: snapshot.TrainedAt,
	}
	if err := t.store.SaveSnapshot(ctx, rec); err != nil {
		return false, fmt.Errorf("save snapshot: %w", err)
	}

	t.registry.SwapSnapshot(snapshot)
	t.logger.Info("cf model trained",
		zap.Int("users", snapshot.NUsers()),
		zap.Int("items", snapshot.NItems()),
		zap.Float64("rmse", snapshot.RMSE))
	return true, nil
}

// Status reports the observable state of the served models.
func (t *Trainer) Status() (vector.Stats, models.CFStatus) {
	var vstats vector.Stats
	if index := t.registry.Index(); index != nil {
		vstats = index.Stats()
	}
	var cfStatus models.CFStatus
	if snapshot := t.registry.Snapshot(); snapshot != nil {
		trainedAt := snapshot.TrainedAt
		rmse := snapshot.RMSE
		cfStatus = models.CFStatus{
			Trained:   true,
			TrainedAt: &trainedAt,
			NUsers:    snapshot.NUsers(),
			NItems:    snapshot.NItems(),
			RMSE:      &rmse,
		}
	}
	return vstats, cfStatus
}
