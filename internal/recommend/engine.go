package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dummi-ai/dummi/internal/embedding"
	"github.com/dummi-ai/dummi/internal/models"
	"github.com/dummi-ai/dummi/internal/storage"
)

// ErrUserNotFound is returned when recommendations are requested for an
// unknown user. It is the only caller-visible recommendation error; every
// other degradation (untrained models, empty catalog, embedding failure)
// silently drops that signal instead.
var ErrUserNotFound = errors.New("user not found")

// Scoring method labels reported per recommendation.
const (
	methodEmbedding  = "embedding"
	methodCF         = "cf"
	methodHybrid     = "hybrid"
	methodTagOverlap = "tag_overlap"
)

const normalizeEpsilon = 1e-10

// Options are the serving-time scoring parameters.
type Options struct {
	TopK                int
	SimilarityThreshold float64
	ColdStartThreshold  int
	DefaultCFWeight     float64
}

// Engine produces hybrid recommendations by blending embedding similarity
// with collaborative-filtering predictions, falling back to interest-tag
// overlap for cold-start users.
type Engine struct {
	store    storage.Storage
	embedder embedding.Embedder
	registry *Registry
	opts     Options
	logger   *zap.Logger
}

// NewEngine creates a recommendation engine over the given storage, embedder,
// and model registry.
func NewEngine(store storage.Storage, embedder embedding.Embedder, registry *Registry, opts Options, logger *zap.Logger) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.ColdStartThreshold <= 0 {
		opts.ColdStartThreshold = 5
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		registry: registry,
		opts:     opts,
		logger:   logger,
	}
}

// Recommend scores the catalog for a user and returns the top entries.
// Already-interacted content is never recommended. Optional request fields
// fall back to the engine defaults; cf_weight is clamped to [0, 1].
func (e *Engine) Recommend(ctx context.Context, req *models.RecommendationRequest) (*models.RecommendationResponse, error) {
	user, err := e.store.GetUser(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, req.UserID)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	n := req.N
	if n <= 0 {
		n = e.opts.TopK
	}
	useCF := req.UseCF == nil || *req.UseCF
	useEmbeddings := req.UseEmbeddings == nil || *req.UseEmbeddings
	cfWeight := e.opts.DefaultCFWeight
	if req.CFWeight != nil {
		cfWeight = *req.CFWeight
	}
	if cfWeight < 0 {
		cfWeight = 0
	}
	if cfWeight > 1 {
		cfWeight = 1
	}

	count, err := e.store.CountUserInteractions(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("count interactions: %w", err)
	}
	coldStart := count < int64(e.opts.ColdStartThreshold)

	interacted, err := e.interactedSet(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64)
	methods := make(map[string]map[string]bool)
	mark := func(id, method string) {
		if methods[id] == nil {
			methods[id] = make(map[string]bool)
		}
		methods[id][method] = true
	}

	if useEmbeddings && !coldStart && cfWeight < 1 {
		e.scoreEmbedding(ctx, user, n, cfWeight, interacted, scores, mark)
	}
	if useCF && !coldStart && cfWeight > 0 {
		e.scoreCF(req.UserID, n, cfWeight, interacted, scores, mark)
	}
	if coldStart || len(scores) == 0 {
		e.scoreTagOverlap(ctx, user, interacted, scores, mark)
	}

	recs, err := e.resolve(ctx, req.UserID, scores, methods, n)
	if err != nil {
		return nil, err
	}
	return &models.RecommendationResponse{
		UserID:          req.UserID,
		Recommendations: recs,
		Timestamp:       time.Now().UTC(),
	}, nil
}

// interactedSet collects the content ids the user has already interacted
// with; these are excluded from every signal.
func (e *Engine) interactedSet(ctx context.Context, userID string) (map[string]bool, error) {
	events, err := e.store.ListUserInteractions(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		seen[ev.ContentID] = true
	}
	return seen, nil
}

// scoreEmbedding embeds the user's interest text and accumulates
// similarity × (1−cfWeight) for index hits at or above the similarity
// threshold. Embedding or search failures drop the signal silently.
func (e *Engine) scoreEmbedding(ctx context.Context, user *models.UserProfile, n int, cfWeight float64, interacted map[string]bool, scores map[string]float64, mark func(id, method string)) {
	index := e.registry.Index()
	if index == nil || index.Size() == 0 {
		return
	}
	text := embedding.InterestText(user)
	if text == "" {
		return
	}
	query, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.logger.Warn("interest embedding failed, skipping embedding signal",
			zap.String("user_id", user.UserID), zap.Error(err))
		return
	}
	hits, err := index.Search(query, 2*n)
	if err != nil {
		e.logger.Warn("vector search failed, skipping embedding signal",
			zap.String("user_id", user.UserID), zap.Error(err))
		return
	}
	for _, hit := range hits {
		if hit.Score < e.opts.SimilarityThreshold || interacted[hit.ContentID] {
			continue
		}
		scores[hit.ContentID] += hit.Score * (1 - cfWeight)
		mark(hit.ContentID, methodEmbedding)
	}
}

// scoreCF takes the top CF candidates, min-max normalizes their predicted
// ratings within the candidate set, and accumulates normalized × cfWeight.
// Normalization is per request: scores are comparable within one response,
// not across responses.
func (e *Engine) scoreCF(userID string, n int, cfWeight float64, interacted map[string]bool, scores map[string]float64, mark func(id, method string)) {
	snapshot := e.registry.Snapshot()
	if snapshot == nil {
		return
	}
	candidates := snapshot.RecommendForUser(userID, 2*n, interacted)
	if len(candidates) == 0 {
		return
	}
	lo, hi := candidates[0].Score, candidates[0].Score
	for _, c := range candidates[1:] {
		if c.Score < lo {
			lo = c.Score
		}
		if c.Score > hi {
			hi = c.Score
		}
	}
	span := hi - lo + normalizeEpsilon
	for _, c := range candidates {
		norm := (c.Score - lo) / span
		scores[c.ID] += norm * cfWeight
		mark(c.ID, methodCF)
	}
}

// scoreTagOverlap scores every un-interacted catalog item by the fraction of
// the user's interests its tags cover. Items with zero overlap are dropped.
func (e *Engine) scoreTagOverlap(ctx context.Context, user *models.UserProfile, interacted map[string]bool, scores map[string]float64, mark func(id, method string)) {
	if len(user.Interests) == 0 {
		return
	}
	items, err := e.store.ListContent(ctx)
	if err != nil {
		e.logger.Warn("catalog listing failed, skipping tag fallback", zap.Error(err))
		return
	}
	interests := make(map[string]bool, len(user.Interests))
	for _, in := range user.Interests {
		interests[in] = true
	}
	for _, item := range items {
		if interacted[item.ContentID] {
			continue
		}
		overlap := 0
		for _, tag := range item.Tags {
			if interests[tag] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		scores[item.ContentID] += float64(overlap) / float64(len(interests))
		mark(item.ContentID, methodTagOverlap)
	}
}

// resolve ranks the accumulated scores and fills in catalog metadata. Ids no
// longer present in storage are dropped without error.
func (e *Engine) resolve(ctx context.Context, userID string, scores map[string]float64, methods map[string]map[string]bool, n int) ([]models.Recommendation, error) {
	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, scored{id: id, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	if n < len(ranked) {
		ranked = ranked[:n]
	}

	recs := make([]models.Recommendation, 0, len(ranked))
	for _, s := range ranked {
		item, err := e.store.GetContent(ctx, s.id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				e.logger.Debug("scored content no longer in storage",
					zap.String("content_id", s.id))
				continue
			}
			return nil, fmt.Errorf("load content %s: %w", s.id, err)
		}
		recs = append(recs, models.Recommendation{
			ContentID: item.ContentID,
			Title:     item.Title,
			Category:  item.Category,
			Score:     s.score,
			Method:    methodLabel(methods[s.id]),
		})
	}
	e.logger.Debug("recommendations served",
		zap.String("user_id", userID),
		zap.Int("count", len(recs)))
	return recs, nil
}

// methodLabel collapses the contributing signals into a single label:
// "hybrid" when both model signals contributed, otherwise the single source.
func methodLabel(sources map[string]bool) string {
	if sources[methodEmbedding] && sources[methodCF] {
		return methodHybrid
	}
	switch {
	case sources[methodEmbedding]:
		return methodEmbedding
	case sources[methodCF]:
		return methodCF
	default:
		return methodTagOverlap
	}
}
