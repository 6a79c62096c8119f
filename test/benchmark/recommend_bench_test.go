package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/dummi-ai/dummi/internal/cf"
	"github.com/dummi-ai/dummi/internal/embedding"
	"github.com/dummi-ai/dummi/internal/models"
	"github.com/dummi-ai/dummi/internal/vector"
)

func BenchmarkIVFIndexSearch(b *testing.B) {
	const (
		dim = 64
		n   = 1000
	)
	rng := rand.New(rand.NewSource(1))
	ids := make([]string, n)
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("content-%d", i)
		vecs[i] = make([]float32, dim)
		for j := range vecs[i] {
			vecs[i][j] = rng.Float32()
		}
	}
	idx, err := vector.NewIVFIndex(dim, 16, 4)
	if err != nil {
		b.Fatal(err)
	}
	if err := idx.Add(ids, vecs); err != nil {
		b.Fatal(err)
	}
	query := vecs[0]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(query, 10)
	}
}

func BenchmarkSnapshotRecommend(b *testing.B) {
	const (
		nUsers = 100
		nItems = 200
	)
	var events []*models.InteractionEvent
	rng := rand.New(rand.NewSource(1))
	for u := 0; u < nUsers; u++ {
		for k := 0; k < 20; k++ {
			events = append(events, &models.InteractionEvent{
				ID:        fmt.Sprintf("evt-%d-%d", u, k),
				UserID:    fmt.Sprintf("user-%d", u),
				ContentID: fmt.Sprintf("content-%d", rng.Intn(nItems)),
				Type:      models.InteractionLike,
			})
		}
	}
	matrix := cf.BuildInteractionMatrix(events)
	snapshot, err := cf.Train(matrix, cf.Config{Factors: 8, Epochs: 10, Seed: 42})
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = snapshot.RecommendForUser("user-0", 10, nil)
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := embedding.NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}
