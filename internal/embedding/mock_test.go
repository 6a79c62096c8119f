package embedding

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	a, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("component %d differs: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestMockEmbedderUnitLength(t *testing.T) {
	e := NewMockEmbedder(16)
	emb, err := e.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatal(err)
	}
	if len(emb) != 16 {
		t.Fatalf("length: got %d, want 16", len(emb))
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1.0) > 1e-5 {
		t.Errorf("norm: got %f, want 1.0", math.Sqrt(sum))
	}
}

func TestMockEmbedderBatch(t *testing.T) {
	e := NewMockEmbedder(8)
	batch, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Fatalf("batch: got %d", len(batch))
	}
	single, err := e.Embed(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	for i := range single {
		if batch[0][i] != single[i] {
			t.Fatal("batch embedding differs from single embedding")
		}
	}
}

func TestMockEmbedderDefaultDimensions(t *testing.T) {
	if got := NewMockEmbedder(0).Dimensions(); got != 384 {
		t.Errorf("got %d, want 384", got)
	}
}
