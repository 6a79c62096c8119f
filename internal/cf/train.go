package cf

import (
	"math"
	"math/rand"
	"time"
)

// Config holds factorization hyperparameters.
type Config struct {
	Factors int   // latent factor count K; capped at min(n_users, n_items)
	Epochs  int   // multiplicative-update iterations
	Seed    int64 // rng seed for factor initialization
}

// DefaultConfig mirrors the serving defaults.
func DefaultConfig() Config {
	return Config{Factors: 50, Epochs: 20, Seed: 42}
}

const updateEpsilon = 1e-9

// Train factorizes the matrix into user and item factor matrices whose
// product approximates it, using NMF with multiplicative updates. Negative
// accumulated weights are clamped to zero before fitting, since the
// factorization requires non-negativity. Deterministic for a fixed seed.
// Returns ErrNoData when the matrix has zero users or zero items.
func Train(m *Matrix, cfg Config) (*Snapshot, error) {
	nUsers := len(m.UserIDs)
	nItems := len(m.ItemIDs)
	if nUsers == 0 || nItems == 0 {
		return nil, ErrNoData
	}

	k := cfg.Factors
	if k <= 0 {
		k = DefaultConfig().Factors
	}
	if k > nUsers {
		k = nUsers
	}
	if k > nItems {
		k = nItems
	}
	epochs := cfg.Epochs
	if epochs <= 0 {
		epochs = DefaultConfig().Epochs
	}

	// Non-negative copy of the target matrix.
	v := make([][]float64, nUsers)
	var total float64
	for u := range v {
		v[u] = make([]float64, nItems)
		for i, w := range m.Weights[u] {
			if w > 0 {
				v[u][i] = w
				total += w
			}
		}
	}

	// Uniform random init scaled to the matrix mean, matching the usual
	// "random" NMF initialization.
	rng := rand.New(rand.NewSource(cfg.Seed))
	mean := total / float64(nUsers*nItems)
	scale := math.Sqrt(mean / float64(k))
	if scale <= 0 {
		scale = 0.01
	}
	w := randomMatrix(rng, nUsers, k, scale)
	h := randomMatrix(rng, k, nItems, scale)

	for epoch := 0; epoch < epochs; epoch++ {
		// H <- H ⊙ (WᵀV) / (WᵀWH)
		wtv := multiplyTransposeLeft(w, v, k, nItems)
		wtw := multiplyTransposeLeft(w, w, k, k)
		wtwh := multiply(wtw, h, k, nItems)
		for r := 0; r < k; r++ {
			for c := 0; c < nItems; c++ {
				h[r][c] *= wtv[r][c] / (wtwh[r][c] + updateEpsilon)
			}
		}
		// W <- W ⊙ (VHᵀ) / (WHHᵀ)
		vht := multiplyTransposeRight(v, h, nUsers, k)
		hht := multiplyTransposeRight(h, h, k, k)
		whht := multiply(w, hht, nUsers, k)
		for r := 0; r < nUsers; r++ {
			for c := 0; c < k; c++ {
				w[r][c] *= vht[r][c] / (whht[r][c] + updateEpsilon)
			}
		}
	}

	// Reconstruction RMSE over all cells, as a fit-quality signal.
	var sqErr float64
	for u := 0; u < nUsers; u++ {
		for i := 0; i < nItems; i++ {
			var pred float64
			for f := 0; f < k; f++ {
				pred += w[u][f] * h[f][i]
			}
			d := v[u][i] - pred
			sqErr += d * d
		}
	}
	rmse := math.Sqrt(sqErr / float64(nUsers*nItems))

	itemFactors := make([][]float64, nItems)
	for i := 0; i < nItems; i++ {
		itemFactors[i] = make([]float64, k)
		for f := 0; f < k; f++ {
			itemFactors[i][f] = h[f][i]
		}
	}

	userIdx := make(map[string]int, nUsers)
	for i, id := range m.UserIDs {
		userIdx[id] = i
	}
	itemIdx := make(map[string]int, nItems)
	for i, id := range m.ItemIDs {
		itemIdx[id] = i
	}

	return &Snapshot{
		UserFactors: w,
		ItemFactors: itemFactors,
		UserIndex:   userIdx,
		ItemIndex:   itemIdx,
		UserIDs:     append([]string(nil), m.UserIDs...),
		ItemIDs:     append([]string(nil), m.ItemIDs...),
		Factors:     k,
		RMSE:        rmse,
		TrainedAt:   time.Now(),
	}, nil
}

func randomMatrix(rng *rand.Rand, rows, cols int, scale float64) [][]float64 {
	out := make([][]float64, rows)
	for r := range out {
		out[r] = make([]float64, cols)
		for c := range out[r] {
			out[r][c] = rng.Float64() * scale
		}
	}
	return out
}

// multiply returns a×b for a (rows×inner) and b (inner×cols).
func multiply(a, b [][]float64, rows, cols int) [][]float64 {
	inner := len(b)
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		out[r] = make([]float64, cols)
		for i := 0; i < inner; i++ {
			av := a[r][i]
			if av == 0 {
				continue
			}
			for c := 0; c < cols; c++ {
				out[r][c] += av * b[i][c]
			}
		}
	}
	return out
}

// multiplyTransposeLeft returns aᵀ×b for a (n×rows) and b (n×cols).
func multiplyTransposeLeft(a, b [][]float64, rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for r := range out {
		out[r] = make([]float64, cols)
	}
	for i := range a {
		for r := 0; r < rows; r++ {
			av := a[i][r]
			if av == 0 {
				continue
			}
			for c := 0; c < cols; c++ {
				out[r][c] += av * b[i][c]
			}
		}
	}
	return out
}

// multiplyTransposeRight returns a×bᵀ for a (rows×n) and b (cols×n).
func multiplyTransposeRight(a, b [][]float64, rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		out[r] = make([]float64, cols)
		for c := 0; c < cols; c++ {
			var sum float64
			for i := range a[r] {
				sum += a[r][i] * b[c][i]
			}
			out[r][c] = sum
		}
	}
	return out
}
