package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// kmeansIterations bounds quantizer training. The partition assignment
// converges quickly on the small centroid counts used here.
const kmeansIterations = 10

const (
	fileMagic   = 0x44495658 // "XVID" little-endian
	fileVersion = 1
)

// IVFIndex partitions vectors into nlist cells around k-means centroids and
// searches only the nprobe nearest cells. An index starts untrained: the
// first Add trains the quantizer on that batch, so the batch should be
// representative of total volume; the quantizer is not retrained
// incrementally. Reads are safe concurrently with each other and with writes.
type IVFIndex struct {
	mu        sync.RWMutex
	dim       int
	nlist     int
	nprobe    int
	trained   bool
	centroids [][]float32
	lists     [][]int32   // centroid -> slots assigned to it
	vectors   [][]float32 // slot -> vector
	ids       []string    // slot -> content id
}

// NewIVFIndex creates an untrained, empty index with the given dimension,
// partition count, and probe count.
func NewIVFIndex(dim, nlist, nprobe int) (*IVFIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}
	if nlist <= 0 {
		nlist = 100
	}
	if nprobe <= 0 {
		nprobe = 10
	}
	return &IVFIndex{
		dim:    dim,
		nlist:  nlist,
		nprobe: nprobe,
	}, nil
}

// Add inserts vectors with their content ids, assigning sequential internal
// slots starting at the current total. An untrained index is first trained on
// the batch. An empty batch is a no-op.
func (x *IVFIndex) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}
	for _, vec := range vectors {
		if len(vec) != x.dim {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), x.dim)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.trained {
		x.train(vectors)
	}
	for i, vec := range vectors {
		slot := int32(len(x.vectors))
		v := make([]float32, x.dim)
		copy(v, vec)
		x.vectors = append(x.vectors, v)
		x.ids = append(x.ids, ids[i])
		cell := x.nearestCentroid(v)
		x.lists[cell] = append(x.lists[cell], slot)
	}
	return nil
}

// train learns centroids from batch with deterministic k-means: seeds are
// evenly spaced samples, so the same batch always yields the same quantizer.
func (x *IVFIndex) train(batch [][]float32) {
	k := x.nlist
	if k > len(batch) {
		k = len(batch)
	}
	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		src := batch[i*len(batch)/k]
		c := make([]float32, x.dim)
		copy(c, src)
		centroids[i] = c
	}

	assign := make([]int, len(batch))
	for iter := 0; iter < kmeansIterations; iter++ {
		for i, vec := range batch {
			best, bestDist := 0, math.MaxFloat64
			for c, centroid := range centroids {
				if d := l2Squared(vec, centroid); d < bestDist {
					best, bestDist = c, d
				}
			}
			assign[i] = best
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, x.dim)
		}
		for i, vec := range batch {
			c := assign[i]
			counts[c]++
			for j, v := range vec {
				sums[c][j] += float64(v)
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // empty cell keeps its previous centroid
			}
			for j := 0; j < x.dim; j++ {
				centroids[c][j] = float32(sums[c][j] / float64(counts[c]))
			}
		}
	}

	x.centroids = centroids
	x.lists = make([][]int32, k)
	x.trained = true
}

func (x *IVFIndex) nearestCentroid(vec []float32) int {
	best, bestDist := 0, math.MaxFloat64
	for c, centroid := range x.centroids {
		if d := l2Squared(vec, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// Search returns up to k hits ranked by descending similarity, where
// similarity = 1/(1+d²) for squared L2 distance d². It scans the nprobe
// partitions nearest the query. An empty index returns no results and no
// error. Slots without a content id mapping are skipped.
func (x *IVFIndex) Search(query []float32, k int) ([]*Result, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d, index expects %d", ErrDimensionMismatch, len(query), x.dim)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if k <= 0 || len(x.vectors) == 0 {
		return nil, nil
	}

	type cellDist struct {
		cell int
		dist float64
	}
	cells := make([]cellDist, len(x.centroids))
	for c, centroid := range x.centroids {
		cells[c] = cellDist{cell: c, dist: l2Squared(query, centroid)}
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].dist < cells[j].dist })
	probe := x.nprobe
	if probe > len(cells) {
		probe = len(cells)
	}

	var hits []*Result
	for _, cd := range cells[:probe] {
		for _, slot := range x.lists[cd.cell] {
			id := x.ids[slot]
			if id == "" {
				continue
			}
			d := l2Squared(query, x.vectors[slot])
			hits = append(hits, &Result{ContentID: id, Score: 1.0 / (1.0 + d)})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ContentID < hits[j].ContentID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Size returns the number of vectors in the index.
func (x *IVFIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Stats reports vector count, dimension, and trained state.
func (x *IVFIndex) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return Stats{TotalVectors: len(x.vectors), Dimension: x.dim, Trained: x.trained}
}

// Save persists the quantizer, all vectors, partition assignments, and the
// slot-to-content-id mapping, so search resumes identically after Load.
func (x *IVFIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	header := []uint32{fileMagic, fileVersion, uint32(x.dim), uint32(x.nlist), uint32(x.nprobe)}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	trained := uint8(0)
	if x.trained {
		trained = 1
	}
	if err := binary.Write(w, binary.LittleEndian, trained); err != nil {
		return fmt.Errorf("write trained flag: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(x.centroids))); err != nil {
		return fmt.Errorf("write centroid count: %w", err)
	}
	for _, c := range x.centroids {
		if err := binary.Write(w, binary.LittleEndian, c); err != nil {
			return fmt.Errorf("write centroid: %w", err)
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(x.vectors))); err != nil {
		return fmt.Errorf("write vector count: %w", err)
	}
	assignments := x.slotAssignments()
	for slot, vec := range x.vectors {
		if err := binary.Write(w, binary.LittleEndian, assignments[slot]); err != nil {
			return fmt.Errorf("write assignment: %w", err)
		}
		idBytes := []byte(x.ids[slot])
		if err := binary.Write(w, binary.LittleEndian, uint32(len(idBytes))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := w.Write(idBytes); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return w.Flush()
}

// slotAssignments inverts the per-cell slot lists into slot -> cell.
func (x *IVFIndex) slotAssignments() []uint32 {
	assignments := make([]uint32, len(x.vectors))
	for cell, slots := range x.lists {
		for _, slot := range slots {
			assignments[slot] = uint32(cell)
		}
	}
	return assignments
}

// Load reads the index from path, replacing the in-memory contents. A missing
// file leaves the index unchanged without error; a malformed file returns
// ErrCorrupt and the index is unchanged.
func (x *IVFIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var header [5]uint32
	for i := range header {
		if err := binary.Read(r, binary.LittleEndian, &header[i]); err != nil {
			return fmt.Errorf("%w: short header", ErrCorrupt)
		}
	}
	if header[0] != fileMagic || header[1] != fileVersion {
		return fmt.Errorf("%w: bad magic or version", ErrCorrupt)
	}
	dim := int(header[2])
	if dim != x.dim {
		return fmt.Errorf("%w: file dimension %d, index expects %d", ErrCorrupt, dim, x.dim)
	}
	nlist := int(header[3])
	nprobe := int(header[4])

	var trained uint8
	if err := binary.Read(r, binary.LittleEndian, &trained); err != nil {
		return fmt.Errorf("%w: missing trained flag", ErrCorrupt)
	}

	var nCentroids uint32
	if err := binary.Read(r, binary.LittleEndian, &nCentroids); err != nil {
		return fmt.Errorf("%w: missing centroid count", ErrCorrupt)
	}
	if nCentroids > 1<<20 {
		return fmt.Errorf("%w: implausible centroid count %d", ErrCorrupt, nCentroids)
	}
	centroids := make([][]float32, nCentroids)
	for i := range centroids {
		c := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, c); err != nil {
			return fmt.Errorf("%w: truncated centroid", ErrCorrupt)
		}
		centroids[i] = c
	}

	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("%w: missing vector count", ErrCorrupt)
	}
	lists := make([][]int32, nCentroids)
	vectors := make([][]float32, 0, n)
	ids := make([]string, 0, n)
	for slot := uint32(0); slot < n; slot++ {
		var cell uint32
		if err := binary.Read(r, binary.LittleEndian, &cell); err != nil {
			return fmt.Errorf("%w: truncated assignment", ErrCorrupt)
		}
		if cell >= nCentroids {
			return fmt.Errorf("%w: assignment %d beyond %d cells", ErrCorrupt, cell, nCentroids)
		}
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("%w: truncated id length", ErrCorrupt)
		}
		if idLen > 1<<16 {
			return fmt.Errorf("%w: implausible id length %d", ErrCorrupt, idLen)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return fmt.Errorf("%w: truncated id", ErrCorrupt)
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("%w: truncated vector", ErrCorrupt)
		}
		lists[cell] = append(lists[cell], int32(slot))
		vectors = append(vectors, vec)
		ids = append(ids, string(idBytes))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.nlist = nlist
	x.nprobe = nprobe
	x.trained = trained == 1
	x.centroids = centroids
	x.lists = lists
	x.vectors = vectors
	x.ids = ids
	return nil
}

func l2Squared(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
