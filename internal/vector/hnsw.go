package vector

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// HNSWConfig contains tuning parameters for the HNSW index.
type HNSWConfig struct {
	// Dimensions is the vector dimensionality.
	Dimensions int
	// MaxElements is the capacity ceiling; Insert fails beyond it.
	MaxElements int
	// M is the maximum number of connections per node per layer.
	M int
	// MMax is the connection limit at layer 0, usually 2*M.
	MMax int
	// EfConstruction is the beam width during insertion.
	EfConstruction int
	// EfSearch is the beam width during search.
	EfSearch int
	// LevelMultiplier controls the level distribution, typically 1/ln(M).
	LevelMultiplier float64
}

// DefaultHNSWConfig returns balanced defaults for the given dimensionality.
func DefaultHNSWConfig(dimensions int) HNSWConfig {
	m := 16
	return HNSWConfig{
		Dimensions:      dimensions,
		MaxElements:     10000,
		M:               m,
		MMax:            m * 2,
		EfConstruction:  200,
		EfSearch:        100,
		LevelMultiplier: 1.0 / math.Log(float64(m)),
	}
}

// Candidate is a single nearest-neighbor hit.
type Candidate struct {
	ID       int64
	Distance float64
}

type hnswNode struct {
	id        int64
	vector    []float32
	neighbors [][]int64 // neighbors[layer] = neighbor IDs
	level     int
}

// HNSWIndex is a graph-based approximate nearest-neighbor index using cosine
// distance. Insertion mutates shared graph state; callers must not overlap
// Insert with other operations without external serialization. Concurrent
// Search calls are safe.
type HNSWIndex struct {
	nodes    map[int64]*hnswNode
	entry    *hnswNode
	maxLevel int
	config   HNSWConfig
	rng      *rand.Rand
	mu       sync.RWMutex
}

// NewHNSWIndex allocates an empty index. Returns ErrCapacityConfig when
// Dimensions or MaxElements is below 1. Zero M/EfConstruction/EfSearch fall
// back to defaults.
func NewHNSWIndex(config HNSWConfig) (*HNSWIndex, error) {
	if config.Dimensions < 1 || config.MaxElements < 1 {
		return nil, ErrCapacityConfig
	}
	if config.M <= 0 {
		config.M = 16
	}
	if config.MMax <= 0 {
		config.MMax = config.M * 2
	}
	if config.EfConstruction <= 0 {
		config.EfConstruction = 200
	}
	if config.EfSearch <= 0 {
		config.EfSearch = 100
	}
	if config.LevelMultiplier <= 0 {
		config.LevelMultiplier = 1.0 / math.Log(float64(config.M))
	}
	return &HNSWIndex{
		nodes:    make(map[int64]*hnswNode),
		maxLevel: -1,
		config:   config,
		// Seeded for reproducible graph topology across rebuilds of the
		// same record sequence.
		rng: rand.New(rand.NewSource(42)),
	}, nil
}

// Config returns the configuration the index was built with.
func (idx *HNSWIndex) Config() HNSWConfig {
	return idx.config
}

// Size returns the number of vectors in the index.
func (idx *HNSWIndex) Size() int {
	if idx == nil {
		return 0
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

// Insert adds one vector. Returns ErrIndexFull at capacity and
// ErrDimensionMismatch when the vector length is wrong. Re-inserting an
// existing ID replaces its vector but keeps prior graph edges.
func (idx *HNSWIndex) Insert(id int64, vec []float32) error {
	if idx == nil {
		return ErrNotInitialized
	}
	if len(vec) != idx.config.Dimensions {
		return ErrDimensionMismatch
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.nodes[id]; ok {
		existing.vector = vec
		return nil
	}
	if len(idx.nodes) >= idx.config.MaxElements {
		return ErrIndexFull
	}

	level := idx.randomLevel()
	node := &hnswNode{
		id:        id,
		vector:    vec,
		neighbors: make([][]int64, level+1),
		level:     level,
	}
	idx.nodes[id] = node

	if idx.entry == nil {
		idx.entry = node
		idx.maxLevel = level
		return nil
	}

	// Greedy descent through layers above the new node's level.
	entryID := idx.greedyDescend(vec, idx.entry.id, idx.maxLevel, level)

	// Connect at each layer from min(level, maxLevel) down to 0.
	for l := minInt(level, idx.maxLevel); l >= 0; l-- {
		candidates := idx.searchLayer(vec, entryID, idx.config.EfConstruction, l)
		mLayer := idx.config.M
		if l == 0 {
			mLayer = idx.config.MMax
		}
		selected := candidates
		if len(selected) > mLayer {
			selected = selected[:mLayer]
		}
		node.neighbors[l] = make([]int64, 0, len(selected))
		for _, c := range selected {
			node.neighbors[l] = append(node.neighbors[l], c.ID)
			neighbor := idx.nodes[c.ID]
			if neighbor == nil || l >= len(neighbor.neighbors) {
				continue
			}
			neighbor.neighbors[l] = append(neighbor.neighbors[l], id)
			if len(neighbor.neighbors[l]) > mLayer {
				neighbor.neighbors[l] = idx.pruneNeighbors(neighbor.vector, neighbor.neighbors[l], mLayer)
			}
		}
		if len(selected) > 0 {
			entryID = selected[0].ID
		}
	}

	if level > idx.maxLevel {
		idx.entry = node
		idx.maxLevel = level
	}
	return nil
}

// Search returns up to k nearest neighbors ordered by ascending cosine
// distance. An empty index yields an empty result. Returns
// ErrDimensionMismatch when the query length is wrong and ErrNotInitialized
// on a nil index.
func (idx *HNSWIndex) Search(query []float32, k int) ([]Candidate, error) {
	if idx == nil {
		return nil, ErrNotInitialized
	}
	if len(query) != idx.config.Dimensions {
		return nil, ErrDimensionMismatch
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.entry == nil || k <= 0 {
		return []Candidate{}, nil
	}

	entryID := idx.greedyDescend(query, idx.entry.id, idx.maxLevel, 0)
	candidates := idx.searchLayer(query, entryID, idx.config.EfSearch, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// greedyDescend walks greedily from the entry point down to targetLevel+1,
// returning the closest node found as the entry for the next phase.
func (idx *HNSWIndex) greedyDescend(query []float32, entryID int64, fromLevel, targetLevel int) int64 {
	current := idx.nodes[entryID]
	currentDist := CosineDistance(query, current.vector)
	for l := fromLevel; l > targetLevel; l-- {
		for changed := true; changed; {
			changed = false
			if l >= len(current.neighbors) {
				continue
			}
			for _, nid := range current.neighbors[l] {
				neighbor := idx.nodes[nid]
				if neighbor == nil {
					continue
				}
				if d := CosineDistance(query, neighbor.vector); d < currentDist {
					current = neighbor
					currentDist = d
					changed = true
				}
			}
		}
	}
	return current.id
}

// searchLayer performs beam search of width ef at one layer, returning
// candidates ordered by ascending distance.
func (idx *HNSWIndex) searchLayer(query []float32, entryID int64, ef, layer int) []Candidate {
	entryNode := idx.nodes[entryID]
	if entryNode == nil {
		return nil
	}
	visited := map[int64]bool{entryID: true}
	entryDist := CosineDistance(query, entryNode.vector)

	candidates := &candidateHeap{max: false}
	results := &candidateHeap{max: true}
	heap.Push(candidates, Candidate{ID: entryID, Distance: entryDist})
	heap.Push(results, Candidate{ID: entryID, Distance: entryDist})

	for candidates.Len() > 0 {
		closest := heap.Pop(candidates).(Candidate)
		if results.Len() > 0 && closest.Distance > results.items[0].Distance {
			break
		}
		node := idx.nodes[closest.ID]
		if node == nil || layer >= len(node.neighbors) {
			continue
		}
		for _, nid := range node.neighbors[layer] {
			if visited[nid] {
				continue
			}
			visited[nid] = true
			neighbor := idx.nodes[nid]
			if neighbor == nil {
				continue
			}
			d := CosineDistance(query, neighbor.vector)
			if results.Len() < ef {
				heap.Push(candidates, Candidate{ID: nid, Distance: d})
				heap.Push(results, Candidate{ID: nid, Distance: d})
			} else if d < results.items[0].Distance {
				heap.Push(candidates, Candidate{ID: nid, Distance: d})
				heap.Pop(results)
				heap.Push(results, Candidate{ID: nid, Distance: d})
			}
		}
	}

	out := make([]Candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(Candidate)
	}
	return out
}

// pruneNeighbors keeps the m closest of a node's neighbor list.
func (idx *HNSWIndex) pruneNeighbors(nodeVec []float32, neighborIDs []int64, m int) []int64 {
	if len(neighborIDs) <= m {
		return neighborIDs
	}
	type scored struct {
		id   int64
		dist float64
	}
	dists := make([]scored, 0, len(neighborIDs))
	for _, nid := range neighborIDs {
		n := idx.nodes[nid]
		if n == nil {
			continue
		}
		dists = append(dists, scored{id: nid, dist: CosineDistance(nodeVec, n.vector)})
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i].dist < dists[j].dist })
	if len(dists) > m {
		dists = dists[:m]
	}
	out := make([]int64, len(dists))
	for i, d := range dists {
		out[i] = d.id
	}
	return out
}

// randomLevel draws the insertion level from the standard HNSW geometric
// distribution, capped at 16 layers.
func (idx *HNSWIndex) randomLevel() int {
	level := 0
	for idx.rng.Float64() < idx.config.LevelMultiplier && level < 16 {
		level++
	}
	return level
}

// candidateHeap is a heap of candidates; min-heap by distance when max is
// false, max-heap when true (used as the eviction set during beam search).
type candidateHeap struct {
	items []Candidate
	max   bool
}

func (h *candidateHeap) Len() int { return len(h.items) }

func (h *candidateHeap) Less(i, j int) bool {
	if h.max {
		return h.items[i].Distance > h.items[j].Distance
	}
	return h.items[i].Distance < h.items[j].Distance
}

func (h *candidateHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *candidateHeap) Push(x interface{}) {
	h.items = append(h.items, x.(Candidate))
}

func (h *candidateHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
