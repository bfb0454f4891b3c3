package vector

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestNewHNSWIndex_ConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		dimensions  int
		maxElements int
		wantErr     bool
	}{
		{"valid", 3, 100, false},
		{"zero dimensions", 0, 100, true},
		{"zero capacity", 3, 0, true},
		{"negative capacity", 3, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultHNSWConfig(tt.dimensions)
			cfg.MaxElements = tt.maxElements
			cfg.Dimensions = tt.dimensions
			_, err := NewHNSWIndex(cfg)
			if tt.wantErr && !errors.Is(err, ErrCapacityConfig) {
				t.Errorf("expected ErrCapacityConfig, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestHNSWIndex_InsertAndSearch(t *testing.T) {
	cfg := DefaultHNSWConfig(3)
	idx, err := NewHNSWIndex(cfg)
	if err != nil {
		t.Fatal(err)
	}
	vecs := map[int64][]float32{
		1: {1, 0, 0},
		2: {0.9, 0.1, 0},
		3: {0, 1, 0},
		4: {0, 0, 1},
	}
	for id := int64(1); id <= 4; id++ {
		if err := idx.Insert(id, vecs[id]); err != nil {
			t.Fatal(err)
		}
	}
	if idx.Size() != 4 {
		t.Fatalf("Size=%d, want 4", idx.Size())
	}

	results, err := idx.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != 1 {
		t.Errorf("top result ID=%d, want 1", results[0].ID)
	}
	if results[1].ID != 2 {
		t.Errorf("second result ID=%d, want 2", results[1].ID)
	}
	if results[0].Distance > results[1].Distance {
		t.Error("results not ordered by ascending distance")
	}
}

func TestHNSWIndex_EmptySearch(t *testing.T) {
	idx, err := NewHNSWIndex(DefaultHNSWConfig(2))
	if err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("empty index returned %d results", len(results))
	}
}

func TestHNSWIndex_NilNotInitialized(t *testing.T) {
	var idx *HNSWIndex
	_, err := idx.Search([]float32{1, 0}, 1)
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
	if err := idx.Insert(1, []float32{1, 0}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
	if idx.Size() != 0 {
		t.Error("nil index Size should be 0")
	}
}

func TestHNSWIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewHNSWIndex(DefaultHNSWConfig(3))
	if err := idx.Insert(1, []float32{1, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Insert: expected ErrDimensionMismatch, got %v", err)
	}
	_ = idx.Insert(1, []float32{1, 0, 0})
	if _, err := idx.Search([]float32{1, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search: expected ErrDimensionMismatch, got %v", err)
	}
}

func TestHNSWIndex_Capacity(t *testing.T) {
	cfg := DefaultHNSWConfig(2)
	cfg.MaxElements = 2
	idx, _ := NewHNSWIndex(cfg)
	if err := idx.Insert(1, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Insert(2, []float32{0, 1}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Insert(3, []float32{1, 1}); !errors.Is(err, ErrIndexFull) {
		t.Errorf("expected ErrIndexFull, got %v", err)
	}
	// Re-insert of an existing ID replaces, never hits the capacity check.
	if err := idx.Insert(1, []float32{0.5, 0.5}); err != nil {
		t.Errorf("re-insert failed: %v", err)
	}
	if idx.Size() != 2 {
		t.Errorf("Size=%d, want 2", idx.Size())
	}
}

// Recall against brute force on a random corpus. HNSW is approximate, so the
// bar is deliberately modest.
func TestHNSWIndex_RecallAgainstExact(t *testing.T) {
	const (
		n   = 500
		dim = 16
		k   = 10
	)
	rng := rand.New(rand.NewSource(7))
	cfg := DefaultHNSWConfig(dim)
	cfg.MaxElements = n
	idx, err := NewHNSWIndex(cfg)
	if err != nil {
		t.Fatal(err)
	}

	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, dim)
		var norm float64
		for j := range v {
			v[j] = float32(rng.NormFloat64())
			norm += float64(v[j]) * float64(v[j])
		}
		inv := float32(1 / math.Sqrt(norm))
		for j := range v {
			v[j] *= inv
		}
		vecs[i] = v
		if err := idx.Insert(int64(i+1), v); err != nil {
			t.Fatal(err)
		}
	}

	query := vecs[42]
	approx, err := idx.Search(query, k)
	if err != nil {
		t.Fatal(err)
	}

	type scored struct {
		id   int64
		dist float64
	}
	exact := make([]scored, n)
	for i, v := range vecs {
		exact[i] = scored{id: int64(i + 1), dist: CosineDistance(query, v)}
	}
	for i := 0; i < len(exact); i++ {
		for j := i + 1; j < len(exact); j++ {
			if exact[j].dist < exact[i].dist {
				exact[i], exact[j] = exact[j], exact[i]
			}
		}
	}
	truth := make(map[int64]bool, k)
	for i := 0; i < k; i++ {
		truth[exact[i].id] = true
	}

	hits := 0
	for _, c := range approx {
		if truth[c.ID] {
			hits++
		}
	}
	if hits < k*7/10 {
		t.Errorf("recall too low: %d/%d", hits, k)
	}
	if approx[0].ID != 42+1 {
		t.Errorf("exact-match query should rank itself first, got %d", approx[0].ID)
	}
}

func TestHNSWIndex_DeterministicRebuild(t *testing.T) {
	build := func() []Candidate {
		cfg := DefaultHNSWConfig(4)
		idx, err := NewHNSWIndex(cfg)
		if err != nil {
			t.Fatal(err)
		}
		rng := rand.New(rand.NewSource(3))
		for i := int64(1); i <= 200; i++ {
			v := []float32{
				float32(rng.Float64()), float32(rng.Float64()),
				float32(rng.Float64()), float32(rng.Float64()),
			}
			if err := idx.Insert(i, v); err != nil {
				t.Fatal(err)
			}
		}
		res, err := idx.Search([]float32{0.5, 0.5, 0.5, 0.5}, 5)
		if err != nil {
			t.Fatal(err)
		}
		return res
	}

	first := build()
	second := build()
	if len(first) != len(second) {
		t.Fatalf("result counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("rebuild not deterministic at rank %d: %d vs %d", i, first[i].ID, second[i].ID)
		}
	}
}
