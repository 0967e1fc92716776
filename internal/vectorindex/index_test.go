package vectorindex

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestSearchOrdersByScore(t *testing.T) {
	ix := New(2)
	mustAdd(t, ix, "east", []float32{1, 0})
	mustAdd(t, ix, "north", []float32{0, 1})
	mustAdd(t, ix, "northeast", Normalize([]float32{1, 1}))

	hits := ix.Search([]float32{1, 0}, 2)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ID != "east" {
		t.Errorf("top hit = %q, want east", hits[0].ID)
	}
	if hits[1].ID != "northeast" {
		t.Errorf("second hit = %q, want northeast", hits[1].ID)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("scores out of order: %f < %f", hits[0].Score, hits[1].Score)
	}
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	ix := New(2)
	mustAdd(t, ix, "first", []float32{1, 0})
	mustAdd(t, ix, "second", []float32{1, 0})

	hits := ix.Search([]float32{1, 0}, 2)
	if hits[0].ID != "first" || hits[1].ID != "second" {
		t.Errorf("tie order = [%s %s], want [first second]", hits[0].ID, hits[1].ID)
	}
}

func TestSearchFuncFiltersPositions(t *testing.T) {
	ix := New(2)
	mustAdd(t, ix, "a", []float32{1, 0})
	mustAdd(t, ix, "b", []float32{1, 0})
	mustAdd(t, ix, "c", []float32{0, 1})

	hits := ix.SearchFunc([]float32{1, 0}, 10, func(pos int) bool { return pos != 0 })
	for _, h := range hits {
		if h.ID == "a" {
			t.Error("filtered position leaked into results")
		}
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits, want 2", len(hits))
	}
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	ix := New(3)
	if err := ix.Add("bad", []float32{1, 0}); err == nil {
		t.Error("expected error for 2-dim vector in 3-dim index")
	}
}

func TestNormalizeProducesUnitVector(t *testing.T) {
	vec := Normalize([]float32{3, 4})
	norm := math.Sqrt(Dot(vec, vec))
	if math.Abs(norm-1) > 1e-6 {
		t.Errorf("norm = %f, want 1", norm)
	}
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("normalized = %v, want [0.6 0.8]", vec)
	}
}

func TestNormalizeZeroVectorIsNoop(t *testing.T) {
	vec := Normalize([]float32{0, 0})
	if vec[0] != 0 || vec[1] != 0 {
		t.Errorf("zero vector changed: %v", vec)
	}
}

func TestMeanBlendsAndRenormalizes(t *testing.T) {
	mean := Mean([]float32{1, 0}, []float32{0, 1})
	norm := math.Sqrt(Dot(mean, mean))
	if math.Abs(norm-1) > 1e-6 {
		t.Errorf("mean norm = %f, want 1", norm)
	}
	if math.Abs(float64(mean[0])-float64(mean[1])) > 1e-6 {
		t.Errorf("mean of orthogonal unit vectors should be symmetric, got %v", mean)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	ix := New(3)
	mustAdd(t, ix, "alpha", []float32{0.1, 0.2, 0.3})
	mustAdd(t, ix, "beta", []float32{-1, 0.5, 0.25})

	path := filepath.Join(t.TempDir(), "test.vec.br")
	if err := ix.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loaded, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if loaded.Dim() != 3 || loaded.Len() != 2 {
		t.Fatalf("loaded dim=%d len=%d, want 3/2", loaded.Dim(), loaded.Len())
	}
	for pos := 0; pos < ix.Len(); pos++ {
		if loaded.IDAt(pos) != ix.IDAt(pos) {
			t.Errorf("pos %d: id %q, want %q", pos, loaded.IDAt(pos), ix.IDAt(pos))
		}
		got, want := loaded.VectorAt(pos), ix.VectorAt(pos)
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("pos %d dim %d: %f, want %f", pos, i, got[i], want[i])
			}
		}
	}
}

func TestReadFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.vec.br")
	if err := os.WriteFile(path, []byte("not an index"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Error("expected error for garbage file")
	}
}

func mustAdd(t *testing.T, ix *Index, id string, vec []float32) {
	t.Helper()
	if err := ix.Add(id, vec); err != nil {
		t.Fatalf("Add(%q): %v", id, err)
	}
}
