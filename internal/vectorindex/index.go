package vectorindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/andybalholm/brotli"
)

// Index is a flat inner-product index over unit-normalized vectors. Entries
// are position-aligned with the id-ordered metadata records persisted next
// to it; position i in the index is record i in the JSONL file.
type Index struct {
	dim     int
	ids     []string
	vectors [][]float32
}

// Hit is one search result.
type Hit struct {
	ID    string
	Pos   int
	Score float64
}

func New(dim int) *Index {
	return &Index{dim: dim}
}

func (ix *Index) Dim() int { return ix.dim }

func (ix *Index) Len() int { return len(ix.ids) }

func (ix *Index) IDAt(pos int) string { return ix.ids[pos] }

func (ix *Index) VectorAt(pos int) []float32 { return ix.vectors[pos] }

// Add appends a vector. Vectors must already be unit-normalized; the index
// scores by plain inner product.
func (ix *Index) Add(id string, vec []float32) error {
	if len(vec) != ix.dim {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(vec), ix.dim)
	}
	ix.ids = append(ix.ids, id)
	ix.vectors = append(ix.vectors, vec)
	return nil
}

// Search returns the top k entries by inner product, ties broken by
// insertion order for determinism.
func (ix *Index) Search(query []float32, k int) []Hit {
	return ix.SearchFunc(query, k, nil)
}

// SearchFunc is Search with an optional position filter. Entries for which
// allow returns false are skipped before ranking.
func (ix *Index) SearchFunc(query []float32, k int, allow func(pos int) bool) []Hit {
	if k <= 0 || len(ix.ids) == 0 {
		return nil
	}
	hits := make([]Hit, 0, len(ix.ids))
	for pos, vec := range ix.vectors {
		if allow != nil && !allow(pos) {
			continue
		}
		hits = append(hits, Hit{ID: ix.ids[pos], Pos: pos, Score: Dot(query, vec)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// Dot computes the inner product of two vectors of equal length.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Normalize scales a vector to unit length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Mean averages vectors element-wise and unit-normalizes the result.
func Mean(vecs ...[]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	out := make([]float32, len(vecs[0]))
	for _, v := range vecs {
		for i := range v {
			out[i] += v[i]
		}
	}
	n := float32(len(vecs))
	for i := range out {
		out[i] /= n
	}
	return Normalize(out)
}

const fileMagic = "VIDX"

// WriteFile persists the index as a brotli-compressed binary file:
// magic, dim, count, then count entries of (id length, id bytes, vector).
// All integers are little-endian; floats are raw IEEE-754 bits.
func (ix *Index) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer f.Close()

	bw := brotli.NewWriter(f)
	w := bufio.NewWriter(bw)

	if _, err := w.WriteString(fileMagic); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(ix.dim)); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(ix.ids))); err != nil {
		return err
	}
	for pos, id := range ix.ids {
		if err := writeUint32(w, uint32(len(id))); err != nil {
			return err
		}
		if _, err := w.WriteString(id); err != nil {
			return err
		}
		for _, v := range ix.vectors[pos] {
			if err := writeUint32(w, math.Float32bits(v)); err != nil {
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush index file: %w", err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("failed to finish compression: %w", err)
	}
	return f.Close()
}

// ReadFile loads an index written by WriteFile.
func ReadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(brotli.NewReader(f))

	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}
	if string(magic) != fileMagic {
		return nil, fmt.Errorf("not a vector index file: bad magic %q", magic)
	}

	dim, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	ix := New(int(dim))
	idBuf := make([]byte, 0, 64)
	for i := uint32(0); i < count; i++ {
		idLen, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %d: %w", i, err)
		}
		if cap(idBuf) < int(idLen) {
			idBuf = make([]byte, idLen)
		}
		idBuf = idBuf[:idLen]
		if _, err := io.ReadFull(r, idBuf); err != nil {
			return nil, fmt.Errorf("failed to read entry %d id: %w", i, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			bits, err := readUint32(r)
			if err != nil {
				return nil, fmt.Errorf("failed to read entry %d vector: %w", i, err)
			}
			vec[j] = math.Float32frombits(bits)
		}
		if err := ix.Add(string(idBuf), vec); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

func writeUint32(w *bufio.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

