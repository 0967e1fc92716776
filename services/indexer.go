package services

import (
	"context"
	"fmt"
	"path/filepath"

	"manual-qa-backend/internal/store"
	"manual-qa-backend/internal/vectorindex"
	"manual-qa-backend/models"
)

// IndexPair is one immutable generation of the retrieval state: section
// and chunk records index-aligned with their vector indexes. Position i
// in SectionIndex corresponds to Sections[i], same for chunks.
type IndexPair struct {
	Sections     []models.Section
	Chunks       []models.Chunk
	SectionIndex *vectorindex.Index
	ChunkIndex   *vectorindex.Index
	Meta         models.IndexMeta
}

// SectionByID returns the section record for an id, or nil.
func (p *IndexPair) SectionByID(id string) *models.Section {
	for i := range p.Sections {
		if p.Sections[i].ID == id {
			return &p.Sections[i]
		}
	}
	return nil
}

// Embedder is the embedding capability the pipeline needs.
// ai.EmbeddingClient is the production implementation.
type Embedder interface {
	Model() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingIndexer embeds sections and chunks and writes one complete
// index generation into a directory.
type EmbeddingIndexer struct {
	embedder Embedder
}

func NewEmbeddingIndexer(embedder Embedder) *EmbeddingIndexer {
	return &EmbeddingIndexer{embedder: embedder}
}

// Progress granularity for embedding loops.
const indexerBatchSize = 64

// BuildInto embeds everything and persists records, vectors and meta
// into dir. progress is called with values in [0,1] as embedding
// advances. Any embedding failure aborts the build.
func (ix *EmbeddingIndexer) BuildInto(ctx context.Context, dir string, sections []models.Section, chunks []models.Chunk, meta models.IndexMeta, progress func(float64)) (*IndexPair, error) {
	if len(sections) == 0 {
		return nil, fmt.Errorf("no sections to index")
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to index")
	}
	if progress == nil {
		progress = func(float64) {}
	}

	sectionTexts := make([]string, len(sections))
	for i, sec := range sections {
		sectionTexts[i] = sec.Title + "\n" + sec.Text
	}
	chunkTexts := make([]string, len(chunks))
	for i, ch := range chunks {
		chunkTexts[i] = ch.Text
	}

	total := len(sectionTexts) + len(chunkTexts)
	done := 0
	embedAll := func(texts []string) ([][]float32, error) {
		out := make([][]float32, 0, len(texts))
		for start := 0; start < len(texts); start += indexerBatchSize {
			end := min(start+indexerBatchSize, len(texts))
			vecs, err := ix.embedder.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return nil, err
			}
			out = append(out, vecs...)
			done += end - start
			progress(float64(done) / float64(total))
		}
		return out, nil
	}

	sectionVecs, err := embedAll(sectionTexts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed sections: %w", err)
	}
	chunkVecs, err := embedAll(chunkTexts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	dim := len(sectionVecs[0])
	sectionIdx := vectorindex.New(dim)
	for i, vec := range sectionVecs {
		vectorindex.Normalize(vec)
		if err := sectionIdx.Add(sections[i].ID, vec); err != nil {
			return nil, fmt.Errorf("section vector %d: %w", i, err)
		}
	}
	chunkIdx := vectorindex.New(dim)
	for i, vec := range chunkVecs {
		vectorindex.Normalize(vec)
		if err := chunkIdx.Add(chunks[i].ID, vec); err != nil {
			return nil, fmt.Errorf("chunk vector %d: %w", i, err)
		}
	}

	meta.Sections = len(sections)
	meta.Chunks = len(chunks)
	meta.EmbeddingModel = ix.embedder.Model()
	meta.EmbeddingDim = dim

	pair := &IndexPair{
		Sections:     sections,
		Chunks:       chunks,
		SectionIndex: sectionIdx,
		ChunkIndex:   chunkIdx,
		Meta:         meta,
	}
	if err := validatePair(pair); err != nil {
		return nil, err
	}

	if err := store.WriteSections(dir, sections); err != nil {
		return nil, err
	}
	if err := store.WriteChunks(dir, chunks); err != nil {
		return nil, err
	}
	if err := sectionIdx.WriteFile(filepath.Join(dir, store.SectionVecsFile)); err != nil {
		return nil, err
	}
	if err := chunkIdx.WriteFile(filepath.Join(dir, store.ChunkVecsFile)); err != nil {
		return nil, err
	}
	if err := store.WriteMeta(dir, meta); err != nil {
		return nil, err
	}

	return pair, nil
}

// LoadIndexPair restores a previously persisted generation from dir.
func LoadIndexPair(dir string) (*IndexPair, error) {
	sections, err := store.LoadSections(dir)
	if err != nil {
		return nil, err
	}
	chunks, err := store.LoadChunks(dir)
	if err != nil {
		return nil, err
	}
	sectionIdx, err := vectorindex.ReadFile(filepath.Join(dir, store.SectionVecsFile))
	if err != nil {
		return nil, err
	}
	chunkIdx, err := vectorindex.ReadFile(filepath.Join(dir, store.ChunkVecsFile))
	if err != nil {
		return nil, err
	}
	meta, err := store.LoadMeta(dir)
	if err != nil {
		return nil, err
	}

	pair := &IndexPair{
		Sections:     sections,
		Chunks:       chunks,
		SectionIndex: sectionIdx,
		ChunkIndex:   chunkIdx,
		Meta:         meta,
	}
	if err := validatePair(pair); err != nil {
		return nil, err
	}
	return pair, nil
}

// validatePair checks that records and vectors are index-aligned, id for
// id. A mismatch means the generation is corrupt and must not be served.
func validatePair(p *IndexPair) error {
	if p.SectionIndex.Len() != len(p.Sections) {
		return fmt.Errorf("section index has %d vectors for %d records", p.SectionIndex.Len(), len(p.Sections))
	}
	if p.ChunkIndex.Len() != len(p.Chunks) {
		return fmt.Errorf("chunk index has %d vectors for %d records", p.ChunkIndex.Len(), len(p.Chunks))
	}
	if p.SectionIndex.Dim() != p.ChunkIndex.Dim() {
		return fmt.Errorf("index dimension mismatch: sections %d, chunks %d", p.SectionIndex.Dim(), p.ChunkIndex.Dim())
	}
	for i := range p.Sections {
		if p.SectionIndex.IDAt(i) != p.Sections[i].ID {
			return fmt.Errorf("section %d: vector id %q does not match record id %q", i, p.SectionIndex.IDAt(i), p.Sections[i].ID)
		}
	}
	sectionIDs := make(map[string]struct{}, len(p.Sections))
	for _, sec := range p.Sections {
		sectionIDs[sec.ID] = struct{}{}
	}
	for i := range p.Chunks {
		if p.ChunkIndex.IDAt(i) != p.Chunks[i].ID {
			return fmt.Errorf("chunk %d: vector id %q does not match record id %q", i, p.ChunkIndex.IDAt(i), p.Chunks[i].ID)
		}
		if _, ok := sectionIDs[p.Chunks[i].SectionID]; !ok {
			return fmt.Errorf("chunk %d references unknown section %q", i, p.Chunks[i].SectionID)
		}
	}
	return nil
}
