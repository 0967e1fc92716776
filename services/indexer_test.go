package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"manual-qa-backend/internal/store"
	"manual-qa-backend/models"
)

func TestBuildIntoPersistsAlignedGeneration(t *testing.T) {
	dir := t.TempDir()
	sections := []models.Section{
		{ID: "s1", Title: "Intro", PageStart: 1, PageEnd: 1, Text: "welcome"},
		{ID: "s2", Title: "Usage", PageStart: 2, PageEnd: 3, Text: "use it"},
	}
	chunks := []models.Chunk{
		{ID: "c1", SectionID: "s1", SectionTitle: "Intro", Text: "welcome"},
		{ID: "c2", SectionID: "s2", SectionTitle: "Usage", Text: "use it"},
		{ID: "c3", SectionID: "s2", SectionTitle: "Usage", Text: "use it more"},
	}

	ix := NewEmbeddingIndexer(&fakeEmbedder{})
	var progress []float64
	pair, err := ix.BuildInto(context.Background(), dir, sections, chunks, models.IndexMeta{PDFPath: "m.pdf", Pages: 3}, func(p float64) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("BuildInto: %v", err)
	}

	if pair.SectionIndex.Len() != 2 || pair.ChunkIndex.Len() != 3 {
		t.Errorf("index sizes %d/%d, want 2/3", pair.SectionIndex.Len(), pair.ChunkIndex.Len())
	}
	if pair.Meta.EmbeddingModel != "fake-embedder" || pair.Meta.Sections != 2 || pair.Meta.Chunks != 3 {
		t.Errorf("meta not filled in: %+v", pair.Meta)
	}

	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("progress went backwards: %v", progress)
		}
	}
	if len(progress) == 0 || progress[len(progress)-1] != 1 {
		t.Errorf("final progress = %v, want 1", progress)
	}

	for _, name := range []string{store.SectionsFile, store.ChunksFile, store.SectionVecsFile, store.ChunkVecsFile, store.MetaFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	loaded, err := LoadIndexPair(dir)
	if err != nil {
		t.Fatalf("LoadIndexPair: %v", err)
	}
	if len(loaded.Sections) != 2 || len(loaded.Chunks) != 3 {
		t.Fatalf("loaded %d sections, %d chunks", len(loaded.Sections), len(loaded.Chunks))
	}
	for i := range loaded.Chunks {
		if loaded.ChunkIndex.IDAt(i) != loaded.Chunks[i].ID {
			t.Errorf("chunk %d misaligned after reload", i)
		}
	}
}

func TestBuildIntoRejectsEmptyInput(t *testing.T) {
	ix := NewEmbeddingIndexer(&fakeEmbedder{})
	if _, err := ix.BuildInto(context.Background(), t.TempDir(), nil, nil, models.IndexMeta{}, nil); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestValidatePairCatchesMisalignment(t *testing.T) {
	pair := testPair(t)
	pair.Chunks[0].ID = "tampered"
	if err := validatePair(pair); err == nil {
		t.Error("expected misalignment to be rejected")
	}
}

func TestValidatePairCatchesOrphanChunk(t *testing.T) {
	pair := testPair(t)
	pair.Chunks[2].SectionID = "ghost"
	if err := validatePair(pair); err == nil {
		t.Error("expected orphan chunk to be rejected")
	}
}

func TestSectionByID(t *testing.T) {
	pair := testPair(t)
	if sec := pair.SectionByID("secB"); sec == nil || sec.Title != "Filters" {
		t.Errorf("SectionByID(secB) = %+v", sec)
	}
	if sec := pair.SectionByID("nope"); sec != nil {
		t.Error("unknown id should return nil")
	}
}
