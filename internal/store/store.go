package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"manual-qa-backend/models"
)

// File names inside one index directory. The JSONL records are the
// reproducibility contract: retrieval can be restarted from these files
// plus the vector files without re-ingesting the PDF.
const (
	SectionsFile    = "sections.jsonl"
	ChunksFile      = "chunks.jsonl"
	SectionVecsFile = "sections.vec.br"
	ChunkVecsFile   = "chunks.vec.br"
	MetaFile        = "meta.json"

	currentDir = "current"
)

// Store manages the on-disk layout under one storage root:
// <root>/current holds the served index pair, staging directories hold
// in-progress builds until they are promoted with a rename.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// CurrentDir is the directory of the last promoted index pair. It may not
// exist before the first successful build.
func (s *Store) CurrentDir() string {
	return filepath.Join(s.root, currentDir)
}

// NewStaging creates a fresh staging directory for one build attempt.
func (s *Store) NewStaging() (string, error) {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create storage dir: %w", err)
	}
	dir := filepath.Join(s.root, fmt.Sprintf("staging-%d", time.Now().UnixNano()))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging dir: %w", err)
	}
	return dir, nil
}

// Promote atomically replaces the current index pair with a fully written
// staging directory. The old pair is removed only after the rename, so a
// crash mid-promote never leaves a partially visible pair.
func (s *Store) Promote(staging string) error {
	current := s.CurrentDir()
	old := current + ".old"

	_ = os.RemoveAll(old)
	if _, err := os.Stat(current); err == nil {
		if err := os.Rename(current, old); err != nil {
			return fmt.Errorf("failed to retire current index: %w", err)
		}
	}
	if err := os.Rename(staging, current); err != nil {
		// Put the old pair back so it stays servable.
		_ = os.Rename(old, current)
		return fmt.Errorf("failed to promote staging index: %w", err)
	}
	_ = os.RemoveAll(old)
	return nil
}

// Discard removes an abandoned staging directory.
func (s *Store) Discard(staging string) {
	_ = os.RemoveAll(staging)
}

// WriteSections writes one section per line.
func WriteSections(dir string, sections []models.Section) error {
	return writeJSONL(filepath.Join(dir, SectionsFile), len(sections), func(i int) any {
		return sections[i]
	})
}

// WriteChunks writes one chunk per line.
func WriteChunks(dir string, chunks []models.Chunk) error {
	return writeJSONL(filepath.Join(dir, ChunksFile), len(chunks), func(i int) any {
		return chunks[i]
	})
}

func WriteMeta(dir string, meta models.IndexMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, MetaFile), data, 0o644)
}

// LoadSections reads sections in file order.
func LoadSections(dir string) ([]models.Section, error) {
	var out []models.Section
	err := readJSONL(filepath.Join(dir, SectionsFile), func(line []byte) error {
		var s models.Section
		if err := json.Unmarshal(line, &s); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// LoadChunks reads chunks in file order.
func LoadChunks(dir string) ([]models.Chunk, error) {
	var out []models.Chunk
	err := readJSONL(filepath.Join(dir, ChunksFile), func(line []byte) error {
		var c models.Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func LoadMeta(dir string) (models.IndexMeta, error) {
	var meta models.IndexMeta
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return meta, fmt.Errorf("failed to read meta: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse meta: %w", err)
	}
	return meta, nil
}

func writeJSONL(path string, n int, record func(i int) any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := 0; i < n; i++ {
		if err := enc.Encode(record(i)); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func readJSONL(path string, each func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := each(sc.Bytes()); err != nil {
			return fmt.Errorf("bad record at %s:%d: %w", filepath.Base(path), line, err)
		}
	}
	return sc.Err()
}
