package services

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"manual-qa-backend/internal/config"
	"manual-qa-backend/internal/logger"
	"manual-qa-backend/internal/store"
	"manual-qa-backend/internal/telemetry"
	"manual-qa-backend/models"
)

// Build phase boundaries on the [0,1] progress scale. Vector embedding
// dominates wall time, so it owns most of the range.
const (
	phaseParseEnd    = 0.30
	phaseChunkEnd    = 0.40
	phaseModelEnd    = 0.50
	phaseVectorsEnd  = 0.95
	phaseFinalizeEnd = 1.00
)

// layoutSource abstracts PDF layout extraction for the build pipeline.
type layoutSource interface {
	Parse(ctx context.Context, path string) ([][]models.PageRun, int, error)
}

// Coordinator drives the full ingestion pipeline (parse, sectionize,
// chunk, embed, persist, swap) as one cancellable background build, and
// publishes lock-free snapshots of both the build state and the served
// index pair.
type Coordinator struct {
	cfg      *config.Config
	parser   layoutSource
	sections *SectionBuilder
	chunker  *Chunker
	indexer  *EmbeddingIndexer
	store    *store.Store
	metrics  *telemetry.Metrics

	state atomic.Pointer[models.BuildState]
	pair  atomic.Pointer[IndexPair]

	mu       sync.Mutex
	building bool
	cancel   context.CancelFunc
}

func NewCoordinator(cfg *config.Config, indexer *EmbeddingIndexer, st *store.Store, metrics *telemetry.Metrics) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		parser:   NewLayoutParser(),
		sections: NewSectionBuilder(cfg.HeadingSizeRatio, cfg.MaxHeadingLength),
		chunker:  NewChunker(cfg.ChunkTokens, cfg.ChunkOverlap),
		indexer:  indexer,
		store:    st,
		metrics:  metrics,
	}
	c.state.Store(&models.BuildState{Status: models.BuildIdle})
	return c
}

// Snapshot returns a copy of the current build state.
func (c *Coordinator) Snapshot() models.BuildState {
	return *c.state.Load()
}

// Pair returns the currently served index pair, or nil before the first
// successful build or restore.
func (c *Coordinator) Pair() *IndexPair {
	return c.pair.Load()
}

// Restore loads a previously persisted index pair from the storage dir.
// Missing state is not an error; the coordinator just stays idle.
func (c *Coordinator) Restore() error {
	dir := c.store.CurrentDir()
	if _, err := os.Stat(dir); err != nil {
		return nil
	}
	pair, err := LoadIndexPair(dir)
	if err != nil {
		return fmt.Errorf("failed to restore index: %w", err)
	}
	c.pair.Store(pair)
	c.state.Store(&models.BuildState{
		Status:   models.BuildReady,
		Progress: 1,
		Message:  "restored persisted index",
	})
	logger.Info("Restored index pair",
		"sections", len(pair.Sections),
		"chunks", len(pair.Chunks),
		"model", pair.Meta.EmbeddingModel)
	return nil
}

// Start launches a build in the background. Only one build may run at a
// time; a second start while indexing returns ErrBuildInProgress.
func (c *Coordinator) Start(pdfPath string) error {
	c.mu.Lock()
	if c.building {
		c.mu.Unlock()
		return models.ErrBuildInProgress
	}
	c.building = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	now := time.Now()
	c.state.Store(&models.BuildState{
		Status:    models.BuildIndexing,
		Progress:  0,
		Message:   "starting",
		StartedAt: &now,
	})

	go func() {
		defer func() {
			c.mu.Lock()
			c.building = false
			c.cancel = nil
			c.mu.Unlock()
		}()
		c.run(ctx, pdfPath)
	}()
	return nil
}

// Cancel aborts an in-flight build, if any. The served pair is untouched.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Building reports whether a build is currently running.
func (c *Coordinator) Building() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.building
}

func (c *Coordinator) run(ctx context.Context, pdfPath string) {
	started := time.Now()
	chunksBuilt := 0

	err := c.build(ctx, pdfPath, &chunksBuilt)
	duration := time.Since(started).Seconds()

	if err != nil {
		ended := time.Now()
		prev := c.state.Load()
		c.state.Store(&models.BuildState{
			Status:    models.BuildError,
			Progress:  prev.Progress,
			Message:   "build failed",
			LastError: err.Error(),
			StartedAt: prev.StartedAt,
			EndedAt:   &ended,
		})
		if c.metrics != nil {
			c.metrics.RecordIndexBuild(duration, 0, "error")
		}
		logger.Error("Index build failed", "error", err, "duration_secs", duration)
		return
	}

	ended := time.Now()
	prev := c.state.Load()
	c.state.Store(&models.BuildState{
		Status:    models.BuildReady,
		Progress:  1,
		Message:   "index ready",
		StartedAt: prev.StartedAt,
		EndedAt:   &ended,
	})
	if c.metrics != nil {
		c.metrics.RecordIndexBuild(duration, int64(chunksBuilt), "ready")
	}
	logger.Info("Index build complete", "chunks", chunksBuilt, "duration_secs", duration)
}

func (c *Coordinator) build(ctx context.Context, pdfPath string, chunksBuilt *int) error {
	stat, err := os.Stat(pdfPath)
	if err != nil {
		return fmt.Errorf("pdf not accessible: %w", err)
	}

	c.setProgress(0.01, "parsing pdf layout")
	runsByPage, pages, err := c.parser.Parse(ctx, pdfPath)
	if err != nil {
		return err
	}
	c.setProgress(phaseParseEnd, "detecting sections")

	sections := c.sections.Build(runsByPage)
	chunks := c.chunker.ChunkAll(sections, c.cfg.MaxChunks)
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks produced", models.ErrParse)
	}
	*chunksBuilt = len(chunks)
	c.setProgress(phaseChunkEnd, "loading embedding model")

	// Probe the embedding model before committing to the long embedding
	// phase; a bad key or model name fails here, not halfway through.
	if _, err := c.indexer.embedder.EmbedOne(ctx, "warmup"); err != nil {
		return err
	}
	c.setProgress(phaseModelEnd, "embedding sections and chunks")

	staging, err := c.store.NewStaging()
	if err != nil {
		return err
	}
	defer c.store.Discard(staging)

	meta := models.IndexMeta{
		PDFPath:    pdfPath,
		Pages:      pages,
		BuiltAt:    time.Now().UTC().Format(time.RFC3339),
		PDFModTime: stat.ModTime().UTC().Format(time.RFC3339),
	}
	pair, err := c.indexer.BuildInto(ctx, staging, sections, chunks, meta, func(frac float64) {
		p := phaseModelEnd + frac*(phaseVectorsEnd-phaseModelEnd)
		c.setProgress(p, "embedding sections and chunks")
	})
	if err != nil {
		return err
	}
	c.setProgress(phaseVectorsEnd, "finalizing")

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.store.Promote(staging); err != nil {
		return err
	}
	c.pair.Store(pair)
	return nil
}

// setProgress advances progress monotonically within the running build.
func (c *Coordinator) setProgress(p float64, msg string) {
	prev := c.state.Load()
	if prev.Status != models.BuildIndexing {
		return
	}
	if p < prev.Progress {
		p = prev.Progress
	}
	if p > 1 {
		p = 1
	}
	c.state.Store(&models.BuildState{
		Status:    models.BuildIndexing,
		Progress:  p,
		Message:   msg,
		StartedAt: prev.StartedAt,
	})
}
