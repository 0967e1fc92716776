package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"manual-qa-backend/internal/config"
	"manual-qa-backend/internal/store"
	"manual-qa-backend/models"
)

type failingEmbedder struct{}

func (failingEmbedder) Model() string { return "failing-embedder" }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: backend rejected the request", models.ErrEmbeddingModel)
}

func (failingEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: backend rejected the request", models.ErrEmbeddingModel)
}

type stubParser struct {
	pages [][]models.PageRun
}

func (s *stubParser) Parse(context.Context, string) ([][]models.PageRun, int, error) {
	return s.pages, len(s.pages), nil
}

func coordinatorConfig() *config.Config {
	return &config.Config{
		ChunkTokens:      350,
		ChunkOverlap:     60,
		HeadingSizeRatio: 1.2,
		MaxHeadingLength: 180,
	}
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "storage"))
	indexer := NewEmbeddingIndexer(&fakeEmbedder{})
	return NewCoordinator(coordinatorConfig(), indexer, st, nil)
}

func waitForTerminal(t *testing.T, c *Coordinator) models.BuildState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state := c.Snapshot()
		if state.Status == models.BuildReady || state.Status == models.BuildError {
			return state
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("build did not reach a terminal state; last: %+v", c.Snapshot())
	return models.BuildState{}
}

func TestCoordinatorStartsIdle(t *testing.T) {
	c := newTestCoordinator(t)
	state := c.Snapshot()
	if state.Status != models.BuildIdle {
		t.Errorf("initial status = %s, want idle", state.Status)
	}
	if c.Pair() != nil {
		t.Error("fresh coordinator should serve no pair")
	}
}

func TestCoordinatorMissingPDFEndsInError(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.Start(filepath.Join(t.TempDir(), "does-not-exist.pdf")); err != nil {
		t.Fatalf("Start: %v", err)
	}

	state := waitForTerminal(t, c)
	if state.Status != models.BuildError {
		t.Fatalf("status = %s, want error", state.Status)
	}
	if state.LastError == "" {
		t.Error("error state has no last_error")
	}
	if state.EndedAt == nil {
		t.Error("terminal state has no ended_at")
	}
	if c.Pair() != nil {
		t.Error("failed build must not publish a pair")
	}
}

func TestCoordinatorFailedRebuildKeepsServedPair(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "storage"))
	c := NewCoordinator(coordinatorConfig(), NewEmbeddingIndexer(failingEmbedder{}), st, nil)
	c.parser = &stubParser{pages: [][]models.PageRun{
		{run(1, "1. Reset", 18), run(1, "hold the reset button for ten seconds", 11)},
	}}

	served := testPair(t)
	c.pair.Store(served)
	c.state.Store(&models.BuildState{Status: models.BuildReady, Progress: 1, Message: "index ready"})

	pdfPath := filepath.Join(t.TempDir(), "manual.pdf")
	if err := os.WriteFile(pdfPath, []byte("stand-in"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(pdfPath); err != nil {
		t.Fatalf("Start: %v", err)
	}

	state := waitForTerminal(t, c)
	if state.Status != models.BuildError {
		t.Fatalf("status = %s, want error", state.Status)
	}
	if state.LastError == "" {
		t.Error("error state has no last_error")
	}
	if got := c.Pair(); got != served {
		t.Error("served pair replaced after failed rebuild")
	}

	engine := NewRetrievalEngine(retrievalConfig(), c, &fakeEmbedder{}, &fakeGenerator{}, nil, nil)
	result, err := engine.Retrieve(context.Background(), "reset button", 2)
	if err != nil {
		t.Fatalf("Retrieve after failed rebuild: %v", err)
	}
	if len(result.Chunks) == 0 {
		t.Error("no chunks retrieved from the surviving index")
	}
}

func TestCoordinatorRejectsConcurrentBuilds(t *testing.T) {
	c := newTestCoordinator(t)

	c.mu.Lock()
	c.building = true
	c.mu.Unlock()

	err := c.Start("irrelevant.pdf")
	if err != models.ErrBuildInProgress {
		t.Errorf("err = %v, want ErrBuildInProgress", err)
	}
}

func TestCoordinatorProgressIsMonotonic(t *testing.T) {
	c := newTestCoordinator(t)
	c.state.Store(&models.BuildState{Status: models.BuildIndexing, Progress: 0.6, Message: "embedding"})

	c.setProgress(0.3, "going backwards")
	if got := c.Snapshot().Progress; got != 0.6 {
		t.Errorf("progress regressed to %v, want clamp at 0.6", got)
	}

	c.setProgress(0.8, "forward")
	if got := c.Snapshot().Progress; got != 0.8 {
		t.Errorf("progress = %v, want 0.8", got)
	}

	c.setProgress(7, "overflow")
	if got := c.Snapshot().Progress; got != 1 {
		t.Errorf("progress = %v, want clamp at 1", got)
	}
}

func TestCoordinatorProgressIgnoredOutsideBuild(t *testing.T) {
	c := newTestCoordinator(t)
	c.setProgress(0.5, "stray update")
	if got := c.Snapshot(); got.Status != models.BuildIdle || got.Progress != 0 {
		t.Errorf("idle state mutated: %+v", got)
	}
}

func TestCoordinatorRestoreWithoutStateIsNoop(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.Restore(); err != nil {
		t.Fatalf("Restore on empty storage: %v", err)
	}
	if c.Snapshot().Status != models.BuildIdle {
		t.Error("restore without persisted state should stay idle")
	}
}
