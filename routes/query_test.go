package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"manual-qa-backend/internal/config"
	"manual-qa-backend/internal/store"
	"manual-qa-backend/internal/vectorindex"
	"manual-qa-backend/models"
	"manual-qa-backend/services"

	"github.com/gin-gonic/gin"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Model() string { return "fixed-embedder" }

func (fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (fixedEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type silentGenerator struct{}

func (silentGenerator) Available() bool { return false }

func (silentGenerator) Generate(context.Context, string, string) (string, error) {
	return "", models.ErrGenerationUnavailable
}

type staticSource struct{ pair *services.IndexPair }

func (s staticSource) Pair() *services.IndexPair { return s.pair }

func queryTestConfig() *config.Config {
	return &config.Config{
		ChunkTokens:         350,
		ChunkOverlap:        60,
		HeadingSizeRatio:    1.2,
		MaxHeadingLength:    180,
		TopK:                5,
		MMRLambda:           1.0,
		MMRCandidates:       8,
		SectionTopK:         1,
		ConfidenceThreshold: 0.2,
	}
}

func queryTestPair(t *testing.T) *services.IndexPair {
	t.Helper()
	secIdx := vectorindex.New(2)
	if err := secIdx.Add("secA", []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	chunkIdx := vectorindex.New(2)
	if err := chunkIdx.Add("a1", []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	return &services.IndexPair{
		Sections: []models.Section{
			{ID: "secA", Title: "Reset", PageStart: 1, PageEnd: 2, Text: "reset things"},
		},
		Chunks: []models.Chunk{
			{ID: "a1", SectionID: "secA", SectionTitle: "Reset", PageStart: 1, PageEnd: 1, Text: "hold the reset button"},
		},
		SectionIndex: secIdx,
		ChunkIndex:   chunkIdx,
		Meta:         models.IndexMeta{EmbeddingModel: "fixed-embedder", EmbeddingDim: 2},
	}
}

func newQueryRouter(t *testing.T, pair *services.IndexPair) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := queryTestConfig()
	st := store.New(filepath.Join(t.TempDir(), "storage"))
	coordinator := services.NewCoordinator(cfg, services.NewEmbeddingIndexer(fixedEmbedder{}), st, nil)
	retrieval := services.NewRetrievalEngine(cfg, staticSource{pair: pair}, fixedEmbedder{}, silentGenerator{}, nil, nil)
	qa := services.NewQAService(cfg, retrieval, silentGenerator{}, nil)

	router := gin.New()
	SetupQueryRoutes(router, cfg, qa, retrieval, coordinator)
	return router
}

func TestSearchReturnsRetrievalEnvelope(t *testing.T) {
	router := newQueryRouter(t, queryTestPair(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/search?q=reset+button&k=2", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var resp models.SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("search returned no results")
	}
	if resp.Results[0].ChunkID != "a1" {
		t.Errorf("top result = %s, want a1", resp.Results[0].ChunkID)
	}
	if resp.TopScore <= 0 {
		t.Errorf("top_score = %v, want > 0", resp.TopScore)
	}
	if resp.LowConfidence {
		t.Error("exact-match query flagged low confidence")
	}
}

func TestSearchRequiresQueryParam(t *testing.T) {
	router := newQueryRouter(t, queryTestPair(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSearchBeforeIndexIsNotReady(t *testing.T) {
	router := newQueryRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/search?q=anything", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body["error_code"] != "index_not_ready" {
		t.Errorf("error_code = %v, want index_not_ready", body["error_code"])
	}
}
