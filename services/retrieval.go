package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"manual-qa-backend/internal/cache"
	"manual-qa-backend/internal/config"
	"manual-qa-backend/internal/logger"
	"manual-qa-backend/internal/telemetry"
	"manual-qa-backend/internal/vectorindex"
	"manual-qa-backend/models"
)

// PairSource yields the currently served index pair. The coordinator is
// the production implementation.
type PairSource interface {
	Pair() *IndexPair
}

// TextGenerator is the LLM capability retrieval and answering lean on.
// ai.Generator is the production implementation.
type TextGenerator interface {
	Available() bool
	Generate(ctx context.Context, system, prompt string) (string, error)
}

const hydeSystemPrompt = "You write short hypothetical excerpts from a product manual. " +
	"Given a user question, write 2-4 sentences that a manual section answering it would plausibly contain. " +
	"Write only the excerpt, no preamble."

// RetrievalEngine answers "which chunks are relevant" for a query:
// optional HyDE enrichment, hierarchical section narrowing, MMR
// diversity selection and a confidence signal.
type RetrievalEngine struct {
	cfg       *config.Config
	source    PairSource
	embedder  Embedder
	generator TextGenerator
	cache     *cache.Cache
	metrics   *telemetry.Metrics
}

func NewRetrievalEngine(cfg *config.Config, source PairSource, embedder Embedder, generator TextGenerator, c *cache.Cache, metrics *telemetry.Metrics) *RetrievalEngine {
	return &RetrievalEngine{
		cfg:       cfg,
		source:    source,
		embedder:  embedder,
		generator: generator,
		cache:     c,
		metrics:   metrics,
	}
}

// Retrieve returns up to topK chunks ranked for the query. topK <= 0
// falls back to the configured default. A blank query yields an empty
// low-confidence result rather than an error; a missing index yields
// ErrIndexUnavailable.
func (re *RetrievalEngine) Retrieve(ctx context.Context, query string, topK int) (models.RetrievalResult, error) {
	started := time.Now()

	pair := re.source.Pair()
	if pair == nil {
		return models.RetrievalResult{}, models.ErrIndexUnavailable
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return models.RetrievalResult{LowConfidence: true}, nil
	}
	if topK <= 0 {
		topK = re.cfg.TopK
	}

	searchText := query
	hypothesis := ""
	if re.cfg.UseHyDE && re.generator.Available() {
		hypothesis = re.hypothesize(ctx, query)
		if hypothesis != "" {
			searchText = query + "\n" + hypothesis
		}
	}

	queryVec, err := re.queryVector(ctx, query, hypothesis)
	if err != nil {
		return models.RetrievalResult{}, err
	}

	allow := func(int) bool { return true }
	if re.cfg.HierarchicalEnabled {
		secHits := pair.SectionIndex.Search(queryVec, re.cfg.SectionTopK)
		allowed := make(map[string]struct{}, len(secHits))
		for _, h := range secHits {
			allowed[h.ID] = struct{}{}
		}
		allow = func(pos int) bool {
			_, ok := allowed[pair.Chunks[pos].SectionID]
			return ok
		}
	}

	candidates := pair.ChunkIndex.SearchFunc(queryVec, re.cfg.MMRCandidates, allow)
	if len(candidates) == 0 {
		return models.RetrievalResult{
			LowConfidence: true,
			UsedHyDE:      hypothesis != "",
			SearchQuery:   searchText,
		}, nil
	}

	selected := mmrSelect(pair.ChunkIndex, candidates, topK, re.cfg.MMRLambda)

	topScore := selected[0].Score
	lowConfidence := topScore < re.cfg.ConfidenceThreshold

	scored := make([]models.ScoredChunk, len(selected))
	for i, hit := range selected {
		scored[i] = models.ScoredChunk{
			Chunk: pair.Chunks[hit.Pos],
			Score: hit.Score,
		}
	}
	if re.cfg.RerankEnabled {
		rerankChunks(query, scored)
	}

	if re.metrics != nil {
		re.metrics.RecordRetrieval(time.Since(started).Seconds(), len(scored), hypothesis != "")
	}

	return models.RetrievalResult{
		Chunks:        scored,
		TopScore:      topScore,
		LowConfidence: lowConfidence,
		UsedHyDE:      hypothesis != "",
		SearchQuery:   searchText,
	}, nil
}

// hypothesize drafts a short hypothetical answer for HyDE. Any failure
// (timeout, breaker open, empty draft) degrades to the raw query.
func (re *RetrievalEngine) hypothesize(ctx context.Context, query string) string {
	key := cache.Key("hyde", query)
	if cached, ok := re.cache.GetText(ctx, key); ok {
		return cached
	}

	hctx, cancel := context.WithTimeout(ctx, time.Duration(re.cfg.HyDETimeoutSecs)*time.Second)
	defer cancel()

	draft, err := re.generator.Generate(hctx, hydeSystemPrompt, query)
	if err != nil {
		logger.Debug("HyDE draft unavailable, using raw query", "error", err)
		return ""
	}
	draft = strings.TrimSpace(draft)
	if draft != "" {
		re.cache.SetText(ctx, key, draft)
	}
	return draft
}

// queryVector embeds the query, blended with the hypothesis when one
// exists: both vectors are normalized, averaged, and re-normalized.
func (re *RetrievalEngine) queryVector(ctx context.Context, query, hypothesis string) ([]float32, error) {
	if hypothesis == "" {
		vec, err := re.embedder.EmbedOne(ctx, query)
		if err != nil {
			return nil, err
		}
		return vectorindex.Normalize(vec), nil
	}
	vecs, err := re.embedder.EmbedBatch(ctx, []string{query, hypothesis})
	if err != nil {
		return nil, err
	}
	return vectorindex.Mean(vectorindex.Normalize(vecs[0]), vectorindex.Normalize(vecs[1])), nil
}

// mmrSelect picks up to k hits maximizing λ·relevance − (1−λ)·max
// similarity to the already-selected set. Candidates are ordered by
// relevance then id first, so ties resolve deterministically; λ=1
// reduces to plain top-k by relevance.
func mmrSelect(idx *vectorindex.Index, candidates []vectorindex.Hit, k int, lambda float64) []vectorindex.Hit {
	if k > len(candidates) {
		k = len(candidates)
	}

	working := make([]vectorindex.Hit, len(candidates))
	copy(working, candidates)
	sort.SliceStable(working, func(a, b int) bool {
		if working[a].Score != working[b].Score {
			return working[a].Score > working[b].Score
		}
		return working[a].ID < working[b].ID
	})

	selected := make([]vectorindex.Hit, 0, k)
	used := make([]bool, len(working))
	for len(selected) < k {
		bestIdx := -1
		bestScore := 0.0
		for i, cand := range working {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, sel := range selected {
				sim := vectorindex.Dot(idx.VectorAt(cand.Pos), idx.VectorAt(sel.Pos))
				if sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*cand.Score - (1-lambda)*maxSim
			if bestIdx == -1 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx == -1 {
			break
		}
		used[bestIdx] = true
		selected = append(selected, working[bestIdx])
	}
	return selected
}
