package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"manual-qa-backend/internal/cache"
	"manual-qa-backend/internal/config"
	"manual-qa-backend/internal/logger"
	"manual-qa-backend/models"
)

const answerSystemPrompt = "You answer questions about a product manual. " +
	"Use ONLY the provided context excerpts. When the context does not contain the answer, say so plainly. " +
	"Cite excerpts as [n] where n is the context number. Keep answers short and concrete."

const clarificationAnswer = "I couldn't find a confident match for that in the manual. " +
	"Could you rephrase the question or mention the feature or section you're asking about?"

// Conversation history folded into the search query is capped so one
// verbose turn cannot drown out the current question.
const maxSearchQueryLen = 512

// QAService turns retrieval results into answers: LLM generation with
// citations when the model is reachable, extractive fallback when it is
// not, and a clarification request on low-confidence retrieval.
type QAService struct {
	cfg       *config.Config
	retrieval *RetrievalEngine
	generator TextGenerator
	cache     *cache.Cache
}

func NewQAService(cfg *config.Config, retrieval *RetrievalEngine, generator TextGenerator, c *cache.Cache) *QAService {
	return &QAService{
		cfg:       cfg,
		retrieval: retrieval,
		generator: generator,
		cache:     c,
	}
}

// Answer handles one question. History, when present, widens the search
// query; generation failures fall back to quoting the best chunk rather
// than failing the request.
func (qa *QAService) Answer(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	searchQuery := BuildSearchQuery(req.Question, req.History)

	result, err := qa.retrieval.Retrieve(ctx, searchQuery, req.TopK)
	if err != nil {
		return models.QueryResponse{}, err
	}

	citations := make([]models.Citation, len(result.Chunks))
	for i, sc := range result.Chunks {
		citations[i] = models.Citation{
			ChunkID:      sc.Chunk.ID,
			SectionTitle: sc.Chunk.SectionTitle,
			PageStart:    sc.Chunk.PageStart,
			PageEnd:      sc.Chunk.PageEnd,
			Score:        sc.Score,
			Text:         snippet(sc.Chunk.Text, 280),
		}
	}

	if result.LowConfidence || len(result.Chunks) == 0 {
		return models.QueryResponse{
			Answer:        clarificationAnswer,
			Citations:     citations,
			LowConfidence: true,
		}, nil
	}

	wantLLM := req.UseLLM == nil || *req.UseLLM
	if wantLLM && qa.generator.Available() {
		answer, err := qa.generate(ctx, req.Question, result.Chunks)
		if err == nil {
			return models.QueryResponse{
				Answer:    answer,
				Citations: citations,
				UsedLLM:   true,
			}, nil
		}
		if !errors.Is(err, models.ErrGenerationUnavailable) {
			logger.Warn("Answer generation failed, falling back to extract", "error", err)
		}
	}

	return models.QueryResponse{
		Answer:    extractiveAnswer(result.Chunks),
		Citations: citations,
	}, nil
}

func (qa *QAService) generate(ctx context.Context, question string, chunks []models.ScoredChunk) (string, error) {
	prompt := buildPrompt(question, chunks)

	key := cache.Key("answer", prompt)
	if cached, ok := qa.cache.GetText(ctx, key); ok {
		return cached, nil
	}

	answer, err := qa.generator.Generate(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	qa.cache.SetText(ctx, key, answer)
	return answer, nil
}

// BuildSearchQuery folds recent user turns into the question so
// follow-up questions ("what about the other mode?") still retrieve
// against their context. Assistant turns are skipped; output is capped.
func BuildSearchQuery(question string, history []models.ChatMessage) string {
	question = strings.TrimSpace(question)
	if len(history) == 0 {
		return question
	}

	var turns []string
	for i := len(history) - 1; i >= 0 && len(turns) < 3; i-- {
		if history[i].Role != "user" {
			continue
		}
		if text := strings.TrimSpace(history[i].Content); text != "" {
			turns = append([]string{text}, turns...)
		}
	}
	if len(turns) == 0 {
		return question
	}

	combined := strings.Join(turns, "\n") + "\n" + question
	if len(combined) > maxSearchQueryLen {
		combined = combined[len(combined)-maxSearchQueryLen:]
		if idx := strings.IndexByte(combined, '\n'); idx >= 0 && idx < len(combined)-len(question) {
			combined = combined[idx+1:]
		}
	}
	return combined
}

func buildPrompt(question string, chunks []models.ScoredChunk) string {
	var b strings.Builder
	for i, sc := range chunks {
		fmt.Fprintf(&b, "[Context %d | p.%d-%d | %s]\n%s\n\n",
			i+1, sc.Chunk.PageStart, sc.Chunk.PageEnd, sc.Chunk.SectionTitle, sc.Chunk.Text)
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}

// extractiveAnswer quotes the best chunk when generation is off or down.
func extractiveAnswer(chunks []models.ScoredChunk) string {
	best := chunks[0]
	return fmt.Sprintf("From %q (p.%d-%d):\n\n%s",
		best.Chunk.SectionTitle, best.Chunk.PageStart, best.Chunk.PageEnd, snippet(best.Chunk.Text, 900))
}

// snippet trims text to at most n bytes on a rune boundary.
func snippet(text string, n int) string {
	text = strings.TrimSpace(text)
	if len(text) <= n {
		return text
	}
	cut := n
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	return strings.TrimSpace(text[:cut]) + "…"
}
