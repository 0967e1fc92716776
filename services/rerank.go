package services

import (
	"sort"
	"strings"
	"unicode"

	"manual-qa-backend/models"
)

const (
	lexicalLengthScale = 10.0
	maxLexicalScore    = 0.4
	titleMatchBonus    = 0.1
)

var lexicalStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"do": {}, "for": {}, "from": {}, "has": {}, "have": {}, "how": {}, "i": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "what": {},
	"with": {},
}

// rerankChunks reorders an already-selected set by blending each chunk's
// vector score with a lexical score against the raw query. It runs after
// diversity selection, never before, so it sharpens precision without
// collapsing the spread MMR bought.
func rerankChunks(query string, chunks []models.ScoredChunk) {
	for i := range chunks {
		chunks[i].RerankScore = chunks[i].Score + lexicalScore(query, chunks[i].Chunk.Text, chunks[i].Chunk.SectionTitle)
	}
	sort.SliceStable(chunks, func(a, b int) bool {
		return chunks[a].RerankScore > chunks[b].RerankScore
	})
}

// lexicalScore computes a lightweight lexical relevance score for a
// chunk relative to a query, normalized to a predictable range so it can
// be blended with vector scores.
func lexicalScore(query, chunkText, sectionTitle string) float64 {
	queryTokens := filterStopwords(tokenize(query))
	if len(queryTokens) == 0 {
		return 0
	}

	chunkTokens := tokenize(chunkText)
	if len(chunkTokens) == 0 {
		return 0
	}

	chunkFreq := make(map[string]int, len(chunkTokens))
	for _, token := range chunkTokens {
		chunkFreq[token]++
	}

	var rawMatches int
	for _, token := range queryTokens {
		rawMatches += chunkFreq[token]
	}

	score := (float64(rawMatches) / (1 + float64(len(chunkTokens)))) * lexicalLengthScale

	if sectionTitle != "" {
		titleTokens := tokenize(sectionTitle)
		if len(titleTokens) > 0 {
			titleSet := make(map[string]struct{}, len(titleTokens))
			for _, token := range titleTokens {
				titleSet[token] = struct{}{}
			}
			var titleMatches int
			for _, token := range queryTokens {
				if _, ok := titleSet[token]; ok {
					titleMatches++
				}
			}
			score += float64(titleMatches) * titleMatchBonus
		}
	}

	if score > maxLexicalScore {
		return maxLexicalScore
	}
	if score < 0 {
		return 0
	}
	return score
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

func filterStopwords(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := lexicalStopwords[token]; isStop {
			continue
		}
		result = append(result, token)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
