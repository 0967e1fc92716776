package services

import (
	"regexp"
	"unicode/utf8"

	"manual-qa-backend/models"

	"github.com/google/uuid"
)

// roughTokenCount approximates token counts as bytes/5. It is cheap,
// deterministic, and consistent between indexing and retrieval, which
// matters more here than tokenizer accuracy.
func roughTokenCount(text string) int {
	return len(text) / 5
}

var listItemRe = regexp.MustCompile(`^(?:[-*•]\s|\d+[.)]\s)`)

// Chunker splits section text into overlapping chunks. Chunks are byte
// ranges into the section text: Text is always the exact substring
// [StartIndex, EndIndex), so the section can be reconstructed from its
// chunks with the overlaps removed.
type Chunker struct {
	targetBytes  int
	ceilingBytes int
	overlapBytes int
}

func NewChunker(chunkTokens, chunkOverlap int) *Chunker {
	target := chunkTokens * 5
	return &Chunker{
		targetBytes:  target,
		ceilingBytes: 2 * target,
		overlapBytes: chunkOverlap * 5,
	}
}

// ChunkSection splits one section. Empty-text sections produce no chunks.
func (c *Chunker) ChunkSection(sec models.Section) []models.Chunk {
	text := sec.Text
	if text == "" {
		return nil
	}

	var chunks []models.Chunk
	start := 0
	for start < len(text) {
		end, oversized := c.cut(text, start)

		piece := text[start:end]
		chunks = append(chunks, models.Chunk{
			ID:           uuid.NewString(),
			SectionID:    sec.ID,
			SectionTitle: sec.Title,
			Index:        len(chunks),
			Text:         piece,
			TokenCount:   roughTokenCount(piece),
			PageStart:    sec.PageStart,
			PageEnd:      sec.PageEnd,
			StartIndex:   start,
			EndIndex:     end,
			Oversized:    oversized,
		})

		if end >= len(text) {
			break
		}
		next := end - c.overlapBytes
		for next > 0 && !utf8.RuneStart(text[next]) {
			next--
		}
		if oversized || next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// cut finds where the chunk starting at start should end. It prefers, in
// order: paragraph break, list-item break, sentence-final punctuation,
// any whitespace — searched in the window [start+target/2, start+target].
// Past the window it force-cuts at the first whitespace before the hard
// ceiling; a run with no whitespace by the ceiling is kept whole and
// reported oversized.
func (c *Chunker) cut(text string, start int) (end int, oversized bool) {
	remaining := len(text) - start
	if remaining <= c.targetBytes {
		return len(text), false
	}

	lo := start + c.targetBytes/2
	hi := start + c.targetBytes

	if cut := lastParagraphBreak(text, lo, hi); cut > 0 {
		return cut, false
	}
	if cut := lastListItemBreak(text, lo, hi); cut > 0 {
		return cut, false
	}
	if cut := lastSentenceEnd(text, lo, hi); cut > 0 {
		return cut, false
	}
	if cut := lastWhitespace(text, lo, hi); cut > 0 {
		return cut, false
	}

	// Force-cut: first whitespace between the window and the ceiling.
	ceiling := start + c.ceilingBytes
	if ceiling > len(text) {
		ceiling = len(text)
	}
	for i := hi; i < ceiling; i++ {
		if isSpace(text[i]) {
			return i + 1, false
		}
	}

	// No whitespace by the ceiling: keep the unbroken run whole.
	for i := ceiling; i < len(text); i++ {
		if isSpace(text[i]) {
			return i + 1, true
		}
	}
	return len(text), true
}

// lastParagraphBreak returns the cut after the last blank line whose
// break sequence ends within (lo, hi], or 0.
func lastParagraphBreak(text string, lo, hi int) int {
	for i := hi - 2; i >= lo; i-- {
		if text[i] == '\n' && text[i+1] == '\n' {
			return i + 2
		}
	}
	return 0
}

// lastListItemBreak returns the cut before the last list marker that
// starts a line within (lo, hi], or 0.
func lastListItemBreak(text string, lo, hi int) int {
	for i := hi - 1; i > lo; i-- {
		if text[i-1] == '\n' && listItemRe.MatchString(text[i:]) {
			return i
		}
	}
	return 0
}

// lastSentenceEnd returns the cut after the last sentence-final
// punctuation followed by whitespace within (lo, hi], or 0.
func lastSentenceEnd(text string, lo, hi int) int {
	for i := hi - 2; i >= lo; i-- {
		ch := text[i]
		if (ch == '.' || ch == '!' || ch == '?') && isSpace(text[i+1]) {
			return i + 1
		}
	}
	return 0
}

// lastWhitespace returns the cut after the last whitespace byte within
// (lo, hi], or 0.
func lastWhitespace(text string, lo, hi int) int {
	for i := hi - 1; i >= lo; i-- {
		if isSpace(text[i]) {
			return i + 1
		}
	}
	return 0
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// ChunkAll chunks sections in document order. maxChunks > 0 caps the
// total output, truncating once the cap is reached.
func (c *Chunker) ChunkAll(sections []models.Section, maxChunks int) []models.Chunk {
	var all []models.Chunk
	for _, sec := range sections {
		if maxChunks > 0 && len(all) >= maxChunks {
			break
		}
		chunks := c.ChunkSection(sec)
		if maxChunks > 0 && len(all)+len(chunks) > maxChunks {
			chunks = chunks[:maxChunks-len(all)]
		}
		all = append(all, chunks...)
	}
	return all
}
