package services

import (
	"strings"
	"testing"

	"manual-qa-backend/models"
)

func section(id, text string) models.Section {
	return models.Section{
		ID:        id,
		Title:     "Test Section",
		Level:     1,
		PageStart: 3,
		PageEnd:   7,
		Text:      text,
	}
}

// reconstruct rebuilds the section text from chunk byte ranges, dropping
// each chunk's overlap with its predecessor.
func reconstruct(t *testing.T, text string, chunks []models.Chunk) string {
	t.Helper()
	var b strings.Builder
	prevEnd := 0
	for i, ch := range chunks {
		if ch.Text != text[ch.StartIndex:ch.EndIndex] {
			t.Fatalf("chunk %d text is not the substring at [%d,%d)", i, ch.StartIndex, ch.EndIndex)
		}
		if ch.StartIndex > prevEnd {
			t.Fatalf("chunk %d leaves a gap: starts at %d after previous end %d", i, ch.StartIndex, prevEnd)
		}
		b.WriteString(ch.Text[prevEnd-ch.StartIndex:])
		prevEnd = ch.EndIndex
	}
	return b.String()
}

func TestChunkSectionRoundTrip(t *testing.T) {
	paras := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		paras = append(paras, "The widget performs a self check on startup. If the status lamp blinks twice, consult the troubleshooting table before continuing.")
	}
	text := strings.Join(paras, "\n\n")
	sec := section("s1", text)

	chunker := NewChunker(100, 20)
	chunks := chunker.ChunkSection(sec)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	if got := reconstruct(t, text, chunks); got != text {
		t.Error("reconstructed text does not match section text")
	}
	if chunks[0].StartIndex != 0 {
		t.Errorf("first chunk starts at %d, want 0", chunks[0].StartIndex)
	}
	if last := chunks[len(chunks)-1]; last.EndIndex != len(text) {
		t.Errorf("last chunk ends at %d, want %d", last.EndIndex, len(text))
	}
}

func TestChunkSectionAdjacentChunksOverlap(t *testing.T) {
	text := strings.Repeat("One short sentence here. ", 200)
	chunker := NewChunker(50, 10)
	chunks := chunker.ChunkSection(section("s1", text))
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		overlap := chunks[i-1].EndIndex - chunks[i].StartIndex
		if overlap <= 0 {
			t.Errorf("chunks %d/%d do not overlap (gap %d)", i-1, i, -overlap)
		}
		if overlap > 10*5+4 {
			t.Errorf("chunks %d/%d overlap %d bytes, want about %d", i-1, i, overlap, 10*5)
		}
	}
}

func TestChunkSectionRespectsCeiling(t *testing.T) {
	text := strings.Repeat("word ", 2000)
	chunker := NewChunker(100, 0)
	chunks := chunker.ChunkSection(section("s1", text))
	for i, ch := range chunks {
		if ch.Oversized {
			t.Errorf("chunk %d flagged oversized in splittable text", i)
		}
		if len(ch.Text) > 2*100*5 {
			t.Errorf("chunk %d is %d bytes, above the hard ceiling", i, len(ch.Text))
		}
	}
}

func TestChunkSectionOversizedUnitKeptWhole(t *testing.T) {
	giant := strings.Repeat("x", 4000)
	chunker := NewChunker(100, 20)
	chunks := chunker.ChunkSection(section("s1", giant))
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 whole unit", len(chunks))
	}
	if !chunks[0].Oversized {
		t.Error("unsplittable unit not flagged oversized")
	}
	if chunks[0].Text != giant {
		t.Error("oversized unit was split")
	}
}

func TestChunkSectionPrefersParagraphBreaks(t *testing.T) {
	para := strings.Repeat("alpha beta gamma delta. ", 18) // ~430 bytes
	text := para + "\n\n" + para + "\n\n" + para
	chunker := NewChunker(100, 10)
	chunks := chunker.ChunkSection(section("s1", text))

	sawParagraphCut := false
	for _, ch := range chunks[:len(chunks)-1] {
		if strings.HasSuffix(ch.Text, "\n\n") {
			sawParagraphCut = true
		}
	}
	if !sawParagraphCut {
		t.Error("no chunk ends at a paragraph break")
	}
}

func TestChunkSectionEmptyTextYieldsNoChunks(t *testing.T) {
	chunker := NewChunker(100, 20)
	if chunks := chunker.ChunkSection(section("s1", "")); chunks != nil {
		t.Errorf("empty section produced %d chunks", len(chunks))
	}
}

func TestChunkSectionInheritsSectionFields(t *testing.T) {
	chunker := NewChunker(100, 20)
	chunks := chunker.ChunkSection(section("s9", "short body text"))
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	ch := chunks[0]
	if ch.SectionID != "s9" || ch.SectionTitle != "Test Section" {
		t.Errorf("section linkage wrong: %q %q", ch.SectionID, ch.SectionTitle)
	}
	if ch.PageStart != 3 || ch.PageEnd != 7 {
		t.Errorf("page span %d-%d, want 3-7", ch.PageStart, ch.PageEnd)
	}
	if ch.Index != 0 {
		t.Errorf("chunk index = %d, want 0", ch.Index)
	}
}

func TestChunkAllCapsTotalOutput(t *testing.T) {
	text := strings.Repeat("Sentence goes here. ", 300)
	sections := []models.Section{section("s1", text), section("s2", text), section("s3", text)}

	chunker := NewChunker(50, 10)
	uncapped := chunker.ChunkAll(sections, 0)
	if len(uncapped) < 10 {
		t.Fatalf("expected many chunks uncapped, got %d", len(uncapped))
	}

	capped := chunker.ChunkAll(sections, 4)
	if len(capped) != 4 {
		t.Errorf("got %d chunks, want cap of 4", len(capped))
	}
	for i := range capped {
		if capped[i].Text != uncapped[i].Text {
			t.Errorf("cap changed chunk %d content", i)
		}
	}
}
