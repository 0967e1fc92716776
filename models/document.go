package models

// PageRun is a contiguous line of text extracted from one PDF page, tagged
// with the dominant font size of its glyphs. Runs are the input contract of
// the section builder; the layout parser produces them in reading order.
type PageRun struct {
	Page     int     `json:"page"` // 1-based
	Text     string  `json:"text"`
	FontSize float64 `json:"font_size"`
}

// Section is a logical document division detected by heading heuristics.
// Sections are immutable once built: a re-ingestion replaces them wholesale.
type Section struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Level      int    `json:"level"`
	PageStart  int    `json:"page_start"`
	PageEnd    int    `json:"page_end"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// Chunk is an overlapping sub-span of a section's text sized for embedding
// and citation. StartIndex/EndIndex are byte offsets into the section text,
// so concatenating chunks with overlaps removed reconstructs the section.
type Chunk struct {
	ID           string `json:"id"`
	SectionID    string `json:"section_id"`
	SectionTitle string `json:"section_title"`
	Index        int    `json:"chunk_index"`
	Text         string `json:"text"`
	TokenCount   int    `json:"token_count"`
	PageStart    int    `json:"page_start"`
	PageEnd      int    `json:"page_end"`
	StartIndex   int    `json:"start_index"`
	EndIndex     int    `json:"end_index"`
	// Oversized marks a chunk whose single semantic unit exceeded the
	// configured ceiling and was kept whole instead of being force-split.
	Oversized bool `json:"oversized,omitempty"`
}

// IndexMeta describes one persisted index pair. It is written next to the
// JSONL records and the vector files so a restarted process can validate
// that the pair it loads is complete and self-consistent.
type IndexMeta struct {
	PDFPath        string `json:"pdf_path"`
	Pages          int    `json:"pages"`
	Sections       int    `json:"sections"`
	Chunks         int    `json:"chunks"`
	EmbeddingModel string `json:"embedding_model"`
	EmbeddingDim   int    `json:"embedding_dim"`
	BuiltAt        string `json:"built_at"`
	PDFModTime     string `json:"pdf_mod_time,omitempty"`
}
