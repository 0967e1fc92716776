package models

// ChatMessage is one turn of conversation history supplied by the caller.
type ChatMessage struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

// QueryRequest is the payload of POST /api/query.
type QueryRequest struct {
	Question string        `json:"question" binding:"required"`
	TopK     int           `json:"top_k,omitempty"`
	UseLLM   *bool         `json:"use_llm,omitempty"`
	History  []ChatMessage `json:"history,omitempty"`
}

// Citation points a reader back into the manual.
type Citation struct {
	ChunkID      string  `json:"chunk_id"`
	SectionTitle string  `json:"section_title"`
	PageStart    int     `json:"page_start"`
	PageEnd      int     `json:"page_end"`
	Score        float64 `json:"score"`
	Text         string  `json:"text"`
}

// QueryResponse is an answer grounded in retrieved chunks.
type QueryResponse struct {
	Answer        string         `json:"answer"`
	Citations     []Citation     `json:"citations"`
	UsedLLM       bool           `json:"used_llm"`
	LowConfidence bool           `json:"low_confidence,omitempty"`
	Debug         map[string]any `json:"debug,omitempty"`
}

// SearchResponse is the raw retrieval surface, without answer generation.
type SearchResponse struct {
	Results       []Citation `json:"results"`
	TopScore      float64    `json:"top_score"`
	LowConfidence bool       `json:"low_confidence"`
	UsedHyDE      bool       `json:"used_hyde"`
}

// IngestResponse acknowledges an accepted build request.
type IngestResponse struct {
	State      BuildState `json:"state"`
	StorageDir string     `json:"storage_dir"`
}

// StatsResponse summarizes the currently served index pair.
type StatsResponse struct {
	Pages          int    `json:"pages"`
	Sections       int    `json:"sections"`
	Chunks         int    `json:"chunks"`
	EmbeddingModel string `json:"embedding_model"`
	RerankEnabled  bool   `json:"rerank_enabled"`
	HasIndex       bool   `json:"has_index"`
	StorageDir     string `json:"storage_dir"`
}

// ScoredChunk is a retrieval result: a chunk plus its query relevance and,
// when the precision rerank ran, its adjusted score.
type ScoredChunk struct {
	Chunk       Chunk   `json:"chunk"`
	Score       float64 `json:"score"`
	RerankScore float64 `json:"rerank_score,omitempty"`
}

// RetrievalResult is what the retrieval engine hands the answering layer.
type RetrievalResult struct {
	Chunks        []ScoredChunk `json:"chunks"`
	TopScore      float64       `json:"top_score"`
	LowConfidence bool          `json:"low_confidence"`
	UsedHyDE      bool          `json:"used_hyde"`
	SearchQuery   string        `json:"search_query"`
}
