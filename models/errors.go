package models

import "errors"

var (
	// ErrParse indicates the PDF could not be read or contained no
	// extractable text. Fatal to a build.
	ErrParse = errors.New("pdf parse failed")

	// ErrEmbeddingModel indicates the embedding backend could not be
	// initialized or stopped responding. Fatal to a build; not retried.
	ErrEmbeddingModel = errors.New("embedding model unavailable")

	// ErrIndexUnavailable is returned when retrieval is attempted before a
	// ready index pair exists. Callers should treat it as "not ready yet",
	// not as a failure.
	ErrIndexUnavailable = errors.New("index not ready")

	// ErrBuildInProgress is returned when a build start is rejected because
	// another build holds the worker.
	ErrBuildInProgress = errors.New("index build already in progress")

	// ErrGenerationUnavailable indicates the text generation capability is
	// disabled, unconfigured, or currently failing. Consumers fall back to
	// raw-query retrieval or extractive answers.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)
