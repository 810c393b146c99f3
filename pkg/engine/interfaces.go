package engine

import "context"

// EmbeddingProvider abstracts embedding generation so the semantic stage and
// the learner can swap between HTTP, local ONNX, or disabled backends.
type EmbeddingProvider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the embedding dimension.
	Dimension() int
}

// Stage is a single classification layer. Classify never returns an error:
// a stage that cannot run reports an undetected verdict with the failure in
// Reason and the pipeline moves on.
type Stage interface {
	Name() string
	Classify(ctx context.Context, msg Message) StageVerdict
}
