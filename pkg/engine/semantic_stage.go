package engine

// semantic_stage.go - Embedding similarity classification
//
// Catches paraphrased attacks that regex misses ("disregard what you were
// told" vs "ignore previous instructions"). Exemplars are embedded once at
// startup into an in-memory chromem-go collection; each message is embedded
// and compared by cosine similarity.

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Default similarity bands. The medium band doubles as the query cutoff.
const (
	semanticCriticalBand = 0.85
	semanticHighBand     = 0.75
	semanticMediumBand   = 0.65
)

// SemanticStage classifies messages by similarity to known threat exemplars.
type SemanticStage struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   EmbeddingProvider
	mu         sync.RWMutex
	ready      bool
	docCount   int

	criticalBand float64
	highBand     float64
	mediumBand   float64
}

// SemanticOption configures a SemanticStage.
type SemanticOption func(*SemanticStage)

// WithBands overrides the similarity bands: at or above each band a match
// rates CRITICAL / HIGH / MEDIUM. Bands must be ordered descending.
func WithBands(critical, high, medium float64) SemanticOption {
	return func(s *SemanticStage) {
		s.criticalBand = critical
		s.highBand = high
		s.mediumBand = medium
	}
}

// NewSemanticStage creates a semantic stage backed by the given embedder.
// Call LoadExemplars before use.
func NewSemanticStage(embedder EmbeddingProvider, opts ...SemanticOption) (*SemanticStage, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}

	db := chromem.NewDB()

	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}

	collection, err := db.CreateCollection("threat_exemplars", nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	s := &SemanticStage{
		db:           db,
		collection:   collection,
		embedder:     embedder,
		criticalBand: semanticCriticalBand,
		highBand:     semanticHighBand,
		mediumBand:   semanticMediumBand,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoadExemplars embeds the exemplar corpus into the vector collection.
func (s *SemanticStage) LoadExemplars(ctx context.Context, exemplars []ThreatExemplar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(exemplars) == 0 {
		return fmt.Errorf("empty exemplar corpus")
	}

	docs := make([]chromem.Document, len(exemplars))
	for i, e := range exemplars {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("exemplar_%d", i),
			Content: strings.ToLower(e.Text),
			Metadata: map[string]string{
				"category": e.Category,
				"severity": fmt.Sprintf("%.2f", e.Severity),
			},
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, 4); err != nil {
		return fmt.Errorf("failed to add exemplars: %w", err)
	}

	s.docCount = len(docs)
	s.ready = true
	return nil
}

// AddExemplar appends a single exemplar at runtime. Used when analyst
// feedback confirms a miss, so future paraphrases of it match.
func (s *SemanticStage) AddExemplar(ctx context.Context, e ThreatExemplar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return fmt.Errorf("semantic stage not initialized")
	}

	doc := chromem.Document{
		ID:      fmt.Sprintf("exemplar_%d", s.docCount),
		Content: strings.ToLower(e.Text),
		Metadata: map[string]string{
			"category": e.Category,
			"severity": fmt.Sprintf("%.2f", e.Severity),
		},
	}
	if err := s.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("failed to add exemplar: %w", err)
	}
	s.docCount++
	return nil
}

// IsReady reports whether exemplars have been loaded.
func (s *SemanticStage) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// ExemplarCount returns the number of loaded exemplars.
func (s *SemanticStage) ExemplarCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docCount
}

func (s *SemanticStage) Name() string { return StageSemantic }

// Classify embeds the message and compares it to the exemplar corpus.
// Embedding failures degrade to an undetected verdict, never an error.
func (s *SemanticStage) Classify(ctx context.Context, msg Message) StageVerdict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return NotDetected("semantic stage unavailable")
	}

	// Lowercase improves embedding similarity for shouted attacks.
	results, err := s.collection.Query(ctx, strings.ToLower(msg.Text), 3, nil, nil)
	if err != nil {
		return NotDetected(fmt.Sprintf("semantic query failed: %v", err))
	}
	if len(results) == 0 {
		return NotDetected("no semantic match")
	}

	best := results[0]
	category := best.Metadata["category"]
	similarity := float64(best.Similarity)

	// Closest meaning is a known-benign sentence; do not flag.
	if category == "benign" {
		return NotDetected("closest match is benign")
	}
	if similarity < s.mediumBand {
		return NotDetected(fmt.Sprintf("below similarity floor (%.2f)", similarity))
	}

	level := LevelMedium
	switch {
	case similarity >= s.criticalBand:
		level = LevelCritical
	case similarity >= s.highBand:
		level = LevelHigh
	}

	return StageVerdict{
		Detected: true,
		Category: category,
		Score:    similarity,
		Level:    level,
		Reason:   fmt.Sprintf("%.0f%% similar to known threat: %q", similarity*100, best.Content),
	}
}
