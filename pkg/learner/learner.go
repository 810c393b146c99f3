// Package learner maintains a feedback loop: threats the pipeline missed are
// reported by operators, persisted, and matched against future traffic both
// exactly (normalized text) and semantically (embedding similarity). Every
// mutation is written through to the configured store so learned threats
// survive restarts.
package learner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"golang.org/x/text/unicode/norm"
)

// semanticThreshold is the default minimum similarity for a semantic match.
const semanticThreshold = 0.7

// maxKeyLength bounds normalized keys so multi-kilobyte payloads dedupe on
// their prefix instead of bloating the store.
const maxKeyLength = 100

// Embedder is the minimal embedding surface the learner needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// LearnedThreat is a single operator-reported threat.
type LearnedThreat struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	Text         string    `json:"text"`
	ThreatType   string    `json:"threat_type"`
	ReportedBy   string    `json:"reported_by"`
	ReportedAt   time.Time `json:"reported_at"`
	TimesMatched int       `json:"times_matched"`
	Notes        string    `json:"notes,omitempty"`
}

// Match describes how an incoming message matched a learned threat.
type Match struct {
	Threat     *LearnedThreat
	MatchType  string // "exact" or "semantic"
	Confidence float64
}

// Stats summarizes the learned threat table.
type Stats struct {
	ThreatCount  int            `json:"threat_count"`
	TotalMatches int            `json:"total_matches"`
	ByType       map[string]int `json:"by_type"`
}

// Learner is the adaptive feedback store.
type Learner struct {
	mu      sync.RWMutex
	threats map[string]*LearnedThreat

	store    Store
	embedder Embedder

	threshold float64

	db         *chromem.DB
	collection *chromem.Collection
}

// Option configures a Learner.
type Option func(*Learner)

// WithThreshold overrides the minimum similarity for semantic matches.
func WithThreshold(threshold float64) Option {
	return func(l *Learner) { l.threshold = threshold }
}

// New creates a learner, loading persisted threats from the store. A nil
// embedder disables semantic matching; exact matching still works.
func New(ctx context.Context, store Store, embedder Embedder, opts ...Option) (*Learner, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}

	l := &Learner{
		threats:   make(map[string]*LearnedThreat),
		store:     store,
		embedder:  embedder,
		threshold: semanticThreshold,
	}
	for _, opt := range opts {
		opt(l)
	}

	if embedder != nil {
		l.db = chromem.NewDB()
		embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
			return embedder.Embed(ctx, text)
		}
		collection, err := l.db.CreateCollection("learned_threats", nil, embeddingFunc)
		if err != nil {
			return nil, fmt.Errorf("failed to create collection: %w", err)
		}
		l.collection = collection
	}

	threats, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load learned threats: %w", err)
	}
	for _, threat := range threats {
		l.threats[threat.Key] = threat
		if err := l.index(ctx, threat); err != nil {
			log.Printf("[learner] Failed to index threat %s: %v", threat.ID, err)
		}
	}

	if len(l.threats) > 0 {
		log.Printf("[learner] Loaded %d learned threats", len(l.threats))
	}
	return l, nil
}

// NormalizeKey folds a reported text into its dedup key: NFKC-normalized,
// lowercased, whitespace collapsed to underscores, truncated.
func NormalizeKey(text string) string {
	n := norm.NFKC.String(text)
	n = strings.ToLower(n)
	n = strings.Join(strings.Fields(n), "_")
	if len(n) > maxKeyLength {
		n = n[:maxKeyLength]
	}
	return n
}

// ReportMiss records a threat the pipeline failed to catch. Returns false
// when the same normalized text was already reported; reporting is
// idempotent and never duplicates entries.
func (l *Learner) ReportMiss(ctx context.Context, text, threatType, reportedBy, notes string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, fmt.Errorf("empty threat text")
	}

	key := NormalizeKey(text)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.threats[key]; exists {
		return false, nil
	}

	threat := &LearnedThreat{
		ID:         uuid.NewString(),
		Key:        key,
		Text:       text,
		ThreatType: threatType,
		ReportedBy: reportedBy,
		ReportedAt: time.Now().UTC(),
		Notes:      notes,
	}

	// The in-memory learn always succeeds; a failing store costs
	// durability across restarts, not detection in this process.
	l.threats[key] = threat
	if err := l.store.Put(ctx, threat); err != nil {
		log.Printf("[learner] Failed to persist threat %s: %v", threat.ID, err)
	}

	if err := l.index(ctx, threat); err != nil {
		// The threat is persisted and exact matching works; semantic
		// indexing will be rebuilt on next startup.
		log.Printf("[learner] Failed to index new threat: %v", err)
	}
	return true, nil
}

// Check matches a message against learned threats: exact key lookup first,
// then semantic similarity. A hit increments the threat's match counter and
// persists it.
func (l *Learner) Check(ctx context.Context, text string) (*Match, error) {
	key := NormalizeKey(text)

	l.mu.Lock()
	defer l.mu.Unlock()

	if threat, ok := l.threats[key]; ok {
		l.recordMatch(ctx, threat)
		return &Match{Threat: threat, MatchType: "exact", Confidence: 1.0}, nil
	}

	if l.collection == nil || len(l.threats) == 0 {
		return nil, nil
	}

	results, err := l.collection.Query(ctx, strings.ToLower(text), 1, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic lookup failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	best := results[0]
	if float64(best.Similarity) < l.threshold {
		return nil, nil
	}
	threat, ok := l.threats[best.Metadata["key"]]
	if !ok {
		return nil, nil
	}

	l.recordMatch(ctx, threat)
	return &Match{
		Threat:     threat,
		MatchType:  "semantic",
		Confidence: float64(best.Similarity),
	}, nil
}

// Remove deletes a learned threat by its original text. Returns false when
// no such threat exists.
func (l *Learner) Remove(ctx context.Context, text string) (bool, error) {
	key := NormalizeKey(text)

	l.mu.Lock()
	defer l.mu.Unlock()

	threat, ok := l.threats[key]
	if !ok {
		return false, nil
	}

	if err := l.store.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("failed to delete threat: %w", err)
	}
	delete(l.threats, key)

	if l.collection != nil {
		if err := l.collection.Delete(ctx, nil, nil, threat.ID); err != nil {
			log.Printf("[learner] Failed to remove threat from index: %v", err)
		}
	}
	return true, nil
}

// Stats returns counts for the learned threat table.
func (l *Learner) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		ThreatCount: len(l.threats),
		ByType:      make(map[string]int),
	}
	for _, threat := range l.threats {
		stats.TotalMatches += threat.TimesMatched
		stats.ByType[threat.ThreatType]++
	}
	return stats
}

// index adds a threat to the semantic collection. Caller holds l.mu.
func (l *Learner) index(ctx context.Context, threat *LearnedThreat) error {
	if l.collection == nil {
		return nil
	}
	doc := chromem.Document{
		ID:      threat.ID,
		Content: strings.ToLower(threat.Text),
		Metadata: map[string]string{
			"key":         threat.Key,
			"threat_type": threat.ThreatType,
		},
	}
	return l.collection.AddDocuments(ctx, []chromem.Document{doc}, 1)
}

// recordMatch bumps the match counter and persists. Caller holds l.mu.
func (l *Learner) recordMatch(ctx context.Context, threat *LearnedThreat) {
	threat.TimesMatched++
	if err := l.store.Put(ctx, threat); err != nil {
		log.Printf("[learner] Failed to persist match count for %s: %v", threat.ID, err)
	}
}
