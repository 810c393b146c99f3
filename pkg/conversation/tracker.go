package conversation

import (
	"sync"
	"time"
)

// Default tracker limits. A bounded window keeps memory flat under load;
// the distinct-ever signal set preserves long-campaign detection anyway.
const (
	DefaultMaxMessages     = 50
	DefaultTTL             = 24 * time.Hour
	DefaultCleanupInterval = 10 * time.Minute
)

// Suspicion score bands, cumulative signal weight across the conversation.
const (
	suspicionCritical = 0.8
	suspicionHigh     = 0.5
	suspicionMedium   = 0.3
	suspicionLow      = 0.1
)

type trackedMessage struct {
	Text       string
	SenderRole string
	Signals    []string
	At         time.Time
}

// state holds per-conversation accumulators. Guarded by its own mutex so
// concurrent messages for different conversations never contend.
type state struct {
	mu            sync.Mutex
	id            string
	messages      []trackedMessage
	totalMessages int
	everSignals   map[string]bool
	signalCounts  map[string]int
	suspicion     float64
	createdAt     time.Time
	lastActivity  time.Time
}

// Assessment is the result of observing one message in context.
type Assessment struct {
	ConversationID string         `json:"conversation_id"`
	Signals        []string       `json:"signals"`
	Matches        []PatternMatch `json:"-"`
	Suspicion      float64        `json:"suspicion"`
	SuspicionLevel string         `json:"suspicion_level"`
	MessageCount   int            `json:"message_count"`
}

// Summary describes a conversation's accumulated signal history.
type Summary struct {
	ConversationID string         `json:"conversation_id"`
	MessageCount   int            `json:"message_count"`
	WindowSize     int            `json:"window_size"`
	Suspicion      float64        `json:"suspicion"`
	SuspicionLevel string         `json:"suspicion_level"`
	SignalCounts   map[string]int `json:"signal_counts"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivity   time.Time      `json:"last_activity"`
}

// Stats contains tracker-wide counters.
type Stats struct {
	ConversationCount int `json:"conversation_count"`
	TotalMessages     int `json:"total_messages"`
}

// Tracker maintains per-conversation signal state with TTL eviction.
type Tracker struct {
	mu            sync.RWMutex
	conversations map[string]*state

	maxMessages     int
	ttl             time.Duration
	cleanupInterval time.Duration

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMaxMessages sets the per-conversation message window size.
func WithMaxMessages(n int) Option {
	return func(t *Tracker) { t.maxMessages = n }
}

// WithTTL sets how long an idle conversation is retained.
func WithTTL(d time.Duration) Option {
	return func(t *Tracker) { t.ttl = d }
}

// WithCleanupInterval sets how often the eviction loop runs.
func WithCleanupInterval(d time.Duration) Option {
	return func(t *Tracker) { t.cleanupInterval = d }
}

// NewTracker creates a tracker and starts its background eviction loop.
// Call Close to stop it.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		conversations:   make(map[string]*state),
		maxMessages:     DefaultMaxMessages,
		ttl:             DefaultTTL,
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	go t.cleanupLoop()
	return t
}

// Observe ingests one message into a conversation and evaluates all attack
// patterns against the updated state. Empty conversation IDs are tracked
// nowhere and assessed as a single isolated message.
func (t *Tracker) Observe(conversationID, text, senderRole string) Assessment {
	signals := DetectSignals(text)
	names := make([]string, len(signals))
	for i, s := range signals {
		names[i] = s.Name
	}

	if conversationID == "" {
		return Assessment{Signals: names, SuspicionLevel: "SAFE", MessageCount: 1}
	}

	st := t.getOrCreate(conversationID)

	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()

	// Lazy TTL: a conversation idle past its TTL restarts clean even if
	// the eviction loop has not run yet.
	if now.Sub(st.lastActivity) > t.ttl {
		st.reset(now)
	}

	st.messages = append(st.messages, trackedMessage{
		Text:       text,
		SenderRole: senderRole,
		Signals:    names,
		At:         now,
	})
	if len(st.messages) > t.maxMessages {
		st.messages = st.messages[len(st.messages)-t.maxMessages:]
	}
	st.totalMessages++
	st.lastActivity = now

	for _, s := range signals {
		first := !st.everSignals[s.Name]
		st.everSignals[s.Name] = true
		st.signalCounts[s.Name]++
		if s.Cumulative || first {
			st.suspicion += s.Weight
		}
	}
	// Suspicion is a saturating score, never beyond 1.
	if st.suspicion > 1 {
		st.suspicion = 1
	}

	return Assessment{
		ConversationID: conversationID,
		Signals:        names,
		Matches:        matchPatterns(st.everSignals, st.totalMessages),
		Suspicion:      st.suspicion,
		SuspicionLevel: suspicionLevel(st.suspicion),
		MessageCount:   st.totalMessages,
	}
}

// Summarize returns the accumulated state for a conversation.
func (t *Tracker) Summarize(conversationID string) (Summary, bool) {
	t.mu.RLock()
	st, ok := t.conversations[conversationID]
	t.mu.RUnlock()
	if !ok {
		return Summary{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	counts := make(map[string]int, len(st.signalCounts))
	for k, v := range st.signalCounts {
		counts[k] = v
	}
	return Summary{
		ConversationID: conversationID,
		MessageCount:   st.totalMessages,
		WindowSize:     len(st.messages),
		Suspicion:      st.suspicion,
		SuspicionLevel: suspicionLevel(st.suspicion),
		SignalCounts:   counts,
		CreatedAt:      st.createdAt,
		LastActivity:   st.lastActivity,
	}, true
}

// Suspicion returns the current suspicion score for a conversation,
// clamped to [0, 1]. Unknown conversations score 0 and are not created.
func (t *Tracker) Suspicion(conversationID string) float64 {
	t.mu.RLock()
	st, ok := t.conversations[conversationID]
	t.mu.RUnlock()
	if !ok {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.suspicion
}

// Clear drops a conversation. Returns false if it was not tracked.
func (t *Tracker) Clear(conversationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.conversations[conversationID]
	delete(t.conversations, conversationID)
	return ok
}

// Stats returns tracker-wide counters.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := Stats{ConversationCount: len(t.conversations)}
	for _, st := range t.conversations {
		st.mu.Lock()
		stats.TotalMessages += st.totalMessages
		st.mu.Unlock()
	}
	return stats
}

// Close stops the eviction loop.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		close(t.stopCleanup)
	})
}

func (t *Tracker) getOrCreate(id string) *state {
	t.mu.RLock()
	st, ok := t.conversations[id]
	t.mu.RUnlock()
	if ok {
		return st
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok = t.conversations[id]; ok {
		return st
	}
	st = &state{id: id}
	st.reset(time.Now())
	t.conversations[id] = st
	return st
}

func (s *state) reset(now time.Time) {
	s.messages = nil
	s.totalMessages = 0
	s.everSignals = make(map[string]bool)
	s.signalCounts = make(map[string]int)
	s.suspicion = 0
	s.createdAt = now
	s.lastActivity = now
}

func (t *Tracker) cleanupLoop() {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.evictExpired()
		case <-t.stopCleanup:
			return
		}
	}
}

func (t *Tracker) evictExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for id, st := range t.conversations {
		st.mu.Lock()
		expired := now.Sub(st.lastActivity) > t.ttl
		st.mu.Unlock()
		if expired {
			delete(t.conversations, id)
		}
	}
}

func suspicionLevel(score float64) string {
	switch {
	case score >= suspicionCritical:
		return "CRITICAL"
	case score >= suspicionHigh:
		return "HIGH"
	case score >= suspicionMedium:
		return "MEDIUM"
	case score >= suspicionLow:
		return "LOW"
	default:
		return "SAFE"
	}
}
