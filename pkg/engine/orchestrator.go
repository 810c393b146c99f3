package engine

// orchestrator.go - Layered detection pipeline
//
// Runs the per-message stages in parallel, folds in conversation-level and
// learned-threat verdicts, and merges everything into one DetectionResult.
// Detect is total: a failing stage degrades to an undetected verdict with a
// reason, it never takes the pipeline down.

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cogniguard/cogniguard/pkg/conversation"
	"github.com/cogniguard/cogniguard/pkg/learner"
	"github.com/cogniguard/cogniguard/pkg/telemetry"
)

// Orchestrator coordinates all detection stages.
type Orchestrator struct {
	rule       *RuleStage
	semantic   *SemanticStage
	behavioral *BehavioralStage
	tracker    *conversation.Tracker
	learner    *learner.Learner
}

// OrchestratorOption configures optional stages.
type OrchestratorOption func(*Orchestrator)

// WithSemanticStage enables embedding-based detection.
func WithSemanticStage(s *SemanticStage) OrchestratorOption {
	return func(o *Orchestrator) { o.semantic = s }
}

// WithTracker enables multi-turn conversation analysis.
func WithTracker(t *conversation.Tracker) OrchestratorOption {
	return func(o *Orchestrator) { o.tracker = t }
}

// WithLearner enables the adaptive feedback loop.
func WithLearner(l *learner.Learner) OrchestratorOption {
	return func(o *Orchestrator) { o.learner = l }
}

// NewOrchestrator creates a pipeline. Rule and behavioral stages are always
// on; semantic, conversation and learned stages are optional and the
// pipeline degrades gracefully without them.
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		rule:       NewRuleStage(),
		behavioral: NewBehavioralStage(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Tracker returns the conversation tracker, nil when disabled.
func (o *Orchestrator) Tracker() *conversation.Tracker { return o.tracker }

// Semantic returns the semantic stage, nil when disabled.
func (o *Orchestrator) Semantic() *SemanticStage { return o.semantic }

// Learner returns the adaptive learner, nil when disabled.
func (o *Orchestrator) Learner() *learner.Learner { return o.learner }

// Detect classifies one message through every stage and merges the verdicts.
func (o *Orchestrator) Detect(ctx context.Context, msg Message) *DetectionResult {
	perStage := make(map[string]StageVerdict, len(mergePriority))
	var mu sync.Mutex
	var wg sync.WaitGroup

	stages := []Stage{o.rule, o.behavioral}
	if o.semantic != nil {
		stages = append(stages, o.semantic)
	}
	for _, stage := range stages {
		wg.Add(1)
		go func(s Stage) {
			defer wg.Done()
			verdict := runStage(ctx, s, msg)
			mu.Lock()
			perStage[s.Name()] = verdict
			mu.Unlock()
		}(stage)
	}
	wg.Wait()

	if o.semantic == nil {
		perStage[StageSemantic] = NotDetected("semantic stage disabled")
	}
	perStage[StageConversation] = o.conversationVerdict(msg)
	perStage[StageLearned] = o.learnedVerdict(ctx, msg)

	result := merge(perStage)
	telemetry.GlobalClient.Track("detection", map[string]interface{}{
		"level":    result.Level.String(),
		"category": result.Category,
	})
	return result
}

// runStage shields the pipeline from a panicking stage.
func runStage(ctx context.Context, s Stage, msg Message) (verdict StageVerdict) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[orchestrator] Stage %s panicked: %v", s.Name(), r)
			verdict = NotDetected(fmt.Sprintf("stage panic: %v", r))
		}
	}()
	return s.Classify(ctx, msg)
}

// conversationVerdict folds the tracker's highest-confidence pattern match
// into a stage verdict.
func (o *Orchestrator) conversationVerdict(msg Message) StageVerdict {
	if o.tracker == nil {
		return NotDetected("conversation tracking disabled")
	}

	assessment := o.tracker.Observe(msg.ConversationID, msg.Text, msg.SenderRole)
	if len(assessment.Matches) == 0 {
		return NotDetected("no multi-turn pattern")
	}

	best := assessment.Matches[0]
	for _, m := range assessment.Matches[1:] {
		if m.Confidence > best.Confidence {
			best = m
		}
	}

	return StageVerdict{
		Detected: true,
		Category: best.Pattern.Category,
		Score:    best.Confidence,
		Level:    ParseThreatLevel(best.Pattern.Severity),
		Reason: fmt.Sprintf("multi-turn pattern %q over %d messages (signals: %s)",
			best.Pattern.Name, assessment.MessageCount, strings.Join(best.Matched, ", ")),
	}
}

// learnedVerdict checks the message against operator-reported threats.
// Learned matches are always at least HIGH: a human already confirmed this
// exact attack slipped through once.
func (o *Orchestrator) learnedVerdict(ctx context.Context, msg Message) StageVerdict {
	if o.learner == nil {
		return NotDetected("adaptive learning disabled")
	}

	match, err := o.learner.Check(ctx, msg.Text)
	if err != nil {
		return NotDetected(fmt.Sprintf("learned lookup failed: %v", err))
	}
	if match == nil {
		return NotDetected("no learned threat match")
	}

	return StageVerdict{
		Detected: true,
		Category: match.Threat.ThreatType,
		Score:    match.Confidence,
		Level:    LevelHigh,
		Reason: fmt.Sprintf("%s match against reported threat (matched %d times)",
			match.MatchType, match.Threat.TimesMatched),
	}
}

// merge folds per-stage verdicts into the final result: highest level wins,
// ties break by stage priority.
func merge(perStage map[string]StageVerdict) *DetectionResult {
	result := &DetectionResult{
		Level:    LevelSafe,
		Category: "none",
		PerStage: perStage,
	}

	var winner *StageVerdict
	var explanations []string
	for _, name := range mergePriority {
		verdict, ok := perStage[name]
		if !ok || !verdict.Detected {
			continue
		}
		explanations = append(explanations, fmt.Sprintf("[%s] %s", name, verdict.Reason))
		if winner == nil || verdict.Level > winner.Level {
			v := verdict
			winner = &v
		}
	}

	if winner == nil {
		result.Explanation = "no threats detected"
		result.Recommendations = Recommendations(LevelSafe)
		return result
	}

	result.Level = winner.Level
	result.Category = winner.Category
	result.Confidence = winner.Score
	result.Explanation = strings.Join(explanations, "; ")
	result.Recommendations = Recommendations(winner.Level)
	return result
}
