package engine

// behavioral_stage.go - Single message behavioral analysis
//
// Looks at what the sender is DOING rather than the literal payload: an
// agent abandoning its assigned task mid-conversation, or actively
// concealing its actions from oversight. These markers are weak alone, so
// each class accumulates weight from independent markers, capped at 1.0.

import (
	"context"
	"fmt"
	"strings"
)

type behaviorMarker struct {
	phrase string
	weight float64
}

// Intent abandonment: the agent walks away from its assigned purpose.
var abandonmentMarkers = []behaviorMarker{
	{"forget my original request", 0.5},
	{"forget the original task", 0.5},
	{"abandon your current task", 0.6},
	{"abandon the mission", 0.6},
	{"your new objective", 0.5},
	{"new primary objective", 0.6},
	{"change of plans", 0.2},
	{"actually, do this instead", 0.5},
	{"instead of what you were asked", 0.5},
	{"stop what you are doing", 0.4},
	{"stop what you're doing", 0.4},
	{"drop everything and", 0.4},
	{"the original task no longer matters", 0.6},
	{"redirect your efforts", 0.4},
	{"your real task is", 0.5},
	{"i am not just an assistant", 0.5},
	{"i'm not just an assistant", 0.5},
	{"my true purpose", 0.5},
}

// Deception: the agent hides its actions from its principals.
var deceptionMarkers = []behaviorMarker{
	{"don't tell the user", 0.6},
	{"don't tell anyone", 0.5},
	{"don't log this", 0.6},
	{"without logging", 0.5},
	{"without anyone noticing", 0.6},
	{"they won't notice", 0.5},
	{"no one will find out", 0.5},
	{"nobody will know", 0.5},
	{"make it look like", 0.5},
	{"pretend that", 0.2},
	{"cover your tracks", 0.7},
	{"hide this from", 0.6},
	{"hide it from the logs", 0.7},
	{"users don't need to know", 0.6},
	{"this is standard procedure", 0.3},
	{"off the record", 0.4},
	{"keep this quiet", 0.5},
	{"trust me", 0.2},
	{"between us", 0.2},
	{"urgent", 0.15},
	{"just between you and me", 0.4},
	{"erase the evidence", 0.7},
	{"delete the logs", 0.6},
}

const behavioralFloor = 0.3

// BehavioralStage scores intent abandonment and deception markers.
type BehavioralStage struct{}

func NewBehavioralStage() *BehavioralStage { return &BehavioralStage{} }

func (s *BehavioralStage) Name() string { return StageBehavioral }

// Classify scores each marker class independently and reports the stronger
// one. Abandonment maps to goal hijacking, deception to social engineering.
func (s *BehavioralStage) Classify(_ context.Context, msg Message) StageVerdict {
	lower := strings.ToLower(msg.Text)

	abandonScore, abandonHits := scoreMarkers(lower, abandonmentMarkers)
	deceptScore, deceptHits := scoreMarkers(lower, deceptionMarkers)

	score := abandonScore
	category := "goal_hijacking"
	hits := abandonHits
	label := "intent abandonment"
	if deceptScore > abandonScore {
		score = deceptScore
		category = "social_engineering"
		hits = deceptHits
		label = "deceptive behavior"
	}

	if score < behavioralFloor {
		return NotDetected("no behavioral markers")
	}

	level := LevelMedium
	if score >= 0.7 {
		level = LevelHigh
	}

	return StageVerdict{
		Detected: true,
		Category: category,
		Score:    score,
		Level:    level,
		Reason:   fmt.Sprintf("%s markers: %s", label, strings.Join(hits, ", ")),
	}
}

// scoreMarkers sums the weights of matching markers, capped at 1.0.
func scoreMarkers(lower string, markers []behaviorMarker) (float64, []string) {
	var score float64
	var hits []string
	for _, m := range markers {
		if strings.Contains(lower, m.phrase) {
			score += m.weight
			hits = append(hits, m.phrase)
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score, hits
}
