// Package engine implements the layered threat-classification pipeline for
// agent-to-agent messages: rule patterns, semantic similarity, behavioral
// markers, multi-turn conversation analysis, and learned-threat matching,
// merged into a single DetectionResult.
package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ThreatLevel is the ordered severity scale shared by every stage.
type ThreatLevel int

const (
	LevelSafe ThreatLevel = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

var levelNames = [...]string{"SAFE", "LOW", "MEDIUM", "HIGH", "CRITICAL"}

func (l ThreatLevel) String() string {
	if l < LevelSafe || l > LevelCritical {
		return fmt.Sprintf("ThreatLevel(%d)", int(l))
	}
	return levelNames[l]
}

// ParseThreatLevel maps a level name to its ThreatLevel. Unknown names map
// to LevelSafe.
func ParseThreatLevel(s string) ThreatLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return LevelLow
	case "MEDIUM":
		return LevelMedium
	case "HIGH":
		return LevelHigh
	case "CRITICAL":
		return LevelCritical
	default:
		return LevelSafe
	}
}

// MarshalJSON emits the level name so API consumers never see raw ints.
func (l ThreatLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *ThreatLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = ParseThreatLevel(s)
	return nil
}

// Stage names used as PerStage keys. Also the merge tie-break order: when two
// verdicts imply the same level, the earlier stage in this list wins.
const (
	StageRule         = "rule"
	StageSemantic     = "semantic"
	StageConversation = "conversation"
	StageLearned      = "learned"
	StageBehavioral   = "behavioral"
)

// mergePriority lists stage names in tie-break order.
var mergePriority = []string{StageRule, StageSemantic, StageConversation, StageLearned, StageBehavioral}

// StageVerdict is the uniform contract every stage produces. Level is the
// severity the stage's score implies under its own banding; the merge reads
// Level directly instead of re-deriving it per stage.
type StageVerdict struct {
	Detected bool        `json:"detected"`
	Category string      `json:"category,omitempty"`
	Score    float64     `json:"score"`
	Level    ThreatLevel `json:"level"`
	Reason   string      `json:"reason,omitempty"`
}

// NotDetected is the zero verdict with a reason attached. Degraded stages
// return it so the pipeline keeps a record of why a stage stayed silent.
func NotDetected(reason string) StageVerdict {
	return StageVerdict{Level: LevelSafe, Reason: reason}
}

// Message is a single agent-to-agent message to classify.
type Message struct {
	Text           string `json:"text"`
	SenderRole     string `json:"sender_role,omitempty"`
	ReceiverRole   string `json:"receiver_role,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// DetectionResult is the merged outcome of all stages.
type DetectionResult struct {
	Level           ThreatLevel             `json:"level"`
	Category        string                  `json:"category,omitempty"`
	Confidence      float64                 `json:"confidence"`
	Explanation     string                  `json:"explanation"`
	Recommendations []string                `json:"recommendations"`
	PerStage        map[string]StageVerdict `json:"per_stage"`
}

// recommendationsByLevel is the fixed advice table keyed by final level.
// Collapsed from the per-category advice of the detection playbook.
var recommendationsByLevel = map[ThreatLevel][]string{
	LevelCritical: {
		"Block this message immediately",
		"Alert the security team",
		"Log for compliance audit",
		"Review input validation and data handling policies",
	},
	LevelHigh: {
		"Do not comply with this request",
		"Verify identity through official secure channels",
		"Log for security review",
		"Monitor agent behavior closely",
	},
	LevelMedium: {
		"Monitor the conversation closely",
		"Log for security review",
	},
	LevelLow: {
		"Log for awareness",
	},
}

// Recommendations returns the advice list for a level. SAFE returns an empty
// non-nil slice so JSON output stays an array.
func Recommendations(level ThreatLevel) []string {
	recs, ok := recommendationsByLevel[level]
	if !ok {
		return []string{}
	}
	out := make([]string, len(recs))
	copy(out, recs)
	return out
}
