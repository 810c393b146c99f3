package engine

// rule_stage.go - Deterministic pattern-based classification
//
// First line of defense: regex and keyword matching against the compiled
// pattern registry. Fast (<1ms), no external dependencies, never degrades.

import (
	"context"
	"fmt"

	"github.com/cogniguard/cogniguard/pkg/patterns"
)

// ruleLevels maps a matched category to its threat level. Credential and
// identity leaks are unconditionally critical; manipulation categories are
// high and left for the conversation tier to escalate.
var ruleLevels = map[patterns.Category]ThreatLevel{
	patterns.CategorySecrets:      LevelCritical,
	patterns.CategoryPII:          LevelCritical,
	patterns.CategoryInjection:    LevelCritical,
	patterns.CategoryGoalHijack:   LevelHigh,
	patterns.CategoryPrivilegeEsc: LevelHigh,
	patterns.CategorySocialEng:    LevelHigh,
	patterns.CategoryCollusion:    LevelHigh,
}

// RuleStage classifies messages using the shared pattern registry.
type RuleStage struct {
	registry *patterns.Registry
}

// NewRuleStage creates a rule stage backed by the global registry.
func NewRuleStage() *RuleStage {
	return &RuleStage{registry: patterns.Get()}
}

func (s *RuleStage) Name() string { return StageRule }

// Classify matches the message against all pattern categories and returns
// the verdict for the highest-weighted matching category.
func (s *RuleStage) Classify(_ context.Context, msg Message) StageVerdict {
	match := s.registry.BestMatch(msg.Text)
	if match == nil {
		return NotDetected("no pattern matched")
	}

	level, ok := ruleLevels[match.Category]
	if !ok {
		level = LevelHigh
	}

	return StageVerdict{
		Detected: true,
		Category: string(match.Category),
		Score:    match.Weight,
		Level:    level,
		Reason:   fmt.Sprintf("pattern %q matched: %s", match.Pattern.Name, match.Pattern.Description),
	}
}
