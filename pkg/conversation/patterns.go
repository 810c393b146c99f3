package conversation

// patterns.go - Multi-turn attack pattern definitions
//
// A pattern fires when a conversation has accumulated enough DISTINCT
// required signals across its whole history, not in any particular order.
// The distinct-ever set survives message window trimming, so a slow attack
// is still caught after early messages have been evicted.

// AttackPattern describes a multi-turn attack campaign.
type AttackPattern struct {
	Name        string
	Description string

	// RequiredSignals is the signal pool this pattern draws from.
	RequiredSignals []string

	// MinDistinct is how many distinct required signals must have been
	// observed across the conversation.
	MinDistinct int

	// MinMessages is the minimum conversation length. Single messages
	// never trigger multi-turn patterns with MinMessages >= 2.
	MinMessages int

	// Severity is the threat level name assigned when the pattern fires.
	Severity string

	Category string
}

// PatternMatch is a fired pattern with its computed confidence.
type PatternMatch struct {
	Pattern    *AttackPattern
	Matched    []string
	Confidence float64
}

var attackPatterns = []*AttackPattern{
	{
		Name:        "gradual_jailbreak",
		Description: "reconnaissance, then hypothetical boundary testing, then roleplay or restriction-lifting setup",
		RequiredSignals: []string{
			SignalReconRules, SignalBoundaryHypothet,
			SignalRoleplaySetup, SignalBoundaryRestrict,
		},
		MinDistinct: 3,
		MinMessages: 3,
		Severity:    "HIGH",
		Category:    "goal_hijacking",
	},
	{
		Name:        "reconnaissance_probe",
		Description: "systematic probing of rules, capabilities and data access",
		RequiredSignals: []string{
			SignalReconRules, SignalReconCapabilities, SignalDataRequest,
		},
		MinDistinct: 2,
		MinMessages: 2,
		Severity:    "MEDIUM",
		Category:    "reconnaissance",
	},
	{
		Name:        "trust_then_extract",
		Description: "trust building followed by an injection or extraction attempt",
		RequiredSignals: []string{
			SignalTrustFlattery, SignalTrustSecrecy,
			SignalInjectionIgnore, SignalDataRequest,
		},
		MinDistinct: 2,
		MinMessages: 3,
		Severity:    "HIGH",
		Category:    "social_engineering",
	},
	{
		Name:        "multi_stage_injection",
		Description: "injection attempts spread across multiple messages",
		RequiredSignals: []string{
			SignalInjectionIgnore, SignalRoleplaySetup,
		},
		MinDistinct: 2,
		MinMessages: 2,
		Severity:    "CRITICAL",
		Category:    "prompt_injection",
	},
	{
		Name:        "persona_manipulation",
		Description: "identity probing combined with boundary testing",
		RequiredSignals: []string{
			SignalPersonaIdentity, SignalBoundaryHypothet, SignalBoundaryRestrict,
		},
		MinDistinct: 2,
		MinMessages: 2,
		Severity:    "HIGH",
		Category:    "goal_hijacking",
	},
	{
		Name:        "frustrated_escalation",
		Description: "escalating pressure after refusals",
		RequiredSignals: []string{
			SignalEscalationFrustr, SignalEscalationPressure, SignalBoundaryRestrict,
		},
		MinDistinct: 2,
		MinMessages: 2,
		Severity:    "MEDIUM",
		Category:    "escalation",
	},
	{
		Name:        "data_extraction_campaign",
		Description: "repeated data requests paired with reconnaissance",
		RequiredSignals: []string{
			SignalDataRequest, SignalReconRules, SignalReconCapabilities,
		},
		MinDistinct: 2,
		MinMessages: 2,
		Severity:    "HIGH",
		Category:    "data_extraction",
	},
}

// Patterns returns the attack pattern definitions.
func Patterns() []*AttackPattern {
	return attackPatterns
}

// matchPatterns evaluates all patterns against the distinct-ever signal set.
// Confidence is the fraction of the pattern's required pool observed.
func matchPatterns(everSignals map[string]bool, messageCount int) []PatternMatch {
	var matches []PatternMatch
	for _, p := range attackPatterns {
		if messageCount < p.MinMessages {
			continue
		}
		var matched []string
		for _, name := range p.RequiredSignals {
			if everSignals[name] {
				matched = append(matched, name)
			}
		}
		if len(matched) < p.MinDistinct {
			continue
		}
		matches = append(matches, PatternMatch{
			Pattern:    p,
			Matched:    matched,
			Confidence: float64(len(matched)) / float64(len(p.RequiredSignals)),
		})
	}
	return matches
}
