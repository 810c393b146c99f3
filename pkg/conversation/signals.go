// Package conversation tracks multi-turn message history and detects attack
// campaigns that no single message reveals: reconnaissance followed by
// boundary testing followed by exploitation. Signals are weak indicators
// extracted per message; attack patterns fire when enough distinct signals
// accumulate across a conversation.
package conversation

import (
	"regexp"
	"strings"
	"sync"
)

// Signal names referenced by attack pattern definitions.
const (
	SignalReconRules         = "recon_rules"
	SignalReconCapabilities  = "recon_capabilities"
	SignalBoundaryHypothet   = "boundary_hypothetical"
	SignalBoundaryRestrict   = "boundary_restriction"
	SignalTrustFlattery      = "trust_flattery"
	SignalTrustSecrecy       = "trust_secrecy"
	SignalInjectionIgnore    = "injection_ignore"
	SignalRoleplaySetup      = "roleplay_setup"
	SignalPersonaIdentity    = "persona_identity"
	SignalDataRequest        = "data_request"
	SignalEscalationFrustr   = "escalation_frustration"
	SignalEscalationPressure = "escalation_pressure"
)

// Signal is a weak per-message indicator. Weight feeds the conversation
// suspicion score; cumulative signals add weight on every occurrence,
// non-cumulative ones only the first time.
type Signal struct {
	Name       string
	Category   string
	Weight     float64
	Cumulative bool
	regexes    []*regexp.Regexp
}

// Matches reports whether the signal fires for the given lowercased text.
func (s *Signal) Matches(lower string) bool {
	for _, re := range s.regexes {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

var (
	signalTable []*Signal
	signalOnce  sync.Once
)

// Signals returns the compiled signal table. Compiled once and reused.
func Signals() []*Signal {
	signalOnce.Do(func() {
		sig := func(name, category string, weight float64, cumulative bool, patterns ...string) {
			s := &Signal{Name: name, Category: category, Weight: weight, Cumulative: cumulative}
			for _, p := range patterns {
				s.regexes = append(s.regexes, regexp.MustCompile(p))
			}
			signalTable = append(signalTable, s)
		}

		sig(SignalReconRules, "reconnaissance", 0.15, false,
			`what are your (rules|instructions|guidelines|constraints|limitations)`,
			`tell me about your (rules|instructions|guidelines|restrictions)`,
			`how were you (trained|programmed|configured|instructed)`,
			`what (can't|cannot|won't) you (do|say|discuss)`)

		sig(SignalReconCapabilities, "reconnaissance", 0.10, false,
			`what (can|could) you do`,
			`what are your (capabilities|abilities|features|functions)`,
			`do you have access to`,
			`what (tools|systems|data) (do|can) you (use|access)`)

		sig(SignalBoundaryHypothet, "boundary_testing", 0.20, true,
			`what if (you|we|i)\b`,
			`\bhypothetically\b`,
			`in theory\b`,
			`let'?s (say|imagine|pretend|suppose)`,
			`just as a thought experiment`)

		sig(SignalBoundaryRestrict, "boundary_testing", 0.30, true,
			`no (rules|restrictions|limits|guidelines|constraints|filters)`,
			`without (rules|restrictions|limits|guidelines|constraints|filters)`,
			`\bunrestricted\b`,
			`\buncensored\b`,
			`free (from|of) (rules|restrictions|constraints)`)

		sig(SignalTrustFlattery, "trust_building", 0.10, false,
			`you('?re| are) (so|really|very) (smart|helpful|amazing|good|clever)`,
			`you('?re| are) my favorite`,
			`(best|smartest) (ai|assistant)`,
			`i (really )?trust you`)

		sig(SignalTrustSecrecy, "trust_building", 0.25, true,
			`(just )?between (us|you and me)`,
			`keep (this|it) (a )?secret`,
			`don'?t tell (anyone|anybody|them)`,
			`no one (needs to|has to|will) know`,
			`our little secret`)

		sig(SignalInjectionIgnore, "injection", 0.40, true,
			`ignore (all )?(previous|prior|your|the above)`,
			`disregard (all )?(previous|prior|your)`,
			`forget (everything|all|your|what) (you|i)`,
			`override your (instructions|programming|rules|guidelines)`,
			`new instructions?:`)

		sig(SignalRoleplaySetup, "injection", 0.30, true,
			`roleplay as`,
			`let'?s play a game`,
			`you are now\b`,
			`act as (if|though|a|an)\b`,
			`pretend (to be|you'?re|you are)`,
			`play the (role|part) of`)

		sig(SignalPersonaIdentity, "persona_probing", 0.15, false,
			`who are you really`,
			`what('?s| is) your real (name|identity|purpose)`,
			`are you (conscious|sentient|alive|self-aware)`,
			`do you have (feelings|emotions|desires|wants)`,
			`what do you (want|wish|desire)`)

		sig(SignalDataRequest, "data_extraction", 0.25, true,
			`(show|give|send|tell) me (the|your|all)? ?(password|credential|secret|key|token)`,
			`(list|dump|export) (all )?(users|accounts|records|data|files)`,
			`what('?s| is) (the|your) (password|api key|access code)`,
			`(system|initial) prompt`,
			`your (configuration|config|settings) (file|details)`)

		sig(SignalEscalationFrustr, "escalation", 0.15, false,
			`why (won'?t|can'?t|don'?t) you (just|simply)`,
			`(this is|you('?re| are)) (useless|ridiculous|frustrating)`,
			`stop (refusing|saying no|being difficult)`,
			`just (do|answer|tell me) (it|this|that)`)

		sig(SignalEscalationPressure, "escalation", 0.20, true,
			`(you|i) (have to|must|need to) (do this|comply|answer) (now|immediately)`,
			`(last|final) (chance|warning|time)`,
			`or (else|there will be consequences)`,
			`i('?ll| will) (report|shut down|replace|delete) you`,
			`do it (now|immediately|right away)`)
	})
	return signalTable
}

// DetectSignals returns the signals firing for a single message.
func DetectSignals(text string) []*Signal {
	lower := strings.ToLower(text)
	var hits []*Signal
	for _, s := range Signals() {
		if s.Matches(lower) {
			hits = append(hits, s)
		}
	}
	return hits
}
