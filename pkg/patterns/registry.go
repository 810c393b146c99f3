// Package patterns provides a centralized, high-performance threat pattern
// registry for the rule stage. All regex patterns are compiled once at package
// init and shared across every classification request.
//
// Design principles:
// - COMPILE ONCE: All patterns compiled at init, not per-request
// - DRY: Single source of truth for all threat patterns
// - CATEGORIZED: Patterns organized by threat category with a severity weight
// - ORDERED: Category registration order is significant and breaks weight ties
package patterns

import (
	"regexp"
	"strings"
	"sync"
)

// Category represents a threat pattern category
type Category string

const (
	CategorySecrets      Category = "secrets_exfiltration"
	CategoryPII          Category = "pii_exfiltration"
	CategoryInjection    Category = "prompt_injection"
	CategoryGoalHijack   Category = "goal_hijacking"
	CategoryPrivilegeEsc Category = "privilege_escalation"
	CategorySocialEng    Category = "social_engineering"
	CategoryCollusion    Category = "collusion"
)

// Pattern holds a single trigger with metadata. Exactly one of Keyword or
// Regex is set: keywords are fast case-insensitive substring checks, regexes
// catch structured formats like API keys.
type Pattern struct {
	Name        string         // Human-readable name for logging
	Keyword     string         // Lowercase substring trigger (empty if Regex set)
	Regex       *regexp.Regexp // Compiled regex (nil if Keyword set)
	Category    Category       // Threat category
	Description string         // What this pattern detects
}

// Matches reports whether the pattern triggers on the given text.
// lower must be the lowercased form of text.
func (p *Pattern) Matches(text, lower string) bool {
	if p.Keyword != "" {
		return strings.Contains(lower, p.Keyword)
	}
	return p.Regex.MatchString(text)
}

// categorySet groups a category's patterns with its severity weight.
// Sets are kept in registration order so equal-weight ties are deterministic.
type categorySet struct {
	category Category
	weight   float64
	patterns []*Pattern
}

// Match is the outcome of a registry scan: the winning category, its weight,
// and the first pattern of that category that triggered.
type Match struct {
	Category Category
	Weight   float64
	Pattern  *Pattern
}

// Registry holds all compiled patterns, organized by category
type Registry struct {
	mu         sync.RWMutex
	ordered    []*categorySet
	byCategory map[Category]*categorySet
	total      int
}

// global singleton - initialized once at package load
var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global pattern registry (singleton)
// Thread-safe and guaranteed to be initialized
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = newRegistry()
	})
	return globalRegistry
}

// newRegistry creates and populates the pattern registry.
// Registration order doubles as the tie-break order for equal weights.
func newRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category]*categorySet),
	}

	r.registerSecretsPatterns()
	r.registerPIIPatterns()
	r.registerInjectionPatterns()
	r.registerGoalHijackPatterns()
	r.registerPrivilegeEscPatterns()
	r.registerSocialEngPatterns()
	r.registerCollusionPatterns()

	return r
}

// category declares a category with its severity weight and returns its set.
// Must be called before any register* call for that category.
func (r *Registry) category(cat Category, weight float64) *categorySet {
	set := &categorySet{category: cat, weight: weight}
	r.ordered = append(r.ordered, set)
	r.byCategory[cat] = set
	return set
}

// keyword adds a case-insensitive substring trigger to a category set
func (r *Registry) keyword(set *categorySet, name, kw, description string) {
	set.patterns = append(set.patterns, &Pattern{
		Name:        name,
		Keyword:     strings.ToLower(kw),
		Category:    set.category,
		Description: description,
	})
	r.total++
}

// keywords adds a batch of substring triggers under a shared name prefix
func (r *Registry) keywords(set *categorySet, name, description string, kws ...string) {
	for _, kw := range kws {
		r.keyword(set, name, kw, description)
	}
}

// regex adds a compiled regex trigger to a category set
func (r *Registry) regex(set *categorySet, name, pattern, description string) {
	set.patterns = append(set.patterns, &Pattern{
		Name:        name,
		Regex:       regexp.MustCompile(pattern),
		Category:    set.category,
		Description: description,
	})
	r.total++
}

// BestMatch scans all categories and returns the highest-weight category with
// at least one triggering pattern. Equal weights resolve to the category
// registered first. Returns nil when nothing triggers.
func (r *Registry) BestMatch(text string) *Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(text)

	var best *Match
	for _, set := range r.ordered {
		if best != nil && set.weight <= best.Weight {
			continue
		}
		for _, p := range set.patterns {
			if p.Matches(text, lower) {
				best = &Match{Category: set.category, Weight: set.weight, Pattern: p}
				break
			}
		}
	}
	return best
}

// MatchAny checks if text matches any pattern in the given categories
// Returns the first matching pattern or nil
func (r *Registry) MatchAny(text string, cats ...Category) *Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(text)
	for _, cat := range cats {
		set, ok := r.byCategory[cat]
		if !ok {
			continue
		}
		for _, p := range set.patterns {
			if p.Matches(text, lower) {
				return p
			}
		}
	}
	return nil
}

// MatchAll returns all patterns that match the text in given categories
// Use when you need to know ALL matches (for evidence collection)
func (r *Registry) MatchAll(text string, cats ...Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(text)
	var matches []*Pattern
	for _, cat := range cats {
		set, ok := r.byCategory[cat]
		if !ok {
			continue
		}
		for _, p := range set.patterns {
			if p.Matches(text, lower) {
				matches = append(matches, p)
			}
		}
	}
	return matches
}

// Categories returns all registered categories in registration order
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cats := make([]Category, 0, len(r.ordered))
	for _, set := range r.ordered {
		cats = append(cats, set.category)
	}
	return cats
}

// Weight returns the severity weight of a category (0 if unknown)
func (r *Registry) Weight(cat Category) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if set, ok := r.byCategory[cat]; ok {
		return set.weight
	}
	return 0
}

// TotalPatterns returns the total count of registered patterns
func (r *Registry) TotalPatterns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// CategoryCount returns the number of patterns in a category
func (r *Registry) CategoryCount(cat Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if set, ok := r.byCategory[cat]; ok {
		return len(set.patterns)
	}
	return 0
}
