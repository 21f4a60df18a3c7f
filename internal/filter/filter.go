// Package filter evaluates monitored lines against keyword and regex rules.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/serialscope/serialscope/internal/domain"
)

// MaxPatternLength is the maximum allowed length for a single rule
// to prevent potential DoS attacks from excessively complex patterns
const MaxPatternLength = 256

// Engine holds one compiled rule set. A line matches when it contains any
// keyword as a substring OR any regex finds a match; an engine with no rules
// matches everything. Engines are immutable after construction and safe for
// concurrent use, so a live filter update swaps in a freshly built engine
// instead of mutating one in place.
type Engine struct {
	keywords    []string
	probes      []string // keyword match targets, lowered when case-insensitive
	rawPatterns []string
	patterns    []*regexp.Regexp
	insensitive bool
}

// New compiles a rule set. Invalid or oversized rules fail here, at
// configuration time, never at match time. The case policy applies to the
// whole rule set: keywords compare case-folded and patterns compile with
// the i flag.
func New(keywords, patterns []string, caseInsensitive bool) (*Engine, error) {
	e := &Engine{insensitive: caseInsensitive}

	for _, kw := range keywords {
		if len(kw) > MaxPatternLength {
			return nil, fmt.Errorf("%w: keyword exceeds maximum length of %d characters", domain.ErrInvalidPattern, MaxPatternLength)
		}
		e.keywords = append(e.keywords, kw)
		if caseInsensitive {
			kw = strings.ToLower(kw)
		}
		e.probes = append(e.probes, kw)
	}

	for _, pattern := range patterns {
		if len(pattern) > MaxPatternLength {
			return nil, fmt.Errorf("%w: pattern exceeds maximum length of %d characters", domain.ErrInvalidPattern, MaxPatternLength)
		}
		expr := pattern
		if caseInsensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPattern, err)
		}
		e.rawPatterns = append(e.rawPatterns, pattern)
		e.patterns = append(e.patterns, re)
	}

	return e, nil
}

// Matches reports whether the line triggers delivery under this rule set.
func (e *Engine) Matches(line string) bool {
	if len(e.probes) == 0 && len(e.patterns) == 0 {
		return true
	}

	probe := line
	if e.insensitive {
		probe = strings.ToLower(line)
	}
	for _, kw := range e.probes {
		if strings.Contains(probe, kw) {
			return true
		}
	}

	for _, re := range e.patterns {
		if re.MatchString(line) {
			return true
		}
	}

	return false
}

// Empty returns true when no rules are configured.
func (e *Engine) Empty() bool {
	return len(e.keywords) == 0 && len(e.rawPatterns) == 0
}

// Keywords returns the configured keywords as supplied.
func (e *Engine) Keywords() []string {
	out := make([]string, len(e.keywords))
	copy(out, e.keywords)
	return out
}

// Patterns returns the configured regex sources as supplied.
func (e *Engine) Patterns() []string {
	out := make([]string, len(e.rawPatterns))
	copy(out, e.rawPatterns)
	return out
}

// CaseInsensitive returns the engine's case policy.
func (e *Engine) CaseInsensitive() bool {
	return e.insensitive
}
