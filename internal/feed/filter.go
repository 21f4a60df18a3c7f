package feed

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/serialscope/serialscope/internal/domain"
	"github.com/serialscope/serialscope/internal/filter"
)

// Filter applies a LineFilter to buffered events
type Filter struct {
	filter domain.LineFilter
	regex  *regexp.Regexp
}

// NewFilter compiles a LineFilter. The pattern length cap matches the one
// enforced on session filter rules.
func NewFilter(f domain.LineFilter) (*Filter, error) {
	c := &Filter{filter: f}

	if len(f.Pattern) > filter.MaxPatternLength {
		return nil, fmt.Errorf("%w: pattern exceeds maximum length of %d characters", domain.ErrInvalidPattern, filter.MaxPatternLength)
	}

	if f.Pattern != "" && f.IsRegex {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPattern, err)
		}
		c.regex = re
	}

	return c, nil
}

// Matches returns true if the event satisfies the filter criteria
func (c *Filter) Matches(ev domain.LineEvent) bool {
	if !c.filter.MatchesPort(ev.Port) {
		return false
	}

	if c.filter.Pattern != "" {
		if c.regex != nil {
			if !c.regex.MatchString(ev.Line) {
				return false
			}
		} else {
			if !strings.Contains(ev.Line, c.filter.Pattern) {
				return false
			}
		}
	}

	return true
}

// FilterEvents filters a slice of events
func FilterEvents(events []domain.LineEvent, f domain.LineFilter) ([]domain.LineEvent, error) {
	if f.IsEmpty() {
		return events, nil
	}

	c, err := NewFilter(f)
	if err != nil {
		return nil, err
	}

	result := make([]domain.LineEvent, 0, len(events))
	for _, ev := range events {
		if c.Matches(ev) {
			result = append(result, ev)
		}
	}

	return result, nil
}

// FilterEventsLimit filters events and returns at most the newest limit
// entries, along with the total match count before limiting
func FilterEventsLimit(events []domain.LineEvent, f domain.LineFilter, limit int) ([]domain.LineEvent, int, error) {
	filtered, err := FilterEvents(events, f)
	if err != nil {
		return nil, 0, err
	}

	total := len(filtered)
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}

	return filtered, total, nil
}
