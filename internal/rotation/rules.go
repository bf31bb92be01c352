package rotation

import (
	"strconv"
	"strings"
	"time"

	"github.com/muralhq/mural/internal/domain"
)

// Season returns the meteorological season for a time (Northern Hemisphere).
func Season(t time.Time) string {
	switch t.Month() {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "autumn"
	}
}

// parseClock parses "HH:MM" into minutes since midnight. Returns -1 on
// malformed input.
func parseClock(v string) int {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return -1
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return -1
	}
	return h*60 + m
}

// inRange reports whether the wall-clock minute of t falls inside the
// range. Start after End means the window wraps past midnight.
func inRange(r domain.TimeRange, t time.Time) bool {
	start, end := parseClock(r.Start), parseClock(r.End)
	if start < 0 || end < 0 {
		return false
	}
	now := t.Hour()*60 + t.Minute()

	if start <= end {
		return start <= now && now < end
	}
	return now >= start || now < end
}

// ruleMatches evaluates a rule's predicates against the current context.
func ruleMatches(r domain.Rule, now time.Time, weather string) bool {
	if !r.Enabled {
		return false
	}
	if r.When.TimeRange != nil && !inRange(*r.When.TimeRange, now) {
		return false
	}
	if len(r.When.Weekdays) > 0 {
		ok := false
		for _, d := range r.When.Weekdays {
			if now.Weekday() == d {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if r.When.Season != "" && r.When.Season != Season(now) {
		return false
	}
	if len(r.When.Weather) > 0 {
		if weather == "" {
			return false
		}
		ok := false
		for _, w := range r.When.Weather {
			if strings.EqualFold(w, weather) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// ActiveRule returns the matching rule with the highest priority, ties
// broken by declaration order. Nil when no rule matches.
func ActiveRule(rules []domain.Rule, now time.Time, weather string) *domain.Rule {
	var best *domain.Rule
	for i := range rules {
		if !ruleMatches(rules[i], now, weather) {
			continue
		}
		if best == nil || rules[i].Priority > best.Priority {
			best = &rules[i]
		}
	}
	return best
}
