package rotation

import (
	"testing"
	"time"

	"github.com/muralhq/mural/internal/domain"
)

// Mon Jun 10 2024, 10:30 local time.
var monMorning = time.Date(2024, time.June, 10, 10, 30, 0, 0, time.Local)

func TestSeason(t *testing.T) {
	cases := []struct {
		month time.Month
		want  string
	}{
		{time.January, "winter"},
		{time.February, "winter"},
		{time.April, "spring"},
		{time.July, "summer"},
		{time.October, "autumn"},
		{time.December, "winter"},
	}
	for _, c := range cases {
		at := time.Date(2024, c.month, 15, 12, 0, 0, 0, time.UTC)
		if got := Season(at); got != c.want {
			t.Errorf("Season(%s) = %q, want %q", c.month, got, c.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"06:30", 390},
		{"23:59", 1439},
		{"24:00", -1},
		{"12:60", -1},
		{"noon", -1},
		{"", -1},
	}
	for _, c := range cases {
		if got := parseClock(c.in); got != c.want {
			t.Errorf("parseClock(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestInRangeWrapsMidnight(t *testing.T) {
	window := domain.TimeRange{Start: "21:00", End: "06:00"}
	cases := []struct {
		hour, min int
		want      bool
	}{
		{22, 0, true},
		{23, 59, true},
		{0, 0, true},
		{5, 59, true},
		{6, 0, false},
		{12, 0, false},
		{20, 59, false},
		{21, 0, true},
	}
	for _, c := range cases {
		at := time.Date(2024, time.June, 10, c.hour, c.min, 0, 0, time.Local)
		if got := inRange(window, at); got != c.want {
			t.Errorf("inRange(21:00-06:00, %02d:%02d) = %v, want %v", c.hour, c.min, got, c.want)
		}
	}
}

func TestInRangeSameDay(t *testing.T) {
	window := domain.TimeRange{Start: "09:00", End: "17:00"}
	in := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.Local)
	out := time.Date(2024, time.June, 10, 17, 0, 0, 0, time.Local)
	if !inRange(window, in) {
		t.Error("12:00 should fall inside 09:00-17:00")
	}
	if inRange(window, out) {
		t.Error("end bound is exclusive, 17:00 should be outside 09:00-17:00")
	}
}

func TestActiveRuleHighestPriorityWins(t *testing.T) {
	rules := []domain.Rule{
		{Name: "low", Enabled: true, Priority: 5},
		{Name: "high", Enabled: true, Priority: 20},
		{Name: "mid", Enabled: true, Priority: 10},
	}
	got := ActiveRule(rules, monMorning, "")
	if got == nil || got.Name != "high" {
		t.Fatalf("ActiveRule = %v, want high", got)
	}
}

func TestActiveRuleTiesBrokenByDeclarationOrder(t *testing.T) {
	rules := []domain.Rule{
		{Name: "first", Enabled: true, Priority: 10},
		{Name: "second", Enabled: true, Priority: 10},
	}
	got := ActiveRule(rules, monMorning, "")
	if got == nil || got.Name != "first" {
		t.Fatalf("ActiveRule = %v, want first", got)
	}
}

func TestActiveRuleSkipsDisabledAndNonMatching(t *testing.T) {
	rules := []domain.Rule{
		{Name: "disabled", Enabled: false, Priority: 100},
		{
			Name: "night", Enabled: true, Priority: 50,
			When: domain.RulePredicates{TimeRange: &domain.TimeRange{Start: "21:00", End: "06:00"}},
		},
		{
			Name: "morning", Enabled: true, Priority: 10,
			When: domain.RulePredicates{TimeRange: &domain.TimeRange{Start: "06:00", End: "12:00"}},
		},
	}
	got := ActiveRule(rules, monMorning, "")
	if got == nil || got.Name != "morning" {
		t.Fatalf("ActiveRule = %v, want morning", got)
	}
}

func TestActiveRuleNoMatchReturnsNil(t *testing.T) {
	rules := []domain.Rule{
		{
			Name: "weekend", Enabled: true, Priority: 10,
			When: domain.RulePredicates{Weekdays: []time.Weekday{time.Saturday, time.Sunday}},
		},
	}
	if got := ActiveRule(rules, monMorning, ""); got != nil {
		t.Fatalf("ActiveRule on a Monday = %v, want nil", got)
	}
}

func TestRuleWeatherPredicate(t *testing.T) {
	rules := []domain.Rule{
		{
			Name: "rainy", Enabled: true, Priority: 15,
			When: domain.RulePredicates{Weather: []string{"rain", "drizzle"}},
		},
	}
	if got := ActiveRule(rules, monMorning, "Rain"); got == nil || got.Name != "rainy" {
		t.Errorf("weather match should be case-insensitive, got %v", got)
	}
	if got := ActiveRule(rules, monMorning, "clear"); got != nil {
		t.Errorf("clear weather matched rainy rule: %v", got)
	}
	// Unknown weather never satisfies a weather predicate.
	if got := ActiveRule(rules, monMorning, ""); got != nil {
		t.Errorf("unknown weather matched rainy rule: %v", got)
	}
}

func TestRuleSeasonPredicate(t *testing.T) {
	rules := []domain.Rule{
		{
			Name: "summer", Enabled: true, Priority: 10,
			When: domain.RulePredicates{Season: "summer"},
		},
	}
	if got := ActiveRule(rules, monMorning, ""); got == nil || got.Name != "summer" {
		t.Errorf("June should match season summer, got %v", got)
	}
	january := time.Date(2024, time.January, 10, 10, 0, 0, 0, time.Local)
	if got := ActiveRule(rules, january, ""); got != nil {
		t.Errorf("January matched season summer: %v", got)
	}
}
