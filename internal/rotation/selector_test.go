package rotation

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"github.com/muralhq/mural/internal/domain"
)

func newTestSelector(store domain.Store, history *History) *Selector {
	return NewSelector(store, history, rand.New(rand.NewSource(7)), zerolog.Nop())
}

// TestSelectAvoidsRecentHistory verifies the no-immediate-repeat window:
// with K entries in history and K+1 in the pool, the leftover entry is the
// only possible pick.
func TestSelectAvoidsRecentHistory(t *testing.T) {
	entries := []domain.CacheEntry{
		entry("a"), entry("b"), entry("c"), entry("d"), entry("e"), entry("f"),
	}
	store := newFakeStore(entries...)
	history := NewHistory(5)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		history.Push(0, id)
	}
	sel := newTestSelector(store, history)

	for i := 0; i < 20; i++ {
		got, err := sel.Select(singleMonitor(), matchAll{}, nil)
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if got[0].EntryID != "f" {
			t.Fatalf("pick %d = %q, want f (only entry outside the window)", i, got[0].EntryID)
		}
	}
}

// TestSelectRelaxesWhenHistoryExhaustsPool verifies a monitor still gets an
// assignment when every candidate is in its recent window.
func TestSelectRelaxesWhenHistoryExhaustsPool(t *testing.T) {
	store := newFakeStore(entry("a"), entry("b"))
	history := NewHistory(5)
	history.Push(0, "a")
	history.Push(0, "b")
	sel := newTestSelector(store, history)

	got, err := sel.Select(singleMonitor(), matchAll{}, nil)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(got) != 1 || got[0].EntryID == "" {
		t.Fatalf("expected an assignment despite exhausted pool, got %v", got)
	}
}

// TestSelectDistinctEntriesPerMonitor verifies two monitors never share an
// entry while the pool is large enough.
func TestSelectDistinctEntriesPerMonitor(t *testing.T) {
	store := newFakeStore(entry("a"), entry("b"), entry("c"))
	sel := newTestSelector(store, NewHistory(3))
	monitors := []domain.Monitor{
		{Index: 0, Width: 1920, Height: 1080},
		{Index: 1, X: 1920, Width: 1920, Height: 1080},
	}

	for i := 0; i < 20; i++ {
		got, err := sel.Select(monitors, matchAll{}, nil)
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if got[0].EntryID == got[1].EntryID {
			t.Fatalf("monitors share entry %q", got[0].EntryID)
		}
	}
}

// TestRuleRestrictsPool verifies a matching rule narrows selection to its
// preferred entries when any exist.
func TestRuleRestrictsPool(t *testing.T) {
	store := newFakeStore(
		entry("sunset-1", "sunset"),
		entry("sunset-2", "sunset", "beach"),
		entry("forest", "forest"),
		entry("city", "city", "night"),
	)
	sel := newTestSelector(store, NewHistory(0))
	rule := &domain.Rule{Name: "evening", Enabled: true, PreferTags: []string{"sunset"}}

	picks := make(map[string]bool)
	for i := 0; i < 50; i++ {
		got, err := sel.Select(singleMonitor(), matchAll{}, rule)
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		picks[got[0].EntryID] = true
	}

	if picks["forest"] || picks["city"] {
		t.Errorf("rule failed to restrict pool, picked %v", picks)
	}
	if !picks["sunset-1"] || !picks["sunset-2"] {
		t.Errorf("expected both preferred entries over 50 draws, got %v", picks)
	}
}

// TestRuleWithNoMatchingEntriesKeepsFullPool verifies a rule whose preferred
// tags match nothing falls back to the unrestricted pool.
func TestRuleWithNoMatchingEntriesKeepsFullPool(t *testing.T) {
	store := newFakeStore(entry("a", "forest"))
	sel := newTestSelector(store, NewHistory(0))
	rule := &domain.Rule{Name: "tropical", Enabled: true, PreferTags: []string{"beach"}}

	got, err := sel.Select(singleMonitor(), matchAll{}, rule)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if got[0].EntryID != "a" {
		t.Errorf("pick = %q, want a", got[0].EntryID)
	}
}

// perMonitorFilters routes a distinct filter to each monitor index.
type perMonitorFilters map[int]domain.Filter

func (p perMonitorFilters) FilterFor(m domain.Monitor) domain.Filter { return p[m.Index] }

// TestSelectPerMonitorFilters verifies each monitor draws from its own
// filtered pool.
func TestSelectPerMonitorFilters(t *testing.T) {
	left := entry("left-only")
	left.Provider = "wallhaven"
	right := entry("right-only")
	right.Provider = "pexels"
	store := newFakeStore(left, right)

	sel := newTestSelector(store, NewHistory(0))
	monitors := []domain.Monitor{
		{Index: 0, Width: 1920, Height: 1080},
		{Index: 1, X: 1920, Width: 1920, Height: 1080},
	}
	filters := perMonitorFilters{
		0: {Provider: "wallhaven"},
		1: {Provider: "pexels"},
	}

	got, err := sel.Select(monitors, filters, nil)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if got[0].EntryID != "left-only" || got[1].EntryID != "right-only" {
		t.Errorf("assignments = %v", got)
	}
}

func TestSelectEmptyPool(t *testing.T) {
	sel := newTestSelector(newFakeStore(), NewHistory(0))
	if _, err := sel.Select(singleMonitor(), matchAll{}, nil); err == nil {
		t.Fatal("expected error for empty pool")
	}
}

// TestWeightedPickFavorsNeverApplied checks fresh entries surface more often
// than already-seen ones.
func TestWeightedPickFavorsNeverApplied(t *testing.T) {
	seen := entry("seen")
	at := seen.DownloadedAt
	seen.LastAppliedAt = &at
	fresh := entry("fresh")
	store := newFakeStore(seen, fresh)
	sel := newTestSelector(store, NewHistory(0))

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		got, err := sel.Select(singleMonitor(), matchAll{}, nil)
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		counts[got[0].EntryID]++
	}

	// Expected ratio is noveltyWeight:1; anything clearly above parity will do.
	if counts["fresh"] <= counts["seen"] {
		t.Errorf("fresh picked %d times vs seen %d, expected a novelty bias",
			counts["fresh"], counts["seen"])
	}
}
