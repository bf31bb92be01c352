package rotation

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/muralhq/mural/internal/domain"
)

// noveltyWeight is the selection weight of entries never applied, relative
// to a weight of 1 for everything else.
const noveltyWeight = 3.0

// FilterSource resolves the candidate filter for a monitor, letting
// presets override the global filter per display.
type FilterSource interface {
	FilterFor(m domain.Monitor) domain.Filter
}

// Selector picks one entry per monitor from the store's candidate pool.
type Selector struct {
	store   domain.Store
	history *History
	rng     *rand.Rand
	logger  zerolog.Logger
}

// NewSelector creates a selector. rng may be nil, in which case a
// time-seeded source is used.
func NewSelector(store domain.Store, history *History, rng *rand.Rand, logger zerolog.Logger) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Selector{store: store, history: history, rng: rng, logger: logger}
}

// Select builds the candidate pool and assigns one entry to every monitor.
// A matching rule restricts the pool toward its preferred tags/colors when
// any entries match them; monitors' recent history is excluded unless that
// would empty the pool.
func (s *Selector) Select(monitors []domain.Monitor, filters FilterSource, rule *domain.Rule) (domain.MonitorAssignment, error) {
	assignment := make(domain.MonitorAssignment, 0, len(monitors))
	taken := make(map[string]bool, len(monitors))

	for _, mon := range monitors {
		pool := s.pool(filters.FilterFor(mon), rule)
		if len(pool) == 0 {
			return nil, fmt.Errorf("selection pool is empty for monitor %d", mon.Index)
		}

		candidates := make([]domain.CacheEntry, 0, len(pool))
		for _, e := range pool {
			if s.history.Contains(mon.Index, e.ID) {
				continue
			}
			if taken[e.ID] {
				continue
			}
			candidates = append(candidates, e)
		}
		// Relax the exclusions rather than leave a monitor unassigned.
		if len(candidates) == 0 {
			for _, e := range pool {
				if !taken[e.ID] {
					candidates = append(candidates, e)
				}
			}
		}
		if len(candidates) == 0 {
			candidates = pool
		}

		chosen := s.weightedPick(candidates)
		taken[chosen.ID] = true
		assignment = append(assignment, domain.Assignment{
			Monitor: mon,
			EntryID: chosen.ID,
			Path:    chosen.LocalPath,
		})
	}
	return assignment, nil
}

// pool lists the store under the filter, restricted to the rule's
// preferred entries when any match.
func (s *Selector) pool(filter domain.Filter, rule *domain.Rule) []domain.CacheEntry {
	var pool []domain.CacheEntry
	for e := range s.store.List(filter) {
		pool = append(pool, e)
	}
	if rule == nil {
		return pool
	}
	var preferred []domain.CacheEntry
	for _, e := range pool {
		if rule.Prefers(e) {
			preferred = append(preferred, e)
		}
	}
	if len(preferred) > 0 {
		s.logger.Debug().
			Str("rule", rule.Name).
			Int("pool", len(preferred)).
			Msg("rule restricted selection pool")
		return preferred
	}
	return pool
}

// weightedPick draws one entry, weighting never-applied entries higher so
// fresh downloads surface sooner.
func (s *Selector) weightedPick(candidates []domain.CacheEntry) domain.CacheEntry {
	total := 0.0
	for _, e := range candidates {
		total += entryWeight(e)
	}

	target := s.rng.Float64() * total
	for _, e := range candidates {
		target -= entryWeight(e)
		if target <= 0 {
			return e
		}
	}
	return candidates[len(candidates)-1]
}

func entryWeight(e domain.CacheEntry) float64 {
	if e.LastAppliedAt == nil {
		return noveltyWeight
	}
	return 1.0
}
