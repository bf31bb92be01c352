package store

import (
	"context"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/muralhq/mural/internal/domain"
)

// overCap reports whether either configured bound is exceeded.
func (s *ContentStore) overCap() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overCapLocked()
}

func (s *ContentStore) overCapLocked() bool {
	if s.cfg.CapBytes > 0 && s.totalSize > s.cfg.CapBytes {
		return true
	}
	if s.cfg.MaxItems > 0 && len(s.entries) > s.cfg.MaxItems {
		return true
	}
	return false
}

// evictionCandidates returns removable entries in removal order: entries
// that are neither protected nor currently on a monitor, least recently
// used and least viewed first.
func (s *ContentStore) evictionCandidates() []domain.CacheEntry {
	s.mu.RLock()
	candidates := make([]domain.CacheEntry, 0, len(s.entries))
	for id, e := range s.entries {
		if e.Protected(s.cfg.ProtectThreshold) || s.active[id] {
			continue
		}
		candidates = append(candidates, e)
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		ui, uj := candidates[i].LastUse(), candidates[j].LastUse()
		if !ui.Equal(uj) {
			return ui.Before(uj)
		}
		if candidates[i].ViewCount != candidates[j].ViewCount {
			return candidates[i].ViewCount < candidates[j].ViewCount
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates
}

// takeForEviction re-checks that an entry is still removable and claims it
// in the same critical section. Protection or active status gained after
// the candidate snapshot makes the entry off limits again, so the check
// cannot be separated from the removal.
func (s *ContentStore) takeForEviction(id string) (domain.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return domain.CacheEntry{}, false
	}
	if e.Protected(s.cfg.ProtectThreshold) || s.active[id] {
		return domain.CacheEntry{}, false
	}
	delete(s.entries, id)
	s.totalSize -= e.SizeBytes
	return e, true
}

// evict removes candidates one at a time until the cache fits its caps or
// the candidate set is exhausted. Work is bounded by the number of removed
// entries. Returns true if the cache is still over cap afterwards; the
// cap is soft and that condition is non-fatal.
func (s *ContentStore) evict(ctx context.Context) (stillOver bool) {
	candidates := s.evictionCandidates()

	removed := 0
	var freed int64
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		if !s.overCap() {
			break
		}
		e, ok := s.takeForEviction(c.ID)
		if !ok {
			continue
		}
		s.removeArtifacts(e)
		removed++
		freed += e.SizeBytes
	}

	if removed > 0 {
		s.logger.Info().
			Int("removed", removed).
			Str("freed", humanize.Bytes(uint64(freed))).
			Str("total", humanize.Bytes(uint64(s.TotalSize()))).
			Msg("evicted")
	}

	if s.overCap() {
		s.logger.Warn().
			Str("total", humanize.Bytes(uint64(s.TotalSize()))).
			Int("entries", s.Count()).
			Msg("still over cap, remaining entries protected or in use")
		return true
	}
	return false
}

// PreviewEviction returns, without removing anything, the entries the
// policy would delete next to bring the cache back under cap. An empty
// result means the cache fits or nothing is removable.
func (s *ContentStore) PreviewEviction() []domain.CacheEntry {
	s.mu.RLock()
	size := s.totalSize
	count := len(s.entries)
	s.mu.RUnlock()

	fits := func() bool {
		if s.cfg.CapBytes > 0 && size > s.cfg.CapBytes {
			return false
		}
		if s.cfg.MaxItems > 0 && count > s.cfg.MaxItems {
			return false
		}
		return true
	}

	var preview []domain.CacheEntry
	for _, e := range s.evictionCandidates() {
		if fits() {
			break
		}
		preview = append(preview, e)
		size -= e.SizeBytes
		count--
	}
	return preview
}
