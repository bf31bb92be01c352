package service

import (
	"sort"

	"github.com/muralhq/mural/internal/dedup"
	"github.com/muralhq/mural/internal/domain"
)

// Stats is an aggregate snapshot of the cache for reporting.
type Stats struct {
	Entries     int
	TotalBytes  int64
	Protected   int
	ByProvider  map[string]int
	ByColor     map[domain.ColorCategory]int
	MostViewed  *domain.CacheEntry
	LeastViewed *domain.CacheEntry
}

// Stats computes cache statistics from current state.
func (s *Service) Stats(protectThreshold int) Stats {
	st := Stats{
		ByProvider: make(map[string]int),
		ByColor:    make(map[domain.ColorCategory]int),
	}

	for e := range s.store.List(domain.Filter{}) {
		st.Entries++
		st.TotalBytes += e.SizeBytes
		if e.Protected(protectThreshold) {
			st.Protected++
		}
		st.ByProvider[e.Provider]++
		for _, c := range e.ColorCategories {
			st.ByColor[c]++
		}
		if st.MostViewed == nil || e.ViewCount > st.MostViewed.ViewCount {
			st.MostViewed = &e
		}
		if st.LeastViewed == nil || e.ViewCount < st.LeastViewed.ViewCount {
			st.LeastViewed = &e
		}
	}
	return st
}

// Cluster is one group of near-duplicate entries for inspection.
type Cluster struct {
	Entries     []domain.CacheEntry
	MaxDistance int    // Largest pairwise distance inside the cluster
	Similarity  string // Human description of MaxDistance
}

// DuplicateClusters groups cached entries into near-duplicate clusters at
// the given Hamming threshold (0 uses the detector default). Used for
// reporting, never for ingestion gating.
func (s *Service) DuplicateClusters(threshold int) []Cluster {
	groups := s.detector.Clusters(threshold)

	clusters := make([]Cluster, 0, len(groups))
	for _, ids := range groups {
		var c Cluster
		for _, id := range ids {
			e, err := s.store.Get(id)
			if err != nil {
				continue
			}
			c.Entries = append(c.Entries, e)
		}
		if len(c.Entries) < 2 {
			continue
		}
		for i := 0; i < len(c.Entries); i++ {
			for j := i + 1; j < len(c.Entries); j++ {
				d := dedup.Distance(c.Entries[i].PerceptualHash, c.Entries[j].PerceptualHash)
				if d > c.MaxDistance {
					c.MaxDistance = d
				}
			}
		}
		c.Similarity = dedup.SimilarityLabel(c.MaxDistance)
		sort.Slice(c.Entries, func(i, j int) bool { return c.Entries[i].ID < c.Entries[j].ID })
		clusters = append(clusters, c)
	}
	return clusters
}
