// Package dedup maintains an approximate-match index over perceptual hashes.
package dedup

import (
	"image"
	"sort"
	"sync"

	"github.com/corona10/goimagehash"
)

// Similarity thresholds in Hamming distance over the 64-bit fingerprint.
const (
	ExactMatch      = 0
	VerySimilar     = 5
	Similar         = 10
	SomewhatSimilar = 15
)

// Fingerprint computes the 64-bit perceptual hash for an image. Unlike the
// content hash, it survives re-encoding and re-compression.
func Fingerprint(img image.Image) (uint64, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, err
	}
	return h.GetHash(), nil
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	ha := goimagehash.NewImageHash(a, goimagehash.PHash)
	hb := goimagehash.NewImageHash(b, goimagehash.PHash)
	d, err := ha.Distance(hb)
	if err != nil {
		// Same-kind hashes of equal width cannot fail to compare.
		return 64
	}
	return d
}

// Match is one near-duplicate hit.
type Match struct {
	ID       string
	Distance int
}

// Detector indexes entry fingerprints for near-duplicate lookup. Index
// mutations are driven exclusively by the content store: indexing happens
// after a successful commit, removal before the delete is acknowledged.
type Detector struct {
	mu        sync.RWMutex
	hashes    map[string]uint64
	threshold int
}

// New creates a detector with the given default sensitivity (maximum
// Hamming distance considered a duplicate).
func New(threshold int) *Detector {
	if threshold <= 0 {
		threshold = Similar
	}
	return &Detector{
		hashes:    make(map[string]uint64),
		threshold: threshold,
	}
}

// Threshold returns the default sensitivity.
func (d *Detector) Threshold() int { return d.threshold }

// Index records an entry's fingerprint.
func (d *Detector) Index(id string, hash uint64) {
	d.mu.Lock()
	d.hashes[id] = hash
	d.mu.Unlock()
}

// Remove drops an entry from the index.
func (d *Detector) Remove(id string) {
	d.mu.Lock()
	delete(d.hashes, id)
	d.mu.Unlock()
}

// Len returns the number of indexed fingerprints.
func (d *Detector) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.hashes)
}

// FindNear returns all indexed entries within the given Hamming distance,
// most similar first. A threshold <= 0 uses the detector default.
func (d *Detector) FindNear(hash uint64, threshold int) []Match {
	if threshold <= 0 {
		threshold = d.threshold
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var matches []Match
	for id, h := range d.hashes {
		if dist := Distance(hash, h); dist <= threshold {
			matches = append(matches, Match{ID: id, Distance: dist})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	return matches
}

// Clusters groups indexed entries into duplicate clusters using union-find
// over the threshold graph. Only clusters with more than one member are
// returned. This is for external reporting, not ingestion gating.
func (d *Detector) Clusters(threshold int) [][]string {
	if threshold <= 0 {
		threshold = d.threshold
	}

	d.mu.RLock()
	ids := make([]string, 0, len(d.hashes))
	for id := range d.hashes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	hashes := make([]uint64, len(ids))
	for i, id := range ids {
		hashes[i] = d.hashes[id]
	}
	d.mu.RUnlock()

	parent := make([]int, len(ids))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if Distance(hashes[i], hashes[j]) <= threshold {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]string)
	for i, id := range ids {
		root := find(i)
		groups[root] = append(groups[root], id)
	}

	var clusters [][]string
	for _, members := range groups {
		if len(members) > 1 {
			sort.Strings(members)
			clusters = append(clusters, members)
		}
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i][0] < clusters[j][0] })
	return clusters
}

// SimilarityLabel describes a Hamming distance in human terms.
func SimilarityLabel(distance int) string {
	switch {
	case distance == ExactMatch:
		return "exact duplicate"
	case distance <= VerySimilar:
		return "nearly identical"
	case distance <= Similar:
		return "very similar"
	case distance <= SomewhatSimilar:
		return "similar"
	default:
		return "somewhat similar"
	}
}
