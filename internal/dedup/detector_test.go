package dedup

import (
	"image"
	"image/color"
	"reflect"
	"testing"
)

func TestDistance(t *testing.T) {
	cases := []struct {
		a, b uint64
		want int
	}{
		{0x0, 0x0, 0},
		{0x0, 0x1, 1},
		{0x0, 0xF, 4},
		{0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}
	for _, c := range cases {
		if got := Distance(c.a, c.b); got != c.want {
			t.Errorf("Distance(%#x, %#x) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestFingerprintStableAcrossCalls(t *testing.T) {
	img := gradient(64, 64)
	h1, err := Fingerprint(img)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	h2, err := Fingerprint(img)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("same image produced different fingerprints: %#x vs %#x", h1, h2)
	}
}

func TestFindNearSortedByDistance(t *testing.T) {
	d := New(Similar)
	d.Index("far", 0x00000000000000FF)  // distance 8
	d.Index("near", 0x0000000000000003) // distance 2
	d.Index("same", 0x0000000000000000) // distance 0
	d.Index("out", 0xFFFFFFFFFFFFFFFF)  // distance 64

	matches := d.FindNear(0x0, 0)
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d: %v", len(matches), matches)
	}
	wantIDs := []string{"same", "near", "far"}
	for i, m := range matches {
		if m.ID != wantIDs[i] {
			t.Errorf("match[%d] = %q, want %q", i, m.ID, wantIDs[i])
		}
	}
	if matches[0].Distance != 0 || matches[1].Distance != 2 || matches[2].Distance != 8 {
		t.Errorf("unexpected distances: %v", matches)
	}
}

func TestFindNearExplicitThresholdOverridesDefault(t *testing.T) {
	d := New(Similar)
	d.Index("a", 0x0000000000000FFF) // distance 12 from zero

	if got := d.FindNear(0x0, 0); len(got) != 0 {
		t.Errorf("default threshold %d should exclude distance 12, got %v", d.Threshold(), got)
	}
	if got := d.FindNear(0x0, SomewhatSimilar); len(got) != 1 {
		t.Errorf("threshold %d should include distance 12, got %v", SomewhatSimilar, got)
	}
}

func TestRemoveDropsFromIndex(t *testing.T) {
	d := New(0)
	d.Index("a", 0x1)
	d.Index("b", 0x2)
	d.Remove("a")

	if d.Len() != 1 {
		t.Fatalf("expected 1 indexed hash, got %d", d.Len())
	}
	for _, m := range d.FindNear(0x1, 64) {
		if m.ID == "a" {
			t.Error("removed entry still returned by FindNear")
		}
	}
}

// TestClusters checks transitive grouping: a-b and b-c within threshold pull
// a, b, c into one cluster even when a-c alone would not match.
func TestClusters(t *testing.T) {
	d := New(2)
	d.Index("a", 0x0)
	d.Index("b", 0x3)  // 2 bits from a
	d.Index("c", 0xF)  // 2 bits from b, 4 from a
	d.Index("x", 0xFFFFFFFF00000000)
	d.Index("y", 0xFFFFFFFF00000001)
	d.Index("lone", 0x00FF00FF00FF00FF)

	clusters := d.Clusters(2)
	want := [][]string{
		{"a", "b", "c"},
		{"x", "y"},
	}
	if !reflect.DeepEqual(clusters, want) {
		t.Errorf("Clusters = %v, want %v", clusters, want)
	}
}

func TestClustersSingletonsExcluded(t *testing.T) {
	d := New(2)
	d.Index("a", 0x0)
	d.Index("b", 0xFFFFFFFFFFFFFFFF)
	if clusters := d.Clusters(0); len(clusters) != 0 {
		t.Errorf("expected no clusters, got %v", clusters)
	}
}

func TestSimilarityLabel(t *testing.T) {
	cases := []struct {
		distance int
		want     string
	}{
		{0, "exact duplicate"},
		{3, "nearly identical"},
		{5, "nearly identical"},
		{8, "very similar"},
		{15, "similar"},
		{20, "somewhat similar"},
	}
	for _, c := range cases {
		if got := SimilarityLabel(c.distance); got != c.want {
			t.Errorf("SimilarityLabel(%d) = %q, want %q", c.distance, got, c.want)
		}
	}
}

// gradient builds a deterministic non-uniform test image. Perceptual hashes
// of flat images collapse to the same value, so tests use gradients.
func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8((x + y) * 2), A: 255})
		}
	}
	return img
}
