package color

import (
	"image"
	stdcolor "image/color"
	"testing"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/muralhq/mural/internal/domain"
)

func TestCategorizeHues(t *testing.T) {
	cases := []struct {
		name string
		c    colorful.Color
		want domain.ColorCategory
	}{
		{"pure red", colorful.Color{R: 1, G: 0, B: 0}, domain.ColorRed},
		{"orange", colorful.Color{R: 1, G: 0.5, B: 0}, domain.ColorOrange},
		{"yellow", colorful.Color{R: 1, G: 1, B: 0}, domain.ColorYellow},
		{"green", colorful.Color{R: 0, G: 1, B: 0}, domain.ColorGreen},
		{"blue", colorful.Color{R: 0, G: 0, B: 1}, domain.ColorBlue},
		{"purple", colorful.Color{R: 0.6, G: 0, B: 1}, domain.ColorPurple},
		{"pink", colorful.Color{R: 1, G: 0.3, B: 0.8}, domain.ColorPink},
	}
	for _, c := range cases {
		if got := Categorize(c.c); got != c.want {
			h, s, v := c.c.Hsv()
			t.Errorf("%s (h=%.0f s=%.2f v=%.2f): got %q, want %q", c.name, h, s, v, got, c.want)
		}
	}
}

func TestCategorizeNeutrals(t *testing.T) {
	cases := []struct {
		name string
		c    colorful.Color
		want domain.ColorCategory
	}{
		{"black", colorful.Color{R: 0, G: 0, B: 0}, domain.ColorDark},
		{"near black", colorful.Color{R: 0.1, G: 0.1, B: 0.1}, domain.ColorDark},
		{"white", colorful.Color{R: 1, G: 1, B: 1}, domain.ColorWhite},
		{"light gray", colorful.Color{R: 0.9, G: 0.9, B: 0.9}, domain.ColorWhite},
		{"mid gray", colorful.Color{R: 0.5, G: 0.5, B: 0.5}, domain.ColorGray},
		{"dim gray", colorful.Color{R: 0.3, G: 0.3, B: 0.3}, domain.ColorDark},
		{"very dark blue", colorful.Color{R: 0, G: 0, B: 0.15}, domain.ColorDark},
	}
	for _, c := range cases {
		if got := Categorize(c.c); got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}

func solid(w, h int, c stdcolor.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDominantSolidImage(t *testing.T) {
	img := solid(64, 64, stdcolor.RGBA{R: 0, G: 0, B: 255, A: 255})
	colors := Dominant(img, 5)
	if len(colors) != 1 {
		t.Fatalf("solid image produced %d dominant colors, want 1", len(colors))
	}
	if got := Categorize(colors[0]); got != domain.ColorBlue {
		t.Errorf("dominant category = %q, want blue", got)
	}
}

// TestDominantOrderedByCoverage paints 3/4 of the image red and 1/4 green
// and expects red first.
func TestDominantOrderedByCoverage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if x < 48 {
				img.Set(x, y, stdcolor.RGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, stdcolor.RGBA{G: 255, A: 255})
			}
		}
	}

	colors := Dominant(img, 2)
	if len(colors) != 2 {
		t.Fatalf("got %d dominant colors, want 2", len(colors))
	}
	if Categorize(colors[0]) != domain.ColorRed || Categorize(colors[1]) != domain.ColorGreen {
		t.Errorf("categories = [%q, %q], want [red, green]",
			Categorize(colors[0]), Categorize(colors[1]))
	}
}

func TestCategoriesDeduplicates(t *testing.T) {
	// Two shades of blue land in different RGB bins but the same category.
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if x < 32 {
				img.Set(x, y, stdcolor.RGBA{B: 255, A: 255})
			} else {
				img.Set(x, y, stdcolor.RGBA{R: 40, G: 40, B: 220, A: 255})
			}
		}
	}

	cats := Categories(img, 5)
	if len(cats) != 1 || cats[0] != domain.ColorBlue {
		t.Errorf("Categories = %v, want [blue]", cats)
	}
}

func TestPrimary(t *testing.T) {
	img := solid(32, 32, stdcolor.RGBA{R: 255, G: 255, A: 255})
	if got := Primary(img); got != domain.ColorYellow {
		t.Errorf("Primary = %q, want yellow", got)
	}
}
