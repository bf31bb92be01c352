// Package color extracts dominant colors from wallpapers and buckets them
// into named categories used for filtering and rule-based selection.
package color

import (
	"image"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/nfnt/resize"

	"github.com/muralhq/mural/internal/domain"
)

// DefaultColors is how many dominant colors are sampled per image.
const DefaultColors = 5

// Downscale bound before quantization. Color categorization does not need
// full resolution.
const sampleSize = 128

// hueRanges maps hue degrees to named categories. Checked in order.
var hueRanges = []struct {
	min, max float64
	cat      domain.ColorCategory
}{
	{0, 20, domain.ColorRed},
	{20, 40, domain.ColorOrange},
	{40, 80, domain.ColorYellow},
	{80, 170, domain.ColorGreen},
	{170, 250, domain.ColorBlue},
	{250, 310, domain.ColorPurple},
	{310, 350, domain.ColorPink},
	{350, 360, domain.ColorMagenta},
}

// Categorize buckets a single color into a named category. Dark and
// desaturated colors map to the neutral categories before hue is consulted.
func Categorize(c colorful.Color) domain.ColorCategory {
	h, s, v := c.Hsv()

	if v < 0.2 {
		return domain.ColorDark
	}
	if s < 0.2 {
		switch {
		case v > 0.8:
			return domain.ColorWhite
		case v > 0.4:
			return domain.ColorGray
		default:
			return domain.ColorDark
		}
	}

	for _, r := range hueRanges {
		if r.min <= h && h < r.max {
			return r.cat
		}
	}
	if h >= 350 || h < 20 {
		return domain.ColorRed
	}
	return domain.ColorOther
}

// Dominant extracts up to n dominant colors by downscaling the image and
// quantizing pixels into coarse RGB bins.
func Dominant(img image.Image, n int) []colorful.Color {
	if n <= 0 {
		n = DefaultColors
	}

	small := resize.Thumbnail(sampleSize, sampleSize, img, resize.NearestNeighbor)

	// 4 bits per channel: 4096 bins.
	type bin struct {
		count   int
		r, g, b uint64
	}
	bins := make(map[uint16]*bin)

	bounds := small.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			r8, g8, b8 := r>>8, g>>8, b>>8
			key := uint16(r8>>4)<<8 | uint16(g8>>4)<<4 | uint16(b8>>4)
			bk := bins[key]
			if bk == nil {
				bk = &bin{}
				bins[key] = bk
			}
			bk.count++
			bk.r += uint64(r8)
			bk.g += uint64(g8)
			bk.b += uint64(b8)
		}
	}

	ordered := make([]*bin, 0, len(bins))
	for _, bk := range bins {
		ordered = append(ordered, bk)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].count > ordered[j].count })
	if len(ordered) > n {
		ordered = ordered[:n]
	}

	colors := make([]colorful.Color, 0, len(ordered))
	for _, bk := range ordered {
		cnt := float64(bk.count)
		colors = append(colors, colorful.Color{
			R: float64(bk.r) / cnt / 255.0,
			G: float64(bk.g) / cnt / 255.0,
			B: float64(bk.b) / cnt / 255.0,
		})
	}
	return colors
}

// Categories returns the distinct categories of an image's dominant colors,
// most dominant first.
func Categories(img image.Image, n int) []domain.ColorCategory {
	var cats []domain.ColorCategory
	seen := make(map[domain.ColorCategory]bool)
	for _, c := range Dominant(img, n) {
		cat := Categorize(c)
		if !seen[cat] {
			seen[cat] = true
			cats = append(cats, cat)
		}
	}
	return cats
}

// Primary returns the single most dominant category, or ColorOther for
// images no colors could be sampled from.
func Primary(img image.Image) domain.ColorCategory {
	colors := Dominant(img, 1)
	if len(colors) == 0 {
		return domain.ColorOther
	}
	return Categorize(colors[0])
}
