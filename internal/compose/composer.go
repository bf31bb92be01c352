// Package compose turns a monitor assignment into visible desktop state,
// either through a native per-monitor wallpaper mechanism or by assembling
// a single panorama image spanning the whole monitor layout.
package compose

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // JPEG decoder
	"image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"github.com/muralhq/mural/internal/domain"
)

// Setter is the OS wallpaper collaborator. PerMonitor reports whether the
// host exposes a native per-monitor mechanism; when it does not, only
// SetSpan is used.
type Setter interface {
	PerMonitor() bool
	// SetMonitor applies an image file to a single monitor.
	SetMonitor(monitorID, path string) error
	// SetSpan applies one image file across the whole desktop.
	SetSpan(path string) error
}

// Composer renders assignments into staged image files and hands them to
// the Setter. It owns no persistent state; its staging output is
// disposable.
type Composer struct {
	setter     Setter
	stagingDir string
	logger     zerolog.Logger
}

// New creates a composer staging its output under dir.
func New(setter Setter, dir string, logger zerolog.Logger) (*Composer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("compose: create staging dir: %w", err)
	}
	return &Composer{setter: setter, stagingDir: dir, logger: logger}, nil
}

// Apply makes the assignment visible. Every target file is fully
// constructed before the first OS call, so a failure partway through
// composition leaves the previous wallpaper untouched. A failed native
// apply is retried once through the panorama fallback; if that also fails,
// ErrApplyFailed is surfaced.
func (c *Composer) Apply(ctx context.Context, assignment domain.MonitorAssignment) error {
	if len(assignment) == 0 {
		return fmt.Errorf("%w: empty assignment", domain.ErrApplyFailed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.setter.PerMonitor() {
		err := c.applyNative(assignment)
		if err == nil {
			return nil
		}
		c.logger.Warn().Err(err).Msg("native apply failed, retrying via panorama")
	}

	if err := c.applyPanorama(assignment); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrApplyFailed, err)
	}
	return nil
}

// applyNative writes one staged file per monitor, then issues the OS calls.
// No set call happens until every file is ready.
func (c *Composer) applyNative(assignment domain.MonitorAssignment) error {
	staged := make([]string, len(assignment))
	for i, a := range assignment {
		img, err := c.renderEntry(a)
		if err != nil {
			return err
		}
		path := filepath.Join(c.stagingDir, fmt.Sprintf("monitor_%d.png", a.Monitor.Index))
		if err := writePNGAtomic(path, img); err != nil {
			return err
		}
		staged[i] = path
	}

	for i, a := range assignment {
		if err := c.setter.SetMonitor(a.Monitor.ID, staged[i]); err != nil {
			return fmt.Errorf("set monitor %d: %w", a.Monitor.Index, err)
		}
	}
	return nil
}

// applyPanorama composes a single canvas covering the bounding box of all
// monitor rectangles and applies it in one OS call.
func (c *Composer) applyPanorama(assignment domain.MonitorAssignment) error {
	canvas, err := c.renderPanorama(assignment)
	if err != nil {
		return err
	}

	path := filepath.Join(c.stagingDir, "span.png")
	if err := writePNGAtomic(path, canvas); err != nil {
		return err
	}
	if err := c.setter.SetSpan(path); err != nil {
		return fmt.Errorf("set span: %w", err)
	}
	return nil
}

// renderPanorama builds the spanning canvas without touching the OS.
func (c *Composer) renderPanorama(assignment domain.MonitorAssignment) (image.Image, error) {
	minX, minY := assignment[0].Monitor.X, assignment[0].Monitor.Y
	maxX, maxY := assignment[0].Monitor.Right(), assignment[0].Monitor.Bottom()
	for _, a := range assignment[1:] {
		if a.Monitor.X < minX {
			minX = a.Monitor.X
		}
		if a.Monitor.Y < minY {
			minY = a.Monitor.Y
		}
		if a.Monitor.Right() > maxX {
			maxX = a.Monitor.Right()
		}
		if a.Monitor.Bottom() > maxY {
			maxY = a.Monitor.Bottom()
		}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, maxX-minX, maxY-minY))
	for _, a := range assignment {
		img, err := c.renderEntry(a)
		if err != nil {
			return nil, err
		}
		target := image.Rect(
			a.Monitor.X-minX,
			a.Monitor.Y-minY,
			a.Monitor.X-minX+a.Monitor.Width,
			a.Monitor.Y-minY+a.Monitor.Height,
		)
		draw.Draw(canvas, target, img, img.Bounds().Min, draw.Src)
	}
	return canvas, nil
}

// renderEntry loads an assignment's image and scales/crops it to exactly
// the monitor's resolution.
func (c *Composer) renderEntry(a domain.Assignment) (image.Image, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.Path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", a.Path, err)
	}
	return coverResize(img, a.Monitor.Width, a.Monitor.Height), nil
}

// coverResize scales the image to fully cover w×h preserving aspect ratio,
// then center-crops the overflow.
func coverResize(img image.Image, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return img
	}
	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()
	if srcW == 0 || srcH == 0 {
		return img
	}

	scaleW := float64(w) / float64(srcW)
	scaleH := float64(h) / float64(srcH)
	scale := scaleW
	if scaleH > scale {
		scale = scaleH
	}

	scaledW := uint(float64(srcW)*scale + 0.5)
	scaledH := uint(float64(srcH)*scale + 0.5)
	scaled := resize.Resize(scaledW, scaledH, img, resize.Lanczos3)

	// Center crop to the exact target rectangle.
	offX := (int(scaledW) - w) / 2
	offY := (int(scaledH) - h) / 2
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), scaled, scaled.Bounds().Min.Add(image.Pt(offX, offY)), draw.Src)
	return out
}

// writePNGAtomic fully encodes to a temp file and renames it into place, so
// the setter never sees a half-written image.
func writePNGAtomic(path string, img image.Image) error {
	tmp := filepath.Join(filepath.Dir(path), "."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
