package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/muralhq/mural/internal/domain"
)

type setMonitorCall struct {
	monitorID string
	path      string
}

// fakeSetter records OS calls and fails on demand.
type fakeSetter struct {
	perMonitor   bool
	monitorErr   error
	spanErr      error
	monitorCalls []setMonitorCall
	spanCalls    []string
	onSetMonitor func(monitorID, path string)
}

func (f *fakeSetter) PerMonitor() bool { return f.perMonitor }

func (f *fakeSetter) SetMonitor(monitorID, path string) error {
	if f.onSetMonitor != nil {
		f.onSetMonitor(monitorID, path)
	}
	if f.monitorErr != nil {
		return f.monitorErr
	}
	f.monitorCalls = append(f.monitorCalls, setMonitorCall{monitorID, path})
	return nil
}

func (f *fakeSetter) SetSpan(path string) error {
	if f.spanErr != nil {
		return f.spanErr
	}
	f.spanCalls = append(f.spanCalls, path)
	return nil
}

func writeSolidPNG(t *testing.T, dir, name string, c color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func newTestComposer(t *testing.T, setter Setter) *Composer {
	t.Helper()
	c, err := New(setter, filepath.Join(t.TempDir(), "staging"), zerolog.Nop())
	if err != nil {
		t.Fatalf("new composer: %v", err)
	}
	return c
}

func sideBySide(t *testing.T) domain.MonitorAssignment {
	t.Helper()
	dir := t.TempDir()
	red := writeSolidPNG(t, dir, "red.png", color.RGBA{R: 255, A: 255})
	blue := writeSolidPNG(t, dir, "blue.png", color.RGBA{B: 255, A: 255})
	return domain.MonitorAssignment{
		{
			Monitor: domain.Monitor{Index: 0, ID: "left", X: 0, Y: 0, Width: 1920, Height: 1080},
			EntryID: "red", Path: red,
		},
		{
			Monitor: domain.Monitor{Index: 1, ID: "right", X: 1920, Y: 0, Width: 2560, Height: 1440},
			EntryID: "blue", Path: blue,
		},
	}
}

// TestPanoramaGeometry verifies the spanning canvas for a 1920x1080 plus
// 2560x1440 side-by-side layout: one 4480x1440 image with each entry
// rendered into its monitor's rectangle.
func TestPanoramaGeometry(t *testing.T) {
	setter := &fakeSetter{perMonitor: false}
	c := newTestComposer(t, setter)

	if err := c.Apply(context.Background(), sideBySide(t)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(setter.spanCalls) != 1 {
		t.Fatalf("SetSpan called %d times, want 1", len(setter.spanCalls))
	}

	f, err := os.Open(setter.spanCalls[0])
	if err != nil {
		t.Fatalf("open staged span: %v", err)
	}
	defer f.Close()
	canvas, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode span: %v", err)
	}

	if w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy(); w != 4480 || h != 1440 {
		t.Fatalf("canvas is %dx%d, want 4480x1440", w, h)
	}

	checkDominant(t, canvas, 960, 540, "red")
	checkDominant(t, canvas, 3200, 720, "blue")
}

// checkDominant samples one pixel and asserts which channel dominates.
func checkDominant(t *testing.T, img image.Image, x, y int, want string) {
	t.Helper()
	r, g, b, _ := img.At(x, y).RGBA()
	var got string
	switch {
	case r > g && r > b:
		got = "red"
	case b > r && b > g:
		got = "blue"
	default:
		got = fmt.Sprintf("r=%d g=%d b=%d", r>>8, g>>8, b>>8)
	}
	if got != want {
		t.Errorf("pixel (%d,%d) is %s, want %s", x, y, got, want)
	}
}

// TestNativeApply verifies the per-monitor path: one SetMonitor call per
// monitor, no span call, and every staged file written before the first OS
// call.
func TestNativeApply(t *testing.T) {
	setter := &fakeSetter{perMonitor: true}
	c := newTestComposer(t, setter)

	// Atomicity: by the time any SetMonitor runs, all staged files exist.
	setter.onSetMonitor = func(monitorID, path string) {
		for _, name := range []string{"monitor_0.png", "monitor_1.png"} {
			if _, err := os.Stat(filepath.Join(c.stagingDir, name)); err != nil {
				t.Errorf("SetMonitor(%s) ran before %s was staged", monitorID, name)
			}
		}
	}

	if err := c.Apply(context.Background(), sideBySide(t)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(setter.monitorCalls) != 2 {
		t.Fatalf("SetMonitor called %d times, want 2", len(setter.monitorCalls))
	}
	if len(setter.spanCalls) != 0 {
		t.Errorf("SetSpan called on the native path")
	}
	if setter.monitorCalls[0].monitorID != "left" || setter.monitorCalls[1].monitorID != "right" {
		t.Errorf("calls = %v", setter.monitorCalls)
	}

	// Staged files match each monitor's exact resolution.
	for i, want := range []image.Point{{1920, 1080}, {2560, 1440}} {
		f, err := os.Open(setter.monitorCalls[i].path)
		if err != nil {
			t.Fatalf("open staged file: %v", err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("decode staged file: %v", err)
		}
		if got := img.Bounds().Size(); got != want {
			t.Errorf("staged file %d is %v, want %v", i, got, want)
		}
	}
}

// TestNativeFailureFallsBackToPanorama verifies a failed native apply is
// retried once through the spanning path.
func TestNativeFailureFallsBackToPanorama(t *testing.T) {
	setter := &fakeSetter{perMonitor: true, monitorErr: errors.New("dbus timeout")}
	c := newTestComposer(t, setter)

	if err := c.Apply(context.Background(), sideBySide(t)); err != nil {
		t.Fatalf("apply should fall back, got: %v", err)
	}
	if len(setter.spanCalls) != 1 {
		t.Errorf("SetSpan called %d times, want 1", len(setter.spanCalls))
	}
}

func TestBothPathsFailing(t *testing.T) {
	setter := &fakeSetter{
		perMonitor: true,
		monitorErr: errors.New("dbus timeout"),
		spanErr:    errors.New("span rejected"),
	}
	c := newTestComposer(t, setter)

	err := c.Apply(context.Background(), sideBySide(t))
	if !errors.Is(err, domain.ErrApplyFailed) {
		t.Errorf("err = %v, want ErrApplyFailed", err)
	}
}

func TestEmptyAssignment(t *testing.T) {
	c := newTestComposer(t, &fakeSetter{})
	err := c.Apply(context.Background(), nil)
	if !errors.Is(err, domain.ErrApplyFailed) {
		t.Errorf("err = %v, want ErrApplyFailed", err)
	}
}

func TestMissingEntryFile(t *testing.T) {
	setter := &fakeSetter{perMonitor: false}
	c := newTestComposer(t, setter)

	assignment := domain.MonitorAssignment{
		{
			Monitor: domain.Monitor{Index: 0, ID: "m", Width: 1920, Height: 1080},
			EntryID: "gone", Path: "/nonexistent/image.png",
		},
	}
	err := c.Apply(context.Background(), assignment)
	if !errors.Is(err, domain.ErrApplyFailed) {
		t.Errorf("err = %v, want ErrApplyFailed", err)
	}
	if len(setter.spanCalls) != 0 {
		t.Error("SetSpan was called despite a render failure")
	}
}

func TestCancelledContext(t *testing.T) {
	c := newTestComposer(t, &fakeSetter{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Apply(ctx, sideBySide(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCoverResizeExactTarget(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))
	cases := []struct{ w, h int }{
		{200, 100}, // wide target, vertical crop
		{100, 200}, // tall target, horizontal crop
		{50, 50},   // downscale
		{100, 100}, // identity
	}
	for _, c := range cases {
		got := coverResize(src, c.w, c.h)
		if got.Bounds().Dx() != c.w || got.Bounds().Dy() != c.h {
			t.Errorf("coverResize to %dx%d produced %v", c.w, c.h, got.Bounds().Size())
		}
	}
}
