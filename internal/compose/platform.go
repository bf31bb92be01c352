package compose

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/muralhq/mural/internal/domain"
)

// StaticTopology serves a fixed monitor layout from configuration. Real
// topology discovery belongs to an OS collaborator; this adapter covers
// configured overrides and tests.
type StaticTopology []domain.Monitor

func (t StaticTopology) Monitors() ([]domain.Monitor, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("no monitors configured")
	}
	return t, nil
}

// CommandSetter shells out to configured commands to set wallpapers. The
// placeholders {path} and {monitor} are substituted before execution. An
// empty MonitorCmd means the host has no native per-monitor mechanism and
// forces the panorama path.
type CommandSetter struct {
	MonitorCmd []string // e.g. ["swaymsg", "output", "{monitor}", "bg", "{path}", "fill"]
	SpanCmd    []string // e.g. ["feh", "--bg-fill", "{path}"]
}

func (c CommandSetter) PerMonitor() bool { return len(c.MonitorCmd) > 0 }

func (c CommandSetter) SetMonitor(monitorID, path string) error {
	return runCommand(c.MonitorCmd, monitorID, path)
}

func (c CommandSetter) SetSpan(path string) error {
	if len(c.SpanCmd) == 0 {
		return fmt.Errorf("no span wallpaper command configured")
	}
	return runCommand(c.SpanCmd, "", path)
}

func runCommand(tmpl []string, monitorID, path string) error {
	if len(tmpl) == 0 {
		return fmt.Errorf("no wallpaper command configured")
	}
	args := make([]string, len(tmpl))
	for i, a := range tmpl {
		a = strings.ReplaceAll(a, "{path}", path)
		a = strings.ReplaceAll(a, "{monitor}", monitorID)
		args[i] = a
	}
	out, err := exec.Command(args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
