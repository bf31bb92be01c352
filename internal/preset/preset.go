// Package preset manages named selection filters (presets) and their
// per-monitor overrides. A preset is to wallpapers what a playlist is to
// media: a named, reusable subset of the cache.
package preset

import (
	"github.com/muralhq/mural/internal/domain"
)

// Preset is a named candidate filter.
type Preset struct {
	Name   string
	Filter domain.Filter
}

// Manager resolves which preset applies globally and per monitor. It is
// read-only after construction.
type Manager struct {
	presets   map[string]Preset
	active    string
	overrides map[int]string // monitor index -> preset name
}

// NewManager builds a manager. active may be "" for no global preset;
// unknown names resolve to the empty (match-all) filter.
func NewManager(presets []Preset, active string, overrides map[int]string) *Manager {
	byName := make(map[string]Preset, len(presets))
	for _, p := range presets {
		byName[p.Name] = p
	}
	if overrides == nil {
		overrides = make(map[int]string)
	}
	return &Manager{presets: byName, active: active, overrides: overrides}
}

// Get returns a preset by name.
func (m *Manager) Get(name string) (Preset, bool) {
	p, ok := m.presets[name]
	return p, ok
}

// Active returns the globally active preset's filter.
func (m *Manager) Active() domain.Filter {
	if p, ok := m.presets[m.active]; ok {
		return p.Filter
	}
	return domain.Filter{}
}

// FilterFor returns the filter for one monitor: its override preset when
// set, otherwise the active preset.
func (m *Manager) FilterFor(mon domain.Monitor) domain.Filter {
	if name, ok := m.overrides[mon.Index]; ok {
		if p, ok := m.presets[name]; ok {
			return p.Filter
		}
	}
	return m.Active()
}

// Static wraps a fixed filter as a FilterSource for every monitor.
type Static domain.Filter

// FilterFor returns the wrapped filter regardless of monitor.
func (s Static) FilterFor(domain.Monitor) domain.Filter {
	return domain.Filter(s)
}
