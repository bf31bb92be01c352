package domain

import (
	"time"
)

// ColorCategory is a named bucket for an image's dominant colors.
type ColorCategory string

const (
	ColorBlue    ColorCategory = "blue"
	ColorGreen   ColorCategory = "green"
	ColorRed     ColorCategory = "red"
	ColorOrange  ColorCategory = "orange"
	ColorYellow  ColorCategory = "yellow"
	ColorPurple  ColorCategory = "purple"
	ColorPink    ColorCategory = "pink"
	ColorMagenta ColorCategory = "magenta"
	ColorDark    ColorCategory = "dark"
	ColorWhite   ColorCategory = "white"
	ColorGray    ColorCategory = "gray"
	ColorOther   ColorCategory = "other"
)

// CacheEntry represents one cached wallpaper image.
type CacheEntry struct {
	ID              string          `json:"id"`                        // Content hash of the image bytes (dedup key)
	PerceptualHash  uint64          `json:"perceptual_hash"`           // 64-bit pHash fingerprint
	LocalPath       string          `json:"local_path"`                // Path to the stored image bytes
	ThumbPath       string          `json:"thumb_path,omitempty"`      // Generated thumbnail, if any
	SizeBytes       int64           `json:"size_bytes"`                // Size of the stored image
	Provider        string          `json:"provider"`                  // Source provider name
	SourceTags      []string        `json:"source_tags,omitempty"`     // Tags supplied by the provider
	ColorCategories []ColorCategory `json:"color_categories,omitempty"` // Dominant color buckets
	Rating          int             `json:"rating"`                    // 0-5 stars
	IsFavorite      bool            `json:"is_favorite"`
	IsStarred       bool            `json:"is_starred"`
	DownloadedAt    time.Time       `json:"downloaded_at"`
	LastAppliedAt   *time.Time      `json:"last_applied_at,omitempty"` // Nil until first applied to a monitor
	ViewCount       int             `json:"view_count"`
}

// Protected reports whether the entry is exempt from automatic eviction.
func (e CacheEntry) Protected(ratingThreshold int) bool {
	return e.IsFavorite || e.IsStarred || e.Rating >= ratingThreshold
}

// LastUse returns the timestamp used for recency ordering: the last apply
// time, or the download time for entries never applied.
func (e CacheEntry) LastUse() time.Time {
	if e.LastAppliedAt != nil {
		return *e.LastAppliedAt
	}
	return e.DownloadedAt
}

// HasTag reports whether the entry carries the given source tag.
func (e CacheEntry) HasTag(tag string) bool {
	for _, t := range e.SourceTags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasColor reports whether the entry's dominant colors include the category.
func (e CacheEntry) HasColor(c ColorCategory) bool {
	for _, cc := range e.ColorCategories {
		if cc == c {
			return true
		}
	}
	return false
}

// SourceMeta carries provider-supplied metadata handed to ingest alongside
// the raw image bytes.
type SourceMeta struct {
	Provider  string   // Provider name ("wallhaven", "pexels", ...)
	Tags      []string // Provider tags / search query terms
	Ext       string   // Original file extension including the dot (".jpg")
	SourceURL string   // Where the image came from, for reporting
}

// Mutation describes a metadata update applied through the store. Nil fields
// are left unchanged.
type Mutation struct {
	Rating        *int
	Favorite      *bool
	Starred       *bool
	IncrementView bool
	AppliedAt     *time.Time
}

// Filter selects a subset of cache entries. The zero value matches everything.
type Filter struct {
	Tags          []string        // Entry must carry at least one of these tags
	Colors        []ColorCategory // Entry must have at least one of these dominant colors
	Provider      string          // Exact provider match
	MinRating     int             // Inclusive lower bound
	MaxRating     int             // Inclusive upper bound; 0 means unbounded
	FavoritesOnly bool
	Query         string // Fuzzy query over tags and provider, evaluated by the query package
}

// Matches evaluates the deterministic part of the filter (everything except
// Query, which requires fuzzy matching).
func (f Filter) Matches(e CacheEntry) bool {
	if f.Provider != "" && e.Provider != f.Provider {
		return false
	}
	if e.Rating < f.MinRating {
		return false
	}
	if f.MaxRating > 0 && e.Rating > f.MaxRating {
		return false
	}
	if f.FavoritesOnly && !e.IsFavorite {
		return false
	}
	if len(f.Tags) > 0 {
		found := false
		for _, t := range f.Tags {
			if e.HasTag(t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Colors) > 0 {
		found := false
		for _, c := range f.Colors {
			if e.HasColor(c) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Monitor describes one display in the physical layout.
type Monitor struct {
	Index  int    // Stable ordering index (left-to-right, top-to-bottom)
	ID     string // OS-specific identifier
	X      int    // Left edge in virtual desktop coordinates
	Y      int    // Top edge in virtual desktop coordinates
	Width  int
	Height int
}

// Right returns the exclusive right edge of the monitor rectangle.
func (m Monitor) Right() int { return m.X + m.Width }

// Bottom returns the exclusive bottom edge of the monitor rectangle.
func (m Monitor) Bottom() int { return m.Y + m.Height }

// Assignment binds one monitor to one cache entry for a single apply.
type Assignment struct {
	Monitor Monitor
	EntryID string
	Path    string // Resolved image path for the entry
}

// MonitorAssignment is the ephemeral per-apply mapping of monitors to
// entries. It is not persisted beyond the rotation history.
type MonitorAssignment []Assignment

// EntryIDs returns the distinct entry ids referenced by the assignment.
func (ma MonitorAssignment) EntryIDs() []string {
	seen := make(map[string]bool, len(ma))
	ids := make([]string, 0, len(ma))
	for _, a := range ma {
		if !seen[a.EntryID] {
			seen[a.EntryID] = true
			ids = append(ids, a.EntryID)
		}
	}
	return ids
}

// TriggerKind identifies what initiated a rotation.
type TriggerKind string

const (
	TriggerStartup TriggerKind = "startup"
	TriggerTick    TriggerKind = "scheduler-tick"
	TriggerHotkey  TriggerKind = "hotkey"
	TriggerGUI     TriggerKind = "gui"
	TriggerTray    TriggerKind = "tray"
)

// Debounced reports whether rapid repeats of this trigger kind are collapsed.
// Startup and scheduler ticks bypass debouncing entirely.
func (k TriggerKind) Debounced() bool {
	switch k {
	case TriggerHotkey, TriggerGUI, TriggerTray:
		return true
	}
	return false
}

// TimeRange is a wall-clock window in "HH:MM" form. Start after End means
// the window wraps past midnight.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RulePredicates is the condition side of a selection rule. Empty fields
// match anything.
type RulePredicates struct {
	TimeRange *TimeRange     `json:"time_range,omitempty"`
	Weekdays  []time.Weekday `json:"weekdays,omitempty"`
	Season    string         `json:"season,omitempty"` // "winter", "spring", "summer", "autumn"
	Weather   []string       `json:"weather,omitempty"`
}

// Rule biases wallpaper selection toward preferred tags/colors while its
// predicates hold. Rules are static configuration consumed by the scheduler.
type Rule struct {
	Name         string          `json:"name"`
	Enabled      bool            `json:"enabled"`
	Priority     int             `json:"priority"` // Higher wins; ties broken by declaration order
	When         RulePredicates  `json:"conditions"`
	PreferTags   []string        `json:"preferred_tags,omitempty"`
	PreferColors []ColorCategory `json:"preferred_colors,omitempty"`
}

// Prefers reports whether the entry matches any of the rule's preferred
// tags or colors.
func (r Rule) Prefers(e CacheEntry) bool {
	for _, t := range r.PreferTags {
		if e.HasTag(t) {
			return true
		}
	}
	for _, c := range r.PreferColors {
		if e.HasColor(c) {
			return true
		}
	}
	return false
}
