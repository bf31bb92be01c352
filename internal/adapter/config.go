package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/muralhq/mural/internal/domain"
	"github.com/muralhq/mural/internal/preset"
)

// ProviderKind identifies an image provider backend.
type ProviderKind string

const (
	ProviderWallhaven ProviderKind = "wallhaven"
	ProviderPexels    ProviderKind = "pexels"
	ProviderLocal     ProviderKind = "local"
)

// Config holds all application configuration
type Config struct {
	Cache        CacheConfig      `mapstructure:"cache"`
	Rotation     RotationConfig   `mapstructure:"rotation"`
	Monitors     []MonitorConfig  `mapstructure:"monitors"`
	Providers    []ProviderConfig `mapstructure:"providers"`
	Rules        []RuleConfig     `mapstructure:"rules"`
	Presets      []PresetConfig   `mapstructure:"presets"`
	ActivePreset string           `mapstructure:"active_preset"`
	Apply        ApplyConfig      `mapstructure:"apply"`
	Logging      LoggingConfig    `mapstructure:"logging"`
}

// CacheConfig bounds the on-disk cache
type CacheConfig struct {
	Dir                string `mapstructure:"dir"`                 // Cache root directory
	MaxSizeMB          int64  `mapstructure:"max_size_mb"`         // Aggregate blob size cap; 0 disables
	MaxItems           int    `mapstructure:"max_items"`           // Entry count cap; 0 disables
	DuplicateThreshold int    `mapstructure:"duplicate_threshold"` // Hamming distance treated as near-duplicate
	ProtectThreshold   int    `mapstructure:"protect_threshold"`   // Rating at/above which entries are protected
}

// RotationConfig drives the scheduler
type RotationConfig struct {
	IntervalMinutes     int               `mapstructure:"interval_minutes"`
	JitterMinutes       int               `mapstructure:"jitter_minutes"`
	InitialDelayMinutes int               `mapstructure:"initial_delay_minutes"`
	DebounceSeconds     int               `mapstructure:"debounce_seconds"`
	HistorySize         int               `mapstructure:"history_size"` // No-immediate-repeat window K
	Days                []string          `mapstructure:"days"`         // Active weekdays; empty = all
	QuietHours          []TimeRangeConfig `mapstructure:"quiet_hours"`
}

// TimeRangeConfig is a wall-clock window; start after end wraps midnight
type TimeRangeConfig struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// MonitorConfig is a per-monitor override: physical geometry plus an
// optional provider filter
type MonitorConfig struct {
	Index    int    `mapstructure:"index"`
	ID       string `mapstructure:"id"`
	Width    int    `mapstructure:"width"`
	Height   int    `mapstructure:"height"`
	X        int    `mapstructure:"x"`
	Y        int    `mapstructure:"y"`
	Provider string `mapstructure:"provider"` // Restrict this monitor to one provider
	Preset   string `mapstructure:"preset"`
}

// ProviderConfig is a tagged variant over provider kinds: exactly one typed
// settings block is populated, resolved once at load time.
type ProviderConfig struct {
	Kind      ProviderKind       `mapstructure:"kind"`
	Wallhaven *WallhavenSettings `mapstructure:"wallhaven,omitempty"`
	Pexels    *PexelsSettings    `mapstructure:"pexels,omitempty"`
	Local     *LocalSettings     `mapstructure:"local,omitempty"`
}

// WallhavenSettings configures the wallhaven downloader collaborator
type WallhavenSettings struct {
	APIKey   string `mapstructure:"api_key"`
	Sorting  string `mapstructure:"sorting"`
	TopRange string `mapstructure:"top_range"`
	Purity   string `mapstructure:"purity"`
	AtLeast  string `mapstructure:"atleast"` // Minimum resolution, e.g. "1920x1080"
}

// PexelsSettings configures the pexels downloader collaborator
type PexelsSettings struct {
	APIKey      string `mapstructure:"api_key"`
	Orientation string `mapstructure:"orientation"`
}

// LocalSettings points at a local directory of images
type LocalSettings struct {
	Dir string `mapstructure:"dir"`
}

// Validate checks that the populated settings block matches the kind.
func (p ProviderConfig) Validate() error {
	switch p.Kind {
	case ProviderWallhaven:
		if p.Wallhaven == nil {
			return fmt.Errorf("provider %q missing wallhaven settings", p.Kind)
		}
	case ProviderPexels:
		if p.Pexels == nil {
			return fmt.Errorf("provider %q missing pexels settings", p.Kind)
		}
	case ProviderLocal:
		if p.Local == nil {
			return fmt.Errorf("provider %q missing local settings", p.Kind)
		}
	default:
		return fmt.Errorf("unknown provider kind %q", p.Kind)
	}
	return nil
}

// RuleConfig mirrors domain.Rule in configuration form
type RuleConfig struct {
	Name            string           `mapstructure:"name"`
	Enabled         bool             `mapstructure:"enabled"`
	Priority        int              `mapstructure:"priority"`
	TimeRange       *TimeRangeConfig `mapstructure:"time_range"`
	Days            []string         `mapstructure:"days"`
	Season          string           `mapstructure:"season"`
	Weather         []string         `mapstructure:"weather"`
	PreferredTags   []string         `mapstructure:"preferred_tags"`
	PreferredColors []string         `mapstructure:"preferred_colors"`
}

// PresetConfig is a named candidate filter selectable globally or per
// monitor
type PresetConfig struct {
	Name          string   `mapstructure:"name"`
	Tags          []string `mapstructure:"tags"`
	Colors        []string `mapstructure:"colors"`
	Provider      string   `mapstructure:"provider"`
	MinRating     int      `mapstructure:"min_rating"`
	FavoritesOnly bool     `mapstructure:"favorites_only"`
}

// Filter converts the preset to a domain filter.
func (p PresetConfig) Filter() domain.Filter {
	f := domain.Filter{
		Tags:          p.Tags,
		Provider:      p.Provider,
		MinRating:     p.MinRating,
		FavoritesOnly: p.FavoritesOnly,
	}
	for _, col := range p.Colors {
		f.Colors = append(f.Colors, domain.ColorCategory(col))
	}
	return f
}

// ApplyConfig names the OS wallpaper commands
type ApplyConfig struct {
	MonitorCmd []string `mapstructure:"monitor_cmd"` // Per-monitor set command; empty = no native mechanism
	SpanCmd    []string `mapstructure:"span_cmd"`    // Full-desktop set command (panorama fallback)
	StagingDir string   `mapstructure:"staging_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration, including the stock
// time-of-day selection rules.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Dir:                defaultCachePath(),
			MaxSizeMB:          512,
			MaxItems:           50,
			DuplicateThreshold: 10,
			ProtectThreshold:   4,
		},
		Rotation: RotationConfig{
			IntervalMinutes: 30,
			JitterMinutes:   5,
			DebounceSeconds: 1,
			HistorySize:     5,
		},
		Rules: []RuleConfig{
			{
				Name:            "Morning - bright",
				Enabled:         true,
				Priority:        10,
				TimeRange:       &TimeRangeConfig{Start: "06:00", End: "12:00"},
				PreferredTags:   []string{"sunrise", "morning", "bright"},
				PreferredColors: []string{"yellow", "orange", "white"},
			},
			{
				Name:            "Evening - warm",
				Enabled:         true,
				Priority:        10,
				TimeRange:       &TimeRangeConfig{Start: "17:00", End: "21:00"},
				PreferredTags:   []string{"sunset", "evening", "warm"},
				PreferredColors: []string{"orange", "red", "purple"},
			},
			{
				Name:            "Night - dark",
				Enabled:         true,
				Priority:        10,
				TimeRange:       &TimeRangeConfig{Start: "21:00", End: "06:00"},
				PreferredTags:   []string{"night", "stars", "moon", "dark"},
				PreferredColors: []string{"dark", "blue", "purple"},
			},
			{
				Name:            "Rainy days",
				Enabled:         false, // Requires a weather collaborator
				Priority:        15,
				Weather:         []string{"rain", "drizzle", "thunderstorm"},
				PreferredTags:   []string{"rain", "fog", "mist", "clouds"},
				PreferredColors: []string{"gray", "blue"},
			},
		},
		Apply: ApplyConfig{
			StagingDir: filepath.Join(defaultCachePath(), "staging"),
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "info",
		},
	}
}

func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "mural", "mural.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "mural", "mural.log")
	}
}

func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "mural")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "mural")
	}
}

func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "mural", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "mural", "cache")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("MURAL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	for _, p := range cfg.Providers {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// SaveConfig serializes the whole configuration object back to disk.
// Persisted structures are always rewritten wholesale, never line-patched.
func SaveConfig(cfg *Config) error {
	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set("cache", cfg.Cache)
	viper.Set("rotation", cfg.Rotation)
	viper.Set("monitors", cfg.Monitors)
	viper.Set("providers", cfg.Providers)
	viper.Set("rules", cfg.Rules)
	viper.Set("presets", cfg.Presets)
	viper.Set("active_preset", cfg.ActivePreset)
	viper.Set("apply", cfg.Apply)
	viper.Set("logging", cfg.Logging)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// === Conversions to domain/runtime types ===

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekdays maps day names ("mon", "Tuesday") to weekdays, ignoring
// unrecognized entries.
func ParseWeekdays(days []string) []time.Weekday {
	var out []time.Weekday
	for _, d := range days {
		key := strings.ToLower(strings.TrimSpace(d))
		if len(key) > 3 {
			key = key[:3]
		}
		if wd, ok := weekdayNames[key]; ok {
			out = append(out, wd)
		}
	}
	return out
}

// DomainRules converts configured rules to domain rules, preserving
// declaration order.
func (c *Config) DomainRules() []domain.Rule {
	rules := make([]domain.Rule, 0, len(c.Rules))
	for _, rc := range c.Rules {
		r := domain.Rule{
			Name:       rc.Name,
			Enabled:    rc.Enabled,
			Priority:   rc.Priority,
			PreferTags: rc.PreferredTags,
			When: domain.RulePredicates{
				Weekdays: ParseWeekdays(rc.Days),
				Season:   rc.Season,
				Weather:  rc.Weather,
			},
		}
		if rc.TimeRange != nil {
			r.When.TimeRange = &domain.TimeRange{Start: rc.TimeRange.Start, End: rc.TimeRange.End}
		}
		for _, col := range rc.PreferredColors {
			r.PreferColors = append(r.PreferColors, domain.ColorCategory(col))
		}
		rules = append(rules, r)
	}
	return rules
}

// QuietHours converts the configured quiet windows.
func (c *Config) QuietHours() []domain.TimeRange {
	out := make([]domain.TimeRange, 0, len(c.Rotation.QuietHours))
	for _, q := range c.Rotation.QuietHours {
		out = append(out, domain.TimeRange{Start: q.Start, End: q.End})
	}
	return out
}

// PresetManager builds the preset resolver: configured presets, the
// globally active one, and per-monitor overrides. A monitor with only a
// provider restriction gets a synthesized preset carrying that filter.
func (c *Config) PresetManager() *preset.Manager {
	presets := make([]preset.Preset, 0, len(c.Presets))
	byName := make(map[string]domain.Filter, len(c.Presets))
	for _, pc := range c.Presets {
		f := pc.Filter()
		presets = append(presets, preset.Preset{Name: pc.Name, Filter: f})
		byName[pc.Name] = f
	}

	overrides := make(map[int]string)
	for _, m := range c.Monitors {
		name := m.Preset
		if m.Provider != "" {
			f := domain.Filter{Provider: m.Provider}
			if base, ok := byName[name]; ok {
				f = base
				if f.Provider == "" {
					f.Provider = m.Provider
				}
			}
			name = fmt.Sprintf("monitor-%d", m.Index)
			presets = append(presets, preset.Preset{Name: name, Filter: f})
		}
		if name != "" {
			overrides[m.Index] = name
		}
	}
	return preset.NewManager(presets, c.ActivePreset, overrides)
}

// Topology builds the static monitor layout from per-monitor overrides.
func (c *Config) Topology() []domain.Monitor {
	out := make([]domain.Monitor, 0, len(c.Monitors))
	for _, m := range c.Monitors {
		id := m.ID
		if id == "" {
			id = fmt.Sprintf("monitor-%d", m.Index)
		}
		out = append(out, domain.Monitor{
			Index: m.Index, ID: id,
			X: m.X, Y: m.Y, Width: m.Width, Height: m.Height,
		})
	}
	return out
}
