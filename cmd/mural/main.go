package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/muralhq/mural/internal/adapter"
	"github.com/muralhq/mural/internal/compose"
	"github.com/muralhq/mural/internal/dedup"
	"github.com/muralhq/mural/internal/domain"
	"github.com/muralhq/mural/internal/event"
	"github.com/muralhq/mural/internal/rotation"
	"github.com/muralhq/mural/internal/service"
	"github.com/muralhq/mural/internal/store"
)

// Version is set at build time via -ldflags
var Version = "dev"

const usage = `mural - wallpaper cache and rotation

Usage:
  mural daemon                      run the rotation scheduler
  mural ingest <file> [flags]       add an image to the cache
  mural list [flags]                list cached entries
  mural delete <id>                 remove an entry
  mural rate <id> <stars>           set a 0-5 rating
  mural favorite <id>               toggle favorite
  mural star <id>                   toggle star
  mural preview-evict               show what eviction would remove next
  mural rotate [flags]              trigger a rotation now
  mural apply <monitor> <id>        set one entry on one monitor
  mural duplicates [flags]          report near-duplicate clusters
  mural stats                       cache statistics
`

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if showVersion {
		fmt.Printf("mural %s\n", Version)
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	cfg, err := adapter.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var logger zerolog.Logger
	if command == "daemon" {
		logger, err = adapter.SetupLogger(&cfg.Logging)
		if err != nil {
			logger = adapter.NullLogger()
		}
	} else {
		logger = adapter.ConsoleLogger(cfg.Logging.Level)
	}

	svc, err := buildService(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	switch command {
	case "daemon":
		return runDaemon(svc, logger)
	case "ingest":
		return runIngest(svc, args)
	case "list":
		return runList(svc, args)
	case "delete":
		return runDelete(svc, args)
	case "rate":
		return runRate(svc, args)
	case "favorite":
		return runFavorite(svc, args)
	case "star":
		return runStar(svc, args)
	case "preview-evict":
		return runPreviewEvict(svc)
	case "rotate":
		return runRotate(svc, args)
	case "apply":
		return runApply(svc, args)
	case "duplicates":
		return runDuplicates(svc, args)
	case "stats":
		return runStats(svc, cfg)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func buildService(cfg *adapter.Config, logger zerolog.Logger) (*service.Service, error) {
	detector := dedup.New(cfg.Cache.DuplicateThreshold)

	contentStore, err := store.New(store.Config{
		Dir:                cfg.Cache.Dir,
		CapBytes:           cfg.Cache.MaxSizeMB * 1024 * 1024,
		MaxItems:           cfg.Cache.MaxItems,
		DuplicateThreshold: cfg.Cache.DuplicateThreshold,
		ProtectThreshold:   cfg.Cache.ProtectThreshold,
	}, detector, logger)
	if err != nil {
		return nil, err
	}

	setter := compose.CommandSetter{
		MonitorCmd: cfg.Apply.MonitorCmd,
		SpanCmd:    cfg.Apply.SpanCmd,
	}
	composer, err := compose.New(setter, cfg.Apply.StagingDir, logger)
	if err != nil {
		contentStore.Close()
		return nil, err
	}

	topology := compose.StaticTopology(cfg.Topology())
	bus := event.NewBus()

	scheduler := rotation.New(
		rotation.Config{
			Interval:       time.Duration(cfg.Rotation.IntervalMinutes) * time.Minute,
			Jitter:         time.Duration(cfg.Rotation.JitterMinutes) * time.Minute,
			InitialDelay:   time.Duration(cfg.Rotation.InitialDelayMinutes) * time.Minute,
			DebounceWindow: time.Duration(cfg.Rotation.DebounceSeconds) * time.Second,
			QuietHours:     cfg.QuietHours(),
			Weekdays:       adapter.ParseWeekdays(cfg.Rotation.Days),
			HistorySize:    cfg.Rotation.HistorySize,
		},
		contentStore,
		composer,
		topology,
		cfg.DomainRules(),
		cfg.PresetManager(),
		nil, // Weather source is an external collaborator
		bus,
		logger,
	)

	return service.New(contentStore, detector, scheduler, bus, logger), nil
}

func runDaemon(svc *service.Service, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := svc.TriggerRotation(ctx, domain.TriggerStartup); err != nil {
			logger.Warn().Err(err).Msg("startup rotation failed")
		}
		svc.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	cancel()
	return nil
}

func runIngest(svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	provider := fs.String("provider", "local", "source provider name")
	tags := fs.String("tags", "", "comma-separated source tags")
	force := fs.Bool("force", false, "accept even if a near-duplicate exists")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: mural ingest <file> [--provider p] [--tags a,b] [--force]")
	}

	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	meta := domain.SourceMeta{
		Provider: *provider,
		Ext:      strings.ToLower(extOf(path)),
	}
	if *tags != "" {
		meta.Tags = strings.Split(*tags, ",")
	}

	entry, err := svc.Ingest(context.Background(), data, meta, *force)
	switch {
	case errors.Is(err, domain.ErrDuplicateRejected):
		fmt.Printf("rejected: near-duplicate of %s\n", entry.ID)
		return nil
	case errors.Is(err, domain.ErrStorageOverCap):
		fmt.Printf("ingested %s (cache over cap, nothing evictable)\n", entry.ID)
		return nil
	case err != nil:
		return err
	}
	fmt.Printf("ingested %s (%s)\n", entry.ID, humanize.Bytes(uint64(entry.SizeBytes)))
	return nil
}

func extOf(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i:]
	}
	return ""
}

func runList(svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	tag := fs.String("tag", "", "filter by source tag")
	col := fs.String("color", "", "filter by dominant color category")
	provider := fs.String("provider", "", "filter by provider")
	favorites := fs.Bool("favorites", false, "favorites only")
	minRating := fs.Int("min-rating", 0, "minimum rating")
	q := fs.String("query", "", "fuzzy query over tags and provider")
	fs.Parse(args)

	f := domain.Filter{
		Provider:      *provider,
		MinRating:     *minRating,
		FavoritesOnly: *favorites,
		Query:         *q,
	}
	if *tag != "" {
		f.Tags = []string{*tag}
	}
	if *col != "" {
		f.Colors = []domain.ColorCategory{domain.ColorCategory(*col)}
	}

	for _, e := range svc.List(f) {
		marks := ""
		if e.IsFavorite {
			marks += "♥"
		}
		if e.IsStarred {
			marks += "★"
		}
		fmt.Printf("%-16s %8s %-10s r%d v%d %s %s\n",
			e.ID[:16], humanize.Bytes(uint64(e.SizeBytes)), e.Provider,
			e.Rating, e.ViewCount, marks, strings.Join(e.SourceTags, ","))
	}
	return nil
}

func runDelete(svc *service.Service, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: mural delete <id>")
	}
	return svc.Delete(args[0])
}

func runRate(svc *service.Service, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: mural rate <id> <stars>")
	}
	stars, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid rating %q", args[1])
	}
	e, err := svc.Rate(args[0], stars)
	if err != nil {
		return err
	}
	fmt.Printf("%s rated %d\n", e.ID[:16], e.Rating)
	return nil
}

func runFavorite(svc *service.Service, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: mural favorite <id>")
	}
	e, err := svc.ToggleFavorite(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s favorite=%v\n", e.ID[:16], e.IsFavorite)
	return nil
}

func runStar(svc *service.Service, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: mural star <id>")
	}
	e, err := svc.ToggleStar(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s starred=%v\n", e.ID[:16], e.IsStarred)
	return nil
}

func runPreviewEvict(svc *service.Service) error {
	preview := svc.PreviewEviction()
	if len(preview) == 0 {
		return nil
	}
	for _, e := range preview {
		fmt.Printf("%-16s %8s last used %s\n",
			e.ID[:16], humanize.Bytes(uint64(e.SizeBytes)), humanize.Time(e.LastUse()))
	}
	return nil
}

func runRotate(svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("rotate", flag.ExitOnError)
	trigger := fs.String("trigger", string(domain.TriggerGUI), "trigger kind: startup, hotkey, gui, tray")
	fs.Parse(args)
	return svc.TriggerRotation(context.Background(), domain.TriggerKind(*trigger))
}

func runApply(svc *service.Service, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: mural apply <monitor-index> <id>")
	}
	idx, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid monitor index %q", args[0])
	}
	return svc.ApplyToMonitor(context.Background(), idx, args[1])
}

func runDuplicates(svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("duplicates", flag.ExitOnError)
	threshold := fs.Int("threshold", 0, "Hamming distance threshold (0 = configured default)")
	fs.Parse(args)

	clusters := svc.DuplicateClusters(*threshold)
	if len(clusters) == 0 {
		fmt.Println("no near-duplicates found")
		return nil
	}
	for i, c := range clusters {
		fmt.Printf("cluster %d: %d entries, %s (max distance %d)\n", i+1, len(c.Entries), c.Similarity, c.MaxDistance)
		for _, e := range c.Entries {
			fmt.Printf("  %s %s\n", e.ID[:16], e.LocalPath)
		}
	}
	return nil
}

func runStats(svc *service.Service, cfg *adapter.Config) error {
	st := svc.Stats(cfg.Cache.ProtectThreshold)
	fmt.Printf("entries:   %d\n", st.Entries)
	fmt.Printf("size:      %s\n", humanize.Bytes(uint64(st.TotalBytes)))
	fmt.Printf("protected: %d\n", st.Protected)
	for p, n := range st.ByProvider {
		fmt.Printf("provider %-12s %d\n", p, n)
	}
	for c, n := range st.ByColor {
		fmt.Printf("color    %-12s %d\n", c, n)
	}
	if st.MostViewed != nil {
		fmt.Printf("most viewed:  %s (%d views)\n", st.MostViewed.ID[:16], st.MostViewed.ViewCount)
	}
	return nil
}
