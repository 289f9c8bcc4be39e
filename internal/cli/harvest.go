package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ppiankov/wallharvest/internal/config"
	"github.com/ppiankov/wallharvest/internal/harvest"
	"github.com/ppiankov/wallharvest/internal/vk"
	"github.com/ppiankov/wallharvest/internal/walker"
	"github.com/ppiankov/wallharvest/internal/watermark"
	"github.com/spf13/cobra"
)

var (
	harvestGroupIDs    []string
	harvestGroupsPath  string
	harvestPostsInput  string
	harvestMaxDaysAgo  int
	harvestAllowFields []string
	harvestMaxPosts    int
	harvestDedupText   bool
	harvestPostsPath   string
	harvestRepostsPath string
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Fetch new wall posts of every tracked group",
	RunE:  harvestAction,
}

func init() {
	f := harvestCmd.Flags()
	f.StringSliceVar(&harvestGroupIDs, "group-id", nil, "group id or short address to harvest in addition to the table (repeatable)")
	f.StringVar(&harvestGroupsPath, "groups-path", "", "watermark table path (overrides config)")
	f.StringVar(&harvestPostsInput, "posts-input-file", "", "replay items from a saved JSON array instead of calling the API")
	f.IntVar(&harvestMaxDaysAgo, "max-days-ago", 0, "do not reach further back than this many days (0 = no limit)")
	f.StringSliceVar(&harvestAllowFields, "allow-fields", nil, "post attributes to keep (empty keeps all)")
	f.IntVar(&harvestMaxPosts, "max-posts", 0, "maximum items fetched per group (0 = no limit)")
	f.BoolVar(&harvestDedupText, "deduplicate-by-text", false, "drop short posts and posts with repeated text")
	f.StringVar(&harvestPostsPath, "output-posts-path", "", "posts corpus path (overrides config)")
	f.StringVar(&harvestRepostsPath, "output-reposts-path", "", "reposts corpus path (overrides config)")
	rootCmd.AddCommand(harvestCmd)
}

func harvestAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyHarvestFlags(cmd, cfg); err != nil {
		return err
	}

	log := newLogger(cfg.Log.Level)

	fetcher, err := newFetcher(cfg, log)
	if err != nil {
		return err
	}

	marks, closeMarks, err := openWatermarks(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeMarks() }()

	w := walker.New(fetcher, walker.Config{
		PageSize:    cfg.API.PageSize,
		MaxItems:    cfg.Harvest.MaxPosts,
		MaxDaysAgo:  cfg.Harvest.MaxDaysAgo,
		AllowFields: cfg.Harvest.AllowFields,
	}, log)

	runner := harvest.New(w, marks, harvest.Options{
		Sources:           cfg.Harvest.Groups,
		PostsPath:         cfg.Output.PostsPath,
		RepostsPath:       cfg.Output.RepostsPath,
		DeduplicateByText: cfg.Harvest.DeduplicateByText,
		MinTextLength:     cfg.Harvest.MinTextLength,
		Location:          cfg.Location(),
	}, log)

	sum, err := runner.Run(cmd.Context())
	if errors.Is(err, harvest.ErrNoSources) {
		return fmt.Errorf("%w (pass --group-id or fill %s)", err, cfg.Watermarks.Path)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Harvested %d posts and %d reposts from %d groups", sum.FetchedPosts, sum.FetchedReposts, sum.Sources-sum.Skipped)
	if sum.Skipped > 0 {
		fmt.Printf(" (%d already up to date)", sum.Skipped)
	}
	fmt.Println()
	fmt.Printf("Saved %d posts to %s and %d reposts to %s", sum.Posts, cfg.Output.PostsPath, sum.Reposts, cfg.Output.RepostsPath)
	if removed := sum.DuplicatePosts + sum.DuplicateReposts + sum.DuplicateText; removed > 0 {
		fmt.Printf(" (%d duplicates removed)", removed)
	}
	if sum.ShortText > 0 {
		fmt.Printf(" (%d short posts dropped)", sum.ShortText)
	}
	fmt.Println()
	if len(sum.Failed) > 0 {
		fmt.Printf("warning: %d groups failed and will be retried next run: %s\n", len(sum.Failed), strings.Join(sum.Failed, ", "))
	}
	return nil
}

// applyHarvestFlags copies explicitly set flags over the loaded config.
func applyHarvestFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("group-id") {
		cfg.Harvest.Groups = append(cfg.Harvest.Groups, harvestGroupIDs...)
	}
	if flags.Changed("groups-path") {
		cfg.Watermarks.Path = harvestGroupsPath
	}
	if flags.Changed("posts-input-file") {
		cfg.Harvest.PostsInputFile = harvestPostsInput
	}
	if flags.Changed("max-days-ago") {
		cfg.Harvest.MaxDaysAgo = harvestMaxDaysAgo
	}
	if flags.Changed("allow-fields") {
		cfg.Harvest.AllowFields = harvestAllowFields
	}
	if flags.Changed("max-posts") {
		cfg.Harvest.MaxPosts = harvestMaxPosts
	}
	if flags.Changed("deduplicate-by-text") {
		cfg.Harvest.DeduplicateByText = harvestDedupText
	}
	if flags.Changed("output-posts-path") {
		cfg.Output.PostsPath = harvestPostsPath
	}
	if flags.Changed("output-reposts-path") {
		cfg.Output.RepostsPath = harvestRepostsPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate flags: %w", err)
	}
	return nil
}

// newFetcher returns the replay fetcher when an input file is configured and
// the API client otherwise.
func newFetcher(cfg *config.Config, log *slog.Logger) (walker.Fetcher, error) {
	if cfg.Harvest.PostsInputFile != "" {
		log.Info("replaying saved items", "path", cfg.Harvest.PostsInputFile)
		replay, err := vk.NewReplay(cfg.Harvest.PostsInputFile)
		if err != nil {
			return nil, fmt.Errorf("open posts input: %w", err)
		}
		return replay, nil
	}
	client, err := newAPIClient(cfg, log)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newAPIClient(cfg *config.Config, log *slog.Logger) (*vk.Client, error) {
	if cfg.API.Token == "" {
		return nil, fmt.Errorf("access token is empty: set %s", cfg.API.TokenEnv)
	}
	client, err := vk.New(vk.Options{
		Token:    cfg.API.Token,
		Version:  cfg.API.Version,
		BaseURL:  cfg.API.BaseURL,
		Timeout:  cfg.API.Timeout.Duration,
		Attempts: uint(cfg.API.Attempts),
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}
	return client, nil
}

// openWatermarks opens the configured watermark backend. The returned func
// releases it.
func openWatermarks(cfg *config.Config) (watermark.Backend, func() error, error) {
	switch cfg.Watermarks.Backend {
	case config.BackendSQLite:
		db, err := watermark.OpenSQLite(cfg.Watermarks.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open watermarks: %w", err)
		}
		return db, db.Close, nil
	default:
		return watermark.NewTSV(cfg.Watermarks.Path, cfg.Location()), func() error { return nil }, nil
	}
}
