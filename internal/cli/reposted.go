package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ppiankov/wallharvest/internal/corpus"
	"github.com/ppiankov/wallharvest/internal/reposted"
	"github.com/spf13/cobra"
)

var (
	repostedRepostsPath string
	repostedGroupsPath  string
)

var repostedCmd = &cobra.Command{
	Use:   "reposted",
	Short: "Report communities whose posts were reposted by tracked groups",
	Long: "reposted reads the reposts corpus, counts reposts per originating community, " +
		"resolves community names and writes a TSV report next to the previous one as " +
		"new_<name>, carrying over the review status column.",
	RunE: repostedAction,
}

func init() {
	repostedCmd.Flags().StringVar(&repostedRepostsPath, "reposts-path", "", "reposts corpus path (overrides config)")
	repostedCmd.Flags().StringVar(&repostedGroupsPath, "reposted-groups-path", "", "previous report path (overrides config)")
	rootCmd.AddCommand(repostedCmd)
}

func repostedAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("reposts-path") {
		cfg.Output.RepostsPath = repostedRepostsPath
	}
	if cmd.Flags().Changed("reposted-groups-path") {
		cfg.Reposted.Path = repostedGroupsPath
	}

	log := newLogger(cfg.Log.Level)

	f, err := os.Open(cfg.Output.RepostsPath)
	if err != nil {
		return fmt.Errorf("open reposts: %w", err)
	}
	reposts, err := corpus.Decode(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("read reposts %s: %w", cfg.Output.RepostsPath, err)
	}

	statuses, err := reposted.LoadStatuses(cfg.Reposted.Path)
	if err != nil {
		return err
	}

	client, err := newAPIClient(cfg, log)
	if err != nil {
		return err
	}

	rows, err := reposted.Collect(cmd.Context(), reposts, client)
	if err != nil {
		return err
	}
	reposted.ApplyStatuses(rows, statuses)

	var buf bytes.Buffer
	if err := reposted.WriteTSV(&buf, rows); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	out := reposted.OutputPath(cfg.Reposted.Path)
	if err := corpus.WriteFileAtomic(out, buf.Bytes()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	fmt.Printf("Found %d reposted groups in %d reposts, report written to %s\n", len(rows), len(reposts), out)
	return nil
}
