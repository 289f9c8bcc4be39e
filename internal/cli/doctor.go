package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ppiankov/wallharvest/internal/config"
	"github.com/ppiankov/wallharvest/internal/corpus"
	"github.com/ppiankov/wallharvest/internal/watermark"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and data files",
	RunE:  doctorAction,
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := loadConfig()
	if err != nil {
		printCheck(false, "%s: %v", config.DefaultConfigFile, err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "%s (%d explicit groups, page size %d, backend %s)",
		config.DefaultConfigFile, len(cfg.Harvest.Groups), cfg.API.PageSize, cfg.Watermarks.Backend)

	// Credentials or replay input
	if cfg.Harvest.PostsInputFile != "" {
		if _, err := os.Stat(cfg.Harvest.PostsInputFile); err != nil {
			printCheck(false, "posts input file: %v", err)
			ok = false
		} else {
			printCheck(true, "posts input file %s (replay mode)", cfg.Harvest.PostsInputFile)
		}
	} else if cfg.API.Token == "" {
		printCheck(false, "access token: %s is not set", cfg.API.TokenEnv)
		ok = false
	} else {
		printCheck(true, "access token from %s", cfg.API.TokenEnv)
	}

	// Watermark table
	marks, closeMarks, err := openWatermarks(cfg)
	if err != nil {
		printCheck(false, "watermarks: %v", err)
		ok = false
	} else {
		defer func() { _ = closeMarks() }()
		table, err := marks.Load(cmd.Context())
		switch {
		case errors.Is(err, watermark.ErrNotFound) && len(cfg.Harvest.Groups) > 0:
			printInfo("watermarks %s not found, will be created from explicit groups", cfg.Watermarks.Path)
		case err != nil:
			printCheck(false, "watermarks %s: %v", cfg.Watermarks.Path, err)
			ok = false
		case table.Len() == 0 && len(cfg.Harvest.Groups) == 0:
			printCheck(false, "watermarks %s: no groups tracked", cfg.Watermarks.Path)
			ok = false
		default:
			printCheck(true, "watermarks %s (%d groups)", cfg.Watermarks.Path, table.Len())
		}
	}

	// Corpora
	for _, path := range []string{cfg.Output.PostsPath, cfg.Output.RepostsPath} {
		if !checkCorpus(path) {
			ok = false
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

// checkCorpus reports on a corpus file. A missing file is fine; it is
// created by the first harvest.
func checkCorpus(path string) bool {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		printInfo("%s does not exist yet", path)
		return true
	}
	if err != nil {
		printCheck(false, "%s: %v", path, err)
		return false
	}
	defer func() { _ = f.Close() }()

	items, err := corpus.Decode(f)
	if err != nil {
		printCheck(false, "%s: %v (it would be reset by the next harvest)", path, err)
		return false
	}
	printCheck(true, "%s (%d items)", path, len(items))
	return true
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
