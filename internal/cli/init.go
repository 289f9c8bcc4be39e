package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/wallharvest/internal/config"
	"github.com/spf13/cobra"
)

const groupsFile = "group_ids.tsv"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	RunE:  initAction,
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	created := 0

	groupsPath := filepath.Join(configDir, groupsFile)
	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(fmt.Sprintf(exampleConfig, filepath.ToSlash(groupsPath), filepath.ToSlash(filepath.Join(configDir, "reposted_groups.tsv")))))
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	wrote, err = writeIfNotExists(groupsPath, []byte(exampleGroups))
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d config files.\n", configDir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# wallharvest configuration

api:
  token_env: VK_ACCESS_TOKEN
  version: "5.199"
  timeout: 30s
  page_size: 20
  attempts: 5

harvest:
  groups: []
  # - "1"
  # - "apiclub"
  max_days_ago: 0
  max_posts: 0
  allow_fields:
    - marked_as_ads
    - copy_history
    - date
    - from_id
    - id
    - owner_id
    - post_source
    - post_type
    - text
  deduplicate_by_text: false
  min_text_length: 10
  timezone: "UTC"

watermarks:
  backend: tsv
  path: %s

output:
  posts_path: posts.json
  reposts_path: reposts.json

reposted:
  path: %s

log:
  level: info
`

// Header only; add one group id or short address per line.
const exampleGroups = "group_id\tlast_download_date\n"
