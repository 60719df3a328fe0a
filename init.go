package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/layerguard/internal/config"
)

const (
	sentinelStart = "# layerguard:start"
	sentinelEnd   = "# layerguard:end"
)

// newInitCmd implements `layerguard init`, which writes a starter depfile
// and keeps the reference cache out of version control.
func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var dryRun, force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter " + config.DefaultFile,
		Long: `Write a starter depfile to dir (default: the current directory).

An existing depfile is left untouched unless --force is given. The cache
directory is added to dir/.gitignore inside sentinel comments so it can be
updated in place on later runs without touching surrounding content.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(dir, dryRun, force, stdout, stderr)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the depfile without writing anything")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing depfile")
	return cmd
}

func runInit(dir string, dryRun, force bool, stdout, stderr io.Writer) error {
	depfile := generateDepfile()
	if dryRun {
		_, _ = fmt.Fprint(stdout, depfile)
		return nil
	}

	path := filepath.Join(dir, config.DefaultFile)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(depfile), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(stderr, "wrote %s\n", path)

	ignorePath := filepath.Join(dir, ".gitignore")
	existing, _ := os.ReadFile(ignorePath)
	updated := applySection(string(existing), generateSection())
	if updated == string(existing) {
		return nil
	}
	if err := os.WriteFile(ignorePath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ignorePath, err)
	}
	_, _ = fmt.Fprintf(stderr, "updated %s\n", ignorePath)
	return nil
}

// generateDepfile returns a depfile for a conventional three-layer
// application that validates as-is.
func generateDepfile() string {
	return `# layerguard depfile. Paths are relative to this file.
paths:
  - src/
exclude_files:
  - '#.*Test\.php$#'

layers:
  - name: Controller
    collectors:
      - type: className
        value: .*Controller.*
  - name: Service
    collectors:
      - type: className
        value: .*Service.*
  - name: Repository
    collectors:
      - type: className
        value: .*Repository.*

ruleset:
  Controller:
    - Service
  Service:
    - Repository
  Repository: []

# Dependencies to tolerate while they are being removed. Generate the
# current list with: layerguard --formatter baseline
skip_violations: {}
`
}

// generateSection returns the sentinel-wrapped .gitignore block.
func generateSection() string {
	return sentinelStart + "\n" + config.DefaultCacheDir + "/\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if len(content) > 0 {
		content += "\n"
	}
	return content + section + "\n"
}
