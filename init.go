package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/modref/internal/config"
)

const initHeader = `# modref configuration.
#
# layout.source_root holds hand-written modules; layout.output_root holds
# generated ones. Relative paths resolve against this file's directory. When
# the output root is the source root or inside it, generated files import
# sources by their real location; otherwise sources are addressed as if they
# had been copied into the output tree.
#
# metadata.cache_size = -1 disables the in-process cache; metadata.workers = 0
# uses one worker per CPU.

`

// newInitCmd implements `modref init`, which writes a default modref.toml.
func newInitCmd(a *app) *cobra.Command {
	var dryRun, force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default " + config.FileName,
		Long: `Write a default ` + config.FileName + ` to dir (default: the current directory).
An existing file is left untouched unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		// init must work where no valid config exists yet.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := defaultConfigFile()
			if err != nil {
				return err
			}

			if dryRun {
				_, _ = fmt.Fprint(a.stdout, content)
				return nil
			}

			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			path := filepath.Join(dir, config.FileName)

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}

			_, _ = fmt.Fprintf(a.stderr, "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the file instead of writing it")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// defaultConfigFile renders the commented default configuration.
func defaultConfigFile() (string, error) {
	var b bytes.Buffer
	b.WriteString(initHeader)
	if err := config.Encode(&b, config.Default()); err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	return b.String(), nil
}
