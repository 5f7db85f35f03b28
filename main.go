// modref computes module specifiers between TypeScript files and serves the
// versioned symbol metadata stored next to them.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/phobologic/modref/internal/config"
	"github.com/phobologic/modref/internal/discover"
	"github.com/phobologic/modref/internal/metadata"
	"github.com/phobologic/modref/internal/model"
	"github.com/phobologic/modref/internal/parse"
	"github.com/phobologic/modref/internal/resolver"
	"github.com/phobologic/modref/internal/toon"
	"github.com/phobologic/modref/internal/vfs"
)

var version = "dev"

const (
	formatTOON = "toon"
	formatJSON = "json"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	return cmd.Execute()
}

// app carries the persistent flags and what is built from them before a
// subcommand runs.
type app struct {
	stdout, stderr io.Writer

	configPath string
	sourceRoot string
	outputRoot string
	format     string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "modref",
		Short:         "Compute module specifiers and serve stored symbol metadata",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default: ./"+config.FileName+" when present)")
	pf.StringVar(&a.sourceRoot, "source-root", "", "root of hand-written modules")
	pf.StringVar(&a.outputRoot, "output-root", "", "root of generated modules")
	pf.StringVarP(&a.format, "format", "f", formatTOON, "output format: toon|json")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error")

	root.AddCommand(
		newSpecifierCmd(a),
		newMetadataCmd(a),
		newScanCmd(a),
		newInitCmd(a),
	)
	return root
}

// setup loads configuration, applies env and flag overrides, and builds the
// logger.
func (a *app) setup() error {
	if a.format != formatTOON && a.format != formatJSON {
		return fmt.Errorf("unsupported format %q (want toon or json)", a.format)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}

	cfg, err := loadConfig(a.configPath, cwd)
	if err != nil {
		return err
	}
	overrides, err := config.ApplyEnvOverrides(cfg, cwd)
	if err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	if a.sourceRoot != "" {
		// Generated files that lived next to their sources still do.
		if a.outputRoot == "" && cfg.Layout.OutputRoot == cfg.Layout.SourceRoot {
			cfg.Layout.OutputRoot = a.sourceRoot
		}
		cfg.Layout.SourceRoot = a.sourceRoot
	}
	if a.outputRoot != "" {
		cfg.Layout.OutputRoot = a.outputRoot
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	cfg.ResolvePaths(cwd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	handler := log.NewWithOptions(a.stderr, log.Options{
		Prefix: "modref",
		Level:  level,
	})
	a.cfg = cfg
	a.logger = slog.New(handler)
	for _, o := range overrides {
		a.logger.Debug("applied env override", "key", o.Key, "value", o.Value)
	}
	return nil
}

func loadConfig(path, cwd string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.Load(filepath.Join(cwd, config.FileName))
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		cfg.ResolvePaths(cwd)
		return cfg, nil
	}
	return cfg, err
}

func (a *app) newResolver() (*resolver.Resolver, error) {
	r, err := resolver.New(resolver.Layout{
		SourceRoot:        a.cfg.Layout.SourceRoot,
		OutputRoot:        a.cfg.Layout.OutputRoot,
		PackageMarkers:    a.cfg.Layout.PackageMarkers,
		GeneratedPatterns: a.cfg.Layout.GeneratedPatterns,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("resolver ready", "mode", r.Mode(), "source_root", a.cfg.Layout.SourceRoot, "output_root", a.cfg.Layout.OutputRoot)
	return r, nil
}

func (a *app) newStore(fsys vfs.FileSystem) (*metadata.Store, error) {
	return metadata.NewStore(fsys, parse.NewSource(fsys),
		metadata.WithSuffixes(a.cfg.Metadata.Suffixes...),
		metadata.WithCacheSize(a.cfg.Metadata.CacheSize),
		metadata.WithLogger(a.logger),
	)
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSpecifierCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "specifier <imported-file> <importing-file>",
		Short: "Print the specifier the importing file should use for the imported file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.newResolver()
			if err != nil {
				return err
			}
			imported, err := absPath(args[0])
			if err != nil {
				return err
			}
			importing, err := absPath(args[1])
			if err != nil {
				return err
			}

			spec, err := r.SpecifierFor(imported, importing)
			if err != nil {
				return err
			}

			if a.format == formatJSON {
				return a.writeJSON(struct {
					Imported  string `json:"imported"`
					Importing string `json:"importing"`
					Specifier string `json:"specifier"`
				}{imported, importing, spec})
			}
			_, _ = fmt.Fprintln(a.stdout, toon.EncodeSpecifier(imported, importing, spec))
			return nil
		},
	}
}

type metadataJSON struct {
	Module  string         `json:"module"`
	Status  string         `json:"status"`
	Records []model.Record `json:"records"`
}

func newMetadataCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata <file>...",
		Short: "Print the stored metadata for modules, synthesizing version 2 when needed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.newStore(vfs.OS{})
			if err != nil {
				return err
			}

			var out []metadataJSON
			for i, arg := range args {
				file, err := absPath(arg)
				if err != nil {
					return err
				}
				res, err := store.MetadataFor(file)
				if err != nil {
					return err
				}

				if a.format == formatJSON {
					var records []model.Record
					if res != nil {
						records = res.Records
					}
					out = append(out, metadataJSON{Module: file, Status: res.Status(), Records: records})
					continue
				}
				if i > 0 {
					_, _ = fmt.Fprintln(a.stdout)
				}
				_, _ = fmt.Fprintln(a.stdout, toon.EncodeMetadata(file, res))
			}

			if a.format == formatJSON {
				return a.writeJSON(out)
			}
			return nil
		},
	}
}

type scanJSON struct {
	Path     string `json:"path"`
	Status   string `json:"status"`
	Versions []int  `json:"versions,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [root]",
		Short: "Find modules with stored metadata and report their status",
		Long: "Walks root (default: the configured source root), skipping hidden directories,\n" +
			"node_modules and .gitignore'd paths, and loads the metadata of every module found.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := a.cfg.Layout.SourceRoot
			if len(args) > 0 {
				var err error
				if root, err = absPath(args[0]); err != nil {
					return err
				}
			}

			fsys := vfs.OS{}
			files, err := discover.Modules(fsys, root, a.cfg.Metadata.Suffixes)
			if err != nil {
				return fmt.Errorf("discovering modules: %w", err)
			}
			a.logger.Debug("discovered modules", "root", root, "count", len(files))

			store, err := a.newStore(fsys)
			if err != nil {
				return err
			}
			lookups := store.MetadataForAll(cmd.Context(), files, a.cfg.Metadata.Workers)

			failed := 0
			for _, l := range lookups {
				if l.Err != nil {
					failed++
					a.logger.Warn("metadata lookup failed", "module", l.File, "err", l.Err)
				}
			}

			if a.format == formatJSON {
				rows := make([]scanJSON, len(lookups))
				for i, l := range lookups {
					rows[i] = scanJSON{Path: l.File, Status: l.Result.Status()}
					if l.Result != nil {
						for _, rec := range l.Result.Records {
							rows[i].Versions = append(rows[i].Versions, rec.Version)
						}
					}
					if l.Err != nil {
						rows[i].Status = "error"
						rows[i].Error = l.Err.Error()
					}
				}
				if err := a.writeJSON(rows); err != nil {
					return err
				}
			} else {
				_, _ = fmt.Fprintln(a.stdout, toon.EncodeScan(root, lookups))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d modules failed", failed, len(lookups))
			}
			return nil
		},
	}
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", p, err)
	}
	return filepath.ToSlash(abs), nil
}
