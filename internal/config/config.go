// Package config loads modref.toml.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
)

// FileName is the config file looked up in the working directory when no
// explicit path is given.
const FileName = "modref.toml"

const (
	defaultSuffix    = ".metadata.json"
	defaultCacheSize = 512
	defaultLogLevel  = "info"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// Config is the top-level modref configuration.
type Config struct {
	Layout   Layout   `toml:"layout"`
	Metadata Metadata `toml:"metadata"`
	Log      Log      `toml:"log"`
}

// Layout describes where hand-written and generated modules live.
type Layout struct {
	SourceRoot        string   `toml:"source_root"`
	OutputRoot        string   `toml:"output_root,omitempty"`
	PackageMarkers    []string `toml:"package_markers,omitempty"`
	GeneratedPatterns []string `toml:"generated_patterns,omitempty"`
}

// Metadata configures the metadata store. A negative CacheSize disables the
// cache; Workers of zero uses GOMAXPROCS.
type Metadata struct {
	Suffixes  []string `toml:"suffixes"`
	CacheSize int      `toml:"cache_size"`
	Workers   int      `toml:"workers"`
}

// Log configures the CLI logger.
type Log struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{Layout: Layout{SourceRoot: "."}}
	applyDefaults(cfg)
	return cfg
}

// Load reads, defaults and validates the file at path. Relative roots are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	applyDefaults(&cfg)

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	cfg.ResolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.Layout.SourceRoot = strings.TrimSpace(cfg.Layout.SourceRoot)
	cfg.Layout.OutputRoot = strings.TrimSpace(cfg.Layout.OutputRoot)
	if cfg.Layout.SourceRoot == "" {
		cfg.Layout.SourceRoot = "."
	}
	// Without an output root, generated files live next to their sources.
	if cfg.Layout.OutputRoot == "" {
		cfg.Layout.OutputRoot = cfg.Layout.SourceRoot
	}

	if len(cfg.Metadata.Suffixes) == 0 {
		cfg.Metadata.Suffixes = []string{defaultSuffix}
	}
	if cfg.Metadata.CacheSize == 0 {
		cfg.Metadata.CacheSize = defaultCacheSize
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
}

// ResolvePaths makes relative roots absolute against base and converts them
// to slash-separated form.
func (c *Config) ResolvePaths(base string) {
	c.Layout.SourceRoot = resolve(base, c.Layout.SourceRoot)
	c.Layout.OutputRoot = resolve(base, c.Layout.OutputRoot)
}

func resolve(base, p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return filepath.ToSlash(filepath.Clean(p))
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Layout.SourceRoot == "" {
		return fmt.Errorf("layout.source_root must not be empty")
	}
	if c.Layout.OutputRoot == "" {
		return fmt.Errorf("layout.output_root must not be empty")
	}
	for i, m := range c.Layout.PackageMarkers {
		if strings.TrimSpace(m) == "" || strings.Contains(m, "/") {
			return fmt.Errorf("layout.package_markers[%d] must be a single path segment, got %q", i, m)
		}
	}
	for i, p := range c.Layout.GeneratedPatterns {
		if _, err := glob.Compile(p, '/'); err != nil {
			return fmt.Errorf("layout.generated_patterns[%d] %q: %w", i, p, err)
		}
	}

	for i, s := range c.Metadata.Suffixes {
		if !strings.HasPrefix(s, ".") || len(s) < 2 {
			return fmt.Errorf("metadata.suffixes[%d] must start with '.', got %q", i, s)
		}
	}
	if c.Metadata.Workers < 0 {
		return fmt.Errorf("metadata.workers must be >= 0, got %d", c.Metadata.Workers)
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		return fmt.Errorf("log.level must be one of: %s", strings.Join(logLevels, ", "))
	}
	return nil
}

// Override is one environment variable applied to a Config.
type Override struct {
	Key   string
	Value string
}

// ApplyEnvOverrides applies MODREF_[SECTION]_[KEY] environment overrides and
// returns the ones it applied, in application order. Overridden relative
// roots resolve against base.
func ApplyEnvOverrides(cfg *Config, base string) ([]Override, error) {
	var applied []Override
	if setEnvString(&applied, &cfg.Layout.SourceRoot, "MODREF_LAYOUT_SOURCE_ROOT") {
		cfg.Layout.SourceRoot = resolve(base, cfg.Layout.SourceRoot)
	}
	if setEnvString(&applied, &cfg.Layout.OutputRoot, "MODREF_LAYOUT_OUTPUT_ROOT") {
		cfg.Layout.OutputRoot = resolve(base, cfg.Layout.OutputRoot)
	}
	if err := setEnvInt(&applied, &cfg.Metadata.CacheSize, "MODREF_METADATA_CACHE_SIZE"); err != nil {
		return applied, err
	}
	if setEnvString(&applied, &cfg.Log.Level, "MODREF_LOG_LEVEL") {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	}
	return applied, cfg.Validate()
}

func setEnvString(applied *[]Override, target *string, key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		return false
	}
	*applied = append(*applied, Override{Key: key, Value: val})
	*target = val
	return true
}

func setEnvInt(applied *[]Override, target *int, key string) error {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*applied = append(*applied, Override{Key: key, Value: val})
	*target = i
	return nil
}

// Encode writes cfg as TOML.
func Encode(w io.Writer, cfg *Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}
