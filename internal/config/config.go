// Package config manages application configuration from environment variables and flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/euforicio/emdash/internal/postprocess"
	"github.com/euforicio/emdash/internal/promote"
)

const envPrefix = "EMDASH_"

// Config holds runtime configuration for the promoter and the exporter.
type Config struct {
	RootDir       string
	StaticOutput  string
	AssetsDir     string
	MermaidSrc    string
	LanguageClass string
	MarkerClass   string
	Style         string
	Include       []string
	Exclude       []string
	Watch         bool
	DryRun        bool
	DarkModeFirst bool
	Verbose       bool
}

// Default returns ready-to-use defaults prior to env/flag overrides.
func Default() Config {
	return Config{
		RootDir:       ".",
		StaticOutput:  "dist",
		LanguageClass: promote.DefaultLanguageClass,
		MarkerClass:   promote.DefaultMarkerClass,
		Style:         promote.DefaultStyle,
		Include:       append([]string(nil), postprocess.DefaultInclude...),
		DarkModeFirst: true,
	}
}

// RegisterFlags attaches the flags shared by every command.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.RootDir, "root", "r", cfg.RootDir, "root directory to process")
	fs.StringVar(&cfg.LanguageClass, "language-class", cfg.LanguageClass, "class token marking diagram source code elements")
	fs.StringVar(&cfg.MarkerClass, "marker-class", cfg.MarkerClass, "class given to the promoted container")
	fs.StringVar(&cfg.Style, "style", cfg.Style, "inline style given to the promoted container")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable verbose logging")
	// Read by Load before parsing; registered so it shows in usage.
	fs.String("config", "", "YAML config file (default $EMDASH_CONFIG)")
}

// RegisterPromoteFlags attaches the file selection and write flags.
func RegisterPromoteFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringSliceVar(&cfg.Include, "include", cfg.Include, "glob of files to process, relative to root (repeatable)")
	fs.StringSliceVar(&cfg.Exclude, "exclude", cfg.Exclude, "glob of files to skip, relative to root (repeatable)")
	fs.BoolVarP(&cfg.Watch, "watch", "w", cfg.Watch, "keep running and promote files as they change")
	fs.BoolVarP(&cfg.DryRun, "dry-run", "n", cfg.DryRun, "report what would change without writing")
}

// RegisterExportFlags attaches the static export flags.
func RegisterExportFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.StaticOutput, "out", cfg.StaticOutput, "output directory for the generated static site")
	fs.StringVar(&cfg.AssetsDir, "assets", cfg.AssetsDir, "directory whose files override the bundled theme assets")
	fs.StringVar(&cfg.MermaidSrc, "mermaid-src", cfg.MermaidSrc, "script URL of the mermaid browser bundle")
	fs.BoolVar(&cfg.DarkModeFirst, "dark", cfg.DarkModeFirst, "enable dark theme by default")
}

// ApplyEnvOverrides reads supported environment variables and overrides cfg in place.
func ApplyEnvOverrides(cfg *Config) {
	applyStringEnv("ROOT", func(v string) { cfg.RootDir = v })
	applyStringEnv("OUT", func(v string) { cfg.StaticOutput = v })
	applyStringEnv("ASSETS", func(v string) { cfg.AssetsDir = v })
	applyStringEnv("MERMAID_SRC", func(v string) { cfg.MermaidSrc = v })
	applyStringEnv("LANGUAGE_CLASS", func(v string) { cfg.LanguageClass = v })
	applyStringEnv("MARKER_CLASS", func(v string) { cfg.MarkerClass = v })
	applyStringEnv("STYLE", func(v string) { cfg.Style = v })
	applyListEnv("INCLUDE", func(v []string) { cfg.Include = v })
	applyListEnv("EXCLUDE", func(v []string) { cfg.Exclude = v })
	applyBoolEnv("WATCH", func(v bool) { cfg.Watch = v })
	applyBoolEnv("DRY_RUN", func(v bool) { cfg.DryRun = v })
	applyBoolEnv("DARK", func(v bool) { cfg.DarkModeFirst = v })
	applyBoolEnv("VERBOSE", func(v bool) { cfg.Verbose = v })
}

func applyStringEnv(key string, apply func(string)) {
	if raw, ok := lookupNonEmpty(key); ok {
		apply(raw)
	}
}

func applyListEnv(key string, apply func([]string)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if list := splitList(raw); len(list) > 0 {
			apply(list)
		}
	}
}

func applyBoolEnv(key string, apply func(bool)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.ParseBool(raw); err == nil {
			apply(value)
		}
	}
}

func lookupNonEmpty(key string) (string, bool) {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	return value, true
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Finalize validates and normalizes paths and class names.
func Finalize(cfg *Config) error {
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return fmt.Errorf("resolve root directory: %w", err)
	}
	cfg.RootDir = root

	cfg.LanguageClass = strings.TrimSpace(cfg.LanguageClass)
	cfg.MarkerClass = strings.TrimSpace(cfg.MarkerClass)
	for name, class := range map[string]string{"language-class": cfg.LanguageClass, "marker-class": cfg.MarkerClass} {
		if strings.ContainsAny(class, " \t\n\f\r") {
			return fmt.Errorf("invalid %s %q: must be a single class token", name, class)
		}
	}

	cfg.Include = splitList(strings.Join(cfg.Include, ","))
	cfg.Exclude = splitList(strings.Join(cfg.Exclude, ","))
	if len(cfg.Include) == 0 {
		cfg.Include = append([]string(nil), postprocess.DefaultInclude...)
	}

	if cfg.StaticOutput == "" {
		cfg.StaticOutput = "dist"
	}
	if cfg.AssetsDir != "" {
		assets, err := filepath.Abs(cfg.AssetsDir)
		if err != nil {
			return fmt.Errorf("resolve assets directory: %w", err)
		}
		cfg.AssetsDir = assets
	}

	return nil
}

// PromoteOptions returns the promoter settings carried by cfg.
func (c Config) PromoteOptions() promote.Options {
	return promote.Options{
		LanguageClass: c.LanguageClass,
		MarkerClass:   c.MarkerClass,
		Style:         c.Style,
	}
}

// PostprocessOptions returns the file selection settings carried by cfg.
func (c Config) PostprocessOptions() postprocess.Options {
	return postprocess.Options{
		Include: c.Include,
		Exclude: c.Exclude,
		DryRun:  c.DryRun,
	}
}
