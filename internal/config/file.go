package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the keys accepted in an emdash.yaml file. Pointers tell
// an absent key from a zero value.
type fileConfig struct {
	Root          *string  `yaml:"root"`
	Out           *string  `yaml:"out"`
	Assets        *string  `yaml:"assets"`
	MermaidSrc    *string  `yaml:"mermaid_src"`
	LanguageClass *string  `yaml:"language_class"`
	MarkerClass   *string  `yaml:"marker_class"`
	Style         *string  `yaml:"style"`
	Include       []string `yaml:"include"`
	Exclude       []string `yaml:"exclude"`
	Watch         *bool    `yaml:"watch"`
	DryRun        *bool    `yaml:"dry_run"`
	Dark          *bool    `yaml:"dark"`
	Verbose       *bool    `yaml:"verbose"`
}

// LoadFile overlays the YAML file at path onto cfg. Unknown keys are an
// error so typos do not pass silently.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path chosen by the operator
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setString(&cfg.RootDir, fc.Root)
	setString(&cfg.StaticOutput, fc.Out)
	setString(&cfg.AssetsDir, fc.Assets)
	setString(&cfg.MermaidSrc, fc.MermaidSrc)
	setString(&cfg.LanguageClass, fc.LanguageClass)
	setString(&cfg.MarkerClass, fc.MarkerClass)
	setString(&cfg.Style, fc.Style)
	if len(fc.Include) > 0 {
		cfg.Include = fc.Include
	}
	if len(fc.Exclude) > 0 {
		cfg.Exclude = fc.Exclude
	}
	setBool(&cfg.Watch, fc.Watch)
	setBool(&cfg.DryRun, fc.DryRun)
	setBool(&cfg.DarkModeFirst, fc.Dark)
	setBool(&cfg.Verbose, fc.Verbose)
	return nil
}

// ConfigPath finds the config file named by --config in args, falling back
// to EMDASH_CONFIG. It runs before flag parsing so the file can sit below
// environment variables and flags in precedence.
func ConfigPath(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if v, ok := lookupNonEmpty("CONFIG"); ok {
		return v
	}
	return ""
}

// Load builds a Config from defaults, the optional config file and the
// environment, in increasing precedence. Flags are applied by the caller.
func Load(args []string) (Config, error) {
	cfg := Default()
	if path := ConfigPath(args); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	ApplyEnvOverrides(&cfg)
	return cfg, nil
}
