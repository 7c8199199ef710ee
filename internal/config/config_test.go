package config

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/pflag"
)

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EMDASH_ROOT", "site")
	t.Setenv("EMDASH_MARKER_CLASS", "diagram")
	t.Setenv("EMDASH_EXCLUDE", "vendor/**, drafts/** ,")
	t.Setenv("EMDASH_DRY_RUN", "true")
	t.Setenv("EMDASH_DARK", "not-a-bool")
	t.Setenv("EMDASH_STYLE", "   ")

	cfg := Default()
	ApplyEnvOverrides(&cfg)

	if cfg.RootDir != "site" || cfg.MarkerClass != "diagram" || !cfg.DryRun {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if want := []string{"vendor/**", "drafts/**"}; !reflect.DeepEqual(cfg.Exclude, want) {
		t.Fatalf("exclude = %v, want %v", cfg.Exclude, want)
	}
	if !cfg.DarkModeFirst {
		t.Fatalf("invalid bool should keep the default")
	}
	if cfg.Style != Default().Style {
		t.Fatalf("blank value should keep the default, got %q", cfg.Style)
	}
}

func TestFlagsOverrideDefaults(t *testing.T) {
	t.Parallel()
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, &cfg)
	RegisterPromoteFlags(fs, &cfg)
	RegisterExportFlags(fs, &cfg)

	args := []string{
		"-r", "public",
		"--include", "**.xhtml",
		"--include", "raw/*.html",
		"--language-class", "lang-mmd",
		"--watch",
		"--mermaid-src", "vendor/mermaid.js",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Finalize(&cfg); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if !filepath.IsAbs(cfg.RootDir) || filepath.Base(cfg.RootDir) != "public" {
		t.Fatalf("root not resolved: %s", cfg.RootDir)
	}
	if want := []string{"**.xhtml", "raw/*.html"}; !reflect.DeepEqual(cfg.Include, want) {
		t.Fatalf("include = %v, want %v", cfg.Include, want)
	}
	opts := cfg.PromoteOptions()
	if opts.LanguageClass != "lang-mmd" || opts.MarkerClass != "mermaid" {
		t.Fatalf("unexpected promote options: %+v", opts)
	}
	if !cfg.Watch || cfg.MermaidSrc != "vendor/mermaid.js" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestFinalizeRejectsMultiTokenClass(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.MarkerClass = "mermaid extra"
	if err := Finalize(&cfg); err == nil {
		t.Fatalf("expected error for class with whitespace")
	}
}

func TestFinalizeRestoresDefaultInclude(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Include = []string{" ", ""}
	if err := Finalize(&cfg); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(cfg.Include) != 2 || cfg.Include[0] != "**.html" {
		t.Fatalf("expected default include, got %v", cfg.Include)
	}
	if cfg.PostprocessOptions().DryRun {
		t.Fatalf("dry run should default to false")
	}
}
