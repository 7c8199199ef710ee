// Package main provides the emdash static site and single page export CLI.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/euforicio/emdash/internal/buildinfo"
	"github.com/euforicio/emdash/internal/config"
	"github.com/euforicio/emdash/internal/exporter"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("load configuration", slog.Any("err", err))
		os.Exit(1)
	}

	flags := pflag.NewFlagSet("emdash-export", pflag.ExitOnError)
	config.RegisterFlags(flags, &cfg)
	config.RegisterExportFlags(flags, &cfg)

	includeHidden := flags.Bool("hidden", false, "include hidden files when scanning the content tree")
	title := flags.String("title", "emdash", "site title to use for exported pages")
	searchIndex := flags.Bool("search-index", false, "generate a simple JSON search index alongside the export")
	clean := flags.Bool("clean", true, "wipe the output directory before exporting")
	assetPrefix := flags.String("asset-prefix", "assets", "relative directory name for copied assets within the export output")
	baseURL := flags.String("base-url", "", "optional absolute base URL for canonical link tags")
	noD2 := flags.Bool("no-d2", false, "keep d2 fences as code instead of rendering them")
	page := flags.String("page", "", "export a single page (relative to root) instead of the whole site")
	format := flags.String("format", string(exporter.FormatHTML), "single page format: html, markdown, txt, pdf")
	output := flags.StringP("output", "o", "", "single page destination file (- for stdout; default <page>.<ext> in --out)")
	versionFlag := flags.Bool("version", false, "Print version information and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("flag parsing failed", slog.Any("err", err))
		os.Exit(1)
	}
	if *versionFlag {
		fmt.Println(buildinfo.Summary())
		os.Exit(0)
	}
	if err := config.Finalize(&cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logLevel := slog.LevelWarn
	if cfg.Verbose {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	logger = logger.With("app", "emdash-export")
	slog.SetDefault(logger)
	logger.Info("starting emdash-export", slog.String("version", buildinfo.Summary()))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	exp, err := exporter.New(logger, exporter.Config{
		Promote:    cfg.PromoteOptions(),
		MermaidSrc: cfg.MermaidSrc,
		DisableD2:  *noD2,
	})
	if err != nil {
		logger.Error("init exporter failed", slog.Any("err", err))
		cancel()
		//nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
		os.Exit(1)
	}

	if strings.TrimSpace(*page) != "" {
		if err := exportPage(ctx, exp, cfg, *page, *format, *output); err != nil {
			logger.Error("page export failed", slog.Any("err", err))
			cancel()
			os.Exit(1)
		}
		return
	}

	if err := exp.Export(ctx, exporter.Options{
		Root:                cfg.RootDir,
		OutputDir:           cfg.StaticOutput,
		AssetsDir:           cfg.AssetsDir,
		IncludeHidden:       *includeHidden,
		SiteTitle:           *title,
		DarkModeFirst:       cfg.DarkModeFirst,
		GenerateSearchIndex: *searchIndex,
		CleanOutput:         *clean,
		AssetPrefix:         *assetPrefix,
		BaseURL:             *baseURL,
	}); err != nil {
		logger.Error("export failed", slog.Any("err", err))
		cancel()
		os.Exit(1)
	}

	logger.Info("export succeeded", slog.String("output", cfg.StaticOutput))
}

func exportPage(ctx context.Context, exp *exporter.Exporter, cfg config.Config, page, rawFormat, output string) error {
	format, err := exporter.ParseFormat(rawFormat)
	if err != nil {
		return err
	}

	opts := exporter.ExportPageOptions{
		Format:  format,
		RootDir: cfg.RootDir,
		Path:    page,
	}
	if output == "-" {
		w := bufio.NewWriter(os.Stdout)
		opts.Writer = w
		if err := exp.ExportPage(ctx, opts); err != nil {
			return err
		}
		return w.Flush()
	}

	if output == "" {
		name := strings.TrimSuffix(filepath.Base(page), filepath.Ext(page)) + exporter.FileExtension(format)
		output = filepath.Join(cfg.StaticOutput, name)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil { //nolint:gosec // standard directory permissions
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(output) //nolint:gosec // path chosen by the operator
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	opts.Writer = f
	if err := exp.ExportPage(ctx, opts); err != nil {
		_ = f.Close()
		_ = os.Remove(output)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", output, err)
	}
	slog.Info("page exported", slog.String("output", output), slog.String("format", string(format)))
	return nil
}
