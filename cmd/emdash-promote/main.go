// Package main provides the emdash-promote entrypoint, which rewrites
// mermaid code blocks in generated HTML into diagram containers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rodaine/table"
	"github.com/spf13/pflag"

	"github.com/euforicio/emdash/internal/buildinfo"
	"github.com/euforicio/emdash/internal/config"
	"github.com/euforicio/emdash/internal/postprocess"
	"github.com/euforicio/emdash/internal/promote"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("load configuration", slog.Any("err", err))
		os.Exit(1)
	}

	flags := pflag.NewFlagSet("emdash-promote", pflag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: emdash-promote [flags] [file ... | -]\n\n")
		flags.PrintDefaults()
	}
	config.RegisterFlags(flags, &cfg)
	config.RegisterPromoteFlags(flags, &cfg)
	summaryFlag := flags.Bool("summary", false, "print a per-file table of promoted blocks")
	versionFlag := flags.Bool("version", false, "Print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("parse flags", slog.Any("err", err))
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
	// Logs go to stderr so stdin mode can stream the document to stdout.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger = logger.With("app", "emdash-promote")
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	promoter := promote.New(cfg.PromoteOptions(), logger)

	args := flags.Args()
	if len(args) == 1 && args[0] == "-" {
		if err := promoteStream(promoter, os.Stdin, os.Stdout); err != nil {
			logger.Error("promote stdin", slog.Any("err", err))
			cancel()
			//nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
			os.Exit(1)
		}
		return
	}

	proc, err := postprocess.New(promoter, cfg.PostprocessOptions(), logger)
	if err != nil {
		logger.Error("init processor failed", slog.Any("err", err))
		cancel()
		os.Exit(1)
	}

	summary, err := runOnce(ctx, proc, cfg.RootDir, args)
	if err != nil {
		logger.Error("promotion failed", slog.Any("err", err))
		cancel()
		os.Exit(1)
	}
	if *summaryFlag {
		printSummary(os.Stdout, summary, cfg.DryRun)
	}

	if !cfg.Watch {
		return
	}
	if len(args) > 0 {
		logger.Warn("--watch ignores explicit files and watches the root", slog.String("root", cfg.RootDir))
	}
	err = proc.Watch(ctx, cfg.RootDir, func(res postprocess.FileResult) {
		if res.Written {
			logger.Info("promoted", slog.String("path", res.Path), slog.Int("diagrams", res.Report.Promoted))
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("watch failed", slog.Any("err", err))
		cancel()
		os.Exit(1)
	}
}

// runOnce processes the named files, or the whole root when none are given.
func runOnce(ctx context.Context, proc *postprocess.Processor, root string, files []string) (postprocess.Summary, error) {
	if len(files) == 0 {
		return proc.Run(ctx, root)
	}
	var summary postprocess.Summary
	for _, path := range files {
		res, err := proc.File(ctx, path)
		if err != nil {
			return summary, err
		}
		summary.Add(res)
	}
	return summary, nil
}

func promoteStream(p *promote.Promoter, r io.Reader, w io.Writer) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	out, _, err := p.RewriteDocument(src)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func printSummary(w io.Writer, summary postprocess.Summary, dryRun bool) {
	tbl := table.New("File", "Matched", "Promoted", "Skipped", "Written").WithWriter(w)
	for _, res := range summary.Files {
		if res.Report.Matched == 0 {
			continue
		}
		tbl.AddRow(res.Path, res.Report.Matched, res.Report.Promoted, res.Report.Skipped, res.Written)
	}
	tbl.Print()

	verb := "changed"
	if dryRun {
		verb = "would change"
	}
	fmt.Fprintf(w, "\n%d of %d files %s, %d diagrams promoted\n",
		summary.Changed, summary.Scanned, verb, summary.Total.Promoted)
}
