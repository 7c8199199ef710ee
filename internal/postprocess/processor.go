// Package postprocess promotes diagram blocks in HTML files already written
// to disk, in one batch or continuously as a generator rewrites its output.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/euforicio/emdash/internal/promote"
)

// DefaultInclude selects every HTML page below the root.
var DefaultInclude = []string{"**.html", "**.htm"}

// Options control file selection and write behavior. Patterns are gobwas/glob
// expressions matched against slash-separated paths relative to the root;
// '*' stops at '/', '**' does not.
type Options struct {
	Include       []string
	Exclude       []string
	IncludeHidden bool
	// DryRun reports what would change without writing.
	DryRun bool
	// Debounce delays watch-mode processing until a file has been quiet for
	// this long. Zero means 150ms.
	Debounce time.Duration
}

// FileResult describes the outcome for one file.
type FileResult struct {
	Path    string
	Report  promote.Report
	Written bool
}

// Summary aggregates a batch run.
type Summary struct {
	Files   []FileResult
	Scanned int
	Changed int
	Total   promote.Report
}

// Add records one file result.
func (s *Summary) Add(res FileResult) {
	s.Scanned++
	s.Total.Add(res.Report)
	if res.Report.Changed() {
		s.Changed++
	}
	s.Files = append(s.Files, res)
}

// Processor applies a promoter to files on disk.
type Processor struct {
	promoter *promote.Promoter
	include  []glob.Glob
	exclude  []glob.Glob
	opts     Options
	logger   *slog.Logger
}

// New compiles the include and exclude patterns and returns a processor.
func New(promoter *promote.Promoter, opts Options, logger *slog.Logger) (*Processor, error) {
	if promoter == nil {
		return nil, errors.New("promoter must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.Include) == 0 {
		opts.Include = DefaultInclude
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 150 * time.Millisecond
	}

	include, err := compileAll(opts.Include)
	if err != nil {
		return nil, fmt.Errorf("include pattern: %w", err)
	}
	exclude, err := compileAll(opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude pattern: %w", err)
	}

	return &Processor{
		promoter: promoter,
		include:  include,
		exclude:  exclude,
		opts:     opts,
		logger:   logger.With("component", "postprocess"),
	}, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Matches reports whether the slash-separated relative path is selected.
func (p *Processor) Matches(rel string) bool {
	rel = filepath.ToSlash(rel)
	if !p.opts.IncludeHidden && hasHiddenSegment(rel) {
		return false
	}
	for _, g := range p.exclude {
		if g.Match(rel) {
			return false
		}
	}
	for _, g := range p.include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func hasHiddenSegment(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// Run walks root and processes every selected file in lexical order.
func (p *Processor) Run(ctx context.Context, root string) (Summary, error) {
	var summary Summary

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return summary, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return summary, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return summary, fmt.Errorf("root %s is not a directory", absRoot)
	}

	start := time.Now()
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel != "." && !p.opts.IncludeHidden && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !p.Matches(rel) {
			return nil
		}

		res, err := p.File(ctx, path)
		if err != nil {
			return err
		}
		res.Path = filepath.ToSlash(rel)
		summary.Add(res)
		return nil
	})
	if err != nil {
		return summary, err
	}

	p.logger.Info("promotion pass complete",
		slog.String("root", absRoot),
		slog.Int("scanned", summary.Scanned),
		slog.Int("changed", summary.Changed),
		slog.Int("diagrams", summary.Total.Promoted),
		slog.Duration("duration", time.Since(start)))
	return summary, nil
}

// File processes a single file. It is rewritten only when at least one block
// was promoted and the processor is not in dry-run mode.
func (p *Processor) File(ctx context.Context, path string) (FileResult, error) {
	res := FileResult{Path: path}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return res, fmt.Errorf("stat %s: %w", path, err)
	}
	src, err := os.ReadFile(path) //nolint:gosec // path selected by the caller
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}

	out, report, err := p.promoter.RewriteDocument(src)
	if err != nil {
		return res, fmt.Errorf("promote %s: %w", path, err)
	}
	res.Report = report
	if report.Skipped > 0 {
		p.logger.Warn("diagram blocks skipped", slog.String("path", path), slog.Int("skipped", report.Skipped))
	}
	if !report.Changed() || p.opts.DryRun {
		return res, nil
	}

	if err := writeFileAtomic(path, out, info.Mode().Perm()); err != nil {
		return res, fmt.Errorf("write %s: %w", path, err)
	}
	res.Written = true
	p.logger.Debug("promoted diagrams", slog.String("path", path), slog.Int("count", report.Promoted))
	return res, nil
}

func writeFileAtomic(target string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".emdash-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	keep = true
	return nil
}
