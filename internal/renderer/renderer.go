// Package renderer converts markdown to theme-ready HTML with caching, syntax
// highlighting and diagram promotion.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"go.abhg.dev/goldmark/anchor"

	"github.com/euforicio/emdash/internal/promote"
	"github.com/euforicio/emdash/internal/renderer/transform"
)

// Metadata captures optional frontmatter data rendered alongside a document.
type Metadata struct {
	Raw         map[string]any
	Title       string
	Description string
	Tags        []string
}

// IsZero reports whether the metadata carries any meaningful values.
func (m Metadata) IsZero() bool {
	if m.Title != "" || m.Description != "" || len(m.Tags) > 0 {
		return false
	}
	return len(m.Raw) == 0
}

// Document represents a rendered markdown file.
//
//nolint:govet // field order optimized for readability, not memory
type Document struct {
	HTML     string
	Metadata Metadata
	Modified time.Time
	Raw      string
	// Diagrams counts the blocks handed to the client-side diagram renderer.
	Diagrams int
}

// Options select the optional parts of the pipeline.
type Options struct {
	// Promoter, when set, rewrites diagram fences into renderer containers
	// after the markdown is converted. Without it the HTML keeps the
	// <pre><code class="language-mermaid"> shape.
	Promoter *promote.Promoter
	// D2 renders ```d2 fences server-side. Leave it unset (not a typed nil)
	// to keep them as code blocks.
	D2 transform.D2Compiler
	// DiagramLanguages lists fence languages kept away from the highlighter.
	DiagramLanguages []string
	// Style is the chroma style name. Empty means github-dark.
	Style string
}

type cacheEntry struct {
	modTime time.Time
	doc     Document
}

type cacheKey string

// Service renders markdown into HTML with caching.
// Rendered documents are cached by path and modification time.
type Service struct {
	md       goldmark.Markdown
	promoter *promote.Promoter
	logger   *slog.Logger
	cache    sync.Map // map[cacheKey]cacheEntry
}

// linkTransformer points relative .md links at the exported .html pages.
type linkTransformer struct{}

func (t *linkTransformer) Transform(node *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := n.(*ast.Link); ok {
			link.Destination = []byte(htmlLink(string(link.Destination)))
		}
		return ast.WalkContinue, nil
	})
}

// htmlLink rewrites "guide/setup.md#install" to "guide/setup.html#install".
// External, absolute and non-markdown destinations are returned unchanged.
func htmlLink(dest string) string {
	if dest == "" || strings.HasPrefix(dest, "#") || strings.Contains(dest, "://") || strings.HasPrefix(dest, "/") {
		return dest
	}
	target, fragment, _ := strings.Cut(dest, "#")
	ext := path.Ext(target)
	if ext != ".md" && ext != ".markdown" {
		return dest
	}
	out := strings.TrimSuffix(target, ext) + ".html"
	if fragment != "" {
		out += "#" + fragment
	}
	return out
}

// NewService constructs a markdown renderer with GitHub-flavored markdown support.
// The renderer includes:
//   - GitHub-flavored markdown extensions (tables, strikethrough, task lists, autolinks, etc.)
//   - Syntax highlighting with chroma classes (github-dark unless opts.Style says otherwise)
//   - YAML frontmatter parsing for document metadata
//   - :doc: role rewriting and .md to .html link rewriting
//   - Diagram fences emitted unhighlighted, then promoted when opts.Promoter is set
//   - Server-side D2 rendering when opts.D2 is set
//
// If logger is nil, the default slog logger is used.
func NewService(logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "renderer")

	style := opts.Style
	if style == "" {
		style = "github-dark"
	}

	highlight := highlighting.NewHighlighting(
		highlighting.WithStyle(style),
		highlighting.WithFormatOptions(
			html.WithLineNumbers(false),
			html.WithClasses(true),
		),
	)

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			goldmarkmeta.Meta,
			highlight,
			&anchor.Extender{
				Position: anchor.After,
			},
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithAttribute(),
			parser.WithASTTransformers(
				util.Prioritized(&linkTransformer{}, 100),
				util.Prioritized(transform.NewDocRoleTransformer(), 150),
				util.Prioritized(transform.NewDiagramTransformer(opts.DiagramLanguages...), 200),
				util.Prioritized(transform.NewD2Transformer(opts.D2, logger), 210),
			),
		),
		goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(
				util.Prioritized(transform.NewDiagramFenceRenderer(), 100),
				util.Prioritized(transform.NewD2BlockRenderer(), 100),
			),
			// Theme content is authored by the site owner.
			htmlrenderer.WithUnsafe(),
			htmlrenderer.WithXHTML(),
		),
	)

	return &Service{
		md:       md,
		promoter: opts.Promoter,
		logger:   logger,
	}
}

// Render converts markdown content to HTML, caching results by path and modification time.
// If a cached entry exists with a matching modification time, it is returned immediately.
func (s *Service) Render(ctx context.Context, path string, modTime time.Time, content []byte) (Document, error) {
	key := cacheKey(path)

	if entry, ok := s.cache.Load(key); ok {
		if cached, ok := entry.(cacheEntry); ok {
			if !cached.modTime.IsZero() && modTime.Equal(cached.modTime) {
				return cached.doc, nil
			}
		}
	}

	parserCtx := parser.NewContext()
	transform.WithContext(parserCtx, ctx)

	buf := bytes.NewBuffer(nil)
	if err := s.md.Convert(content, buf, parser.WithContext(parserCtx)); err != nil {
		return Document{}, fmt.Errorf("render markdown: %w", err)
	}

	out := buf.Bytes()
	var diagrams int
	if s.promoter != nil {
		promoted, report, err := s.promoter.RewriteFragment(out)
		if err != nil {
			return Document{}, fmt.Errorf("promote diagrams in %s: %w", path, err)
		}
		if report.Skipped > 0 {
			s.logger.Warn("diagram blocks skipped", slog.String("path", path), slog.Int("skipped", report.Skipped))
		}
		out = promoted
		diagrams = report.Promoted
	}

	doc := Document{
		HTML:     string(out),
		Metadata: extractMetadata(parserCtx),
		Modified: modTime,
		Raw:      string(content),
		Diagrams: diagrams,
	}

	s.cache.Store(key, cacheEntry{modTime: modTime, doc: doc})
	return doc, nil
}

// Invalidate removes the cached entry for the given path.
func (s *Service) Invalidate(path string) {
	s.cache.Delete(cacheKey(path))
}

func extractMetadata(ctx parser.Context) Metadata {
	raw := goldmarkmeta.Get(ctx)
	var meta Metadata
	if raw == nil {
		return meta
	}

	meta.Raw = make(map[string]any)
	for k, v := range raw {
		meta.Raw[k] = v
		switch k {
		case "title":
			if str, ok := toString(v); ok {
				meta.Title = str
			}
		case "description", "summary":
			if str, ok := toString(v); ok {
				meta.Description = str
			}
		case "tags", "keywords":
			meta.Tags = toStringSlice(v)
		}
	}

	if len(meta.Raw) == 0 {
		meta.Raw = nil
	}

	return meta
}

func toString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	default:
		return "", false
	}
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if str, ok := toString(item); ok {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return append([]string(nil), vv...)
	default:
		if str, ok := toString(v); ok {
			return []string{str}
		}
		return nil
	}
}
