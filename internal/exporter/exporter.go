// Package exporter generates static HTML sites, and single pages in several
// formats, from markdown content trees.
package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/euforicio/emdash/internal/promote"
	"github.com/euforicio/emdash/internal/renderer"
	"github.com/euforicio/emdash/internal/renderer/d2"
	"github.com/euforicio/emdash/internal/tree"
	"github.com/euforicio/emdash/static"
)

const indexHTML = "index.html"

// DefaultMermaidSrc is the browser bundle loaded by pages that carry diagrams.
const DefaultMermaidSrc = "https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.min.js"

// Config selects the rendering pipeline shared by site and page exports.
type Config struct {
	Promote promote.Options
	// MermaidSrc is the script URL for the mermaid bundle. Relative values
	// are resolved against the asset prefix. Empty means DefaultMermaidSrc.
	MermaidSrc string
	// DisableD2 keeps ```d2 fences as code blocks instead of inline SVG.
	DisableD2 bool
	// Style is the chroma style name used by the highlighter.
	Style string
}

// Options configure the static export behavior.
type Options struct {
	Root                string
	OutputDir           string
	AssetsDir           string
	SiteTitle           string
	AssetPrefix         string
	BaseURL             string
	IncludeHidden       bool
	DarkModeFirst       bool
	GenerateSearchIndex bool
	CleanOutput         bool
}

// Exporter renders markdown content into static HTML bundles and single pages.
type Exporter struct {
	renderer   *renderer.Service
	templates  *templateRenderer
	diagrams   *diagramEncoder
	mermaidSrc string
	logger     *slog.Logger

	// diagramClass is the marker class the bootstrap script looks for.
	diagramClass string
}

// New constructs an exporter instance ready for use.
func New(logger *slog.Logger, cfg Config) (*Exporter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := newTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	promoter := promote.New(cfg.Promote, logger)
	ropts := renderer.Options{
		Promoter: promoter,
		Style:    cfg.Style,
	}
	if !cfg.DisableD2 {
		ropts.D2 = d2.New(logger, nil)
	}

	mermaidSrc := strings.TrimSpace(cfg.MermaidSrc)
	if mermaidSrc == "" {
		mermaidSrc = DefaultMermaidSrc
	}

	return &Exporter{
		renderer:     renderer.NewService(logger, ropts),
		templates:    tmpl,
		diagrams:     newDiagramEncoder(logger),
		mermaidSrc:   mermaidSrc,
		diagramClass: promoter.Options().MarkerClass,
		logger:       logger.With("component", "exporter"),
	}, nil
}

// Export walks the markdown tree rooted at opts.Root and writes a static site to opts.OutputDir.
//
//nolint:gocognit,gocyclo // export orchestration requires sequential steps and validation
func (e *Exporter) Export(ctx context.Context, opts Options) error {
	if strings.TrimSpace(opts.Root) == "" {
		return errors.New("root directory is required")
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		return errors.New("output directory is required")
	}
	opts.AssetPrefix = strings.Trim(strings.TrimSpace(opts.AssetPrefix), "/")
	if opts.AssetPrefix == "" {
		opts.AssetPrefix = "assets"
	}
	if strings.TrimSpace(opts.SiteTitle) == "" {
		opts.SiteTitle = "emdash"
	}

	rootDir, err := filepath.Abs(opts.Root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	outputDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return fmt.Errorf("resolve output: %w", err)
	}
	if outputDir == rootDir {
		return errors.New("output directory must differ from the root directory")
	}
	assetsDir := strings.TrimSpace(opts.AssetsDir)
	if assetsDir != "" {
		if assetsDir, err = filepath.Abs(assetsDir); err != nil {
			return fmt.Errorf("resolve assets: %w", err)
		}
	}

	if err := prepareOutputDir(outputDir, opts.CleanOutput); err != nil {
		return err
	}

	generatedAt := time.Now().UTC()

	treeRoot, err := tree.Build(ctx, rootDir, tree.Options{
		IncludeHidden: opts.IncludeHidden,
		ExcludeDirs:   excludedOutput(rootDir, outputDir),
		Renderer:      e.renderer,
	})
	if err != nil {
		return fmt.Errorf("build content tree: %w", err)
	}
	docs := treeRoot.Documents()

	site := siteViewData{
		Title:         opts.SiteTitle,
		GeneratedAt:   generatedAt,
		Tree:          treeRoot,
		DarkModeFirst: opts.DarkModeFirst,
		BaseURL:       strings.TrimRight(opts.BaseURL, "/"),
		DiagramClass:  e.diagramClass,
	}
	treePayload := struct {
		GeneratedAt time.Time  `json:"generatedAt"`
		Root        *tree.Node `json:"root"`
	}{
		GeneratedAt: generatedAt,
		Root:        treeRoot,
	}

	assetDest := filepath.Join(outputDir, filepath.FromSlash(opts.AssetPrefix))
	if err := e.copyAssetBundle(assetDest, assetsDir); err != nil {
		return err
	}

	var (
		landing     *layoutViewData
		searchIndex []searchEntry
		diagrams    int
	)

	for _, node := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}

		absPath := filepath.Join(rootDir, filepath.FromSlash(node.RelativePath))
		info, raw, err := readSource(absPath, node.RelativePath)
		if err != nil {
			return err
		}

		doc, err := e.renderer.Render(ctx, node.RelativePath, info.ModTime(), raw)
		if err != nil {
			return fmt.Errorf("render %s: %w", node.RelativePath, err)
		}
		diagrams += doc.Diagrams

		page := pageViewData{
			Path:        node.RelativePath,
			Output:      node.Output,
			Title:       firstNonEmpty(doc.Metadata.Title, node.Title, titleFromPath(node.RelativePath)),
			HTML:        template.HTML(doc.HTML), //nolint:gosec // HTML from trusted renderer
			Metadata:    doc.Metadata,
			Modified:    doc.Modified,
			Breadcrumbs: breadcrumbsFor(treeRoot, node.RelativePath),
			Diagrams:    doc.Diagrams,
			Canonical:   canonicalURL(site.BaseURL, node.Output),
		}
		layout := layoutViewData{
			Site:   site,
			Page:   page,
			Active: node.RelativePath,
			Assets: e.assetRefs(opts.AssetPrefix, page.Output),
		}
		if err := e.writePage(outputDir, page.Output, layout); err != nil {
			return fmt.Errorf("write page %s: %w", node.RelativePath, err)
		}

		if landing == nil || page.Output == indexHTML {
			current := layout
			landing = &current
		}

		if opts.GenerateSearchIndex {
			searchIndex = append(searchIndex, searchEntry{
				Path:     page.Output,
				Source:   node.RelativePath,
				Title:    page.Title,
				Summary:  doc.Metadata.Description,
				Modified: doc.Modified,
				Text:     textContent(doc.HTML),
			})
		}
	}

	switch {
	case landing == nil:
		welcome := layoutViewData{
			Site:   site,
			Assets: e.assetRefs(opts.AssetPrefix, indexHTML),
		}
		welcome.Page.Title = site.Title
		welcome.Page.Output = indexHTML
		welcome.Page.HTML = `<div class="emdash-empty">No markdown documents were found in the export root. Add <code>.md</code> files under the root directory and rerun <code>emdash-export</code>.</div>`
		if err := e.writePage(outputDir, indexHTML, welcome); err != nil {
			return fmt.Errorf("write welcome page: %w", err)
		}
	case landing.Page.Output != indexHTML:
		// Nav and asset links are recomputed for the site root.
		page := landing.Page
		page.Output = indexHTML
		page.Breadcrumbs = nil
		index := layoutViewData{
			Site:   site,
			Page:   page,
			Active: landing.Active,
			Assets: e.assetRefs(opts.AssetPrefix, indexHTML),
		}
		if err := e.writePage(outputDir, indexHTML, index); err != nil {
			return fmt.Errorf("write landing page: %w", err)
		}
	}

	if err := writeJSON(filepath.Join(outputDir, "tree.json"), treePayload); err != nil {
		return err
	}
	if opts.GenerateSearchIndex {
		payload := struct {
			GeneratedAt time.Time     `json:"generatedAt"`
			Entries     []searchEntry `json:"entries"`
		}{
			GeneratedAt: generatedAt,
			Entries:     searchIndex,
		}
		if err := writeJSON(filepath.Join(outputDir, "search.json"), payload); err != nil {
			return err
		}
	}

	e.logger.Info("export complete",
		slog.Int("documents", len(docs)),
		slog.Int("diagrams", diagrams),
		slog.String("output", outputDir),
		slog.Duration("duration", time.Since(generatedAt)))

	return nil
}

// excludedOutput keeps an output directory nested in the root out of the tree.
func excludedOutput(rootDir, outputDir string) []string {
	rel, err := filepath.Rel(rootDir, outputDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil
	}
	return []string{strings.Split(filepath.ToSlash(rel), "/")[0]}
}

func prepareOutputDir(output string, clean bool) error {
	if clean {
		if err := os.RemoveAll(output); err != nil {
			return fmt.Errorf("clean output: %w", err)
		}
	}
	if err := os.MkdirAll(output, 0o755); err != nil { //nolint:gosec // standard directory permissions
		return fmt.Errorf("create output: %w", err)
	}
	return nil
}

func (e *Exporter) writePage(root, rel string, data layoutViewData) error {
	dest := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil { //nolint:gosec // standard directory permissions
		return err
	}
	var buf bytes.Buffer
	if err := e.templates.render(&buf, "layout", data); err != nil {
		return err
	}
	return os.WriteFile(dest, buf.Bytes(), 0o644) //nolint:gosec // standard file permissions
}

func (e *Exporter) copyAssetBundle(dest, override string) error {
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("reset assets dir: %w", err)
	}
	if err := static.CopyAll(dest); err != nil {
		return fmt.Errorf("copy embedded assets: %w", err)
	}
	if override == "" {
		return nil
	}

	info, err := os.Stat(override)
	switch {
	case errors.Is(err, os.ErrNotExist):
		e.logger.Warn("assets override not found", slog.String("source", override))
		return nil
	case err != nil:
		return fmt.Errorf("stat assets override: %w", err)
	case !info.IsDir():
		return fmt.Errorf("assets path %s is not a directory", override)
	}
	// Files from the override replace embedded ones of the same name.
	shadowed, err := shadowedAssets(override)
	if err != nil {
		return fmt.Errorf("scan assets override: %w", err)
	}
	for _, name := range shadowed {
		e.logger.Info("override replaces bundled asset", slog.String("asset", name))
	}
	if err := copyAssets(override, dest); err != nil {
		return fmt.Errorf("copy override assets: %w", err)
	}
	e.logger.Debug("exporter using override assets", slog.String("source", override))
	return nil
}

// shadowedAssets lists the override files, slash separated, that replace a
// bundled asset.
func shadowedAssets(override string) ([]string, error) {
	var shadowed []string
	err := filepath.WalkDir(override, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(override, p)
		if err != nil {
			return err
		}
		if rel = filepath.ToSlash(rel); static.Has(rel) {
			shadowed = append(shadowed, rel)
		}
		return nil
	})
	return shadowed, err
}

func (e *Exporter) assetRefs(prefix, from string) assetRefs {
	local := func(parts ...string) string {
		return relativeURL(from, path.Join(append([]string{prefix}, parts...)...))
	}
	mermaid := e.mermaidSrc
	if !strings.Contains(mermaid, "://") && !strings.HasPrefix(mermaid, "//") {
		mermaid = local(mermaid)
	}
	return assetRefs{
		CSSTheme:  local("css", "theme.css"),
		CSSChroma: local("css", "chroma.css"),
		JSTheme:   local("js", "emdash.js"),
		JSMermaid: mermaid,
	}
}

func readSource(absPath, rel string) (fs.FileInfo, []byte, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("page not found: %s", rel)
		}
		return nil, nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	raw, err := os.ReadFile(absPath) //nolint:gosec // absPath constructed from validated root
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return info, raw, nil
}

func canonicalURL(base, output string) string {
	if base == "" {
		return ""
	}
	if output == indexHTML {
		return base
	}
	return base + "/" + output
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func titleFromPath(rel string) string {
	base := path.Base(rel)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")
	parts := strings.Split(base, "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
	}
	return strings.Join(parts, " ")
}

type breadcrumb struct {
	Title string
	URL   string
}

// breadcrumbsFor lists the ancestors of target below the root. Directories
// and the page itself carry no link.
func breadcrumbsFor(root *tree.Node, target string) []breadcrumb {
	nodes := root.PathTo(target)
	if len(nodes) <= 1 {
		return nil
	}
	nodes = nodes[1:]
	out := make([]breadcrumb, 0, len(nodes))
	for i, node := range nodes {
		crumb := breadcrumb{Title: firstNonEmpty(node.Title, titleFromPath(node.RelativePath))}
		if node.Type == tree.NodeTypeFile && i != len(nodes)-1 {
			crumb.URL = node.Output
		}
		out = append(out, crumb)
	}
	return out
}

func copyAssets(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755) //nolint:gosec // standard directory permissions
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil { //nolint:gosec // standard directory permissions
			return err
		}
		data, err := os.ReadFile(p) //nolint:gosec // path from validated source directory
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644) //nolint:gosec // standard file permissions
	})
}

func writeJSON(dest string, payload any) error {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(dest), err)
	}
	if err := os.WriteFile(dest, raw, 0o644); err != nil { //nolint:gosec // standard file permissions
		return fmt.Errorf("write %s: %w", filepath.Base(dest), err)
	}
	return nil
}

type searchEntry struct {
	Path     string    `json:"path"`
	Source   string    `json:"source"`
	Title    string    `json:"title"`
	Summary  string    `json:"summary,omitempty"`
	Modified time.Time `json:"modified"`
	Text     string    `json:"text"`
}

//nolint:govet // field order optimized for readability, not memory
type layoutViewData struct {
	Page   pageViewData
	Site   siteViewData
	Assets assetRefs
	Active string
}

type siteViewData struct {
	GeneratedAt   time.Time
	Tree          *tree.Node
	Title         string
	BaseURL       string
	DiagramClass  string
	DarkModeFirst bool
}

type pageViewData struct {
	Metadata    renderer.Metadata
	Modified    time.Time
	Path        string
	Output      string
	Title       string
	HTML        template.HTML
	Canonical   string
	Breadcrumbs []breadcrumb
	Diagrams    int
}

type assetRefs struct {
	CSSTheme  string
	CSSChroma string
	JSTheme   string
	JSMermaid string
}
