package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/stephenafamo/goldmark-pdf"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// ErrUnsupportedFormat is returned for export formats other than ValidFormats.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format represents an export format.
type Format string

const (
	// FormatHTML exports a standalone HTML document.
	FormatHTML Format = "html"
	// FormatMarkdown exports the markdown source unchanged.
	FormatMarkdown Format = "markdown"
	// FormatPlainText exports the rendered text content.
	FormatPlainText Format = "txt"
	// FormatPDF exports as PDF.
	FormatPDF Format = "pdf"
)

// ValidFormats returns the list of supported export formats.
func ValidFormats() []Format {
	return []Format{FormatHTML, FormatMarkdown, FormatPlainText, FormatPDF}
}

// ParseFormat normalizes a user-supplied format name. "md" and "text" are
// accepted as aliases.
func ParseFormat(raw string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case "md":
		return FormatMarkdown, nil
	case "text":
		return FormatPlainText, nil
	}
	for _, valid := range ValidFormats() {
		if f == valid {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q (allowed: html, pdf, markdown, txt)", ErrUnsupportedFormat, raw)
}

// ExportPageOptions configures a single page export.
type ExportPageOptions struct {
	Writer  io.Writer
	Format  Format
	RootDir string
	Path    string
}

// ExportPage exports a single page in the specified format.
func (e *Exporter) ExportPage(ctx context.Context, opts ExportPageOptions) error {
	format, err := validateExportPageOptions(opts)
	if err != nil {
		return err
	}
	opts.Format = format

	rootDir, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	absPath, err := resolveExportPath(rootDir, opts.Path)
	if err != nil {
		return err
	}
	info, raw, err := readSource(absPath, opts.Path)
	if err != nil {
		return err
	}

	switch opts.Format {
	case FormatMarkdown:
		_, err := opts.Writer.Write(raw)
		return err
	case FormatPDF:
		return e.exportPDF(ctx, raw, opts.Writer)
	}

	doc, err := e.renderer.Render(ctx, absPath, info.ModTime(), raw)
	if err != nil {
		return fmt.Errorf("render %s: %w", opts.Path, err)
	}
	if opts.Format == FormatPlainText {
		_, err := io.WriteString(opts.Writer, textContent(doc.HTML))
		return err
	}

	data := struct {
		Title        string
		HTML         template.HTML
		MermaidSrc   string
		DiagramClass string
		Diagrams     int
	}{
		Title:        doc.Metadata.Title,
		HTML:         template.HTML(doc.HTML), //nolint:gosec // HTML from trusted renderer
		MermaidSrc:   e.mermaidSrc,
		DiagramClass: e.diagramClass,
		Diagrams:     doc.Diagrams,
	}
	return e.templates.render(opts.Writer, "standalone", data)
}

func validateExportPageOptions(opts ExportPageOptions) (Format, error) {
	if strings.TrimSpace(opts.RootDir) == "" {
		return "", errors.New("root directory is required")
	}
	if strings.TrimSpace(opts.Path) == "" {
		return "", errors.New("page path is required")
	}
	if opts.Writer == nil {
		return "", errors.New("writer is required")
	}
	return ParseFormat(string(opts.Format))
}

func resolveExportPath(rootDir, pagePath string) (string, error) {
	cleanPath := filepath.Clean(filepath.FromSlash(pagePath))
	if filepath.IsAbs(cleanPath) || cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return "", errors.New("invalid path: directory traversal not allowed")
	}

	absPath, err := filepath.Abs(filepath.Join(rootDir, cleanPath))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !strings.HasPrefix(absPath, rootDir+string(filepath.Separator)) {
		return "", errors.New("invalid path: must be within root directory")
	}
	return absPath, nil
}

func (e *Exporter) exportPDF(ctx context.Context, raw []byte, w io.Writer) error {
	encoded, err := e.diagrams.encode(ctx, raw)
	if err != nil {
		return fmt.Errorf("encode diagrams: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			meta.Meta,
			highlighting.NewHighlighting(
				highlighting.WithStyle("monokai"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRenderer(pdf.New()),
	)

	// The PDF writer needs the whole document before it can emit anything.
	var buf bytes.Buffer
	if err := md.Convert(encoded, &buf); err != nil {
		return fmt.Errorf("convert markdown to PDF: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// textContent extracts the readable text of an HTML fragment.
func textContent(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()
	doc.Find("h1 a, h2 a, h3 a, h4 a, h5 a, h6 a").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == "¶"
	}).Remove()
	text := blankRuns.ReplaceAllString(doc.Text(), "\n\n")
	return strings.TrimSpace(text)
}

// FileExtension returns the file extension for the given format.
func FileExtension(format Format) string {
	switch format {
	case FormatHTML:
		return ".html"
	case FormatMarkdown:
		return ".md"
	case FormatPlainText:
		return ".txt"
	case FormatPDF:
		return ".pdf"
	default:
		return ""
	}
}
