package exporter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestExporter(t *testing.T, cfg Config) *Exporter {
	t.Helper()
	exp, err := New(quietLogger(), cfg)
	if err != nil {
		t.Fatalf("failed to create exporter: %v", err)
	}
	return exp
}

func writeDoc(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

const diagramPage = "---\ntitle: Flow\n---\n\n# Flow\n\nIntro with **bold** text.\n\n```mermaid\ngraph LR; A-->B;\n```\n"

func TestExportPage(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeDoc(t, root, "flow.md", diagramPage)
	writeDoc(t, root, "plain.md", "# Plain\n\nNothing to draw.\n")

	exp := newTestExporter(t, Config{DisableD2: true, MermaidSrc: "https://cdn.example.com/mermaid.js"})
	ctx := context.Background()

	export := func(t *testing.T, path string, format Format) string {
		t.Helper()
		var buf bytes.Buffer
		err := exp.ExportPage(ctx, ExportPageOptions{RootDir: root, Path: path, Format: format, Writer: &buf})
		if err != nil {
			t.Fatalf("%s export of %s failed: %v", format, path, err)
		}
		return buf.String()
	}

	t.Run("html promotes diagrams and loads mermaid", func(t *testing.T) {
		t.Parallel()
		html := export(t, "flow.md", FormatHTML)
		if !strings.HasPrefix(html, "<!DOCTYPE html>") {
			t.Fatalf("HTML export missing DOCTYPE: %.40q", html)
		}
		if !strings.Contains(html, "<title>Flow</title>") {
			t.Fatalf("HTML export missing title")
		}
		if !strings.Contains(html, `<div class="mermaid" style="text-align: center;">graph LR; A--&gt;B;`) {
			t.Fatalf("diagram not promoted: %s", html)
		}
		if !strings.Contains(html, `<script src="https://cdn.example.com/mermaid.js"></script>`) {
			t.Fatalf("mermaid script missing: %s", html)
		}
	})

	t.Run("html without diagrams skips the script", func(t *testing.T) {
		t.Parallel()
		html := export(t, "plain.md", FormatHTML)
		if strings.Contains(html, "mermaid") {
			t.Fatalf("plain page should not load mermaid: %s", html)
		}
	})

	t.Run("markdown is the raw source", func(t *testing.T) {
		t.Parallel()
		if got := export(t, "flow.md", "md"); got != diagramPage {
			t.Fatalf("markdown export mismatch:\ngot:  %q\nwant: %q", got, diagramPage)
		}
	})

	t.Run("txt strips markup", func(t *testing.T) {
		t.Parallel()
		text := export(t, "flow.md", FormatPlainText)
		if !strings.HasPrefix(text, "Flow") || !strings.Contains(text, "Intro with bold text.") {
			t.Fatalf("unexpected text export: %q", text)
		}
		if strings.ContainsAny(text, "<¶") {
			t.Fatalf("text export carries markup: %q", text)
		}
	})

	t.Run("pdf", func(t *testing.T) {
		t.Parallel()
		out := export(t, "plain.md", FormatPDF)
		if !strings.HasPrefix(out, "%PDF-") {
			t.Fatalf("PDF export did not return valid PDF (got %.20q)", out)
		}
	})
}

func TestExportPageValidation(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeDoc(t, root, "page.md", "# Page\n")
	exp := newTestExporter(t, Config{DisableD2: true})
	ctx := context.Background()

	tests := []struct {
		name string
		opts ExportPageOptions
	}{
		{"missing root", ExportPageOptions{Path: "page.md", Format: FormatHTML, Writer: io.Discard}},
		{"missing path", ExportPageOptions{RootDir: root, Format: FormatHTML, Writer: io.Discard}},
		{"missing writer", ExportPageOptions{RootDir: root, Path: "page.md", Format: FormatHTML}},
		{"traversal", ExportPageOptions{RootDir: root, Path: "../page.md", Format: FormatHTML, Writer: io.Discard}},
		{"absolute", ExportPageOptions{RootDir: root, Path: "/etc/passwd", Format: FormatHTML, Writer: io.Discard}},
		{"missing page", ExportPageOptions{RootDir: root, Path: "nope.md", Format: FormatHTML, Writer: io.Discard}},
	}
	for _, tt := range tests {
		if err := exp.ExportPage(ctx, tt.opts); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	err := exp.ExportPage(ctx, ExportPageOptions{RootDir: root, Path: "page.md", Format: "docx", Writer: io.Discard})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	tests := map[string]Format{
		"html":     FormatHTML,
		" PDF ":    FormatPDF,
		"md":       FormatMarkdown,
		"markdown": FormatMarkdown,
		"text":     FormatPlainText,
		"txt":      FormatPlainText,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat(""); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat for empty format, got %v", err)
	}
	for _, f := range ValidFormats() {
		if FileExtension(f) == "" {
			t.Errorf("no file extension for %s", f)
		}
	}
}

func TestTextContent(t *testing.T) {
	t.Parallel()
	html := `<h2 id="x">Title <a class="anchor" href="#x">¶</a></h2><script>alert(1)</script><p>Body</p>` +
		"<p>\n\n\n\nTail</p>"
	got := textContent(html)
	if strings.Contains(got, "alert") || strings.Contains(got, "¶") {
		t.Fatalf("script or anchor survived: %q", got)
	}
	if !strings.HasPrefix(got, "Title") || !strings.Contains(got, "Body") {
		t.Fatalf("unexpected text: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Fatalf("blank runs not collapsed: %q", got)
	}
}
