package transform

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

func TestDocRoleTransformer(t *testing.T) {
	t.Parallel()
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithASTTransformers(util.Prioritized(NewDocRoleTransformer(), 100)),
		),
	)
	tests := []struct {
		name, in, want string
	}{
		{"single", "See :doc:`Intro<intro.md>`.", `<p>See <a href="intro.md">Intro</a>.</p>`},
		{"two", ":doc:`A<a.md>` and :doc:`B<b/c.md>`", `<p><a href="a.md">A</a> and <a href="b/c.md">B</a></p>`},
		{"spaces in title", ":doc:`Getting started <start.md>`", `<p><a href="start.md">Getting started </a></p>`},
		{"title is escaped", ":doc:`A & B<ab.md>`", `<p><a href="ab.md">A &amp; B</a></p>`},
		{"missing target", ":doc:`Intro`", `<p>:doc:<code>Intro</code></p>`},
		{"plain code span", "Run `make<all>` first", `<p>Run <code>make&lt;all&gt;</code> first</p>`},
		{"role inside inline code", "Inline `` :doc:`A<b>` `` here", "<p>Inline <code>:doc:`A&lt;b&gt;`</code> here</p>"},
		{
			"role inside fenced code",
			"```rst\nSee :doc:`Intro<intro>` for details.\n```",
			"<pre><code class=\"language-rst\">See :doc:`Intro&lt;intro&gt;` for details.\n</code></pre>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := md.Convert([]byte(tt.in), &buf); err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if got := strings.TrimSpace(buf.String()); got != tt.want {
				t.Fatalf("Convert(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func newDiagramMarkdown(languages ...string) goldmark.Markdown {
	return goldmark.New(
		goldmark.WithParserOptions(
			parser.WithASTTransformers(util.Prioritized(NewDiagramTransformer(languages...), 100)),
		),
		goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(util.Prioritized(NewDiagramFenceRenderer(), 100)),
		),
	)
}

func TestDiagramTransformer(t *testing.T) {
	t.Parallel()
	src := "> ```mermaid\n> a<b\n> ```\n\n```MERMAID\nx\n```\n\n```python\nprint(1)\n```\n"

	var buf bytes.Buffer
	if err := newDiagramMarkdown().Convert([]byte(src), &buf); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "<blockquote>\n<pre><code class=\"language-mermaid\">a&lt;b\n</code></pre>") {
		t.Fatalf("nested fence not replaced: %s", out)
	}
	if !strings.Contains(out, "<pre><code class=\"language-mermaid\">x\n</code></pre>") {
		t.Fatalf("language match should be case-insensitive: %s", out)
	}
	if !strings.Contains(out, `<pre><code class="language-python">print(1)`) {
		t.Fatalf("other fences should render normally: %s", out)
	}
}

func TestDiagramFenceKeepsInfoAttributes(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := newDiagramMarkdown().Convert([]byte("```mermaid {#flow .wide}\nA\n```\n"), &buf); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := "<pre id=\"flow\" class=\"wide\"><code class=\"language-mermaid\">A\n</code></pre>"
	if !strings.Contains(buf.String(), want) {
		t.Fatalf("expected %s, got %s", want, buf.String())
	}
}

func TestDiagramTransformerIgnoresBlankLanguages(t *testing.T) {
	t.Parallel()
	tr := NewDiagramTransformer(" ", "").(*DiagramTransformer)
	if len(tr.languages) != 0 {
		t.Fatalf("expected no languages, got %v", tr.languages)
	}
	if !NewDiagramTransformer().(*DiagramTransformer).accepts("mermaid") {
		t.Fatalf("default transformer should accept mermaid")
	}
}

func TestContextFrom(t *testing.T) {
	t.Parallel()
	if contextFrom(nil) == nil {
		t.Fatalf("nil parser context should yield a background context")
	}

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	pc := parser.NewContext()
	WithContext(pc, ctx)
	if got := contextFrom(pc).Value(key{}); got != "v" {
		t.Fatalf("stored context not returned, got %v", got)
	}
}

func TestD2TransformerWithoutCompiler(t *testing.T) {
	t.Parallel()
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithASTTransformers(util.Prioritized(NewD2Transformer(nil, nil), 100)),
		),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte("```d2\na -> b\n```\n"), &buf); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !strings.Contains(buf.String(), `<code class="language-d2">a -&gt; b`) {
		t.Fatalf("expected plain code block, got %s", buf.String())
	}
}
