package transform

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// DefaultDiagramLanguages lists fence languages that are rendered client-side.
var DefaultDiagramLanguages = []string{"mermaid"}

// DiagramTransformer keeps client-side diagram fences away from the syntax
// highlighter. Each matching fence becomes a DiagramFence node that renders as
// a bare <pre><code class="language-x"> block, the shape the promote package
// rewrites into a renderer container.
type DiagramTransformer struct {
	languages map[string]struct{}
}

// NewDiagramTransformer returns a transformer for the given fence languages.
// An empty list selects DefaultDiagramLanguages.
func NewDiagramTransformer(languages ...string) parser.ASTTransformer {
	if len(languages) == 0 {
		languages = DefaultDiagramLanguages
	}
	set := make(map[string]struct{}, len(languages))
	for _, lang := range languages {
		if lang = strings.ToLower(strings.TrimSpace(lang)); lang != "" {
			set[lang] = struct{}{}
		}
	}
	return &DiagramTransformer{languages: set}
}

// Transform implements parser.ASTTransformer.
func (t *DiagramTransformer) Transform(node *ast.Document, reader text.Reader, _ parser.Context) {
	if node == nil || len(t.languages) == 0 {
		return
	}
	replaceFences(node, reader.Source(), t.accepts, func(block *ast.FencedCodeBlock, lang string) ast.Node {
		fence := &DiagramFence{
			Language: lang,
			Source:   blockSource(block, reader),
		}
		copyAttributes(block, fence, reader.Source())
		return fence
	})
}

func (t *DiagramTransformer) accepts(lang string) bool {
	_, ok := t.languages[lang]
	return ok
}

// DiagramFence is an unhighlighted diagram code block.
type DiagramFence struct {
	ast.BaseBlock
	Language string
	Source   string
}

// KindDiagramFence is the node kind of DiagramFence.
var KindDiagramFence = ast.NewNodeKind("DiagramFence")

// Kind implements ast.Node.
func (d *DiagramFence) Kind() ast.NodeKind {
	return KindDiagramFence
}

// IsRaw implements ast.Node.
func (d *DiagramFence) IsRaw() bool {
	return true
}

// Dump implements ast.Node.
func (d *DiagramFence) Dump(source []byte, level int) {
	ast.DumpHelper(d, source, level, map[string]string{
		"Language": d.Language,
		"Source":   fmt.Sprintf("%d bytes", len(d.Source)),
	}, nil)
}

// DiagramFenceRenderer writes DiagramFence nodes.
type DiagramFenceRenderer struct{}

// NewDiagramFenceRenderer returns a renderer for DiagramFence nodes.
func NewDiagramFenceRenderer() renderer.NodeRenderer {
	return &DiagramFenceRenderer{}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *DiagramFenceRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindDiagramFence, r.render)
}

func (r *DiagramFenceRenderer) render(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	fence := node.(*DiagramFence)

	_, _ = w.WriteString("<pre")
	html.RenderAttributes(w, fence, html.GlobalAttributeFilter)
	_, _ = w.WriteString(`><code class="language-`)
	_, _ = w.Write(util.EscapeHTML([]byte(fence.Language)))
	_, _ = w.WriteString(`">`)
	_, _ = w.Write(util.EscapeHTML([]byte(fence.Source)))
	if _, err := w.WriteString("</code></pre>\n"); err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}
