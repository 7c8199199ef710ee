package transform

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	d2renderer "github.com/euforicio/emdash/internal/renderer/d2"
)

const d2Language = "d2"

// D2Compiler compiles D2 source into SVG. *d2renderer.Renderer satisfies it.
type D2Compiler interface {
	Render(ctx context.Context, source string) (d2renderer.Result, error)
}

// D2Transformer finds fenced ```d2 blocks and replaces them with rendered nodes.
type D2Transformer struct {
	compiler D2Compiler
	logger   *slog.Logger
}

// NewD2Transformer constructs an AST transformer. If compiler is nil the
// transformer becomes a no-op and d2 fences stay ordinary code blocks.
func NewD2Transformer(compiler D2Compiler, logger *slog.Logger) parser.ASTTransformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &D2Transformer{
		compiler: compiler,
		logger:   logger,
	}
}

// Transform implements parser.ASTTransformer.
func (t *D2Transformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	if t.compiler == nil || node == nil {
		return
	}
	ctx := contextFrom(pc)
	replaceFences(node, reader.Source(), isD2, func(block *ast.FencedCodeBlock, _ string) ast.Node {
		return t.renderBlock(ctx, blockSource(block, reader))
	})
}

func (t *D2Transformer) renderBlock(ctx context.Context, source string) *D2Block {
	result, err := t.compiler.Render(ctx, source)
	if err != nil {
		t.logger.Warn("d2: render failed", slog.Any("err", err))
		return &D2Block{
			Source: source,
			Error:  err.Error(),
		}
	}
	return &D2Block{
		Source:  source,
		SVG:     result.SVG,
		Runtime: result.Duration,
	}
}

func isD2(lang string) bool {
	return lang == d2Language
}

// D2Block is a rendered diagram placeholder included directly in the AST.
type D2Block struct {
	ast.BaseBlock
	Source  string
	SVG     string
	Error   string
	Runtime time.Duration
}

// KindD2Block represents a rendered D2 node kind.
var KindD2Block = ast.NewNodeKind("D2Block")

// Kind implements ast.Node.
func (b *D2Block) Kind() ast.NodeKind {
	return KindD2Block
}

// IsRaw marks the node as raw HTML.
func (b *D2Block) IsRaw() bool {
	return true
}

// Dump aids debugging.
func (b *D2Block) Dump(source []byte, level int) {
	info := map[string]string{
		"Source": fmt.Sprintf("%d bytes", len(b.Source)),
	}
	if b.Error != "" {
		info["Error"] = fmt.Sprintf("%q", b.Error)
	}
	if b.Runtime > 0 {
		info["Runtime"] = b.Runtime.String()
	}
	ast.DumpHelper(b, source, level, info, nil)
}

// D2BlockRenderer writes rendered nodes into HTML output.
type D2BlockRenderer struct{}

// NewD2BlockRenderer returns a renderer for D2 nodes.
func NewD2BlockRenderer() renderer.NodeRenderer {
	return &D2BlockRenderer{}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *D2BlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindD2Block, r.renderD2Block)
}

func (r *D2BlockRenderer) renderD2Block(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	block := node.(*D2Block)

	var open strings.Builder
	open.WriteString(`<div class="d2-block" style="text-align: center;"`)
	if block.Runtime > 0 {
		fmt.Fprintf(&open, ` data-runtime-ms="%d"`, block.Runtime.Milliseconds())
	}
	if block.Source != "" {
		fmt.Fprintf(&open, ` data-source-b64="%s"`, base64.StdEncoding.EncodeToString([]byte(block.Source)))
	}
	open.WriteString(">")

	body := block.SVG
	if block.Error != "" {
		body = `<div class="d2-error">` + html.EscapeString(block.Error) + `</div>`
	}

	for _, chunk := range []string{open.String(), body, "</div>\n"} {
		if _, err := w.WriteString(chunk); err != nil {
			return ast.WalkStop, err
		}
	}
	return ast.WalkSkipChildren, nil
}
