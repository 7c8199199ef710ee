// Package transform provides goldmark AST transformations for fenced diagram blocks.
package transform

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var renderContextKey = parser.NewContextKey()

// WithContext stores ctx in the parser context so transformers that call out
// to slow renderers honor the caller's deadline.
func WithContext(pc parser.Context, ctx context.Context) {
	pc.Set(renderContextKey, ctx)
}

func contextFrom(pc parser.Context) context.Context {
	if pc != nil {
		if ctx, ok := pc.Get(renderContextKey).(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// replaceFences walks the tree and swaps every fenced code block accepted by
// match for the node returned by build. Replaced blocks are not descended into.
func replaceFences(parent ast.Node, source []byte, match func(lang string) bool, build func(block *ast.FencedCodeBlock, lang string) ast.Node) {
	for child := parent.FirstChild(); child != nil; {
		next := child.NextSibling()

		if block, ok := child.(*ast.FencedCodeBlock); ok {
			if lang := fenceLanguage(block, source); match(lang) {
				replacement := build(block, lang)
				replacement.SetBlankPreviousLines(block.HasBlankPreviousLines())
				parent.ReplaceChild(parent, block, replacement)
			}
			child = next
			continue
		}

		if child.HasChildren() {
			replaceFences(child, source, match, build)
		}
		child = next
	}
}

func fenceLanguage(block *ast.FencedCodeBlock, source []byte) string {
	return strings.ToLower(strings.TrimSpace(string(block.Language(source))))
}

func blockSource(block *ast.FencedCodeBlock, reader text.Reader) string {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buf.Write(segment.Value(reader.Source()))
	}
	return buf.String()
}

// copyAttributes moves the block's attributes, including a trailing
// {#id .class} group in the info string, onto dst. Only text values are kept.
func copyAttributes(block *ast.FencedCodeBlock, dst ast.Node, source []byte) {
	attrs := make([]ast.Attribute, 0, len(block.Attributes()))
	attrs = append(attrs, block.Attributes()...)
	if block.Info != nil {
		info := block.Info.Segment.Value(source)
		if i := bytes.IndexByte(info, '{'); i >= 0 {
			if parsed, ok := parser.ParseAttributes(text.NewReader(info[i:])); ok {
				for _, attr := range parsed {
					attrs = append(attrs, ast.Attribute{Name: attr.Name, Value: attr.Value})
				}
			}
		}
	}
	for _, attr := range attrs {
		switch v := attr.Value.(type) {
		case []byte:
			dst.SetAttribute(attr.Name, v)
		case string:
			dst.SetAttribute(attr.Name, []byte(v))
		}
	}
}
