package promote

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// RewriteDocument parses src as a complete HTML document, promotes diagram
// blocks and renders the result. When nothing is promoted src is returned
// as-is so untouched pages stay byte-for-byte identical.
func (p *Promoter) RewriteDocument(src []byte) ([]byte, Report, error) {
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, Report{}, fmt.Errorf("parse html: %w", err)
	}

	report := p.Promote(doc)
	if !report.Changed() {
		return src, report, nil
	}

	var buf bytes.Buffer
	buf.Grow(len(src))
	if err := html.Render(&buf, doc); err != nil {
		return nil, report, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), report, nil
}

// RewriteFragment is RewriteDocument for body content such as markdown
// renderer output. The fragment is parsed in a <body> context and rendered
// without any html/head/body wrapper.
func (p *Promoter) RewriteFragment(src []byte) ([]byte, Report, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(bytes.NewReader(src), context)
	if err != nil {
		return nil, Report{}, fmt.Errorf("parse html fragment: %w", err)
	}

	// Top-level <pre> elements need a parent to be replaceable.
	for _, n := range nodes {
		context.AppendChild(n)
	}

	report := p.Promote(context)
	if !report.Changed() {
		return src, report, nil
	}

	var buf bytes.Buffer
	buf.Grow(len(src))
	for n := context.FirstChild; n != nil; n = n.NextSibling {
		if err := html.Render(&buf, n); err != nil {
			return nil, report, fmt.Errorf("render html fragment: %w", err)
		}
	}
	return buf.Bytes(), report, nil
}
