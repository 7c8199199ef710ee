// Package promote converts fenced diagram code blocks in rendered HTML into
// containers that mermaid.js hydrates in place.
//
// The sweep looks for <pre><code class="language-mermaid"> pairs and swaps the
// <pre> for <div class="mermaid" style="text-align: center;"> holding the
// original code text. It never parses the diagram source.
package promote

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Defaults used when Options leave a field empty.
const (
	DefaultLanguageClass = "language-mermaid"
	DefaultMarkerClass   = "mermaid"
	DefaultStyle         = "text-align: center;"
)

var codeInPre = cascadia.MustCompile("pre > code")

// Options configure which blocks qualify and how the replacement is tagged.
type Options struct {
	// LanguageClass is the exact class token a <code> element must carry.
	LanguageClass string
	// MarkerClass is the class token the diagram renderer scans for.
	MarkerClass string
	// Style is the inline style set on each replacement container.
	Style string
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.LanguageClass) == "" {
		o.LanguageClass = DefaultLanguageClass
	}
	if strings.TrimSpace(o.MarkerClass) == "" {
		o.MarkerClass = DefaultMarkerClass
	}
	if o.Style == "" {
		o.Style = DefaultStyle
	}
	return o
}

// Report summarizes a single sweep.
type Report struct {
	Matched  int
	Promoted int
	Skipped  int
}

// Changed reports whether the sweep mutated the tree.
func (r Report) Changed() bool {
	return r.Promoted > 0
}

// Add accumulates another report into r.
func (r *Report) Add(other Report) {
	r.Matched += other.Matched
	r.Promoted += other.Promoted
	r.Skipped += other.Skipped
}

// Promoter performs diagram block promotion. The zero value is not usable;
// construct one with New.
type Promoter struct {
	opts   Options
	logger *slog.Logger
}

// New returns a promoter. A nil logger falls back to slog.Default.
func New(opts Options, logger *slog.Logger) *Promoter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Promoter{
		opts:   opts.withDefaults(),
		logger: logger.With("component", "promote"),
	}
}

// Options returns the effective options, defaults applied.
func (p *Promoter) Options() Options {
	return p.opts
}

// Promote sweeps the tree rooted at root once, in document order. Matches
// whose <pre> wrapper has no parent, or that were detached by an earlier
// replacement in the same sweep, are skipped.
func (p *Promoter) Promote(root *html.Node) Report {
	if root == nil {
		return Report{}
	}
	return p.promoteNodes(root, p.matches(goquery.NewDocumentFromNode(root).Selection))
}

// PromoteSelection runs the sweep over an existing goquery document.
func (p *Promoter) PromoteSelection(doc *goquery.Document) Report {
	if doc == nil || doc.Selection == nil || len(doc.Nodes) == 0 {
		return Report{}
	}
	return p.promoteNodes(doc.Nodes[0], p.matches(doc.Selection))
}

func (p *Promoter) matches(s *goquery.Selection) *goquery.Selection {
	return s.FindMatcher(codeInPre).FilterFunction(func(_ int, code *goquery.Selection) bool {
		return hasClassToken(code.Nodes[0], p.opts.LanguageClass)
	})
}

func (p *Promoter) promoteNodes(root *html.Node, codes *goquery.Selection) Report {
	var report Report
	codes.Each(func(_ int, code *goquery.Selection) {
		report.Matched++

		// textContent: every descendant text node, untouched.
		source := code.Text()

		pre := code.Nodes[0].Parent
		if pre == nil || pre.Parent == nil || !attached(pre, root) {
			report.Skipped++
			p.logger.Debug("skipping detached diagram block", slog.Int("bytes", len(source)))
			return
		}

		pre.Parent.InsertBefore(p.container(source), pre)
		pre.Parent.RemoveChild(pre)
		report.Promoted++
	})
	return report
}

func (p *Promoter) container(source string) *html.Node {
	div := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "class", Val: p.opts.MarkerClass},
			{Key: "style", Val: p.opts.Style},
		},
	}
	if source != "" {
		div.AppendChild(&html.Node{Type: html.TextNode, Data: source})
	}
	return div
}

// attached reports whether n is still reachable from root.
func attached(n, root *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == root {
			return true
		}
	}
	return false
}

func hasClassToken(n *html.Node, token string) bool {
	for _, attr := range n.Attr {
		if attr.Namespace != "" || attr.Key != "class" {
			continue
		}
		for _, field := range strings.FieldsFunc(attr.Val, isHTMLSpace) {
			if field == token {
				return true
			}
		}
	}
	return false
}

func isHTMLSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\f', '\r':
		return true
	}
	return false
}

// Promote runs a sweep with default options.
func Promote(root *html.Node) Report {
	return New(Options{}, nil).Promote(root)
}
