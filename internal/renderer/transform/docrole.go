package transform

import (
	"bytes"
	"regexp"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

const docRolePrefix = ":doc:"

// docRoleBody matches the backticked part of the theme's cross-reference
// role, :doc:`Title<target>`.
var docRoleBody = regexp.MustCompile(`^([^<]+)<([^>]+)>$`)

// DocRoleTransformer turns :doc:`Title<target>` references into links so
// pages written for the docutils theme keep working. Markdown reads the
// backticked part as a code span, so a role is a text node ending in ":doc:"
// followed by that span. Code blocks and code spans that merely contain the
// role text are left alone, as are malformed roles.
type DocRoleTransformer struct{}

// NewDocRoleTransformer returns a transformer rewriting :doc: roles.
func NewDocRoleTransformer() parser.ASTTransformer {
	return &DocRoleTransformer{}
}

type docRole struct {
	prefix *ast.Text
	span   *ast.CodeSpan
	title  []byte
	target []byte
}

// Transform implements parser.ASTTransformer.
func (t *DocRoleTransformer) Transform(node *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()

	var roles []docRole
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if _, ok := n.(*ast.CodeSpan); ok {
			return ast.WalkSkipChildren, nil
		}
		if role, ok := matchDocRole(n, source); ok {
			roles = append(roles, role)
		}
		return ast.WalkContinue, nil
	})

	for _, role := range roles {
		parent := role.span.Parent()
		link := ast.NewLink()
		link.Destination = role.target
		link.AppendChild(link, ast.NewString(role.title))
		parent.ReplaceChild(parent, role.span, link)

		role.prefix.Segment = role.prefix.Segment.WithStop(role.prefix.Segment.Stop - len(docRolePrefix))
		if role.prefix.Segment.IsEmpty() {
			parent.RemoveChild(parent, role.prefix)
		}
	}
}

func matchDocRole(n ast.Node, source []byte) (docRole, bool) {
	prefix, ok := n.(*ast.Text)
	if !ok || prefix.SoftLineBreak() || prefix.HardLineBreak() {
		return docRole{}, false
	}
	if !bytes.HasSuffix(prefix.Segment.Value(source), []byte(docRolePrefix)) {
		return docRole{}, false
	}
	span, ok := prefix.NextSibling().(*ast.CodeSpan)
	if !ok {
		return docRole{}, false
	}

	var body []byte
	for c := span.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			body = append(body, v.Segment.Value(source)...)
		case *ast.String:
			body = append(body, v.Value...)
		}
	}
	m := docRoleBody.FindSubmatch(body)
	if m == nil {
		return docRole{}, false
	}
	return docRole{
		prefix: prefix,
		span:   span,
		title:  m[1],
		target: m[2],
	}, true
}
