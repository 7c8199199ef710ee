package tree_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/euforicio/emdash/internal/renderer"
	"github.com/euforicio/emdash/internal/tree"
)

func writeContent(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func TestBuildGeneratesTreeWithMetadata(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeContent(t, root, map[string]string{
		"index.md":                      "# Home\n",
		"guides/getting-started.md":     "---\ntitle: Getting Started\n---\n\n# Start\n",
		"guides/advanced_topics.md":     "# Advanced\n",
		"guides/assets/logo.png":        "not markdown",
		".drafts/secret.md":             "# hidden\n",
		"node_modules/lib/README.md":    "# dependency\n",
		"empty/nothing-here/readme.txt": "text",
	})

	svc := renderer.NewService(nil, renderer.Options{})
	node, err := tree.Build(context.Background(), root, tree.Options{Renderer: svc})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if node.Type != tree.NodeTypeDirectory {
		t.Fatalf("expected root to be directory, got %s", node.Type)
	}
	if len(node.Children) != 2 {
		t.Fatalf("expected guides dir + index file at root, got %d children", len(node.Children))
	}

	guides, index := node.Children[0], node.Children[1]
	if guides.Type != tree.NodeTypeDirectory || guides.Name != "guides" {
		t.Fatalf("directories should sort first, got %+v", guides)
	}
	if index.RawName != "index.md" || index.Output != "index.html" {
		t.Fatalf("unexpected index node: %+v", index)
	}
	if len(guides.Children) != 2 {
		t.Fatalf("expected guides to have 2 children, got %d", len(guides.Children))
	}

	var started, advanced *tree.Node
	for _, child := range guides.Children {
		switch {
		case strings.Contains(child.RelativePath, "getting"):
			started = child
		case strings.Contains(child.RelativePath, "advanced"):
			advanced = child
		}
	}
	if started == nil || advanced == nil {
		t.Fatalf("expected both guide files, got %+v", guides.Children)
	}
	if started.Title != "Getting Started" || started.Metadata == nil {
		t.Fatalf("expected metadata title, got %q", started.Title)
	}
	if started.Slug != "guides/getting-started" || started.Output != "guides/getting-started.html" {
		t.Fatalf("unexpected slug/output: %s %s", started.Slug, started.Output)
	}
	if advanced.Name != "advanced topics" || advanced.Title != "advanced topics" {
		t.Fatalf("expected underscores replaced in name, got %q", advanced.Name)
	}
	if advanced.Metadata != nil {
		t.Fatalf("expected nil metadata when no frontmatter")
	}
}

func TestBuildHiddenAndExcluded(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeContent(t, root, map[string]string{
		"docs/overview.md":  "# Overview",
		".hidden/page.md":   "# hidden",
		"skipme/page.md":    "# skipped",
		"vendor/lib/doc.md": "# vendored",
	})

	node, err := tree.Build(context.Background(), root, tree.Options{ExcludeDirs: []string{"SkipMe"}})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	docs := node.Documents()
	if len(docs) != 1 || docs[0].RelativePath != "docs/overview.md" {
		t.Fatalf("unexpected documents: %+v", docs)
	}

	withHidden, err := tree.Build(context.Background(), root, tree.Options{IncludeHidden: true})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got := len(withHidden.Documents()); got != 3 {
		t.Fatalf("expected hidden and skipme docs when included, got %d", got)
	}
}

func TestBuildRejectsMissingRoot(t *testing.T) {
	t.Parallel()
	if _, err := tree.Build(context.Background(), "", tree.Options{}); err == nil {
		t.Fatalf("expected error for empty root")
	}
	if _, err := tree.Build(context.Background(), filepath.Join(t.TempDir(), "missing"), tree.Options{}); err == nil {
		t.Fatalf("expected error for missing root")
	}
}

func TestPathTo(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeContent(t, root, map[string]string{"a/b/c.md": "# C"})

	node, err := tree.Build(context.Background(), root, tree.Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	chain := node.PathTo("a/b/c.md")
	if len(chain) != 4 {
		t.Fatalf("expected root, a, a/b, a/b/c.md; got %d nodes", len(chain))
	}
	if chain[1].RelativePath != "a" || chain[2].RelativePath != "a/b" {
		t.Fatalf("unexpected chain: %s, %s", chain[1].RelativePath, chain[2].RelativePath)
	}
	if node.PathTo("missing.md") != nil {
		t.Fatalf("expected nil for missing target")
	}
}

func TestOutputPath(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"":               "index.html",
		"index.md":       "index.html",
		"guide/setup.md": "guide/setup.html",
		"notes.markdown": "notes.html",
		"dir/":           "dir.html",
		"README":         "README.html",
	}
	for in, want := range tests {
		if got := tree.OutputPath(in); got != want {
			t.Errorf("OutputPath(%q) = %q, want %q", in, got, want)
		}
	}
}
