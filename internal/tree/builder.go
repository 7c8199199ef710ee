// Package tree builds the navigation tree of a markdown content directory.
package tree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/euforicio/emdash/internal/renderer"
)

// NodeType identifies what a tree node represents.
type NodeType string

// Node type constants for directory and file entries.
const (
	NodeTypeDirectory NodeType = "directory"
	NodeTypeFile      NodeType = "file"
)

// Node represents a navigation entry (directory or markdown file).
type Node struct {
	Modified     time.Time          `json:"modified"`
	Metadata     *renderer.Metadata `json:"metadata,omitempty"`
	Name         string             `json:"name"`
	RawName      string             `json:"rawName"`
	RelativePath string             `json:"relativePath"`
	// Output is the slash-separated .html path a file is exported to.
	Output   string   `json:"output,omitempty"`
	Slug     string   `json:"slug"`
	Type     NodeType `json:"type"`
	Title    string   `json:"title"`
	Children []*Node  `json:"children,omitempty"`
	Size     int64    `json:"size"`
}

// Options control how the tree is constructed.
type Options struct {
	// Renderer, when set, is used to read frontmatter titles.
	Renderer      *renderer.Service
	ExcludeDirs   []string
	IncludeHidden bool
}

var defaultExcludedDirs = []string{
	"node_modules",
	"vendor",
	"venv",
	".venv",
	"third_party",
	".git",
	".hg",
	".svn",
	".idea",
	".vscode",
	"__pycache__",
	"_build",
	"public",
}

// Build walks the root directory and returns a tree of markdown content.
// Directories without markdown below them are pruned.
func Build(ctx context.Context, root string, opts Options) (*Node, error) {
	if root == "" {
		return nil, errors.New("root directory must be provided")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absRoot)
	}

	exclude := make(map[string]struct{})
	for _, name := range append(append([]string(nil), defaultExcludedDirs...), opts.ExcludeDirs...) {
		if name = strings.TrimSpace(name); name != "" {
			exclude[strings.ToLower(name)] = struct{}{}
		}
	}

	b := &builder{root: absRoot, opts: opts, exclude: exclude}
	node, err := b.dir(ctx, absRoot, "", info)
	if err != nil {
		return nil, err
	}
	return node, nil
}

type builder struct {
	exclude map[string]struct{}
	root    string
	opts    Options
}

func (b *builder) skip(entry fs.DirEntry) bool {
	if !b.opts.IncludeHidden && strings.HasPrefix(entry.Name(), ".") {
		return true
	}
	if entry.IsDir() {
		_, excluded := b.exclude[strings.ToLower(entry.Name())]
		return excluded
	}
	return !IsMarkdown(entry.Name())
}

func (b *builder) dir(ctx context.Context, absPath, rel string, info fs.FileInfo) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", absPath, err)
	}

	children := make([]*Node, 0, len(entries))
	for _, entry := range entries {
		if b.skip(entry) {
			continue
		}
		childRel := path.Join(rel, entry.Name())
		childAbs := filepath.Join(absPath, entry.Name())

		childInfo, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", childAbs, err)
		}

		var child *Node
		if entry.IsDir() {
			child, err = b.dir(ctx, childAbs, childRel, childInfo)
		} else {
			child, err = b.file(ctx, childAbs, childRel, childInfo)
		}
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}

	if len(children) == 0 && rel != "" {
		return nil, nil
	}

	sort.SliceStable(children, func(i, j int) bool {
		if children[i].Type == children[j].Type {
			return strings.Compare(strings.ToLower(children[i].Title), strings.ToLower(children[j].Title)) < 0
		}
		return children[i].Type == NodeTypeDirectory
	})

	name := filepath.Base(b.root)
	if rel != "" {
		name = displayName(path.Base(rel))
	}
	return &Node{
		Name:         name,
		RawName:      filepath.Base(absPath),
		RelativePath: rel,
		Slug:         slugify(rel),
		Type:         NodeTypeDirectory,
		Title:        name,
		Modified:     info.ModTime(),
		Children:     children,
	}, nil
}

func (b *builder) file(ctx context.Context, absPath, rel string, info fs.FileInfo) (*Node, error) {
	node := &Node{
		Name:         displayName(path.Base(rel)),
		RawName:      path.Base(rel),
		RelativePath: rel,
		Output:       OutputPath(rel),
		Slug:         slugify(strings.TrimSuffix(rel, path.Ext(rel))),
		Type:         NodeTypeFile,
		Modified:     info.ModTime(),
		Size:         info.Size(),
	}
	node.Title = node.Name

	if b.opts.Renderer == nil {
		return node, nil
	}

	content, err := os.ReadFile(absPath) //nolint:gosec // absPath is constructed from validated root
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", absPath, err)
	}
	doc, err := b.opts.Renderer.Render(ctx, rel, info.ModTime(), content)
	if err != nil {
		return nil, fmt.Errorf("render metadata for %s: %w", rel, err)
	}
	if meta := doc.Metadata; !meta.IsZero() {
		node.Metadata = &meta
		if meta.Title != "" {
			node.Title = meta.Title
		}
	}
	return node, nil
}

// IsMarkdown reports whether name has a markdown extension.
func IsMarkdown(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".markdown")
}

// OutputPath maps a markdown path to the .html file it is exported to.
func OutputPath(rel string) string {
	clean := strings.TrimSuffix(strings.TrimSpace(rel), "/")
	if clean == "" {
		return "index.html"
	}
	return strings.TrimSuffix(clean, path.Ext(clean)) + ".html"
}

func displayName(name string) string {
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	return strings.TrimSpace(name)
}

func slugify(rel string) string {
	if rel == "" {
		return ""
	}
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		part = strings.ReplaceAll(part, "_", " ")
		part = strings.ToLower(strings.TrimSpace(part))
		parts[i] = strings.ReplaceAll(part, " ", "-")
	}
	return strings.Join(parts, "/")
}
