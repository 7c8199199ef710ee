// Package emdash promotes fenced diagram blocks in rendered HTML into
// containers the mermaid browser runtime draws, and exports markdown trees
// as static sites that carry them.
//
// Regenerate the bundled chroma stylesheet with:
//
//	go generate
package emdash

//go:generate go run ./tools/generate-chroma-css --out static/css/chroma.css
