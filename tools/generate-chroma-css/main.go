// Package main writes the chroma stylesheet bundled with the theme assets.
package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/spf13/pflag"
)

func main() {
	styleName := pflag.String("style", "github-dark", "chroma style name")
	out := pflag.StringP("out", "o", "static/css/chroma.css", "destination file (- for stdout)")
	pflag.Parse()

	style := styles.Get(*styleName)
	if style == nil || (style == styles.Fallback && *styleName != style.Name) {
		fmt.Fprintf(os.Stderr, "style %q not found\n", *styleName)
		os.Exit(1)
	}

	formatter := html.New(
		html.WithClasses(true),
		html.ClassPrefix(""),
	)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "/* Generated by tools/generate-chroma-css (style %s). */\n", *styleName)
	if err := formatter.WriteCSS(&buf, style); err != nil {
		fmt.Fprintf(os.Stderr, "generate css: %v\n", err)
		os.Exit(1)
	}

	if *out == "-" {
		_, _ = os.Stdout.Write(buf.Bytes())
		return
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil { //nolint:gosec // standard file permissions
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		os.Exit(1)
	}
}
