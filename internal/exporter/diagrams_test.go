package exporter

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDiagramEncoderWithoutMermaidCLI(t *testing.T) {
	t.Parallel()
	enc := newDiagramEncoder(quietLogger())
	enc.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	src := "# Title\n\n```mermaid\ngraph TD; A-->B;\n````\n\n~~~go\nx := 1\n~~~\n"
	out, err := enc.encode(context.Background(), []byte(src))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// The fence is written back unchanged when no rasterizer is available.
	if string(out) != src {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestDiagramEncoderRasterizesD2(t *testing.T) {
	t.Parallel()
	enc := newDiagramEncoder(quietLogger())

	src := "before\n\n```d2\na -> b\n```\n\nafter\n"
	out, err := enc.encode(context.Background(), []byte(src))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := string(out)
	if !strings.Contains(got, "![D2 diagram](data:image/png;base64,") {
		t.Fatalf("expected embedded png, got %.200s", got)
	}
	if strings.Contains(got, "```d2") || !strings.HasSuffix(got, "after\n") {
		t.Fatalf("fence not replaced cleanly: %.200s", got)
	}
}

func TestDiagramEncoderEdgeCases(t *testing.T) {
	t.Parallel()
	enc := newDiagramEncoder(quietLogger())
	ctx := context.Background()

	// Empty diagrams disappear.
	out, err := enc.encode(ctx, []byte("```d2\n\n```\ntext\n"))
	if err != nil || string(out) != "text\n" {
		t.Fatalf("empty fence: %q, %v", out, err)
	}

	// An unclosed fence is kept.
	out, err = enc.encode(ctx, []byte("```mermaid\nA-->B\n"))
	if err != nil || string(out) != "```mermaid\nA-->B\n" {
		t.Fatalf("unclosed fence: %q, %v", out, err)
	}
}

func TestParseFenceStart(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line, marker, lang string
		ok                 bool
	}{
		{"```mermaid", "```", "mermaid", true},
		{"~~~~ D2 {.wide}", "~~~~", "d2", true},
		{"``", "", "", false},
		{"text", "", "", false},
	}
	for _, tt := range tests {
		marker, lang, ok := parseFenceStart(tt.line)
		if marker != tt.marker || lang != tt.lang || ok != tt.ok {
			t.Errorf("parseFenceStart(%q) = %q, %q, %v", tt.line, marker, lang, ok)
		}
	}
	if !isFenceEnd("`````", "```") || isFenceEnd("``` x", "```") || isFenceEnd("~~~", "```") {
		t.Fatalf("isFenceEnd mismatch")
	}
}
