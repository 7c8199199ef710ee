package exporter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/euforicio/emdash/internal/renderer/d2"
)

const mermaidCLITimeout = 15 * time.Second

var errNoMermaidCLI = errors.New("mmdc not found on PATH")

// diagramEncoder turns fenced diagram blocks into markdown images with PNG
// data URIs, so renderers that only understand plain markdown (PDF) still
// show the pictures.
type diagramEncoder struct {
	d2     *d2.Renderer
	logger *slog.Logger
	// lookPath is swapped in tests.
	lookPath func(string) (string, error)
}

func newDiagramEncoder(logger *slog.Logger) *diagramEncoder {
	return &diagramEncoder{
		d2:       d2.New(logger, &d2.Options{Light: true}),
		logger:   logger.With("component", "diagrams"),
		lookPath: exec.LookPath,
	}
}

// fence is an open fenced block being collected.
type fence struct {
	open   string
	marker string
	lang   string
	body   bytes.Buffer
}

// encode rewrites ```d2 and ```mermaid fences. A fence that fails to
// rasterize is written back unchanged.
func (e *diagramEncoder) encode(ctx context.Context, raw []byte) ([]byte, error) {
	var (
		out     bytes.Buffer
		current *fence
		scanner = bufio.NewScanner(bytes.NewReader(raw))
	)
	scanner.Buffer(nil, len(raw)+bufio.MaxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if current == nil {
			if marker, lang, ok := parseFenceStart(trimmed); ok && isDiagramLanguage(lang) {
				current = &fence{open: line, marker: marker, lang: lang}
				continue
			}
			writeLine(&out, line)
			continue
		}

		if !isFenceEnd(trimmed, current.marker) {
			writeLine(&current.body, line)
			continue
		}

		if err := e.flush(ctx, &out, current); err != nil {
			e.logger.Debug("diagram left as code", slog.String("lang", current.lang), slog.Any("err", err))
			writeLine(&out, current.open)
			out.Write(current.body.Bytes())
			writeLine(&out, line)
		}
		current = nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan markdown: %w", err)
	}

	// An unclosed fence runs to the end of the document.
	if current != nil {
		writeLine(&out, current.open)
		out.Write(current.body.Bytes())
	}
	return out.Bytes(), nil
}

func (e *diagramEncoder) flush(ctx context.Context, out *bytes.Buffer, f *fence) error {
	source := f.body.String()
	if strings.TrimSpace(source) == "" {
		return nil
	}

	var (
		png []byte
		err error
	)
	switch f.lang {
	case "d2":
		png, err = e.renderD2(ctx, source)
	case "mermaid":
		png, err = e.renderMermaid(ctx, source)
	default:
		return fmt.Errorf("no rasterizer for %q", f.lang)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "![%s diagram](data:image/png;base64,%s)\n\n",
		diagramLabel(f.lang), base64.StdEncoding.EncodeToString(png))
	return err
}

func (e *diagramEncoder) renderD2(ctx context.Context, source string) ([]byte, error) {
	res, err := e.d2.Render(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("render d2: %w", err)
	}
	png, err := res.PNG()
	if err != nil {
		return nil, fmt.Errorf("rasterize d2 svg: %w", err)
	}
	return png, nil
}

// renderMermaid shells out to the mermaid CLI, which is optional.
func (e *diagramEncoder) renderMermaid(ctx context.Context, source string) ([]byte, error) {
	bin, err := e.lookPath("mmdc")
	if err != nil {
		return nil, errNoMermaidCLI
	}

	tmpDir, err := os.MkdirTemp("", "emdash-mermaid-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	inPath := filepath.Join(tmpDir, "diagram.mmd")
	outPath := filepath.Join(tmpDir, "diagram.png")
	if err := os.WriteFile(inPath, []byte(source), 0o600); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, mermaidCLITimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, //nolint:gosec // binary resolved from PATH
		"-i", inPath,
		"-o", outPath,
		"-b", "white",
		"-s", "2",
		"--quiet",
	)
	cmd.Dir = tmpDir
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("mmdc failed: %w; output: %s", err, strings.TrimSpace(string(output)))
	}

	data, err := os.ReadFile(outPath) //nolint:gosec // path inside our temp dir
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("mmdc produced empty png")
	}
	return data, nil
}

func diagramLabel(lang string) string {
	if lang == "d2" {
		return "D2"
	}
	return "Mermaid"
}

func parseFenceStart(line string) (marker, lang string, ok bool) {
	for _, ch := range []byte{'`', '~'} {
		n := leadingCount(line, ch)
		if n < 3 {
			continue
		}
		marker = line[:n]
		info := strings.Fields(line[n:])
		if len(info) > 0 {
			lang = strings.ToLower(info[0])
		}
		return marker, lang, true
	}
	return "", "", false
}

// isFenceEnd reports whether line closes a fence opened with marker. The
// closing run may be longer than the opening one.
func isFenceEnd(line, marker string) bool {
	if marker == "" {
		return false
	}
	n := leadingCount(line, marker[0])
	return n >= len(marker) && n == len(line)
}

func isDiagramLanguage(lang string) bool {
	return lang == "d2" || lang == "mermaid"
}

func leadingCount(line string, ch byte) int {
	n := 0
	for n < len(line) && line[n] == ch {
		n++
	}
	return n
}

func writeLine(buf *bytes.Buffer, line string) {
	buf.WriteString(line)
	buf.WriteByte('\n')
}
