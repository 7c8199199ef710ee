// Package d2 compiles D2 diagrams to SVG (and PNG) on the server.
package d2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"oss.terrastruct.com/d2/d2graph"
	"oss.terrastruct.com/d2/d2layouts/d2dagrelayout"
	"oss.terrastruct.com/d2/d2layouts/d2elklayout"
	"oss.terrastruct.com/d2/d2lib"
	"oss.terrastruct.com/d2/d2renderers/d2svg"
	"oss.terrastruct.com/d2/d2themes/d2themescatalog"
	d2log "oss.terrastruct.com/d2/lib/log"
	"oss.terrastruct.com/d2/lib/textmeasure"
)

const defaultTimeout = 12 * time.Second

// Result captures the outcome of a render attempt.
type Result struct {
	SVG      string
	Duration time.Duration
}

// ErrEmptyDiagram is returned when the supplied diagram body is empty.
var ErrEmptyDiagram = errors.New("empty d2 diagram")

// Options configure the renderer.
type Options struct {
	// Timeout bounds a single compile + render. Zero means 12s.
	Timeout time.Duration
	// Light selects the neutral light theme instead of the dark flagship
	// theme used by the site layout. PDF export wants the light one.
	Light bool
}

// Renderer performs server-side D2 compilation using the embedded D2 compiler.
// Layout engines are chosen by the diagram itself (vars.d2-config.layout-engine).
type Renderer struct {
	logger  *slog.Logger
	timeout time.Duration
	themeID int64
}

// New creates a renderer. A nil opts selects the defaults.
func New(logger *slog.Logger, opts *Options) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Renderer{
		logger:  logger.With("component", "d2"),
		timeout: defaultTimeout,
		themeID: d2themescatalog.DarkFlagshipTerrastruct.ID,
	}
	if opts != nil {
		if opts.Timeout > 0 {
			r.timeout = opts.Timeout
		}
		if opts.Light {
			r.themeID = d2themescatalog.NeutralDefault.ID
		}
	}
	return r
}

// Render compiles the given D2 script into SVG.
func (r *Renderer) Render(ctx context.Context, source string) (Result, error) {
	if strings.TrimSpace(source) == "" {
		return Result{}, ErrEmptyDiagram
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx = d2log.With(ctx, r.logger)
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return Result{}, fmt.Errorf("init ruler: %w", err)
	}

	themeID := r.themeID
	pad := int64(d2svg.DEFAULT_PADDING)
	renderOpts := &d2svg.RenderOpts{
		ThemeID: &themeID,
		Pad:     &pad,
	}

	start := time.Now()
	diagram, _, err := d2lib.Compile(ctx, source, &d2lib.CompileOptions{
		Ruler:          ruler,
		LayoutResolver: layoutResolver,
	}, renderOpts)
	if err != nil {
		return Result{}, fmt.Errorf("compile d2: %w", err)
	}
	if diagram == nil {
		return Result{}, errors.New("d2 compiler returned nil diagram")
	}

	svg, err := d2svg.Render(diagram, renderOpts)
	if err != nil {
		return Result{}, fmt.Errorf("render svg: %w", err)
	}

	return Result{
		SVG:      string(svg),
		Duration: time.Since(start),
	}, nil
}

func layoutResolver(engine string) (d2graph.LayoutGraph, error) {
	switch strings.ToLower(engine) {
	case "", "dagre":
		return func(ctx context.Context, g *d2graph.Graph) error {
			return d2dagrelayout.Layout(ctx, g, nil)
		}, nil
	case "elk":
		return func(ctx context.Context, g *d2graph.Graph) error {
			return d2elklayout.Layout(ctx, g, nil)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported D2 layout %q", engine)
	}
}
