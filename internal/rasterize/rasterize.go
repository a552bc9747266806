package rasterize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"folio/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (stderr string, err error)
}

// Option configures the renderer.
type Option func(*Renderer)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(executor Executor) Option {
	return func(r *Renderer) {
		if executor != nil {
			r.exec = executor
		}
	}
}

// Renderer rasterizes single PDF pages to PNG via poppler's pdftoppm.
type Renderer struct {
	binary string
	dpi    int
	exec   Executor
}

// New constructs a page renderer.
func New(binary string, dpi int, opts ...Option) (*Renderer, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("pdftoppm binary required")
	}
	if dpi <= 0 {
		return nil, fmt.Errorf("dpi must be positive, got %d", dpi)
	}
	renderer := &Renderer{
		binary: binary,
		dpi:    dpi,
		exec:   commandExecutor{},
	}
	for _, opt := range opts {
		opt(renderer)
	}
	return renderer, nil
}

// PageCount opens the document and returns its page count. A missing or
// unparseable PDF is a document read failure, fatal for that document.
func (r *Renderer) PageCount(path string) (int, error) {
	return PageCount(path)
}

// PageCount is the package-level form of Renderer.PageCount.
func PageCount(path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, services.Wrap(services.ErrDocumentRead, "rasterize", "stat", path, err)
	}
	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, services.Wrap(services.ErrDocumentRead, "rasterize", "page count", path, err)
	}
	if count <= 0 {
		return 0, services.Wrap(services.ErrDocumentRead, "rasterize", "page count", fmt.Sprintf("%s reports no pages", path), nil)
	}
	return count, nil
}

// RenderPage rasterizes one page into destDir and returns the PNG path. The
// source document is never modified; rendering the same page twice yields a
// fresh file each time.
func (r *Renderer) RenderPage(ctx context.Context, pdfPath string, page int, destDir string) (string, error) {
	if page <= 0 {
		return "", services.Wrap(services.ErrDocumentRead, "rasterize", "render", fmt.Sprintf("page must be positive, got %d", page), nil)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create render dir: %w", err)
	}

	prefix := filepath.Join(destDir, fmt.Sprintf("page-%04d", page))
	args := []string{
		"-png",
		"-r", strconv.Itoa(r.dpi),
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-singlefile",
		pdfPath,
		prefix,
	}

	stderr, err := r.exec.Run(ctx, r.binary, args)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = pdfPath
		}
		return "", services.Wrap(services.ErrDocumentRead, "rasterize", "render", detail, err)
	}

	rendered := prefix + ".png"
	if _, err := os.Stat(rendered); err != nil {
		// pdftoppm exits zero for an out-of-range page but writes nothing.
		return "", services.Wrap(services.ErrDocumentRead, "rasterize", "render",
			fmt.Sprintf("no output for page %d of %s", page, pdfPath), err)
	}
	return rendered, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}
