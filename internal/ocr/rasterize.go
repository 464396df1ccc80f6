package ocr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// Page is one rendered page image.
type Page struct {
	Image    []byte
	MIMEType string
}

// Rasterizer turns a scanned PDF into page images, at most maxPages of them
// (0 = no limit).
type Rasterizer interface {
	Rasterize(ctx context.Context, content []byte, maxPages int) ([]Page, error)
}

// PdftoppmRasterizer renders pages with poppler's pdftoppm.
type PdftoppmRasterizer struct {
	Binary string // default "pdftoppm"
	DPI    int    // default 300
	Runner Runner
	Logger *slog.Logger
}

// Rasterize implements Rasterizer.
func (r PdftoppmRasterizer) Rasterize(ctx context.Context, content []byte, maxPages int) ([]Page, error) {
	bin, dpi, runner, logger := r.Binary, r.DPI, r.Runner, r.Logger
	if bin == "" {
		bin = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 300
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	tmpDir, err := os.MkdirTemp("", "fiscal-pp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logger.Warn("ocr.rasterize.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, content, 0o600); err != nil {
		return nil, err
	}
	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png [-l N] <in.pdf> <tmp/page>
	args := []string{"-r", strconv.Itoa(dpi), "-png"}
	if maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(maxPages))
	}
	args = append(args, in, prefix)
	if _, errb, err := runner.Run(ctx, bin, logger, args...); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	// prefix-1.png, prefix-2.png, ... (zero padded for long documents)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if maxPages > 0 && len(matches) > maxPages {
		matches = matches[:maxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}
	pages := make([]Page, 0, len(matches))
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{Image: b, MIMEType: "image/png"})
	}
	return pages, nil
}

// PDFCPURasterizer pulls the embedded scan out of each page with pdfcpu. It
// needs no external binaries and suits the usual scanner output of one
// full-page image per page; vector-only pages yield nothing.
type PDFCPURasterizer struct{}

// Rasterize implements Rasterizer.
func (PDFCPURasterizer) Rasterize(ctx context.Context, content []byte, maxPages int) ([]Page, error) {
	pctx, err := readPDF(content)
	if err != nil {
		return nil, err
	}
	n := pctx.PageCount
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}

	var pages []Page
	for pageNr := 1; pageNr <= n; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		imgs, err := pdfcpu.ExtractPageImages(pctx, pageNr, false)
		if err != nil {
			return nil, fmt.Errorf("extract images of page %d: %w", pageNr, err)
		}
		// the largest image on the page is the scan
		var best []byte
		var bestType string
		for _, img := range imgs {
			b, err := io.ReadAll(img)
			if err != nil {
				continue
			}
			if len(b) > len(best) {
				best, bestType = b, img.FileType
			}
		}
		if len(best) > 0 {
			pages = append(pages, Page{Image: best, MIMEType: mimeForImageType(bestType)})
		}
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdf has no embedded page images")
	}
	return pages, nil
}

func mimeForImageType(t string) string {
	switch t {
	case "png":
		return "image/png"
	case "tif", "tiff":
		return "image/tiff"
	default:
		return "image/jpeg"
	}
}
