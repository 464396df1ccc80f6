package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TesseractConfig configures the local tesseract engine.
type TesseractConfig struct {
	Binary      string // default "tesseract"
	Lang        string // default "spa+eng"
	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text
	OEM         int // 1 = LSTM; leave 0 to use default
}

// TesseractEngine runs tesseract through a Runner and reads its TSV output,
// which carries both the words and their confidences.
type TesseractEngine struct {
	cfg    TesseractConfig
	runner Runner
	log    *slog.Logger
}

// NewTesseractEngine builds the engine. runner may be nil for real binaries.
func NewTesseractEngine(cfg TesseractConfig, runner Runner, logger *slog.Logger) *TesseractEngine {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "spa+eng"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractEngine{cfg: cfg, runner: runner, log: logger}
}

// Name implements Engine.
func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize implements Engine.
func (e *TesseractEngine) Recognize(ctx context.Context, image []byte, hints Hints) (Transcript, error) {
	tmpDir, err := os.MkdirTemp("", "fiscal-tess-*")
	if err != nil {
		return Transcript{}, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "page"+extForMIME(hints.MIMEType))
	if err := os.WriteFile(in, image, 0o600); err != nil {
		return Transcript{}, err
	}

	args := []string{in, "stdout", "-l", e.cfg.Lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Binary, e.log, args...)
	if err != nil {
		return Transcript{}, fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return parseTSV(string(out)), nil
}

// parseTSV rebuilds lines from tesseract's TSV (level 5 rows are words) and
// returns the mean word confidence in 0..1.
func parseTSV(tsv string) Transcript {
	type lineKey struct{ page, block, par, line string }
	var (
		order []lineKey
		words = map[lineKey][]string{}
		confs []float64
	)
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}
		k := lineKey{cols[1], cols[2], cols[3], cols[4]}
		if _, seen := words[k]; !seen {
			order = append(order, k)
		}
		words[k] = append(words[k], word)
		if v, err := strconv.ParseFloat(cols[10], 64); err == nil && v >= 0 {
			confs = append(confs, v/100.0)
		}
	}

	var b strings.Builder
	var prev lineKey
	for i, k := range order {
		if i > 0 {
			b.WriteByte('\n')
			if k.page != prev.page {
				b.WriteString("\f\n")
			}
		}
		b.WriteString(strings.Join(words[k], " "))
		prev = k
	}
	tr := Transcript{Text: b.String()}
	if len(confs) > 0 {
		var sum float64
		for _, c := range confs {
			sum += c
		}
		mean := sum / float64(len(confs))
		tr.Confidence = &mean
	}
	return tr
}

func extForMIME(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/tiff":
		return ".tif"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
