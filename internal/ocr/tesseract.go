package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/doc-intake/constants"
)

// TesseractConfig holds the local OCR toolchain settings.
type TesseractConfig struct {
	Tesseract        string // binary; default "tesseract"
	Pdftoppm         string // binary; default "pdftoppm"
	Lang             string // default "eng"
	TessdataDir      string
	DPI              int // rasterisation DPI for PDFs, default 300
	MaxPages         int // 0 = all pages
	HeicConverter    string
	ArtifactCacheDir string
}

// TesseractEngine OCRs images directly and PDFs after rasterising them with
// pdftoppm. HEIC/HEIF images are converted to PNG first.
type TesseractEngine struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

func NewTesseractEngine(cfg TesseractConfig, runner Runner, logger *slog.Logger) *TesseractEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &TesseractEngine{cfg: cfg, runner: runner, logger: logger}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Supports(doc Document) bool {
	return doc.Format == constants.IMAGE || doc.Format == constants.PDF
}

func (e *TesseractEngine) Extract(ctx context.Context, doc Document) (Output, error) {
	if doc.Format == constants.PDF {
		return e.extractPDF(ctx, doc)
	}
	return e.extractImage(ctx, doc)
}

func (e *TesseractEngine) extractImage(ctx context.Context, doc Document) (Output, error) {
	ext := doc.Ext()
	if ext == "" {
		ext = "img"
	}
	path, cleanup, err := spill(doc, "intake-img-*."+ext)
	if err != nil {
		return Output{}, err
	}
	defer cleanup()

	var warns []string
	if constants.IsHEICExt(ext) || strings.HasPrefix(doc.MIME, "image/hei") {
		png, w, convCleanup, err := convertHEICtoPNG(ctx, e.runner, e.logger, e.cfg.HeicConverter, path,
			e.cfg.ArtifactCacheDir, contentHash(doc.Data))
		warns = append(warns, w...)
		if convCleanup != nil {
			defer convCleanup()
		}
		if err != nil {
			return Output{Warnings: warns}, err
		}
		path = png
	}

	text, w, err := e.ocrFile(ctx, path)
	warns = append(warns, w...)
	if err != nil {
		return Output{Warnings: warns}, err
	}
	return Output{Text: text, Pages: 1, Warnings: warns}, nil
}

func (e *TesseractEngine) extractPDF(ctx context.Context, doc Document) (Output, error) {
	path, cleanup, err := spill(doc, "intake-pdf-*.pdf")
	if err != nil {
		return Output{}, err
	}
	defer cleanup()

	tmpDir, err := os.MkdirTemp("", "intake-pp-*")
	if err != nil {
		return Output{}, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("ocr.tesseract.cleanup.fail", "dir", tmpDir, "err", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png [-l N] <in.pdf> <tmp/page>
	args := []string{"-r", fmt.Sprintf("%d", e.cfg.DPI), "-png"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", fmt.Sprintf("%d", e.cfg.MaxPages))
	}
	args = append(args, path, prefix)
	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, args...); err != nil {
		return Output{Warnings: stderrWarning(errb)}, fmt.Errorf("pdftoppm: %w", err)
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return Output{}, fmt.Errorf("pdftoppm produced no images")
	}

	pages := make([]string, 0, len(matches))
	var warns []string
	for _, img := range matches {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		txt, w, err := e.ocrFile(ctx, img)
		warns = append(warns, w...)
		if err != nil {
			warns = append(warns, fmt.Sprintf("%s: %v", filepath.Base(img), err))
			pages = append(pages, "")
			continue
		}
		pages = append(pages, txt)
	}
	return Output{Text: strings.Join(pages, "\f"), Pages: len(matches), Warnings: warns}, nil
}

func (e *TesseractEngine) ocrFile(ctx context.Context, path string) (string, []string, error) {
	// tesseract <file> stdout -l <lang>
	args := []string{path, "stdout", "-l", e.cfg.Lang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", stderrWarning(errb), fmt.Errorf("tesseract: %w", err)
	}
	return strings.TrimRight(string(out), "\f"), nil, nil
}
