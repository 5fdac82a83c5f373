package ocr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/doc-intake/internal/common"
)

// BuildEngines instantiates the configured engines in order.
func BuildEngines(ctx context.Context, cfg common.OCRConfig, runner Runner, logger *slog.Logger) ([]Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	engines := make([]Engine, 0, len(cfg.Engines))
	for _, name := range cfg.Engines {
		switch name {
		case "native":
			engines = append(engines, NewNativeEngine(cfg.MaxPages, logger))
		case "pdftotext":
			engines = append(engines, NewPdftotextEngine(cfg.Pdftotext, cfg.MaxPages, runner))
		case "tesseract":
			engines = append(engines, NewTesseractEngine(TesseractConfig{
				Tesseract:        cfg.Tesseract,
				Pdftoppm:         cfg.Pdftoppm,
				Lang:             cfg.TesseractLang,
				TessdataDir:      cfg.TessdataDir,
				DPI:              cfg.DPI,
				MaxPages:         cfg.MaxPages,
				HeicConverter:    cfg.HeicConverter,
				ArtifactCacheDir: cfg.ArtifactCacheDir,
			}, runner, logger))
		case "vision":
			if cfg.VisionAPIKey == "" {
				return nil, common.NewAppError("CONFIG_ERROR", "vision engine needs VISION_API_KEY", common.ErrInvalidInput)
			}
			v, err := NewVisionEngine(ctx, cfg.VisionAPIKey, cfg.VisionMaxPages, logger)
			if err != nil {
				return nil, err
			}
			engines = append(engines, v)
		default:
			return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown OCR engine %q", name), common.ErrInvalidInput)
		}
	}
	logger.Info("ocr.engines", "engines", cfg.Engines)
	return engines, nil
}
