package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// convertHEICtoPNG converts a HEIC/HEIF file to PNG with magick, heif-convert
// or sips. When cacheDir is set the PNG is kept at {cacheDir}/{hash}.png and
// reused; otherwise it lives in a temp dir removed by cleanup.
func convertHEICtoPNG(ctx context.Context, r Runner, logger *slog.Logger, converter, in, cacheDir, hashHex string) (string, []string, func(), error) {
	if cacheDir != "" && hashHex != "" {
		cached := filepath.Join(cacheDir, hashHex+".png")
		if st, err := os.Stat(cached); err == nil && !st.IsDir() {
			logger.Debug("ocr.heic.cache.hit", "cache", cached)
			return cached, nil, nil, nil
		}
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return "", nil, nil, err
		}
	}

	tmpDir, err := os.MkdirTemp("", "intake-heic-*")
	if err != nil {
		return "", nil, nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }
	out := filepath.Join(tmpDir, "page.png")

	var errb []byte
	switch converter {
	case "heif-convert":
		_, errb, err = r.Run(ctx, "heif-convert", in, out)
	case "magick":
		_, errb, err = r.Run(ctx, "magick", in, out)
	case "sips":
		_, errb, err = r.Run(ctx, "sips", "-s", "format", "png", in, "--out", out)
	default:
		cleanup()
		return "", nil, nil, fmt.Errorf("%w: HEIC needs HEIC_CONVERTER set to magick, heif-convert or sips", ErrUnsupported)
	}
	if err != nil {
		cleanup()
		return "", stderrWarning(errb), nil, fmt.Errorf("%s failed: %w", converter, err)
	}
	if _, statErr := os.Stat(out); statErr != nil {
		cleanup()
		return "", nil, nil, fmt.Errorf("HEIC conversion produced no output: %w", statErr)
	}

	if cacheDir == "" || hashHex == "" {
		return out, nil, cleanup, nil
	}

	cached := filepath.Join(cacheDir, hashHex+".png")
	if err := os.Rename(out, cached); err == nil {
		cleanup()
		logger.Debug("ocr.heic.cache.store", "cache", cached)
		return cached, nil, nil, nil
	}
	// rename fails across devices; copy instead
	if err := copyFile(out, cached); err != nil {
		logger.Warn("ocr.heic.cache.fail", "cache", cached, "err", err)
		return out, nil, cleanup, nil
	}
	cleanup()
	return cached, nil, nil, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
