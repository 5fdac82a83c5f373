package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/joseph-ayodele/doc-intake/constants"
)

const (
	visionFeature = "DOCUMENT_TEXT_DETECTION"
	// VisionMaxFilePages is the page limit of one synchronous files:annotate call.
	VisionMaxFilePages = 5
)

// VisionEngine sends images and PDFs to the Google Cloud Vision API.
type VisionEngine struct {
	svc      *vision.Service
	maxPages int
	logger   *slog.Logger
}

// NewVisionEngine builds the client from an API key. Extra options are
// appended after the key, so tests can point it at a local endpoint.
func NewVisionEngine(ctx context.Context, apiKey string, maxPages int, logger *slog.Logger, opts ...option.ClientOption) (*VisionEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPages <= 0 || maxPages > VisionMaxFilePages {
		maxPages = VisionMaxFilePages
	}
	all := make([]option.ClientOption, 0, len(opts)+1)
	if apiKey != "" {
		all = append(all, option.WithAPIKey(apiKey))
	}
	all = append(all, opts...)
	svc, err := vision.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &VisionEngine{svc: svc, maxPages: maxPages, logger: logger}, nil
}

func (e *VisionEngine) Name() string { return "vision" }

func (e *VisionEngine) Supports(doc Document) bool {
	switch doc.Format {
	case constants.PDF:
		return true
	case constants.IMAGE:
		return !constants.IsHEICExt(doc.Ext()) && !strings.HasPrefix(doc.MIME, "image/hei")
	}
	return false
}

func (e *VisionEngine) Extract(ctx context.Context, doc Document) (Output, error) {
	if !e.Supports(doc) {
		return Output{}, fmt.Errorf("%w: vision cannot read %q", ErrUnsupported, doc.Name)
	}
	content := base64.StdEncoding.EncodeToString(doc.Data)
	features := []*vision.Feature{{Type: visionFeature}}

	if doc.Format == constants.IMAGE && doc.MIME != "image/tiff" {
		resp, err := e.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
			Requests: []*vision.AnnotateImageRequest{{
				Image:    &vision.Image{Content: content},
				Features: features,
			}},
		}).Context(ctx).Do()
		if err != nil {
			return Output{}, fmt.Errorf("vision images:annotate: %w", err)
		}
		if len(resp.Responses) == 0 {
			return Output{}, fmt.Errorf("vision images:annotate: empty response")
		}
		text, err := annotationText(resp.Responses[0])
		if err != nil {
			return Output{}, err
		}
		return Output{Text: text, Pages: 1}, nil
	}

	mimeType := doc.MIME
	if doc.Format == constants.PDF {
		mimeType = "application/pdf"
	}
	pages := make([]int64, e.maxPages)
	for i := range pages {
		pages[i] = int64(i + 1)
	}
	resp, err := e.svc.Files.Annotate(&vision.BatchAnnotateFilesRequest{
		Requests: []*vision.AnnotateFileRequest{{
			InputConfig: &vision.InputConfig{Content: content, MimeType: mimeType},
			Features:    features,
			Pages:       pages,
		}},
	}).Context(ctx).Do()
	if err != nil {
		return Output{}, fmt.Errorf("vision files:annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return Output{}, fmt.Errorf("vision files:annotate: empty response")
	}
	file := resp.Responses[0]
	if file.Error != nil && file.Error.Message != "" {
		return Output{}, fmt.Errorf("vision files:annotate: %s", file.Error.Message)
	}

	var out Output
	texts := make([]string, 0, len(file.Responses))
	for i, r := range file.Responses {
		t, err := annotationText(r)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("page %d: %v", i+1, err))
		}
		texts = append(texts, t)
	}
	if file.TotalPages > int64(len(file.Responses)) {
		e.logger.Info("ocr.vision.truncated", "doc", doc.Name, "total_pages", file.TotalPages, "read", len(file.Responses))
		out.Warnings = append(out.Warnings, fmt.Sprintf("vision read %d of %d pages", len(file.Responses), file.TotalPages))
	}
	out.Text = strings.Join(texts, "\f")
	out.Pages = len(texts)
	return out, nil
}

func annotationText(r *vision.AnnotateImageResponse) (string, error) {
	if r == nil {
		return "", nil
	}
	if r.Error != nil && r.Error.Message != "" {
		return "", fmt.Errorf("vision: %s", r.Error.Message)
	}
	if r.FullTextAnnotation == nil {
		return "", nil
	}
	return r.FullTextAnnotation.Text, nil
}
