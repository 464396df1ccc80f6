package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/joseph-ayodele/fiscal-extractor/internal/auth"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
)

// VisionConfig configures the Cloud Vision engine. APIKey wins over tokens.
type VisionConfig struct {
	APIKey   string
	Endpoint string
}

// VisionEngine runs DOCUMENT_TEXT_DETECTION on Google Cloud Vision.
type VisionEngine struct {
	svc *vision.Service
	log *slog.Logger
}

// NewVisionEngine builds the Vision client. tokens may be nil when an API key
// is configured or application default credentials should be used.
func NewVisionEngine(ctx context.Context, cfg VisionConfig, tokens auth.TokenProvider, logger *slog.Logger, extra ...option.ClientOption) (*VisionEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var opts []option.ClientOption
	switch {
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	case tokens != nil:
		opts = append(opts, option.WithTokenSource(auth.NewTokenSource(context.Background(), tokens)))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, extra...)

	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision.NewService: %w", err)
	}
	return &VisionEngine{svc: svc, log: logger}, nil
}

// Name implements Engine.
func (e *VisionEngine) Name() string { return "vision" }

// Recognize implements Engine.
func (e *VisionEngine) Recognize(ctx context.Context, image []byte, hints Hints) (Transcript, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []*vision.Feature{{Type: "DOCUMENT_TEXT_DETECTION"}},
			ImageContext: &vision.ImageContext{
				LanguageHints: hints.Languages,
			},
		}},
	}
	resp, err := e.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return Transcript{}, err
	}
	if len(resp.Responses) == 0 {
		return Transcript{}, fmt.Errorf("vision: empty batch response")
	}

	r := resp.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		err := fmt.Errorf("vision: status %d: %s", r.Error.Code, r.Error.Message)
		// UNAVAILABLE, RESOURCE_EXHAUSTED, DEADLINE_EXCEEDED
		if r.Error.Code == 14 || r.Error.Code == 8 || r.Error.Code == 4 {
			return Transcript{}, common.Transient(err)
		}
		return Transcript{}, err
	}
	if r.FullTextAnnotation == nil {
		e.log.Debug("ocr.vision.no_text")
		return Transcript{}, nil
	}

	scores := make([]float64, 0, len(r.FullTextAnnotation.Pages))
	for _, p := range r.FullTextAnnotation.Pages {
		scores = append(scores, p.Confidence)
	}
	return Transcript{Text: r.FullTextAnnotation.Text, Confidence: meanConfidence(scores)}, nil
}
