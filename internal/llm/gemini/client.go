// Package gemini runs the AI mapper on Vertex AI Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/fiscal-extractor/internal/auth"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/llm"
)

// Config selects the Vertex AI project and model.
type Config struct {
	ProjectID   string
	Location    string // e.g. "us-central1"
	Model       string // e.g. "gemini-1.5-flash-002"
	Temperature float32
}

// generator is the part of *genai.GenerativeModel the client uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client implements llm.Model. The system instruction is fixed at
// construction; Request.System is ignored so the shared model is never
// mutated while workers use it.
type Client struct {
	name  string
	model generator
	base  *genai.Client
	log   *slog.Logger
}

// NewClient dials Vertex AI. tokens may be nil to use application default
// credentials.
func NewClient(ctx context.Context, cfg Config, tokens auth.TokenProvider, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProjectID == "" || cfg.Location == "" {
		return nil, fmt.Errorf("gemini: project and location are required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash-002"
	}

	var opts []option.ClientOption
	if tokens != nil {
		opts = append(opts, option.WithTokenSource(auth.NewTokenSource(context.Background(), tokens)))
	}
	base, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := base.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(llm.SystemPrompt())},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(cfg.Temperature),
		CandidateCount:   genai.Ptr[int32](1),
	}

	logger.Info("llm.gemini.ready", "project", cfg.ProjectID, "location", cfg.Location, "model", cfg.Model)
	return &Client{name: "gemini:" + cfg.Model, model: model, base: base, log: logger}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.base == nil {
		return nil
	}
	return c.base.Close()
}

// Name implements llm.Model.
func (c *Client) Name() string { return c.name }

// Generate implements llm.Model.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	parts := []genai.Part{genai.Text(req.User)}
	if req.Schema != nil {
		parts = append(parts, genai.Text("JSON Schema:\n"+mustJSON(req.Schema)))
	}

	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classify(err)
	}
	return c.answerText(resp)
}

func (c *Client) answerText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
			return "", common.Errorf(common.KindAIInvalidResponse, "prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", common.NewError(common.KindAIInvalidResponse, "no candidates in gemini response", nil)
	}
	cand := resp.Candidates[0]
	switch cand.FinishReason {
	case genai.FinishReasonMaxTokens:
		return "", common.NewError(common.KindAIInvalidResponse, "gemini answer truncated", nil)
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return "", common.Errorf(common.KindAIInvalidResponse, "gemini answer blocked: %s", cand.FinishReason)
	}
	if cand.Content == nil {
		return "", common.NewError(common.KindAIInvalidResponse, "empty gemini candidate", nil)
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		c.log.Warn("llm.gemini.no_text_parts", "parts", len(cand.Content.Parts))
		return "", common.NewError(common.KindAIInvalidResponse, "gemini answer has no text", nil)
	}
	return b.String(), nil
}

// classify maps gRPC failures onto the error taxonomy.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return common.NewError(common.KindAIQuotaExceeded, "gemini quota", err)
	}
	if common.IsTransient(err) {
		return common.Transient(err)
	}
	return common.NewError(common.KindAIUnavailable, "gemini request failed", err)
}
