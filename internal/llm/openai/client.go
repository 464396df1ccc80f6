package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/llm"
)

// Name implements llm.Model.
func (c *Client) Name() string { return "openai:" + c.cfg.Model }

// Generate implements llm.Model using text-only chat/completions in JSON mode.
// The schema travels as a system message; validation happens in llm.ParseResponse.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return "", common.NewError(common.KindAIUnavailable, "openai credentials", err)
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": req.System},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(req.Schema)},
			{"role": "user", "content": req.User},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := llm.SendJSON(ctx, c.http, endpoint, body, map[string]string{"Authorization": "Bearer " + token}, c.log)
	if err != nil {
		return "", classify(err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.openai.decode_error", "error", err, "raw_bytes", len(raw))
		return "", common.NewError(common.KindAIInvalidResponse, "decode openai response", err)
	}
	if len(cc.Choices) == 0 {
		return "", common.NewError(common.KindAIInvalidResponse, "no choices in openai response", nil)
	}
	if cc.Choices[0].FinishReason == "length" {
		return "", common.NewError(common.KindAIInvalidResponse, "openai answer truncated", nil)
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

// classify maps transport failures onto the error taxonomy.
func classify(err error) error {
	var se *llm.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			return common.NewError(common.KindAIQuotaExceeded, "openai rate limit", err)
		case se.Temporary():
			return common.Transient(err)
		default:
			return common.NewError(common.KindAIUnavailable, "openai request rejected", err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// network errors and client timeouts
	return common.Transient(err)
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
