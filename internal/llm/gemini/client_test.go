package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/llm"
)

type fakeGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	parts []genai.Part
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func answer(reason genai.FinishReason, parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: "model", Parts: parts},
			FinishReason: reason,
		}},
	}
}

func newTestClient(g generator) *Client {
	return &Client{name: "gemini:test", model: g, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestGenerate_JoinsTextParts(t *testing.T) {
	g := &fakeGenerator{resp: answer(genai.FinishReasonStop, genai.Text(`{"total":`), genai.Text(`116.00}`))}
	c := newTestClient(g)

	out, err := c.Generate(context.Background(), llm.BuildRequest("TOTAL 116.00", 0))
	require.NoError(t, err)
	assert.Equal(t, `{"total":116.00}`, out)
	require.Len(t, g.parts, 2)
	assert.Contains(t, string(g.parts[0].(genai.Text)), "TOTAL 116.00")
	assert.Contains(t, string(g.parts[1].(genai.Text)), "JSON Schema")

	fields, _, err := llm.ParseResponse(out)
	require.NoError(t, err)
	assert.Equal(t, "116", fields.Total.Decimal.String())
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name      string
		gen       *fakeGenerator
		kind      common.ErrorKind
		transient bool
	}{
		{"quota", &fakeGenerator{err: status.Error(codes.ResourceExhausted, "quota exceeded")}, common.KindAIQuotaExceeded, false},
		{"unavailable", &fakeGenerator{err: status.Error(codes.Unavailable, "try later")}, "", true},
		{"permission", &fakeGenerator{err: status.Error(codes.PermissionDenied, "no")}, common.KindAIUnavailable, false},
		{"truncated", &fakeGenerator{resp: answer(genai.FinishReasonMaxTokens, genai.Text(`{"to`))}, common.KindAIInvalidResponse, false},
		{"safety", &fakeGenerator{resp: answer(genai.FinishReasonSafety)}, common.KindAIInvalidResponse, false},
		{"no candidates", &fakeGenerator{resp: &genai.GenerateContentResponse{}}, common.KindAIInvalidResponse, false},
		{"no text", &fakeGenerator{resp: answer(genai.FinishReasonStop, genai.Blob{MIMEType: "image/png"})}, common.KindAIInvalidResponse, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(tt.gen)
			_, err := c.Generate(context.Background(), llm.BuildRequest("x", 0))
			require.Error(t, err)
			assert.Equal(t, tt.kind, common.KindOf(err))
			assert.Equal(t, tt.transient, common.IsTransient(err))
		})
	}
}

func TestGenerate_CancelPassesThrough(t *testing.T) {
	c := newTestClient(&fakeGenerator{err: context.Canceled})
	_, err := c.Generate(context.Background(), llm.BuildRequest("x", 0))
	assert.True(t, errors.Is(err, context.Canceled))
}
