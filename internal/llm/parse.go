package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
)

// StripFences removes a surrounding Markdown code fence (``` or ```json).
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the info string ("json", "JSON", ...)
		if !strings.ContainsAny(s[:i], "{[") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseResponse turns a raw model answer into MappedFields. It fails closed:
// anything that is not a single JSON object matching FiscalJSONSchema is
// AI_INVALID_RESPONSE, never a partial result.
func ParseResponse(raw string) (MappedFields, []byte, error) {
	body := []byte(StripFences(raw))
	if len(body) == 0 {
		return MappedFields{}, nil, common.NewError(common.KindAIInvalidResponse, "empty model answer", nil)
	}
	if !json.Valid(body) {
		return MappedFields{}, body, common.NewError(common.KindAIInvalidResponse, "model answer is not valid JSON", nil)
	}

	schema, err := compiledFiscalSchema()
	if err != nil {
		return MappedFields{}, body, common.NewError(common.KindInternal, "fiscal schema", err)
	}
	if err := validateWith(schema, body); err != nil {
		return MappedFields{}, body, common.NewError(common.KindAIInvalidResponse, "schema validation failed", err)
	}

	var out MappedFields
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return MappedFields{}, body, common.NewError(common.KindAIInvalidResponse, "decode fields", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return MappedFields{}, body, common.NewError(common.KindAIInvalidResponse, "trailing data after JSON object", nil)
	}
	return out, body, nil
}
