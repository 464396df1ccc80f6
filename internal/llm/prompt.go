package llm

import (
	"strings"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
)

// PromptVersion identifies the prompt and schema below. Bump it on any
// change to either; it is stamped on every record that used AI output.
const PromptVersion = "cfdi-fields/2024-06.v1"

// DefaultMaxPromptChars bounds the document text sent to the model.
const DefaultMaxPromptChars = 12000

// SystemPrompt returns the fixed instructions for the mapper.
func SystemPrompt() string {
	parts := []string{
		"You read Mexican fiscal documents (CFDI invoices, printed representations and store tickets) and return ONLY a JSON object that matches the provided JSON Schema.",
		"Never add keys that are not in the schema. Use null for anything that is not printed in the text; never guess.",
		"uuid: the folio fiscal, 36 characters in 8-4-4-4-12 groups.",
		"rfc_emisor: the issuer's RFC, 12 or 13 uppercase characters. rfc_receptor: the receiver's RFC. Never use the RFC of the certification provider (PAC) or of the SAT.",
		"total, subtotal, iva: bare JSON numbers with at most two decimals, no currency symbols, no thousands separators.",
		"fecha: the issue date as YYYY-MM-DD.",
		"forma_pago: one of " + strings.Join(constants.PaymentMethodsAsStrings(), ", ") + ", or null.",
		"establecimiento: the issuer's business or trade name as printed.",
		"conceptos: the purchased line items, only when they are clearly legible.",
	}
	return strings.Join(parts, " ")
}

// UserPrompt packages the document text, truncated to maxChars runes.
func UserPrompt(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxPromptChars
	}
	text = strings.TrimSpace(text)

	var b strings.Builder
	b.WriteString("Document text:\n")
	if r := []rune(text); len(r) > maxChars {
		b.WriteString(string(r[:maxChars]))
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	b.WriteString("\n\nReturn ONLY JSON that matches the provided schema.")
	return b.String()
}

// BuildRequest assembles the fixed prompt and schema around text.
func BuildRequest(text string, maxChars int) Request {
	return Request{
		System: SystemPrompt(),
		User:   UserPrompt(text, maxChars),
		Schema: FiscalJSONSchema(),
	}
}
