package constants

import (
	"slices"
	"strings"
	"unicode"

	"github.com/joseph-ayodele/fiscal-extractor/internal/textutil"
)

// PaymentMethod is the canonical payment method stored on a FiscalRecord.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "efectivo"
	PaymentCreditCard   PaymentMethod = "tarjeta_credito"
	PaymentDebitCard    PaymentMethod = "tarjeta_debito"
	PaymentBankTransfer PaymentMethod = "transferencia"
)

var allPaymentMethods = []PaymentMethod{
	PaymentCash,
	PaymentCreditCard,
	PaymentDebitCard,
	PaymentBankTransfer,
}

// PaymentMethodsAsStrings lists the canonical values, used for the model schema enum.
func PaymentMethodsAsStrings() []string {
	out := make([]string, len(allPaymentMethods))
	for i, pm := range allPaymentMethods {
		out[i] = string(pm)
	}
	return out
}

// SAT "c_FormaPago" catalog codes that map onto a canonical method.
var satFormaPago = map[string]PaymentMethod{
	"01": PaymentCash,
	"03": PaymentBankTransfer,
	"04": PaymentCreditCard,
	"28": PaymentDebitCard,
}

// Keyword groups are checked in order: debit before the generic "tarjeta" bucket,
// otherwise "tarjeta de debito" would land on credit.
var paymentKeywords = []struct {
	method   PaymentMethod
	keywords []string
}{
	{PaymentDebitCard, []string{"debito", "debit"}},
	{PaymentCreditCard, []string{"credito", "credit"}},
	{PaymentBankTransfer, []string{"transferencia", "transfer", "spei"}},
	{PaymentCash, []string{"efectivo", "cash"}},
	{PaymentCreditCard, []string{"tarjeta", "card", "visa", "mastercard", "master card", "amex", "american express"}},
}

// CanonicalPayment maps free text or a SAT catalog code to a canonical method.
// Unmapped input returns ("", false); callers must not guess.
func CanonicalPayment(input string) (PaymentMethod, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}
	if pm, ok := satFormaPago[leadingCode(s)]; ok {
		return pm, true
	}
	return PaymentKeyword(s)
}

// PaymentKeyword maps free text by synonym only, ignoring SAT codes. Synonyms
// match whole words, so it is safe to run over arbitrary ticket lines.
func PaymentKeyword(input string) (PaymentMethod, bool) {
	folded := textutil.Fold(strings.TrimSpace(input))
	if folded == "" {
		return "", false
	}
	for _, pm := range allPaymentMethods {
		if folded == string(pm) {
			return pm, true
		}
	}
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, group := range paymentKeywords {
		for _, kw := range group.keywords {
			if containsPhrase(words, strings.Fields(kw)) {
				return group.method, true
			}
		}
	}
	return "", false
}

// containsPhrase reports whether phrase occurs in words as whole, consecutive
// tokens, so "visa" matches "PAGO VISA" but not "REVISADO".
func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	for i := 0; i+len(phrase) <= len(words); i++ {
		if slices.Equal(words[i:i+len(phrase)], phrase) {
			return true
		}
	}
	return false
}

// leadingCode returns a two-digit SAT code at the start of s ("04 - Tarjeta"), or "".
func leadingCode(s string) string {
	if len(s) < 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return ""
	}
	if len(s) > 2 && s[2] >= '0' && s[2] <= '9' {
		return ""
	}
	return s[:2]
}
