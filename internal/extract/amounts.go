package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

// amount matches "4,139.19", "4 139.19", "4139.19", "4139", "4.139,19".
const amount = `([0-9]{1,3}(?:[, .][0-9]{3})+(?:[.,][0-9]{1,2})?|[0-9]+(?:[.,][0-9]{1,2})?)`

// currency tolerates "MXN", "M.N.", "$" and colons between label and value.
const currency = `\s*[:=]?\s*(?:\(?(?:MXN|M\.?N\.?|PESOS)\)?)?\s*[:=]?\s*\$?\s*`

var (
	reTotalAPagar   = regexp.MustCompile(`(?i)TOTAL\s+A\s+PAGAR` + currency + amount)
	reImporteTotal  = regexp.MustCompile(`(?i)IMPORTE\s+TOTAL` + currency + amount)
	reTotalLabel    = regexp.MustCompile(`(?i)TOTAL` + currency + amount)
	reDollarAmount  = regexp.MustCompile(`\$\s*([0-9]{1,3}(?:,[0-9]{3})+\.[0-9]{2}|[0-9]+\.[0-9]{2})`)
	reSubtotalLabel = regexp.MustCompile(`(?i)SUB\s*-?\s*TOTAL` + currency + amount)
	// The optional rate group keeps "IVA 16% $16.00" from yielding 16.
	reIVALabel = regexp.MustCompile(`(?i)I\.?\s?V\.?\s?A\.?` +
		`(?:\s*(?:TRASLADADO|TASA)?\s*\(?\s*(?:16|8|0)(?:\.0+)?\s*%\s*\)?)?` + currency + amount)
	reTrasladados = regexp.MustCompile(`(?i)(?:TOTAL\s+DE\s+)?IMPUESTOS\s+TRASLADADOS` + currency + amount)

	reCurrencyMark  = regexp.MustCompile(`(?i)\$|MXN|M\.?N\.?|PESOS`)
	reCurrencyAfter = regexp.MustCompile(`(?i)^(?:MXN|M\.?N\.?|PESOS)(?:[^A-Za-z]|$)`)
)

// parseAmount reads a printed amount. A lone comma followed by one or two
// digits, or a comma after the last dot, is a decimal comma.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	if lastComma > lastDot && len(s)-lastComma-1 <= 2 {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, " ", "")
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
		s = strings.ReplaceAll(s, " ", "")
		if strings.Count(s, ".") > 1 {
			// "4.139.000" style grouping.
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// plausible enforces 0 < value < 10,000,000.
func plausible(d decimal.Decimal) bool {
	return d.GreaterThan(constants.MinPlausibleAmount) && d.LessThan(constants.MaxPlausibleAmount)
}

// precededBySub reports whether the match at start is the tail of "SUBTOTAL".
func precededBySub(text string, start int) bool {
	head := strings.TrimRight(strings.ToUpper(text[:start]), " -")
	return strings.HasSuffix(head, "SUB")
}

// nonNegative admits a zero tax line.
func nonNegative(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThan(constants.MaxPlausibleAmount)
}

// moneyShaped rejects counts printed under a bare TOTAL label ("TOTAL 2
// ARTICULOS"): the amount must carry a separator or a currency mark, and
// must not run into a word other than a currency name.
func moneyShaped(text string, m []int) bool {
	rest := strings.TrimLeft(text[m[3]:], " \t")
	currencyAfter := reCurrencyAfter.MatchString(rest)
	if r, _ := utf8.DecodeRuneInString(rest); unicode.IsLetter(r) && !currencyAfter {
		return false
	}
	return strings.ContainsAny(text[m[2]:m[3]], ".,") ||
		reCurrencyMark.MatchString(text[m[0]:m[2]]) ||
		currencyAfter
}

// labeledAmount returns the first accepted amount after re, optionally
// rejecting matches whose label is glued to a preceding word. Every guard
// must accept the match.
func labeledAmount(re *regexp.Regexp, standalone bool, accept func(decimal.Decimal) bool, guards ...func(text string, m []int) bool) func(s *Scan) (string, string, bool) {
	return func(s *Scan) (string, string, bool) {
	matches:
		for _, m := range re.FindAllStringSubmatchIndex(s.Text, -1) {
			if standalone && (precededBySub(s.Text, m[0]) || !startsWord(s.Text, m[0])) {
				continue
			}
			for _, guard := range guards {
				if !guard(s.Text, m) {
					continue matches
				}
			}
			d, ok := parseAmount(s.Text[m[2]:m[3]])
			if ok && accept(d) {
				return d.String(), snippet(s.Text, m[0], m[1]), true
			}
		}
		return "", "", false
	}
}

var (
	totalAPagar = strategyFunc{
		name: "labeled.total-a-pagar", field: entity.FieldTotal, priority: entity.PriorityLabeled,
		fn: labeledAmount(reTotalAPagar, false, plausible),
	}
	importeTotal = strategyFunc{
		name: "labeled.importe-total", field: entity.FieldTotal, priority: entity.PriorityLabeled,
		fn: labeledAmount(reImporteTotal, false, plausible),
	}
	labeledTotal = strategyFunc{
		name: "labeled.total", field: entity.FieldTotal, priority: entity.PriorityLabeled,
		fn: labeledAmount(reTotalLabel, true, plausible, moneyShaped),
	}
	lastDollarAmount = strategyFunc{
		name: "scan.last-dollar-amount", field: entity.FieldTotal, priority: entity.PriorityFallback,
		fn: func(s *Scan) (string, string, bool) {
			ms := reDollarAmount.FindAllStringSubmatchIndex(s.Text, -1)
			for i := len(ms) - 1; i >= 0; i-- {
				m := ms[i]
				d, ok := parseAmount(s.Text[m[2]:m[3]])
				if ok && plausible(d) {
					return d.String(), snippet(s.Text, m[0], m[1]), true
				}
			}
			return "", "", false
		},
	}
	labeledSubtotal = strategyFunc{
		name: "labeled.subtotal", field: entity.FieldSubtotal, priority: entity.PriorityLabeled,
		fn: labeledAmount(reSubtotalLabel, false, plausible),
	}
	labeledIVA = strategyFunc{
		name: "labeled.iva", field: entity.FieldIVA, priority: entity.PriorityLabeled,
		fn: labeledAmount(reIVALabel, true, nonNegative),
	}
	trasladadosIVA = strategyFunc{
		name: "labeled.impuestos-trasladados", field: entity.FieldIVA, priority: entity.PriorityGeneric,
		fn: labeledAmount(reTrasladados, false, nonNegative),
	}
)
