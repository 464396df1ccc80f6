package ocr

import (
	"regexp"
	"strings"
)

var (
	reDate   = regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}\b|\b20\d{2}-\d{2}-\d{2}\b`)
	reCurr   = regexp.MustCompile(`\$|\bmxn\b|\bpesos\b`)
	reAmount = regexp.MustCompile(`\b\d{1,3}(,\d{3})*\.\d{2}\b|\b\d+\.\d{2}\b`)
	reRFCish = regexp.MustCompile(`\b[a-zñ&]{3,4}\d{6}[a-z0-9]{3}\b`)
	reFiscal = regexp.MustCompile(`\b(total|subtotal|iva|r\.?f\.?c\.?|folio)\b`)
)

// heuristicConfidence scores a transcript by how much it looks like a fiscal
// document: a base plus bonuses for dates, currency, amounts, RFC-shaped
// tokens and fiscal labels.
func heuristicConfidence(txt string) float64 {
	txtL := strings.ToLower(txt)
	score := 0.2
	if reDate.MatchString(txtL) {
		score += 0.15
	}
	if reCurr.MatchString(txtL) {
		score += 0.1
	}
	if reAmount.MatchString(txtL) {
		score += 0.15
	}
	if reRFCish.MatchString(txtL) {
		score += 0.15
	}
	if reFiscal.MatchString(txtL) {
		score += 0.1
	}
	if len(txt) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// blendConfidence weights the engine score higher when one is present.
func blendConfidence(engine *float64, txt string) float64 {
	heur := heuristicConfidence(txt)
	if engine == nil || *engine <= 0 {
		return heur
	}
	c := 0.7*(*engine) + 0.3*heur
	if c > 1.0 {
		c = 1.0
	}
	return c
}
