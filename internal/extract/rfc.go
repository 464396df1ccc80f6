package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

const (
	rfcBody  = `[A-ZÑ&]{3,4}[0-9]{6}[A-Z0-9]{3}`
	uuidBody = `[0-9A-F]{8}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{12}`
)

var (
	// Uppercase only: lowercase look-alikes in running text are noise.
	reRFCToken = regexp.MustCompile(rfcBody)

	// "R.F.C.: X", "RFC EMISOR: X", "R.F.C. DEL CLIENTE X". Group 1 is the
	// qualifier, group 2 the RFC with optional OCR separators.
	reRFCLabeled = regexp.MustCompile(`(?i)R\.?\s?F\.?\s?C\.?` +
		`(?:\s*(?:DEL|DE\s+LA)?\s*(EMISOR|EXPEDIDO\s+POR|RECEPTOR|CLIENTE|ADQUIRIENTE|PROVEEDOR|PAC))?` +
		`\s*[:.#-]*\s*([A-ZÑ&]{3,4}[\s-]?[0-9]{6}[\s-]?[A-Z0-9]{3})`)
)

// canonicalRFC uppercases and drops whitespace and hyphens.
func canonicalRFC(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

func eligibleEmisor(rfc string) bool {
	return rfc != "" && !constants.IsPACRFC(rfc) && !constants.IsGenericRFC(rfc)
}

func eligibleReceptor(s *Scan, rfc string) bool {
	if rfc == "" || constants.IsPACRFC(rfc) {
		return false
	}
	if em, ok := s.Selected(entity.FieldRFCEmisor); ok && canonicalRFC(em) == rfc {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&'
}

// bounded reports whether text[start:end] is not glued to neighbouring
// letters or digits.
func bounded(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

// startsWord reports whether position i does not continue a preceding word.
func startsWord(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

type rfcHit struct {
	value      string
	start, end int
}

// rfcTokens returns every standalone RFC-shaped token in order of appearance.
func rfcTokens(text string) []rfcHit {
	var out []rfcHit
	for _, m := range reRFCToken.FindAllStringIndex(text, -1) {
		if bounded(text, m[0], m[1]) {
			out = append(out, rfcHit{value: text[m[0]:m[1]], start: m[0], end: m[1]})
		}
	}
	return out
}

type labeledRFC struct {
	rfcHit
	qualifier string
}

func labeledRFCs(text string) []labeledRFC {
	var out []labeledRFC
	for _, m := range reRFCLabeled.FindAllStringSubmatchIndex(text, -1) {
		if !bounded(text, m[4], m[5]) {
			continue
		}
		var q string
		if m[2] >= 0 {
			q = strings.ToUpper(strings.Join(strings.Fields(text[m[2]:m[3]]), " "))
		}
		out = append(out, labeledRFC{
			rfcHit:    rfcHit{value: canonicalRFC(text[m[4]:m[5]]), start: m[0], end: m[1]},
			qualifier: q,
		})
	}
	return out
}

func isReceiverQualifier(q string) bool {
	return q == "RECEPTOR" || q == "CLIENTE" || q == "ADQUIRIENTE"
}

var (
	labeledEmisor = strategyFunc{
		name: "labeled.rfc", field: entity.FieldRFCEmisor, priority: entity.PriorityLabeled,
		fn: func(s *Scan) (string, string, bool) {
			for _, h := range labeledRFCs(s.Text) {
				if isReceiverQualifier(h.qualifier) || h.qualifier == "PAC" {
					continue
				}
				if eligibleEmisor(h.value) {
					return h.value, snippet(s.Text, h.start, h.end), true
				}
			}
			return "", "", false
		},
	}
	labeledReceptor = strategyFunc{
		name: "labeled.rfc-receptor", field: entity.FieldRFCReceptor, priority: entity.PriorityLabeled,
		fn: func(s *Scan) (string, string, bool) {
			for _, h := range labeledRFCs(s.Text) {
				if isReceiverQualifier(h.qualifier) && eligibleReceptor(s, h.value) {
					return h.value, snippet(s.Text, h.start, h.end), true
				}
			}
			return "", "", false
		},
	}
	// With two or more RFC tokens the first eligible one is the emitter.
	genericEmisor = strategyFunc{
		name: "scan.rfc", field: entity.FieldRFCEmisor, priority: entity.PriorityGeneric,
		fn: func(s *Scan) (string, string, bool) {
			for _, h := range rfcTokens(s.Text) {
				if eligibleEmisor(h.value) {
					return h.value, snippet(s.Text, h.start, h.end), true
				}
			}
			return "", "", false
		},
	}
	// The receiver is the first remaining distinct RFC; generic placeholders
	// are accepted here.
	genericReceptor = strategyFunc{
		name: "scan.rfc-receptor", field: entity.FieldRFCReceptor, priority: entity.PriorityGeneric,
		fn: func(s *Scan) (string, string, bool) {
			for _, h := range rfcTokens(s.Text) {
				if eligibleReceptor(s, h.value) {
					return h.value, snippet(s.Text, h.start, h.end), true
				}
			}
			return "", "", false
		},
	}
)
