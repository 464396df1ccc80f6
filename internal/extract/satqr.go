package extract

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

// The SAT verification URL printed (and QR-encoded) on every CFDI
// representation carries the emitter, receiver, total and UUID as query
// parameters: ?id=<uuid>&re=<rfc>&rr=<rfc>&tt=<total>&fe=<seal tail>.
var (
	reSATEmisor   = regexp.MustCompile(`(?i)(?:^|[?&;\s])RE=(` + rfcBody + `)`)
	reSATReceptor = regexp.MustCompile(`(?i)(?:^|[?&;\s])RR=(` + rfcBody + `)`)
	reSATTotal    = regexp.MustCompile(`(?i)(?:^|[?&;\s])TT=([0-9][0-9,]*(?:\.[0-9]+)?)`)
	reSATUUID     = regexp.MustCompile(`(?i)(?:^|[?&;\s])ID=(` + uuidBody + `)`)
)

// urlText undoes the escaping a querystring picks up in HTML or OCR output.
func urlText(s *Scan) string {
	if !strings.Contains(s.Text, "%26") && !strings.Contains(s.Text, "&amp;") {
		return s.Text
	}
	r := strings.NewReplacer("&amp;", "&", "%26", "&", "%2526", "&")
	return r.Replace(s.Text)
}

func satParam(re *regexp.Regexp) func(s *Scan) (string, string, bool) {
	return func(s *Scan) (string, string, bool) {
		text := urlText(s)
		m := re.FindStringSubmatchIndex(text)
		if m == nil {
			return "", "", false
		}
		return text[m[2]:m[3]], snippet(text, m[0], m[1]), true
	}
}

var (
	satUUID = strategyFunc{
		name: "sat-url.id", field: entity.FieldUUID, priority: entity.PrioritySATURL,
		fn: satParam(reSATUUID),
	}
	satEmisor = strategyFunc{
		name: "sat-url.re", field: entity.FieldRFCEmisor, priority: entity.PrioritySATURL,
		fn: func(s *Scan) (string, string, bool) {
			v, snip, ok := satParam(reSATEmisor)(s)
			if !ok || !eligibleEmisor(canonicalRFC(v)) {
				return "", "", false
			}
			return v, snip, true
		},
	}
	satReceptor = strategyFunc{
		name: "sat-url.rr", field: entity.FieldRFCReceptor, priority: entity.PrioritySATURL,
		fn: func(s *Scan) (string, string, bool) {
			v, snip, ok := satParam(reSATReceptor)(s)
			if !ok || !eligibleReceptor(s, canonicalRFC(v)) {
				return "", "", false
			}
			return v, snip, true
		},
	}
	satTotal = strategyFunc{
		name: "sat-url.tt", field: entity.FieldTotal, priority: entity.PrioritySATURL,
		fn: func(s *Scan) (string, string, bool) {
			v, snip, ok := satParam(reSATTotal)(s)
			if !ok {
				return "", "", false
			}
			amt, ok := parseAmount(v)
			if !ok || !plausible(amt) {
				return "", "", false
			}
			return amt.String(), snip, true
		},
	}
)
