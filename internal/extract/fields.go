package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

const dateBody = `([0-9]{1,2}[/-][0-9]{1,2}[/-][0-9]{4}|[0-9]{4}[/-][0-9]{1,2}[/-][0-9]{1,2})`

var (
	reUUIDToken   = regexp.MustCompile(`(?i)` + uuidBody)
	reUUIDLabeled = regexp.MustCompile(`(?i)(?:FOLIO\s+FISCAL|UUID)\s*(?:\(UUID\))?\s*[:.#]?\s*` +
		`([0-9A-F]{8}[\s-]?[0-9A-F]{4}[\s-]?[0-9A-F]{4}[\s-]?[0-9A-F]{4}[\s-]?[0-9A-F]{12})`)

	reFechaLabeled = regexp.MustCompile(`(?i)FECHA(?:\s+(?:Y\s+HORA\s+)?DE\s+(?:EMISI[OÓ]N|EXPEDICI[OÓ]N|COMPRA|VENTA))?\s*[:.]?\s*` + dateBody)
	reDateToken    = regexp.MustCompile(dateBody)

	reFormaPago  = regexp.MustCompile(`(?i)FORMA\s+DE\s+PAGO\s*[:.]?\s*([^\r\n]{1,60})`)
	reMetodoPago = regexp.MustCompile(`(?i)M[EÉ]TODO\s+DE\s+PAGO\s*[:.]?\s*([^\r\n]{1,60})`)

	reEstablecimiento = regexp.MustCompile(`(?i)(?:RAZ[OÓ]N\s+SOCIAL|NOMBRE\s+DEL\s+EMISOR|ESTABLECIMIENTO|SUCURSAL)\s*[:.]\s*([^\r\n]{3,80})`)
)

var (
	labeledUUID = strategyFunc{
		name: "labeled.folio-fiscal", field: entity.FieldUUID, priority: entity.PriorityLabeled,
		fn: func(s *Scan) (string, string, bool) {
			m := reUUIDLabeled.FindStringSubmatchIndex(s.Text)
			if m == nil {
				return "", "", false
			}
			return s.Text[m[2]:m[3]], snippet(s.Text, m[0], m[1]), true
		},
	}
	genericUUID = strategyFunc{
		name: "scan.uuid", field: entity.FieldUUID, priority: entity.PriorityGeneric,
		fn: func(s *Scan) (string, string, bool) {
			for _, m := range reUUIDToken.FindAllStringIndex(s.Text, -1) {
				if bounded(s.Text, m[0], m[1]) {
					return s.Text[m[0]:m[1]], snippet(s.Text, m[0], m[1]), true
				}
			}
			return "", "", false
		},
	}

	labeledFecha = strategyFunc{
		name: "labeled.fecha", field: entity.FieldFecha, priority: entity.PriorityLabeled,
		fn: func(s *Scan) (string, string, bool) {
			m := reFechaLabeled.FindStringSubmatchIndex(s.Text)
			if m == nil {
				return "", "", false
			}
			return s.Text[m[2]:m[3]], snippet(s.Text, m[0], m[1]), true
		},
	}
	genericFecha = strategyFunc{
		name: "scan.fecha", field: entity.FieldFecha, priority: entity.PriorityGeneric,
		fn: func(s *Scan) (string, string, bool) {
			for _, m := range reDateToken.FindAllStringIndex(s.Text, -1) {
				if bounded(s.Text, m[0], m[1]) {
					return s.Text[m[0]:m[1]], snippet(s.Text, m[0], m[1]), true
				}
			}
			return "", "", false
		},
	}

	// FORMA DE PAGO names the instrument; METODO DE PAGO usually carries
	// PUE/PPD, so it only counts when it maps to a known method.
	labeledFormaPago = strategyFunc{
		name: "labeled.forma-pago", field: entity.FieldFormaPago, priority: entity.PriorityLabeled,
		fn: func(s *Scan) (string, string, bool) {
			for _, re := range []*regexp.Regexp{reFormaPago, reMetodoPago} {
				for _, m := range re.FindAllStringSubmatchIndex(s.Text, -1) {
					v := strings.TrimSpace(s.Text[m[2]:m[3]])
					if _, ok := constants.CanonicalPayment(v); ok {
						return v, snippet(s.Text, m[0], m[1]), true
					}
				}
			}
			return "", "", false
		},
	}
	keywordFormaPago = strategyFunc{
		name: "scan.forma-pago", field: entity.FieldFormaPago, priority: entity.PriorityGeneric,
		fn: func(s *Scan) (string, string, bool) {
			offset := 0
			for _, line := range strings.SplitAfter(s.Text, "\n") {
				trimmed := strings.TrimSpace(line)
				if trimmed != "" && !hasSATURL(trimmed) {
					if pm, ok := constants.PaymentKeyword(trimmed); ok {
						return string(pm), snippet(s.Text, offset, offset+len(line)), true
					}
				}
				offset += len(line)
			}
			return "", "", false
		},
	}

	labeledEstablecimiento = strategyFunc{
		name: "labeled.establecimiento", field: entity.FieldEstablecimiento, priority: entity.PriorityLabeled,
		fn: func(s *Scan) (string, string, bool) {
			m := reEstablecimiento.FindStringSubmatchIndex(s.Text)
			if m == nil {
				return "", "", false
			}
			return cleanName(s.Text[m[2]:m[3]]), snippet(s.Text, m[0], m[1]), true
		},
	}
	// Tickets print the business name on the first line.
	headerEstablecimiento = strategyFunc{
		name: "scan.header-line", field: entity.FieldEstablecimiento, priority: entity.PriorityFallback,
		fn: func(s *Scan) (string, string, bool) {
			offset := 0
			for i, line := range strings.SplitAfter(s.Text, "\n") {
				if i >= 5 {
					break
				}
				if name := cleanName(line); looksLikeName(name) {
					return name, snippet(s.Text, offset, offset+len(line)), true
				}
				offset += len(line)
			}
			return "", "", false
		},
	}
)

func hasSATURL(line string) bool {
	l := strings.ToLower(line)
	return strings.Contains(l, "http") || strings.Contains(l, "sat.gob.mx")
}

func cleanName(s string) string {
	return strings.Trim(strings.Join(strings.Fields(s), " "), " .,:;-*=#")
}

// headerNoise are words that start non-name header lines.
var headerNoise = []string{"RFC", "R.F.C", "FECHA", "TICKET", "FOLIO", "FACTURA", "CFDI", "HTTP", "WWW", "TEL", "UUID", "SERIE"}

func looksLikeName(s string) bool {
	if len(s) < 3 || len(s) > 80 || hasSATURL(s) {
		return false
	}
	up := strings.ToUpper(s)
	for _, w := range headerNoise {
		if strings.HasPrefix(up, w) {
			return false
		}
	}
	letters, digits := 0, 0
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		}
	}
	return letters >= 3 && letters > digits
}
