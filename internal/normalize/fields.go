package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
	"github.com/joseph-ayodele/fiscal-extractor/internal/textutil"
)

var (
	reRFC  = regexp.MustCompile(`^[A-ZÑ&]{3,4}[0-9]{6}[A-Z0-9]{3}$`)
	reUUID = regexp.MustCompile(`^[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}$`)
	reHex  = regexp.MustCompile(`^[0-9A-Fa-f]{32}$`)

	reDMY = regexp.MustCompile(`^([0-9]{1,2})([/-])([0-9]{1,2})([/-])([0-9]{4})$`)
	reYMD = regexp.MustCompile(`^([0-9]{4})([/-])([0-9]{1,2})([/-])([0-9]{1,2})$`)
)

const maxNameLength = 120

func invalid(f entity.Field, value, msg string) *common.ValidationError {
	return &common.ValidationError{Field: string(f), Value: value, Message: msg}
}

// RFC uppercases, strips whitespace and hyphens and checks the RFC shape.
func RFC(raw string) (string, bool) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return unicode.ToUpper(r)
	}, raw)
	if !reRFC.MatchString(s) {
		return "", false
	}
	return s, true
}

// UUID accepts the 8-4-4-4-12 form, tolerating OCR spaces for hyphens or a
// bare 32-digit run. Letter case is kept as printed.
func UUID(raw string) (string, bool) {
	s := strings.Join(strings.Fields(strings.TrimSpace(raw)), "-")
	if reUUID.MatchString(s) {
		return s, true
	}
	compact := strings.ReplaceAll(s, "-", "")
	if reHex.MatchString(compact) {
		s = compact[0:8] + "-" + compact[8:12] + "-" + compact[12:16] + "-" + compact[16:20] + "-" + compact[20:]
		return s, true
	}
	return "", false
}

// Date normalizes DD/MM/YYYY, DD-MM-YYYY, YYYY-MM-DD and YYYY/MM/DD to
// YYYY-MM-DD. A trailing time ("2024-03-05T12:30:00", "05/03/2024 12:30") is
// dropped. Separators must match and the date must exist.
func Date(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "T "); i > 0 {
		s = s[:i]
	}
	var y, m, d string
	if p := reYMD.FindStringSubmatch(s); p != nil && p[2] == p[4] {
		y, m, d = p[1], p[3], p[5]
	} else if p := reDMY.FindStringSubmatch(s); p != nil && p[2] == p[4] {
		d, m, y = p[1], p[3], p[5]
	} else {
		return "", false
	}
	yi, _ := strconv.Atoi(y)
	mi, _ := strconv.Atoi(m)
	di, _ := strconv.Atoi(d)
	t := time.Date(yi, time.Month(mi), di, 0, 0, 0, 0, time.UTC)
	if t.Year() != yi || int(t.Month()) != mi || t.Day() != di || yi < 1990 || yi > 2100 {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// Amount parses a plain decimal, tolerating "$", thousands commas and spaces.
func Amount(raw string) (entity.Money, bool) {
	s := strings.NewReplacer("$", "", ",", "", " ", "", "MXN", "").Replace(strings.ToUpper(strings.TrimSpace(raw)))
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() || !d.LessThan(constants.MaxPlausibleAmount) {
		return entity.Money{}, false
	}
	return entity.NewMoney(d), true
}

// Payment maps free text or a SAT code onto a canonical method.
func Payment(raw string) (string, bool) {
	pm, ok := constants.CanonicalPayment(raw)
	return string(pm), ok
}

// Name collapses whitespace and caps the length of a business name.
func Name(raw string) (string, bool) {
	s := strings.Join(strings.Fields(raw), " ")
	s = strings.Trim(s, " .,:;-*=#")
	if len([]rune(s)) < 2 {
		return "", false
	}
	return textutil.Truncate(s, maxNameLength), true
}

// Canonical returns the normalized string for one field value.
func Canonical(f entity.Field, raw string) (string, *common.ValidationError) {
	switch f {
	case entity.FieldRFCEmisor:
		v, ok := RFC(raw)
		if !ok {
			return "", invalid(f, raw, "must match the RFC shape")
		}
		if constants.IsPACRFC(v) || constants.IsGenericRFC(v) {
			return "", invalid(f, raw, "certifier or generic RFC cannot be the issuer")
		}
		return v, nil
	case entity.FieldRFCReceptor:
		v, ok := RFC(raw)
		if !ok {
			return "", invalid(f, raw, "must match the RFC shape")
		}
		if constants.IsPACRFC(v) {
			return "", invalid(f, raw, "certifier RFC cannot be the recipient")
		}
		return v, nil
	case entity.FieldUUID:
		if v, ok := UUID(raw); ok {
			return v, nil
		}
		return "", invalid(f, raw, "must be an 8-4-4-4-12 hexadecimal UUID")
	case entity.FieldFecha:
		if v, ok := Date(raw); ok {
			return v, nil
		}
		return "", invalid(f, raw, "unrecognized date format")
	case entity.FieldTotal, entity.FieldSubtotal:
		if m, ok := Amount(raw); ok && m.Decimal().GreaterThan(constants.MinPlausibleAmount) {
			return m.String(), nil
		}
		return "", invalid(f, raw, "must be a positive amount below 10,000,000")
	case entity.FieldIVA:
		if m, ok := Amount(raw); ok {
			return m.String(), nil
		}
		return "", invalid(f, raw, "must be a non-negative amount below 10,000,000")
	case entity.FieldFormaPago:
		if v, ok := Payment(raw); ok {
			return v, nil
		}
		return "", invalid(f, raw, "unmapped payment method")
	case entity.FieldEstablecimiento:
		if v, ok := Name(raw); ok {
			return v, nil
		}
		return "", invalid(f, raw, "empty name")
	}
	return "", invalid(f, raw, "unknown field")
}
