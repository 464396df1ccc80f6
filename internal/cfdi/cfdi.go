// Package cfdi reads the handful of attributes the pipeline needs out of a
// CFDI XML document. It is not a schema validator.
package cfdi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

// Tags carry no namespace so cfdi 3.3 and 4.0 documents both match.
// The lowercase attributes are the 3.2 spelling.
type Comprobante struct {
	XMLName     xml.Name    `xml:"Comprobante"`
	Version     string      `xml:"Version,attr"`
	Fecha       string      `xml:"Fecha,attr"`
	SubTotal    string      `xml:"SubTotal,attr"`
	Total       string      `xml:"Total,attr"`
	FormaPago   string      `xml:"FormaPago,attr"`
	Moneda      string      `xml:"Moneda,attr"`
	LegacyFecha string      `xml:"fecha,attr"`
	LegacySub   string      `xml:"subTotal,attr"`
	LegacyTotal string      `xml:"total,attr"`
	LegacyPago  string      `xml:"formaDePago,attr"`
	Emisor      Party       `xml:"Emisor"`
	Receptor    Party       `xml:"Receptor"`
	Conceptos   []Concepto  `xml:"Conceptos>Concepto"`
	Impuestos   Impuestos   `xml:"Impuestos"`
	Complemento Complemento `xml:"Complemento"`
}

type Party struct {
	Rfc        string `xml:"Rfc,attr"`
	Nombre     string `xml:"Nombre,attr"`
	LegacyRfc  string `xml:"rfc,attr"`
	LegacyName string `xml:"nombre,attr"`
}

type Concepto struct {
	ClaveProdServ string `xml:"ClaveProdServ,attr"`
	Cantidad      string `xml:"Cantidad,attr"`
	Descripcion   string `xml:"Descripcion,attr"`
	ValorUnitario string `xml:"ValorUnitario,attr"`
	Importe       string `xml:"Importe,attr"`
}

type Impuestos struct {
	TotalImpuestosTrasladados string `xml:"TotalImpuestosTrasladados,attr"`
	LegacyTotal               string `xml:"totalImpuestosTrasladados,attr"`
}

type Complemento struct {
	Timbres []TimbreFiscalDigital `xml:"TimbreFiscalDigital"`
}

type TimbreFiscalDigital struct {
	UUID          string `xml:"UUID,attr"`
	FechaTimbrado string `xml:"FechaTimbrado,attr"`
	RfcProvCertif string `xml:"RfcProvCertif,attr"`
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "utf8", "utf-8":
		return input, nil
	}
	return nil, fmt.Errorf("unsupported charset %q", label)
}

// Parse decodes a CFDI document. A root element other than Comprobante is
// an UNSUPPORTED_FORMAT error.
func Parse(content []byte) (*Comprobante, error) {
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.CharsetReader = charsetReader

	var c Comprobante
	if err := dec.Decode(&c); err != nil {
		return nil, common.NewError(common.KindUnsupportedFormat, "not a CFDI Comprobante", err)
	}
	return &c, nil
}

func first(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Candidates turns the parsed attributes into xml-attr candidates.
func (c *Comprobante) Candidates() []entity.FieldCandidate {
	var out []entity.FieldCandidate
	add := func(f entity.Field, value, attr string) {
		if value == "" {
			return
		}
		out = append(out, entity.FieldCandidate{
			Field:         f,
			Value:         value,
			Method:        entity.MethodXMLAttr,
			Priority:      entity.PriorityXMLAttr,
			SourceSnippet: attr + `="` + value + `"`,
			Strategy:      "cfdi." + attr,
		})
	}

	if len(c.Complemento.Timbres) > 0 {
		add(entity.FieldUUID, first(c.Complemento.Timbres[0].UUID), "TimbreFiscalDigital@UUID")
	}
	add(entity.FieldRFCEmisor, first(c.Emisor.Rfc, c.Emisor.LegacyRfc), "Emisor@Rfc")
	add(entity.FieldRFCReceptor, first(c.Receptor.Rfc, c.Receptor.LegacyRfc), "Receptor@Rfc")
	add(entity.FieldTotal, first(c.Total, c.LegacyTotal), "Total")
	add(entity.FieldSubtotal, first(c.SubTotal, c.LegacySub), "SubTotal")
	add(entity.FieldIVA, first(c.Impuestos.TotalImpuestosTrasladados, c.Impuestos.LegacyTotal), "Impuestos@TotalImpuestosTrasladados")
	add(entity.FieldFecha, first(c.Fecha, c.LegacyFecha), "Fecha")
	add(entity.FieldFormaPago, first(c.FormaPago, c.LegacyPago), "FormaPago")
	add(entity.FieldEstablecimiento, first(c.Emisor.Nombre, c.Emisor.LegacyName), "Emisor@Nombre")
	return out
}

// LineItems converts Conceptos, skipping lines whose amounts do not parse.
func (c *Comprobante) LineItems() []entity.Concepto {
	out := make([]entity.Concepto, 0, len(c.Conceptos))
	for _, cc := range c.Conceptos {
		qty, err := decimal.NewFromString(first(cc.Cantidad, "1"))
		if err != nil {
			continue
		}
		unit, err1 := entity.ParseMoney(first(cc.ValorUnitario, "0"))
		imp, err2 := entity.ParseMoney(first(cc.Importe, "0"))
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, entity.Concepto{
			Descripcion:   strings.TrimSpace(cc.Descripcion),
			Cantidad:      qty,
			ValorUnitario: unit,
			Importe:       imp,
			ClaveProdServ: cc.ClaveProdServ,
		})
	}
	return out
}

// Acquire parses content and returns the structured acquisition result.
func Acquire(content []byte) (entity.AcquiredText, error) {
	c, err := Parse(content)
	if err != nil {
		return entity.AcquiredText{}, err
	}
	acq := entity.AcquiredText{
		Kind:       constants.XML,
		Text:       string(bytes.TrimSpace(content)),
		Method:     entity.AcquiredFromXML,
		Pages:      1,
		Structured: c.Candidates(),
		Conceptos:  c.LineItems(),
	}
	if len(c.Complemento.Timbres) == 0 {
		acq.Warnings = append(acq.Warnings, "cfdi has no TimbreFiscalDigital; document is not stamped")
	}
	return acq, nil
}
