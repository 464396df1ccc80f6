package constants

import "github.com/shopspring/decimal"

// DefaultVATRate is the Mexican IVA general rate used to back-compute subtotal/iva.
var DefaultVATRate = decimal.RequireFromString("0.16")

// Plausible amount window for a single fiscal document (exclusive on both ends).
var (
	MinPlausibleAmount = decimal.Zero
	MaxPlausibleAmount = decimal.NewFromInt(10_000_000)
)

// ReconcileTolerance is the maximum |subtotal + iva - total| accepted as consistent.
var ReconcileTolerance = decimal.RequireFromString("0.01")

// MinTextLayerLength is the minimum trimmed length of a PDF text layer before the
// document is treated as a scan and routed through OCR.
const MinTextLayerLength = 40

// ImageConfidenceThreshold flags OCR transcripts that need manual review.
const ImageConfidenceThreshold = 0.6

// PACRFCs are certification providers (PACs) whose RFC is printed on every stamped
// CFDI. They are never a transacting party.
var PACRFCs = map[string]struct{}{
	"SAT970701NN3": {}, // Servicio de Administracion Tributaria
	"AAA010101AAA": {}, // SAT test certificate RFC
	"SPR190613I52": {}, // Solucion Factible
	"LSO1306189R5": {}, // Edicom
	"DEM8801152E9": {}, // Diverza
	"FIN1203015JA": {}, // Finkok
	"MAS0810247C0": {}, // Mas Facturacion
	"SNF171020F3A": {}, // SW Sapien
	"EME000602QR9": {}, // Expide tu factura
	"CVD110412TF6": {}, // Comercio Digital
	"INT020124V62": {}, // Interfactura
	"TLE011122SC2": {}, // Tralix
	"ACO560518KW7": {}, // Atencion al contribuyente test PAC
	"ASE0209252Q1": {}, // Aspel
	"TSP080724QW6": {}, // Timbrado Servicios Profesionales
	"SFE0807172W7": {}, // Servicios de Facturacion Electronica
	"CCC1007293K0": {}, // Certificacion CFDI
	"QAD0311189Y5": {}, // Quadrum
}

// GenericRFCs are placeholder RFCs. They are accepted as receiver only.
var GenericRFCs = map[string]struct{}{
	"XAXX010101000": {}, // publico en general
	"XEXX010101000": {}, // residente en el extranjero
}

// IsPACRFC reports whether rfc belongs to a certification provider.
func IsPACRFC(rfc string) bool {
	_, ok := PACRFCs[rfc]
	return ok
}

// IsGenericRFC reports whether rfc is a public-at-large/foreign placeholder.
func IsGenericRFC(rfc string) bool {
	_, ok := GenericRFCs[rfc]
	return ok
}
