package entity

import (
	"github.com/google/uuid"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
)

// documentNamespace scopes content-derived document IDs.
var documentNamespace = uuid.MustParse("5b0f3c7e-8f0e-4b7a-9a55-2f1d7c3e9a10")

// RawDocument is the caller-owned input of a run. The pipeline only reads it.
type RawDocument struct {
	ID             string `json:"id"`
	MIMEType       string `json:"mime_type,omitempty"`
	Content        []byte `json:"-"`
	SourceFilename string `json:"source_filename,omitempty"`
}

// NewRawDocument builds a RawDocument whose ID is derived from the content,
// so byte-identical inputs always carry the same ID.
func NewRawDocument(content []byte, mimeType, filename string) RawDocument {
	return RawDocument{
		ID:             uuid.NewSHA1(documentNamespace, content).String(),
		MIMEType:       mimeType,
		Content:        content,
		SourceFilename: filename,
	}
}

// AcquisitionMethod names how the text of a document was obtained.
type AcquisitionMethod string

const (
	AcquiredFromXML     AcquisitionMethod = "xml-attr"
	AcquiredFromPDFText AcquisitionMethod = "pdf-text"
	AcquiredFromOCR     AcquisitionMethod = "ocr"
)

// AcquiredText is derived once per RawDocument. Callers may cache it.
type AcquiredText struct {
	Kind          constants.DocumentKind `json:"kind"`
	Text          string                 `json:"text"`
	Method        AcquisitionMethod      `json:"method"`
	OCRConfidence *float64               `json:"ocr_confidence,omitempty"`
	Pages         int                    `json:"pages"`
	Warnings      []string               `json:"warnings,omitempty"`

	// Structured holds xml-attr candidates for CFDI XML input.
	Structured []FieldCandidate `json:"structured,omitempty"`
	Conceptos  []Concepto       `json:"conceptos,omitempty"`
}

// UsedOCR reports whether the text came out of the OCR engine.
func (a AcquiredText) UsedOCR() bool {
	return a.Method == AcquiredFromOCR
}
