// Package classify decides whether a document is CFDI XML, a PDF or an image.
package classify

import (
	"bytes"
	"path/filepath"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type signature struct {
	kind  constants.DocumentKind
	match func(b []byte) bool
}

func prefix(p string) func([]byte) bool {
	return func(b []byte) bool { return bytes.HasPrefix(b, []byte(p)) }
}

// signatures are tried in order against the first bytes of the content.
var signatures = []signature{
	{constants.PDF, prefix("%PDF-")},
	{constants.IMAGE, prefix("\xFF\xD8\xFF")},
	{constants.IMAGE, prefix("\x89PNG\r\n\x1a\n")},
	{constants.IMAGE, prefix("GIF87a")},
	{constants.IMAGE, prefix("GIF89a")},
	{constants.IMAGE, prefix("II*\x00")},
	{constants.IMAGE, prefix("MM\x00*")},
	{constants.IMAGE, prefix("BM")},
	{constants.IMAGE, func(b []byte) bool {
		return len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP"))
	}},
	{constants.IMAGE, IsHEIF},
	{constants.XML, looksLikeXML},
}

var heifBrands = [][]byte{
	[]byte("heic"), []byte("heix"), []byte("hevc"), []byte("hevx"),
	[]byte("heim"), []byte("heis"), []byte("mif1"), []byte("msf1"),
}

// IsHEIF reports whether b starts an HEIC/HEIF container.
func IsHEIF(b []byte) bool {
	if len(b) < 12 || !bytes.Equal(b[4:8], []byte("ftyp")) {
		return false
	}
	for _, brand := range heifBrands {
		if bytes.Equal(b[8:12], brand) {
			return true
		}
	}
	return false
}

func looksLikeXML(b []byte) bool {
	b = bytes.TrimPrefix(b, utf8BOM)
	b = bytes.TrimLeft(b, " \t\r\n")
	if bytes.HasPrefix(b, []byte("<?xml")) {
		return true
	}
	// CFDI files without a prolog still open with the Comprobante element.
	if len(b) > 64 {
		b = b[:64]
	}
	return bytes.HasPrefix(b, []byte("<")) && bytes.Contains(b, []byte("Comprobante"))
}

// Sniff inspects the content alone.
func Sniff(content []byte) (constants.DocumentKind, bool) {
	for _, s := range signatures {
		if s.match(content) {
			return s.kind, true
		}
	}
	return "", false
}

// Classify returns the document kind. The declared MIME type is trusted first,
// then the filename extension, then the content signature. A declared kind
// that the content clearly contradicts is overridden by the content.
func Classify(content []byte, declaredMIME, filename string) (constants.DocumentKind, error) {
	if len(content) == 0 {
		return "", common.Errorf(common.KindUnsupportedFormat, "empty document")
	}

	sniffed, sniffOK := Sniff(content)

	declared := constants.MapMIMEToKind(declaredMIME)
	if declared == "" && filename != "" {
		declared = constants.MapExtToKind(filepath.Ext(filename))
	}

	switch {
	case declared != "" && (!sniffOK || sniffed == declared):
		return declared, nil
	case sniffOK:
		return sniffed, nil
	default:
		return "", common.Errorf(common.KindUnsupportedFormat,
			"cannot classify document (mime=%q, file=%q)", declaredMIME, filepath.Base(filename))
	}
}
