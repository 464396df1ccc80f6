package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegBytes = []byte("\xFF\xD8\xFF\xE0\x00\x10JFIF")
	pdfBytes  = []byte("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")
	xmlBytes  = []byte(`<?xml version="1.0" encoding="UTF-8"?><cfdi:Comprobante Version="4.0"/>`)
	heicBytes = []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00")
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		content  []byte
		mime     string
		filename string
		want     constants.DocumentKind
	}{
		{"declared pdf", pdfBytes, "application/pdf", "", constants.PDF},
		{"declared xml with charset", xmlBytes, "text/xml; charset=utf-8", "", constants.XML},
		{"extension fallback", pngBytes, "", "ticket.PNG", constants.IMAGE},
		{"sniff jpeg", jpegBytes, "", "", constants.IMAGE},
		{"sniff pdf", pdfBytes, "application/octet-stream", "", constants.PDF},
		{"sniff heic", heicBytes, "", "", constants.IMAGE},
		{"sniff xml with bom", append([]byte("\xEF\xBB\xBF\n  "), xmlBytes...), "", "", constants.XML},
		{"xml without prolog", []byte(`<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4"/>`), "", "", constants.XML},
		{"content overrides wrong mime", pdfBytes, "image/png", "", constants.PDF},
		{"declared wins when content unknown", []byte("garbage"), "image/png", "", constants.IMAGE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.content, tt.mime, tt.filename)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_Unsupported(t *testing.T) {
	_, err := Classify([]byte("just some text"), "", "notes.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)

	_, err = Classify(nil, "application/pdf", "")
	assert.True(t, common.IsKind(err, common.KindUnsupportedFormat))
}
