package constants

import "strings"

// DocumentKind is the coarse format of an incoming fiscal document.
type DocumentKind string

const (
	XML   DocumentKind = "XML"
	PDF   DocumentKind = "PDF"
	IMAGE DocumentKind = "IMAGE"
)

// AllowedExtensions holds the default allowed file extensions for ingestion.
var AllowedExtensions = map[string]struct{}{
	"xml":  {},
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
	"tif":  {},
	"tiff": {},
	"heic": {},
	"heif": {},
}

var extToKind = map[string]DocumentKind{
	"xml":  XML,
	"pdf":  PDF,
	"jpg":  IMAGE,
	"jpeg": IMAGE,
	"png":  IMAGE,
	"webp": IMAGE,
	"tif":  IMAGE,
	"tiff": IMAGE,
	"gif":  IMAGE,
	"bmp":  IMAGE,
	"heic": IMAGE,
	"heif": IMAGE,
}

var mimeToKind = map[string]DocumentKind{
	"application/xml": XML,
	"text/xml":        XML,
	"application/pdf": PDF,
	"image/jpeg":      IMAGE,
	"image/jpg":       IMAGE,
	"image/png":       IMAGE,
	"image/webp":      IMAGE,
	"image/tiff":      IMAGE,
	"image/gif":       IMAGE,
	"image/bmp":       IMAGE,
	"image/heic":      IMAGE,
	"image/heif":      IMAGE,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// MapExtToKind returns the document kind for an extension, or "" if unknown.
func MapExtToKind(ext string) DocumentKind {
	return extToKind[NormalizeExt(ext)]
}

// MapMIMEToKind returns the document kind for a MIME type, or "" if unknown.
// Parameters such as "; charset=utf-8" are ignored.
func MapMIMEToKind(mimeType string) DocumentKind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if k, ok := mimeToKind[mt]; ok {
		return k
	}
	if strings.HasSuffix(mt, "+xml") {
		return XML
	}
	return ""
}

var extToMIME = map[string]string{
	"xml":  "application/xml",
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"heic": "image/heic",
	"heif": "image/heif",
}

// MapExtToMIME returns the canonical MIME type for an extension, or "".
func MapExtToMIME(ext string) string {
	return extToMIME[NormalizeExt(ext)]
}
