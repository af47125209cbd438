package constants

import "strings"

// Derived-content tags for OCR output registered with the content store.
const (
	DerivedTypeOCRMarkdown = "ocr_markdown"
	MarkdownMIMEType       = "text/markdown"
)

// ImageMIMETypes is the exact-match set of MIME types routed through the
// engine's image path. Anything else is treated as a document.
var ImageMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/tiff": {},
	"image/bmp":  {},
	"image/webp": {},
	"image/gif":  {},
}

// IsImageMIME reports whether mimeType classifies as an image. The declared
// type is trusted as-is; no content sniffing.
func IsImageMIME(mimeType string) bool {
	_, ok := ImageMIMETypes[strings.ToLower(mimeType)]
	return ok
}
