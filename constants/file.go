package constants

import (
	"mime"
	"path/filepath"
	"strings"
)

// Source formats understood by the extraction engines.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
	DOCX  = "DOCX"
	XLSX  = "XLSX"
	HTML  = "HTML"
	EML   = "EML"
	TXT   = "TXT"
)

// FileTypes holds every format value a job can resolve to.
var FileTypes = []string{PDF, IMAGE, DOCX, XLSX, HTML, EML, TXT}

// AllowedExtensions holds the default allowed file extensions for document intake.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"heic": {},
	"heif": {},
	"docx": {},
	"xlsx": {},
	"html": {},
	"htm":  {},
	"eml":  {},
	"txt":  {},
}

var extFormats = map[string]string{
	"pdf":  PDF,
	"jpg":  IMAGE,
	"jpeg": IMAGE,
	"png":  IMAGE,
	"tif":  IMAGE,
	"tiff": IMAGE,
	"heic": IMAGE,
	"heif": IMAGE,
	"docx": DOCX,
	"xlsx": XLSX,
	"html": HTML,
	"htm":  HTML,
	"eml":  EML,
	"txt":  TXT,
}

var extMIME = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"heic": "image/heic",
	"heif": "image/heif",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"html": "text/html",
	"htm":  "text/html",
	"eml":  "message/rfc822",
	"txt":  "text/plain",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a file extension to one of the source formats, or "".
func MapExtToFormat(ext string) string {
	return extFormats[NormalizeExt(ext)]
}

// MapMIMEToFormat maps a declared MIME type to one of the source formats, or "".
func MapMIMEToFormat(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch {
	case mt == "application/pdf":
		return PDF
	case strings.HasPrefix(mt, "image/"):
		return IMAGE
	case mt == extMIME["docx"]:
		return DOCX
	case mt == extMIME["xlsx"]:
		return XLSX
	case mt == "text/html" || mt == "application/xhtml+xml":
		return HTML
	case mt == "message/rfc822":
		return EML
	case mt == "text/plain" || mt == "text/csv" || mt == "text/markdown":
		return TXT
	}
	return ""
}

// FormatOf resolves the format of an upload, preferring the declared MIME type
// and falling back to the filename extension.
func FormatOf(filename, mimeType string) string {
	if f := MapMIMEToFormat(mimeType); f != "" {
		return f
	}
	return MapExtToFormat(filepath.Ext(filename))
}

// MIMEForExt returns the MIME type for an extension, "application/octet-stream" if unknown.
func MIMEForExt(ext string) string {
	ext = NormalizeExt(ext)
	if mt, ok := extMIME[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension("." + ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// IsHEICExt reports whether ext is one of the HEIC/HEIF family.
func IsHEICExt(ext string) bool {
	switch NormalizeExt(ext) {
	case "heic", "heif", "heics", "heifs":
		return true
	}
	return false
}
