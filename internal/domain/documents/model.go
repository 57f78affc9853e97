package documents

import (
	"strings"

	"github.com/dustin/go-humanize"
)

// MIME types the document views know by name.
const (
	TypePDF  = "application/pdf"
	TypeDOC  = "application/msword"
	TypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Document is a reference to a stored document.
type Document struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Type         string `json:"type" yaml:"type"`
	Size         string `json:"size" yaml:"size"`
	DateModified string `json:"date_modified" yaml:"date_modified"`
	URL          string `json:"url" yaml:"url"`
	PatientID    string `json:"patient_id,omitempty" yaml:"patient_id,omitempty"`
}

// TypeLabel returns the short label shown for a MIME type.
func TypeLabel(mimeType string) string {
	switch mimeType {
	case TypePDF:
		return "PDF"
	case TypeDOC:
		return "DOC"
	case TypeDOCX:
		return "DOCX"
	default:
		return "Document"
	}
}

// Previewable reports whether the browser can show the type inline.
func Previewable(mimeType string) bool {
	return mimeType == TypePDF
}

// SizeLabel formats a byte count the way document sizes are displayed.
func SizeLabel(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

func (d Document) TypeLabel() string { return TypeLabel(d.Type) }
func (d Document) Previewable() bool { return Previewable(d.Type) }

// Matches reports whether the name contains q, ignoring case.
func (d Document) Matches(q string) bool {
	return q == "" || strings.Contains(strings.ToLower(d.Name), strings.ToLower(q))
}
