// Package tools holds the contract shared by the four tool adapters:
// which tool is which, and the asynchronous operation handle every
// submission returns.
package tools

import "fmt"

// Kind identifies one of the four tools. Exactly one is active at a time.
type Kind string

const (
	OCR     Kind = "ocr"
	PDF     Kind = "pdf"
	Image   Kind = "image"
	Scanner Kind = "scanner"
)

// DefaultKind is the tool selected on first run and after a reset.
const DefaultKind = Scanner

// Kinds lists the tools in tab order.
var Kinds = []Kind{OCR, PDF, Image, Scanner}

// ParseKind validates a tool name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case OCR, PDF, Image, Scanner:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
}

// Label is the tab caption.
func (k Kind) Label() string {
	switch k {
	case OCR:
		return "OCR"
	case PDF:
		return "PDF"
	case Image:
		return "Image"
	case Scanner:
		return "Scanner"
	}
	return string(k)
}
