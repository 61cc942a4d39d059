// Package pdfinfo reads lightweight metadata from a picked PDF before upload.
package pdfinfo

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned when data does not start with a PDF header.
var ErrNotPDF = errors.New("not a PDF document")

var pdfMagic = []byte("%PDF-")

// LooksLikePDF reports whether data carries the PDF header and name has a .pdf extension
// or no extension at all.
func LooksLikePDF(name string, data []byte) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" && ext != ".pdf" {
		return false
	}
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic)
}

// PageCount returns the number of pages in a PDF.
// The parser panics on some malformed inputs, which is reported as an error.
func PageCount(data []byte) (pages int, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return 0, ErrNotPDF
	}

	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("error creating PDF reader: %w", err)
	}
	return reader.NumPage(), nil
}
