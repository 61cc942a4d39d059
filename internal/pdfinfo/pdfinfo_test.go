package pdfinfo

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF assembles a minimal valid PDF with the given number of blank pages.
func buildPDF(pages int) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	buf.WriteString("%PDF-1.4\n")

	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		writeObj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestPageCount(t *testing.T) {
	for _, n := range []int{1, 3} {
		t.Run(fmt.Sprintf("%d pages", n), func(t *testing.T) {
			got, err := PageCount(buildPDF(n))
			require.NoError(t, err)
			assert.Equal(t, n, got)
		})
	}
}

func TestPageCount_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "text", data: []byte("hello world")},
		{name: "truncated", data: []byte("%PDF-1.4\n1 0 obj\n<<")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := PageCount(tt.data)
			assert.Error(t, err)
			assert.Zero(t, pages)
		})
	}
}

func TestLooksLikePDF(t *testing.T) {
	pdf := []byte("%PDF-1.7 ...")
	assert.True(t, LooksLikePDF("report.pdf", pdf))
	assert.True(t, LooksLikePDF("REPORT.PDF", pdf))
	assert.True(t, LooksLikePDF("noext", pdf))
	assert.False(t, LooksLikePDF("report.docx", pdf))
	assert.False(t, LooksLikePDF("report.pdf", []byte("PK\x03\x04")))
}
