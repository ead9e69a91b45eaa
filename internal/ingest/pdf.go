package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"articlereview/internal/types"
)

// minPDFText is the non-space character count below which a PDF is
// reported as nearly empty.
const minPDFText = 200

// PDF quality warnings.
const (
	WarnPDFLowText     = "Low text content in PDF."
	WarnPDFNoPages     = "PDF has no extractable text."
	WarnPDFScanned     = "PDF appears to be scanned or image-only, no text extracted."
	WarnPDFLittleText  = "PDF extraction produced very little text content."
	WarnPDFConsiderOCR = "Consider using OCR to extract text from scanned PDFs."
)

// PDFIngestor extracts per-page plain text from a local PDF file.
type PDFIngestor struct{}

func (PDFIngestor) Kind() types.InputKind { return types.InputPDF }

func (PDFIngestor) Ingest(_ context.Context, e Entry) (*types.Document, error) {
	if err := checkKind(e, types.InputPDF); err != nil {
		return nil, err
	}
	path := e.Source.Path
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("PDF file not found at %s", path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, fmt.Errorf("PDF at %s is encrypted and cannot be processed", path)
		}
		return nil, fmt.Errorf("open PDF %s: %w", path, err)
	}
	defer f.Close()

	if r.NumPage() == 0 {
		return nil, fmt.Errorf("PDF at %s has zero pages", path)
	}

	pages, err := readPages(r)
	if err != nil {
		return nil, fmt.Errorf("read PDF %s: %w", path, err)
	}

	doc := newDocument(e, types.InputPDF, path, joinPages(pages))
	doc.Pages = pages
	assessPDF(doc, r.NumPage())
	return doc, nil
}

// ExtractPDFText returns the text of an in-memory PDF, pages joined by a
// newline.
func ExtractPDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	pages, err := readPages(r)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\n"), nil
}

func readPages(r *pdf.Reader) ([]types.Page, error) {
	n := r.NumPage()
	pages := make([]types.Page, 0, n)
	for i := 1; i <= n; i++ {
		text, err := pageText(r, i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, types.Page{Index: i, Text: text})
	}
	return pages, nil
}

// pageText extracts one page. Walking a malformed page tree panics inside
// the parser; that is reported as an error for the page.
func pageText(r *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed page: %v", rec)
		}
	}()
	p := r.Page(i)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

func joinPages(pages []types.Page) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, pageSeparator)
}

func assessPDF(doc *types.Document, numPages int) {
	text := doc.Content
	chars := utf8.RuneCountInString(text)

	nonASCII, nonSpace, blankPages := 0, 0, 0
	for _, r := range text {
		if r > 127 {
			nonASCII++
		}
	}
	for _, p := range doc.Pages {
		for _, r := range p.Text {
			if !unicode.IsSpace(r) {
				nonSpace++
			}
		}
		if strings.TrimSpace(p.Text) == "" {
			blankPages++
		}
	}

	doc.IngestStats["n_pages"] = numPages
	doc.IngestStats["n_chars"] = chars
	doc.IngestStats["n_extracted_pages"] = len(doc.Pages)
	doc.IngestStats["non_ascii_ratio"] = float64(nonASCII) / float64(max(1, chars))

	lowText := strings.TrimSpace(text) == ""
	scanned := blankPages == len(doc.Pages)
	if lowText {
		doc.Warn(WarnPDFLowText)
	}
	if len(doc.Pages) == 0 {
		doc.Warn(WarnPDFNoPages)
	}
	if scanned {
		doc.Warn(WarnPDFScanned)
	}
	if text == "" || nonSpace < minPDFText {
		doc.Warn(WarnPDFLittleText)
	}
	if lowText || scanned {
		doc.Warn(WarnPDFConsiderOCR)
	}
}
