package extract

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

// extractPDF returns an empty text and no error when the PDF has no
// extractable text layer. The pdf reader panics on some malformed
// cross-reference tables; that surfaces as an error.
func extractPDF(data []byte) (res *Result, err error) {
	if len(data) == 0 {
		return &Result{Format: FormatPDF}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("read pdf text failed: %w", err)
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return nil, fmt.Errorf("read pdf text failed: %w", err)
	}
	return &Result{Format: FormatPDF, Text: strings.TrimSpace(string(out))}, nil
}

func extractHTML(data []byte, pageURL *url.URL) (*Result, error) {
	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse html failed: %w", err)
	}
	return &Result{Format: FormatHTML, Text: strings.TrimSpace(article.TextContent)}, nil
}
