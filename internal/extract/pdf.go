// ABOUTME: Plain-text extraction for PDF attachments
// ABOUTME: Wraps ledongthuc/pdf and caps the extracted text length
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFText extracts the text of every page, capped at maxChars runes.
// Malformed documents return an error instead of panicking.
func PDFText(payload []byte, maxChars int) (text string, err error) {
	if len(payload) == 0 {
		return "", errors.New("pdf payload is empty")
	}

	// The parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	extracted := strings.TrimSpace(buf.String())
	if extracted == "" {
		return "", errors.New("pdf contains no extractable text")
	}
	return Truncate(extracted, maxChars), nil
}
