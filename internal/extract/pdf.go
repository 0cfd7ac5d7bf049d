package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

const (
	// BinarySampleSize is the number of bytes to sample for binary detection
	BinarySampleSize = 1000
	// BinaryThreshold is the proportion of non-printable characters that indicates binary data
	BinaryThreshold = 0.3
)

var (
	// ErrNotPDF is returned when the payload does not start with the PDF magic number
	ErrNotPDF = errors.New("data is not a PDF document")
	// ErrNoText is returned when a PDF yields no extractable text
	ErrNoText = errors.New("no text could be extracted from PDF")
)

// pdftotextPath locates the poppler fallback binary
var pdftotextPath = func() (string, error) { return exec.LookPath("pdftotext") }

// readText is the pure Go reader, swappable in tests
var readText = readPDF

// ExtractPDF extracts plain text from raw PDF bytes.
// It uses the pure Go reader first and falls back to pdftotext when it is installed.
func ExtractPDF(data []byte) (string, error) {
	if !LooksLikePDF(data) {
		return "", ErrNotPDF
	}

	text, err := readText(data)
	if err == nil && usable(text) {
		return sanitizeUTF8(text), nil
	}
	if err == nil && IsBinaryData(text) {
		log.Debug().Msg("PDF reader returned binary data")
	}

	if bin, lookErr := pdftotextPath(); lookErr == nil {
		log.Debug().Err(err).Msg("PDF reader failed, falling back to pdftotext")
		out, cmdErr := runPdftotext(bin, data)
		if cmdErr == nil && usable(out) {
			return sanitizeUTF8(out), nil
		}
		if cmdErr != nil {
			err = cmdErr
		}
	}

	if err != nil {
		return "", fmt.Errorf("extract PDF text: %w", err)
	}
	return "", ErrNoText
}

func readPDF(data []byte) (text string, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			log.Debug().Err(err).Int("page", i).Msg("Skipping unreadable PDF page")
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

func runPdftotext(bin string, data []byte) (string, error) {
	cmd := exec.Command(bin, "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

// LooksLikePDF checks for the PDF magic number
func LooksLikePDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\r\n\t "), []byte("%PDF-"))
}

// usable rejects empty output and raw stream bytes leaking through as text
func usable(text string) bool {
	return strings.TrimSpace(text) != "" && !IsBinaryData(text)
}

// IsBinaryData checks if content appears to be binary rather than extracted text
func IsBinaryData(content string) bool {
	if len(content) == 0 {
		return false
	}

	if strings.HasPrefix(content, "%PDF-") {
		return true
	}

	sampleSize := min(BinarySampleSize, len(content))
	nonPrintable := 0
	for i := 0; i < sampleSize; i++ {
		ch := content[i]
		if ch < 32 && ch != '\n' && ch != '\r' && ch != '\t' {
			nonPrintable++
		}
	}

	return float64(nonPrintable)/float64(sampleSize) > BinaryThreshold
}

// sanitizeUTF8 replaces invalid UTF-8 sequences and drops NUL bytes
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return strings.ReplaceAll(s, "\x00", "")
}
