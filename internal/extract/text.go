package extract

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// Lines that carry the card serial number, depending on statement
// vintage. The serial follows the label on the same line.
var cardSerialLabels = []string{
	"transaction history for card",
	"card serial number",
}

// CardSerial returns the card serial number printed in a statement
// PDF, digits only, or "" when no serial line is found.
func CardSerial(path string) (string, error) {
	text, err := PlainText(path)
	if err != nil {
		return "", err
	}
	return cardSerialFromText(text), nil
}

func cardSerialFromText(text string) string {
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		for _, label := range cardSerialLabels {
			idx := strings.Index(lower, label)
			if idx < 0 {
				continue
			}
			if serial := digitsOnly(line[idx+len(label):]); serial != "" {
				return serial
			}
		}
	}
	return ""
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PlainText extracts the full text of a PDF, trying the Go library
// first and the external pdftotext command when the library output is
// unreadable. Statements from the card site occasionally use font
// encodings the library cannot decode.
func PlainText(path string) (string, error) {
	text, libErr := plainTextLibrary(path)
	if libErr == nil && readableStatementText(text) {
		return text, nil
	}

	text, popplerErr := plainTextPdftotext(path)
	if popplerErr == nil && readableStatementText(text) {
		return text, nil
	}

	if libErr != nil {
		return "", fmt.Errorf("extract text from %s: %w", path, libErr)
	}
	if popplerErr != nil {
		return "", fmt.Errorf("extract text from %s: no readable text (pdftotext: %v)", path, popplerErr)
	}
	return "", fmt.Errorf("extract text from %s: no readable text", path)
}

func plainTextLibrary(path string) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("pdf library panic: %v", p)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func plainTextPdftotext(path string) (string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", fmt.Errorf("pdftotext not available: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	out, err := exec.Command("pdftotext", "-layout", path, "-").Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

// Words expected somewhere in any Clipper statement. Text with none
// of them is treated as a failed decode rather than a statement.
var statementWords = []string{
	"clipper", "card", "transaction", "balance", "translink", "value",
}

// readableStatementText guards against garbage output from PDFs with
// custom font encodings: enough characters, mostly ASCII, and at
// least one recognizable statement word.
func readableStatementText(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= 50 {
		return false
	}
	if textQuality(trimmed) <= 0.6 {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, w := range statementWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func textQuality(text string) float64 {
	total, readable := 0, 0
	for _, r := range text {
		total++
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			readable++
		case unicode.IsSpace(r):
			readable++
		case strings.ContainsRune(".,-/:;()'\"$%&@#!?+=*", r):
			readable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}
