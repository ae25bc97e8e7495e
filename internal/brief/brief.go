// Package brief imports a PDF design brief into a submission's additional
// requests.
package brief

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kalambet/dreamhouse/internal/design"
)

// MaxChars bounds how much brief text is carried into a prompt.
const MaxChars = 4000

// ErrEmpty is returned when a brief contains no extractable text.
var ErrEmpty = errors.New("brief has no extractable text")

// ReadPDF extracts the plain text of the PDF at path, normalized and truncated
// to MaxChars.
func ReadPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening brief %s: %w", path, err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading text from %s: %w", path, err)
	}

	text := Normalize(buf.String())
	if text == "" {
		return "", fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return text, nil
}

// Normalize collapses whitespace and truncates to MaxChars on a rune boundary.
func Normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > MaxChars {
		s = strings.TrimSpace(string(r[:MaxChars]))
	}
	return s
}

// Merge appends brief text to the additional requests of prefs.
func Merge(prefs design.Preferences, text string) design.Preferences {
	text = Normalize(text)
	if text == "" {
		return prefs
	}
	out := prefs.Clone()
	entry := "Design brief: " + text
	if strings.TrimSpace(out.AdditionalRequests) == "" {
		out.AdditionalRequests = entry
	} else {
		out.AdditionalRequests = strings.TrimSpace(out.AdditionalRequests) + "\n" + entry
	}
	return out
}
