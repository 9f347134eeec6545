package scanning

import (
	"regexp"
	"strings"
)

// Fields holds the raw matches pulled out of recognized text. Empty means
// the pattern did not match.
type Fields struct {
	Total     string
	DateToken string
	Merchant  string
}

var (
	// Labels are tried left to right at the earliest position in the text
	totalPattern = regexp.MustCompile(`(?i)(?:total amount|amount due|grand total|final amount|total|amount)[:\s]*[$€£₹]?\s*(\d+\.?\d*)`)

	datePattern = regexp.MustCompile(`(\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4})|(\d{4}[-/.]\d{1,2}[-/.]\d{1,2})`)

	// Name on the first non-blank line: letters and in-line spaces, allowing
	// the punctuation shop names carry (Joe's, Barnes & Noble, Wal-Mart)
	merchantPattern = regexp.MustCompile(`^\s*(\p{L}[\p{L} \t'’&-]*)`)
)

// ExtractFields pulls the total, date token and merchant name out of raw
// OCR text. It never fails; unmatched fields are left empty.
func ExtractFields(text string) Fields {
	var f Fields

	if m := totalPattern.FindStringSubmatch(text); m != nil {
		f.Total = m[1]
	}

	f.DateToken = datePattern.FindString(text)

	if m := merchantPattern.FindStringSubmatch(text); m != nil {
		f.Merchant = strings.TrimSpace(m[1])
	}

	return f
}
