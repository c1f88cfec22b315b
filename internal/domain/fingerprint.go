package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	nullRe       = regexp.MustCompile(`\bnull\b`)
	cardMaskRe   = regexp.MustCompile(`x{10,}\d{4}`)
	acctNumberRe = regexp.MustCompile(`[x0-9]{7,12}`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	specialRe    = regexp.MustCompile(`[^a-z0-9]`)
)

// Fingerprint computes the content fingerprint used as a transaction's
// deduplication identity when the provider issues no native id (CSV import,
// cross-provider duplicate detection).
//
// Input is account id, transaction date, signed amount at two decimal places
// (-0 normalized to 0), and the normalized description. The result is the
// first 8 bytes of the SHA-256 digest, hex encoded (16 chars).
func Fingerprint(accountID string, date time.Time, amount decimal.Decimal, description string) string {
	if amount.IsZero() {
		amount = decimal.Zero
	}
	input := fmt.Sprintf("%s|%s|%s|%s",
		accountID,
		date.Format("2006-01-02"),
		amount.StringFixed(2),
		NormalizeDescription(description),
	)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:8])
}

// NormalizeDescription canonicalizes a description for fingerprint
// comparison. It smooths over differences between CSV exports and provider
// APIs describing the same transaction:
//   - lowercase
//   - remove literal "null" strings (CSV exports)
//   - remove card number masks (10+ x's followed by 4 digits)
//   - collapse account/phone numbers (7-12 chars of x's and digits) to
//     their last 4 digits
//   - strip whitespace and everything non-alphanumeric
func NormalizeDescription(desc string) string {
	normalized := strings.ToLower(desc)
	normalized = nullRe.ReplaceAllString(normalized, "")
	normalized = cardMaskRe.ReplaceAllString(normalized, "")
	normalized = acctNumberRe.ReplaceAllStringFunc(normalized, func(match string) string {
		var digits strings.Builder
		for _, c := range match {
			if c >= '0' && c <= '9' {
				digits.WriteRune(c)
			}
		}
		d := digits.String()
		if len(d) >= 4 {
			return d[len(d)-4:]
		}
		return match
	})
	normalized = whitespaceRe.ReplaceAllString(normalized, "")
	return specialRe.ReplaceAllString(normalized, "")
}
