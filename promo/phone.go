package promo

import (
	"crypto/sha256"
	"encoding/hex"
)

// NormalizePhone strips everything but digits. "555-0100", "(555) 0100" and
// "555 0100" all normalize to the same key.
func NormalizePhone(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// HashPhone returns the ledger key for a phone number: hex SHA-256 of the
// normalized digits. Returns "" when no digits remain, in which case the lead
// is not claimable for free pricing.
func HashPhone(s string) string {
	normalized := NormalizePhone(s)
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
