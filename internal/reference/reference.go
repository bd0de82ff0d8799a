// Package reference produces transaction reference strings. A reference is
// the idempotency and lookup key for a transaction, so it must be
// collision-resistant and unguessable; the store's uniqueness constraint is
// the safety net, not the primary defense.
package reference

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// Prefixes used by the ledger engine.
const (
	PrefixCredit  = "CREDIT"
	PrefixDebit   = "DEBIT"
	PrefixReverse = "REV"
	PrefixFunding = "FUND"
)

// Generate returns "<prefix>-" followed by 12 uppercase hex characters
// (48 bits from crypto/rand).
func Generate(prefix string) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform RNG is broken; nothing
		// sensible to fall back to.
		panic("reference: crypto/rand unavailable: " + err.Error())
	}
	return prefix + "-" + strings.ToUpper(hex.EncodeToString(buf))
}
