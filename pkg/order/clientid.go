package order

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NewClientOrderID builds a client-order-id as prefix || random(16) ||
// order_id_hex, matching spec §4.12's scheme for live reconciliation.
// The random component is sourced from google/uuid (already a teacher
// dependency for resource ids) rather than crypto/rand directly, to
// match how ids are minted elsewhere in the reference pack.
func NewClientOrderID(prefix string, orderID uint64) string {
	u := uuid.New()
	random16 := hex.EncodeToString(u[:8]) // 16 hex chars from the uuid's random bytes
	idHex := hex.EncodeToString(uint64ToBytes(orderID))
	return prefix + random16 + idHex
}

// HasPrefix reports whether a client-order-id belongs to this manager's
// namespace (spec §4.12: PrefixUnmatched handling).
func HasPrefix(clientOrderID, prefix string) bool {
	return strings.HasPrefix(clientOrderID, prefix)
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v & 0xff)
		v >>= 8
	}
	return b
}
