package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a prefixed, time-ordered id with a random suffix.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// NewExchange returns an exchange id in the EXG-<unix-ms>-<random> wire format
// used by the exchange history.
func NewExchange() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("EXG-%d", time.Now().UnixMilli())
	}
	return fmt.Sprintf("EXG-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}

// NewRefund returns a refund id in the REFUND-<unix-ms> wire format.
func NewRefund() string {
	return fmt.Sprintf("REFUND-%d", time.Now().UnixMilli())
}
