package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// New returns a prefixed, time-ordered random id such as "ord-…". The
// prefix shows up in receipts and audit logs, so it is normalized to
// lower case.
func New(prefix string) string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
