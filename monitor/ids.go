package monitor

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

// runIDByteLength gives roughly eleven base58 characters of randomness,
// far beyond what a 50-entry history needs to stay collision-free.
const runIDByteLength = 8

// NewRunID returns a fresh run-record identifier, e.g. "RUN_4k9mPx2QrUe".
func NewRunID() string {
	buf := make([]byte, runIDByteLength)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read fails only when the OS entropy source is gone;
		// a timestamp still yields a usable, ordered identifier.
		return fmt.Sprintf("RUN_t%d", time.Now().UnixNano())
	}
	return "RUN_" + base58.Encode(buf)
}
