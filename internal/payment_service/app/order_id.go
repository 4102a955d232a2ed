package app

import (
	"fmt"
	"strings"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// newCryptomusOrderID returns ORD_<unix ms>_<9 base36 chars>.
func newCryptomusOrderID(now time.Time, intn func(int) int) string {
	var sb strings.Builder
	for i := 0; i < 9; i++ {
		sb.WriteByte(base36[intn(len(base36))])
	}
	return fmt.Sprintf("ORD_%d_%s", now.UnixMilli(), sb.String())
}

// newPaytmOrderID returns <unix ms><4 random digits>; the gateway only
// accepts numeric-looking order ids for UPI intents.
func newPaytmOrderID(now time.Time, intn func(int) int) string {
	return fmt.Sprintf("%d%04d", now.UnixMilli(), intn(10000))
}
