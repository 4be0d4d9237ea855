package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateTimestampWithPrefix builds a sortable identifier like "CI-1717418096123456789".
func GenerateTimestampWithPrefix(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// codeAlphabet omits ambiguous characters (0/O, 1/I/L).
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// GenerateShortCode returns a random human-readable code of the given length,
// used for order pickup and completion codes.
func GenerateShortCode(length int) string {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(codeAlphabet)))

	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is broken
			panic(err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}

	return string(buf)
}
