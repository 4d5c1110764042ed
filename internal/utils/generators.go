package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateSixDigitCode samples a candidate validation code uniformly from
// 000000-999999. Uniqueness is the caller's problem; this only guarantees the
// shape and the uniform distribution.
func GenerateSixDigitCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		// crypto/rand failing means the process is in serious trouble, but a
		// time-derived fallback keeps the purchase path alive.
		return fmt.Sprintf("%06d", time.Now().UnixNano()%1000000)
	}
	return fmt.Sprintf("%06d", n.Int64())
}
