package requests

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const numberSuffixSpace = 1_000_000

// NumberGenerator produces a request number for the given attempt. Attempts
// start at 1.
type NumberGenerator func(now time.Time, attempt int) string

// DefaultNumber formats SOL-<year>-<6 digits>. The first attempt derives the
// suffix from the millisecond clock; retries after a collision draw it at random.
func DefaultNumber(now time.Time, attempt int) string {
	suffix := now.UnixMilli() % numberSuffixSpace
	if attempt > 1 {
		suffix = rand.Int64N(numberSuffixSpace)
	}
	return fmt.Sprintf("SOL-%d-%06d", now.Year(), suffix)
}
