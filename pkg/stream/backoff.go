package stream

import (
	"time"

	"github.com/0xmhha/ethpeek/internal/constants"
)

// NextBackoff returns the delay to wait after a failed connection
// attempt, doubling from the initial delay up to the cap. A zero or
// negative current delay starts the schedule over.
func NextBackoff(current, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = constants.InitialReconnectDelay
	}
	if max <= 0 {
		max = constants.MaxReconnectDelay
	}
	if current <= 0 {
		return initial
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}
