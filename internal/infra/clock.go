package infra

import (
	"time"

	"github.com/eliteGoblin/focusd/block_policy/internal/domain"
)

// SystemClock implements domain.Clock over the wall clock, normalized
// to UTC so every policy comparison shares one timezone frame.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var _ domain.Clock = SystemClock{}
