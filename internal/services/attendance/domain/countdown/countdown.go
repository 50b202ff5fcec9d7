// Package countdown derives display state for a session's remaining validity.
//
// Nothing here drives expiry; a session's activity is decided only by
// session.IsActive.
package countdown

import (
	"fmt"
	"iter"
	"time"
)

// Tier is the urgency band shown with the countdown.
type Tier string

const (
	TierNormal   Tier = "normal"
	TierWarning  Tier = "warning"
	TierCritical Tier = "critical"
	TierExpired  Tier = "expired"
)

const (
	warningBelow  = 60
	criticalBelow = 30
)

// Sample is the countdown state at one instant.
type Sample struct {
	At               time.Time     `json:"at"`
	Remaining        time.Duration `json:"-"`
	RemainingSeconds int           `json:"remaining_seconds"`
	Tier             Tier          `json:"tier"`
	Display          string        `json:"display"`
	Progress         float64       `json:"progress"`
}

// Derive computes the countdown at now for a window opened at start.
func Derive(start time.Time, duration time.Duration, now time.Time) Sample {
	remaining := max(0, duration-now.Sub(start))
	// Round partial seconds up so the display reaches 00:00 only at the deadline.
	seconds := int((remaining + time.Second - 1) / time.Second)

	progress := 0.0
	if duration > 0 {
		progress = float64(remaining) / float64(duration) * 100
	}
	return Sample{
		At:               now,
		Remaining:        remaining,
		RemainingSeconds: seconds,
		Tier:             tierFor(seconds),
		Display:          Format(seconds),
		Progress:         progress,
	}
}

// Samples yields Derive at from, from+cadence, ... and stops after the first
// expired sample. Each range over the sequence starts again at from.
func Samples(start time.Time, duration time.Duration, from time.Time, cadence time.Duration) iter.Seq[Sample] {
	if cadence <= 0 {
		cadence = time.Second
	}
	return func(yield func(Sample) bool) {
		for at := from; ; at = at.Add(cadence) {
			sample := Derive(start, duration, at)
			if !yield(sample) || sample.Tier == TierExpired {
				return
			}
		}
	}
}

// Format renders whole seconds as MM:SS.
func Format(seconds int) string {
	seconds = max(0, seconds)
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func tierFor(seconds int) Tier {
	switch {
	case seconds <= 0:
		return TierExpired
	case seconds < criticalBelow:
		return TierCritical
	case seconds < warningBelow:
		return TierWarning
	default:
		return TierNormal
	}
}
