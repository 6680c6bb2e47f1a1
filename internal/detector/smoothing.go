// smoothing.go: majority vote smoothing with cooldown. Converts the
// stream of per-window verdicts into discrete, debounced events.
package detector

import (
	"time"

	"github.com/barkwatch/barkwatch/internal/conf"
)

// Smoother is a two-state (idle/cooldown) machine over a bounded verdict
// history. Owned by the scheduling loop; not safe for concurrent use.
type Smoother struct {
	settings      conf.SmoothingSettings
	history       []bool
	cooldownUntil time.Time
}

// NewSmoother creates a smoother in the idle state with empty history.
func NewSmoother(settings *conf.SmoothingSettings) *Smoother {
	return &Smoother{
		settings: *settings,
		history:  make([]bool, 0, settings.HistoryLength),
	}
}

// Update records one verdict and reports whether an event fires.
//
// The history keeps accumulating during cooldown so windows right after
// an event are not treated as negative, but no event is emitted until
// the cooldown expires. The history is not cleared on a trigger.
func (s *Smoother) Update(positive bool, now time.Time) bool {
	s.history = append(s.history, positive)
	if len(s.history) > s.settings.HistoryLength {
		s.history = s.history[1:]
	}

	positives := 0
	for _, v := range s.history {
		if v {
			positives++
		}
	}

	if positives < s.settings.PositivesRequired {
		return false
	}
	if now.Before(s.cooldownUntil) {
		return false
	}

	s.cooldownUntil = now.Add(s.settings.Cooldown)
	return true
}

// InCooldown reports whether the smoother is still within the cooldown
// period at the given time.
func (s *Smoother) InCooldown(now time.Time) bool {
	return now.Before(s.cooldownUntil)
}

// Reset clears the history and the cooldown.
func (s *Smoother) Reset() {
	s.history = s.history[:0]
	s.cooldownUntil = time.Time{}
}
