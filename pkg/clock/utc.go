package clock

import (
	"fmt"
	"time"
)

// ErrNotUTC is wrapped by every NOT_UTC rejection so callers can match it
// with errors.Is regardless of which boundary raised it.
var ErrNotUTC = fmt.Errorf("NOT_UTC: time is not in UTC")

// CheckUTC rejects timestamps whose location is not UTC. Channel time is
// defined in UTC end to end; a local-zone time entering the pipeline is an
// input error, not something to convert silently.
func CheckUTC(what string, t time.Time) error {
	if t.Location() != time.UTC {
		return fmt.Errorf("%w: %s %s has location %s", ErrNotUTC, what, t.Format(time.RFC3339), t.Location())
	}
	return nil
}
