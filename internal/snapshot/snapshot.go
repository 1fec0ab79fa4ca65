package snapshot

import "time"

// Snapshot is the raw, full set of metrics gathered from one website at one
// point in time, plus the rendered screenshot used by the Vision phase.
type Snapshot struct {
	URL        string
	CapturedAt time.Time
	Metrics    Value
	Screenshot []byte
}

// HasScreenshot reports whether a rendered screenshot was captured.
func (s Snapshot) HasScreenshot() bool {
	return len(s.Screenshot) > 0
}
