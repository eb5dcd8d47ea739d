package media

import (
	"fmt"
	"sync"
	"time"
)

// Namer hands out timestamp-derived display names. Names are unique for the
// lifetime of a Namer: if two calls observe the same millisecond, the later
// one is moved forward.
type Namer struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewNamer returns a Namer reading time from now. A nil now uses time.Now.
func NewNamer(now func() time.Time) *Namer {
	if now == nil {
		now = time.Now
	}
	return &Namer{now: now}
}

// Next returns a display name for the preset and the instant it encodes.
func (n *Namer) Next(p Preset) (string, time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()

	millis := n.now().UnixMilli()
	if millis <= n.last {
		millis = n.last + 1
	}
	n.last = millis

	return fmt.Sprintf("%s%d%s", p.Prefix, millis, p.Extension), time.UnixMilli(millis).UTC()
}
