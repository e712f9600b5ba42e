package command

// #region imports
import (
	"sync"
	"time"
)

// #endregion

// #region cooldowns

// Cooldowns enforces the per-(command, sender) minimum interval.
type Cooldowns struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewCooldowns creates an empty cooldown table.
func NewCooldowns() *Cooldowns {
	return &Cooldowns{until: make(map[string]time.Time), now: time.Now}
}

// Try reports whether the command may run now for sender, and if so arms
// the cooldown. Check and arm are one atomic step, so interleaved events
// cannot both pass.
func (c *Cooldowns) Try(command, sender string, d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := command + "\x00" + sender
	now := c.now()
	if deadline, ok := c.until[key]; ok && now.Before(deadline) {
		return false
	}
	c.until[key] = now.Add(d)
	return true
}

// #endregion
