package resilience

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// ControllerConfig configures a [Controller].
type ControllerConfig struct {
	// Publish receives every status update: one per countdown second and a
	// final ready status. Required. Calls arrive from the controller's own
	// goroutine.
	Publish func(status string)

	// TickInterval is the wall-clock length of one countdown second.
	// Defaults to one second; tests shrink it.
	TickInterval time.Duration

	// Margin is added on top of a provider retry hint. Defaults to 2s.
	Margin time.Duration

	// QuotaFallback is the countdown length for rate limits with no retry
	// hint. Defaults to 60s.
	QuotaFallback time.Duration

	// OverloadFallback is the countdown length for overloads with no retry
	// hint. Defaults to 15s.
	OverloadFallback time.Duration

	// ReadyStatus is published when the countdown completes. Defaults to
	// "Ready".
	ReadyStatus string
}

// Controller runs the cool-down after a transient provider failure. At most
// one countdown is active; tripping again replaces the running one, and a new
// session initialization cancels it. Safe for concurrent use.
type Controller struct {
	cfg ControllerConfig

	mu        sync.Mutex
	stop      chan struct{}
	remaining int
}

// NewController validates cfg, fills defaults, and returns a ready
// Controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Publish == nil {
		return nil, fmt.Errorf("resilience: controller requires a publish func")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Margin <= 0 {
		cfg.Margin = 2 * time.Second
	}
	if cfg.QuotaFallback <= 0 {
		cfg.QuotaFallback = 60 * time.Second
	}
	if cfg.OverloadFallback <= 0 {
		cfg.OverloadFallback = 15 * time.Second
	}
	if cfg.ReadyStatus == "" {
		cfg.ReadyStatus = "Ready"
	}
	return &Controller{cfg: cfg}, nil
}

// Trip starts (or replaces) a countdown for the given transient class. The
// length is the provider retry hint plus the safety margin when a hint is
// present, otherwise the class fallback. Non-transient classes are ignored.
func (c *Controller) Trip(class Class, hint time.Duration) {
	if !class.Transient() {
		return
	}

	var total time.Duration
	if hint > 0 {
		total = hint + c.cfg.Margin
	} else if class == ClassRateLimit {
		total = c.cfg.QuotaFallback
	} else {
		total = c.cfg.OverloadFallback
	}
	secs := int(math.Ceil(total.Seconds()))

	label := "Rate limited by provider"
	if class == ClassOverloaded {
		label = "Model overloaded, retrying"
	}

	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
	}
	stop := make(chan struct{})
	c.stop = stop
	c.remaining = secs
	c.mu.Unlock()

	slog.Info("resilience: cooling down", "class", class.String(), "seconds", secs)
	c.cfg.Publish(fmt.Sprintf("%s (%ds)", label, secs))
	go c.run(stop, secs, label)
}

func (c *Controller) run(stop chan struct{}, secs int, label string) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	remaining := secs
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			remaining--
			if remaining <= 0 {
				c.mu.Lock()
				if c.stop == stop {
					c.stop = nil
					c.remaining = 0
				}
				c.mu.Unlock()
				c.cfg.Publish(c.cfg.ReadyStatus)
				return
			}
			c.mu.Lock()
			if c.stop == stop {
				c.remaining = remaining
			}
			c.mu.Unlock()
			c.cfg.Publish(fmt.Sprintf("%s (%ds)", label, remaining))
		}
	}
}

// Active reports whether a countdown is currently running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// Remaining returns the seconds left on the active countdown, zero when idle.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Cancel stops any active countdown without publishing a status. A new
// session initialization calls this. Safe to call when idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
		c.remaining = 0
	}
}
