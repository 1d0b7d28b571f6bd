package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCleanupInterval is how often idle sessions are swept.
const DefaultCleanupInterval = time.Minute

// CleanupService periodically removes idle sessions from a Manager.
type CleanupService struct {
	manager  *Manager
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewCleanupService creates a cleanup service sweeping every interval.
func NewCleanupService(manager *Manager, interval time.Duration, log zerolog.Logger) *CleanupService {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupService{
		manager:  manager,
		interval: interval,
		log:      log.With().Str("component", "session.cleanup").Logger(),
	}
}

// Start begins sweeping in the background. Starting a running service is a
// no-op.
func (c *CleanupService) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.run(cleanupCtx, c.done)
}

// Stop halts the service and waits for the sweeper to exit.
func (c *CleanupService) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
}

// IsRunning reports whether the sweeper is active.
func (c *CleanupService) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *CleanupService) run(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.running = false
		close(done)
		c.mu.Unlock()
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Debug().Msg("Cleanup service stopping")
			return
		case <-ticker.C:
			if removed := c.manager.CleanupExpired(); removed > 0 {
				stats := c.manager.Stats()
				c.log.Info().
					Int("removed", removed).
					Int("total", stats["total"]).
					Msg("Cleaned up idle sessions")
			}
		}
	}
}
