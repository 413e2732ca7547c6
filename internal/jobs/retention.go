// Package jobs runs periodic maintenance on the cron schedule from config.
package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/gluk-w/claworc/session-gateway/internal/database"
	"github.com/robfig/cron/v3"
)

// StartRetention schedules pruning of delivery records older than maxAge.
// The caller must Stop the returned scheduler on shutdown.
func StartRetention(schedule string, maxAge time.Duration) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { PruneDeliveries(maxAge) }); err != nil {
		return nil, fmt.Errorf("schedule retention %q: %w", schedule, err)
	}
	c.Start()
	log.Printf("[jobs] delivery retention scheduled (%s, max age %s)", schedule, maxAge)
	return c, nil
}

// PruneDeliveries removes journal entries older than maxAge.
func PruneDeliveries(maxAge time.Duration) int64 {
	n, err := database.PruneDeliveries(time.Now().Add(-maxAge))
	if err != nil {
		log.Printf("[jobs] prune deliveries: %v", err)
		return 0
	}
	if n > 0 {
		log.Printf("[jobs] pruned %d delivery records", n)
	}
	return n
}
