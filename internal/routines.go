package internal

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rcfaria/go-whatsapp-session-api/internal/session"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/env"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/log"
)

// Routines registers the periodic health check. Sessions left in the
// connecting state with no live transport get a fresh dial; a single failed
// reconnect attempt is otherwise never retried.
func Routines(c *cron.Cron, manager *session.Manager) {
	log.Print(nil).Info("Running Routine Tasks")

	if !env.GetEnvBoolOrDefault("SESSION_ENABLE_HEALTH_CHECK_CRON", true) {
		log.Print(nil).Info("Health check cron disabled")
		c.Start()
		return
	}

	spec := env.GetEnvStringOrDefault("SESSION_HEALTH_CHECK_CRON_SPEC", "0 */5 * * * *")
	_, err := c.AddFunc(spec, func() {
		statuses := manager.Sessions()
		if len(statuses) == 0 {
			return
		}

		counts := map[session.State]int{}
		for _, st := range statuses {
			counts[st.State]++
		}
		log.Print(nil).
			WithField("total", len(statuses)).
			WithField("connected", counts[session.StateConnected]).
			WithField("connecting", counts[session.StateConnecting]).
			WithField("disconnected", counts[session.StateDisconnected]).
			Info("Session health check")

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if revived := manager.RedialStalled(ctx); revived > 0 {
			log.Print(nil).WithField("revived", revived).Info("Revived stalled sessions")
		}
	})
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to add health check cron job")
	}

	c.Start()
}
