package internal

import (
	"context"
	mathrand "math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rcfaria/go-whatsapp-session-api/internal/session"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/env"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/log"
	pkgWhatsApp "github.com/rcfaria/go-whatsapp-session-api/pkg/whatsapp"
)

func jitterSleep(max time.Duration) {
	if max <= 0 {
		return
	}
	ms := mathrand.Int64N(max.Milliseconds() + 1)
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// Startup restores every session that has stored credentials, reconnecting
// them with bounded concurrency so a restart does not stampede the upstream
// servers.
func Startup(connector *pkgWhatsApp.Connector, manager *session.Manager) {
	log.Print(nil).Info("Running Startup Tasks")

	ctx := context.Background()

	routings, err := connector.SessionRoutings(ctx)
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to load session routings from datastore")
		return
	}

	maxConcurrent := int64(env.GetEnvIntOrDefault("SESSION_STARTUP_RESTORE_CONCURRENCY", 10))
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	jitterMax := env.GetEnvDurationOrDefault("SESSION_STARTUP_RESTORE_JITTER_MAX", 5*time.Second)

	sem := semaphore.NewWeighted(maxConcurrent)
	var wg sync.WaitGroup
	var restored, failed int64

	for _, routing := range routings {
		if routing.WhatsMeowJID == "" {
			// Never paired; nothing to restore.
			continue
		}

		sessionID := routing.SessionID
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			jitterSleep(jitterMax)
			log.SessionOp(sessionID, "restore").Info("Restoring session")

			if _, err := manager.CreateSession(ctx, sessionID); err != nil {
				log.SessionOp(sessionID, "restore").WithError(err).Warn("Failed to restore session")
				atomic.AddInt64(&failed, 1)
				return
			}
			atomic.AddInt64(&restored, 1)
		}()
	}

	wg.Wait()
	log.Print(nil).
		WithField("restored", restored).
		WithField("failed", failed).
		WithField("concurrency", maxConcurrent).
		Info("Startup restore pass complete")
}
