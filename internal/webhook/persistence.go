package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcfaria/go-whatsapp-session-api/pkg/env"
)

// ErrWebhookNotFound is returned when a webhook id does not exist for the
// session it was requested under.
var ErrWebhookNotFound = errors.New("webhook not found")

// Store persists webhook subscriptions and their delivery logs. Active
// subscriptions are cached briefly so dispatch does not hit the database on
// every session event.
type Store struct {
	db             *sql.DB
	cacheMu        sync.RWMutex
	activeCache    map[string]activeCacheEntry
	activeCacheTTL time.Duration
}

type activeCacheEntry struct {
	webhooks  []Config
	expiresAt time.Time
}

func NewStore(db *sql.DB) (*Store, error) {
	ttlSeconds := env.GetEnvIntOrDefault("WEBHOOK_CACHE_TTL_SECONDS", 15)
	if ttlSeconds < 0 {
		ttlSeconds = 0
	}
	s := &Store{
		db:             db,
		activeCache:    make(map[string]activeCacheEntry),
		activeCacheTTL: time.Duration(ttlSeconds) * time.Second,
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS wa_webhooks (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		url TEXT NOT NULL,
		secret TEXT NOT NULL,
		events JSONB NOT NULL DEFAULT '[]'::jsonb,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_wa_webhooks_session ON wa_webhooks(session_id)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS wa_webhook_deliveries (
		id BIGSERIAL PRIMARY KEY,
		webhook_id TEXT NOT NULL REFERENCES wa_webhooks(id) ON DELETE CASCADE,
		event_type TEXT NOT NULL,
		status TEXT NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_wa_webhook_deliveries_webhook ON wa_webhook_deliveries(webhook_id)`)
	return err
}

func (s *Store) getActiveCache(sessionID string) ([]Config, bool) {
	if s.activeCacheTTL <= 0 {
		return nil, false
	}
	s.cacheMu.RLock()
	entry, ok := s.activeCache[sessionID]
	s.cacheMu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		s.cacheMu.Lock()
		delete(s.activeCache, sessionID)
		s.cacheMu.Unlock()
		return nil, false
	}
	return entry.webhooks, true
}

func (s *Store) setActiveCache(sessionID string, webhooks []Config) {
	if s.activeCacheTTL <= 0 {
		return
	}
	s.cacheMu.Lock()
	s.activeCache[sessionID] = activeCacheEntry{
		webhooks:  webhooks,
		expiresAt: time.Now().Add(s.activeCacheTTL),
	}
	s.cacheMu.Unlock()
}

func (s *Store) invalidateActiveCache(sessionID string) {
	if s.activeCacheTTL <= 0 {
		return
	}
	s.cacheMu.Lock()
	delete(s.activeCache, sessionID)
	s.cacheMu.Unlock()
}

func (s *Store) scanWebhooks(rows *sql.Rows) ([]Config, error) {
	var webhooks []Config
	for rows.Next() {
		var w Config
		var eventsJSON []byte
		if err := rows.Scan(&w.ID, &w.SessionID, &w.URL, &w.Secret, &eventsJSON, &w.Active, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(eventsJSON, &w.Events); err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

func (s *Store) GetAllWebhooks(ctx context.Context, sessionID string) ([]Config, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, url, secret, events, active, created_at, updated_at
		FROM wa_webhooks
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanWebhooks(rows)
}

func (s *Store) GetActiveWebhooks(ctx context.Context, sessionID string) ([]Config, error) {
	if cached, ok := s.getActiveCache(sessionID); ok {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, url, secret, events, active, created_at, updated_at
		FROM wa_webhooks
		WHERE session_id = $1 AND active = TRUE
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	webhooks, err := s.scanWebhooks(rows)
	if err != nil {
		return nil, err
	}
	s.setActiveCache(sessionID, webhooks)
	return webhooks, nil
}

func (s *Store) GetWebhook(ctx context.Context, webhookID string, sessionID string) (*Config, error) {
	var w Config
	var eventsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, url, secret, events, active, created_at, updated_at
		FROM wa_webhooks
		WHERE id = $1 AND session_id = $2
	`, webhookID, sessionID).Scan(&w.ID, &w.SessionID, &w.URL, &w.Secret, &eventsJSON, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(eventsJSON, &w.Events); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Store) CreateWebhook(ctx context.Context, sessionID, url, secret string, events []EventType) (string, error) {
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wa_webhooks (id, session_id, url, secret, events, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, TRUE, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, id, sessionID, url, secret, string(eventsJSON))
	if err != nil {
		return "", err
	}
	s.invalidateActiveCache(sessionID)
	return id, nil
}

func (s *Store) UpdateWebhook(ctx context.Context, webhookID, sessionID, url, secret string, events []EventType, active bool) error {
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE wa_webhooks
		SET url = $1, secret = $2, events = $3::jsonb, active = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5 AND session_id = $6
	`, url, secret, string(eventsJSON), active, webhookID, sessionID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrWebhookNotFound
	}
	s.invalidateActiveCache(sessionID)
	return nil
}

func (s *Store) DeleteWebhook(ctx context.Context, webhookID string, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM wa_webhooks WHERE id = $1 AND session_id = $2
	`, webhookID, sessionID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrWebhookNotFound
	}
	s.invalidateActiveCache(sessionID)
	return nil
}

// DeleteSessionWebhooks removes every subscription for a session, used when
// the session itself is deleted.
func (s *Store) DeleteSessionWebhooks(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wa_webhooks WHERE session_id = $1`, sessionID)
	if err != nil {
		return err
	}
	s.invalidateActiveCache(sessionID)
	return nil
}

func (s *Store) LogDelivery(ctx context.Context, webhookID string, eventType EventType, status DeliveryStatus, attemptCount int, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wa_webhook_deliveries (webhook_id, event_type, status, attempt_count, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, webhookID, eventType, status, attemptCount, lastError)
	return err
}

func (s *Store) GetDeliveryLogs(ctx context.Context, webhookID string, limit int) ([]DeliveryLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, webhook_id, event_type, status, attempt_count, last_error, created_at, updated_at
		FROM wa_webhook_deliveries
		WHERE webhook_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, webhookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []DeliveryLog
	for rows.Next() {
		var entry DeliveryLog
		var lastError sql.NullString
		if err := rows.Scan(&entry.ID, &entry.WebhookID, &entry.EventType, &entry.Status, &entry.AttemptCount, &lastError, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		if lastError.Valid {
			entry.LastError = lastError.String
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
