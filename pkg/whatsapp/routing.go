package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// SessionRouting maps a session identifier to the whatsmeow device that
// holds its credentials.
type SessionRouting struct {
	SessionID    string
	WhatsMeowJID string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

type routingStore struct {
	db *sql.DB
}

func openRoutingStore(driver string, dsn string) (*routingStore, error) {
	if driver != "pgx" {
		return nil, fmt.Errorf("unsupported datastore driver for session routing: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)

	if err = db.Ping(); err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS session_routing (
		session_id TEXT PRIMARY KEY,
		whatsmeow_jid TEXT,
		is_active BOOLEAN DEFAULT FALSE,
		last_login_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return nil, err
	}

	return &routingStore{db: db}, nil
}

// saveSessionRouting records the device a session is paired to. An empty
// jid reserves the row without claiming credentials; a non-empty jid also
// releases any other session that previously claimed the same device.
func (s *routingStore) saveSessionRouting(ctx context.Context, sessionID string, jid string) error {
	if jid == "" {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO session_routing (session_id, whatsmeow_jid, is_active, last_login_at, updated_at)
			VALUES ($1, NULL, FALSE, NULL, NOW())
			ON CONFLICT(session_id) DO NOTHING
		`, sessionID)
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE session_routing
		SET whatsmeow_jid = NULL, is_active = FALSE, updated_at = NOW()
		WHERE whatsmeow_jid = $2 AND session_id != $1
	`, sessionID, jid)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_routing (session_id, whatsmeow_jid, is_active, last_login_at, updated_at)
		VALUES ($1, $2, TRUE, NOW(), NOW())
		ON CONFLICT(session_id) DO UPDATE
		SET whatsmeow_jid = EXCLUDED.whatsmeow_jid,
		    is_active = TRUE,
		    last_login_at = NOW(),
		    updated_at = NOW()
	`, sessionID, jid)
	return err
}

// sessionJID returns the paired device jid for a session, or empty when the
// session has no routing record or no claimed device.
func (s *routingStore) sessionJID(ctx context.Context, sessionID string) (string, error) {
	var jid sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT whatsmeow_jid FROM session_routing WHERE session_id = $1`,
		sessionID,
	).Scan(&jid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !jid.Valid {
		return "", nil
	}
	return jid.String, nil
}

func (s *routingStore) deleteSessionRouting(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_routing WHERE session_id = $1`,
		sessionID,
	)
	return err
}

func (s *routingStore) markActive(ctx context.Context, sessionID string, active bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE session_routing
		SET is_active = $2, updated_at = NOW()
		WHERE session_id = $1
	`, sessionID, active)
	return err
}

func (s *routingStore) listSessionRoutings(ctx context.Context) ([]SessionRouting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, whatsmeow_jid, is_active, last_login_at, created_at, updated_at
		FROM session_routing
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routings []SessionRouting
	for rows.Next() {
		var r SessionRouting
		var jid sql.NullString
		var lastLogin sql.NullTime
		var updatedAt sql.NullTime
		if err := rows.Scan(&r.SessionID, &jid, &r.IsActive, &lastLogin, &r.CreatedAt, &updatedAt); err != nil {
			return nil, err
		}
		if jid.Valid {
			r.WhatsMeowJID = jid.String
		}
		if lastLogin.Valid {
			value := lastLogin.Time
			r.LastLoginAt = &value
		}
		if updatedAt.Valid {
			value := updatedAt.Time
			r.UpdatedAt = &value
		}
		routings = append(routings, r)
	}
	return routings, rows.Err()
}
