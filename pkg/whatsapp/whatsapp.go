package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"

	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"

	"github.com/rcfaria/go-whatsapp-session-api/internal/session"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/env"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/log"
)

// Connector owns the whatsmeow datastore and opens protocol transports for
// sessions. It implements both session.Dialer and session.CredentialStore.
type Connector struct {
	datastore *sqlstore.Container
	routing   *routingStore
	proxyURL  string
}

// NewConnector initializes the datastore from WHATSAPP_DATASTORE_TYPE and
// WHATSAPP_DATASTORE_URI, upgrades the whatsmeow schema and prepares the
// session routing table.
func NewConnector(ctx context.Context) (*Connector, error) {
	dbType, err := env.GetEnvString("WHATSAPP_DATASTORE_TYPE")
	if err != nil {
		return nil, fmt.Errorf("parse WHATSAPP_DATASTORE_TYPE: %w", err)
	}

	dbURI, err := env.GetEnvString("WHATSAPP_DATASTORE_URI")
	if err != nil {
		return nil, fmt.Errorf("parse WHATSAPP_DATASTORE_URI: %w", err)
	}

	driver := normalizeDatastoreDriver(dbType)
	dsn := normalizeDatastoreDSN(driver, dbURI)

	log.Print(nil).Info("Initializing WhatsApp datastore with driver=" + driver)

	datastore, err := sqlstore.New(ctx, driver, dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize whatsapp datastore: %w", err)
	}

	if err := datastore.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("upgrade whatsapp datastore schema: %w", err)
	}

	routing, err := openRoutingStore(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("initialize session routing store: %w", err)
	}

	proxyURL, _ := env.GetEnvString("WHATSAPP_CLIENT_PROXY_URL")

	store.DeviceProps.Os = proto.String(runtime.GOOS)
	store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
	store.DeviceProps.RequireFullSync = proto.Bool(false)

	return &Connector{
		datastore: datastore,
		routing:   routing,
		proxyURL:  proxyURL,
	}, nil
}

// Dial opens a transport for the session. A session with stored credentials
// reconnects directly; a fresh session starts the QR pairing flow and emits
// pairing codes on its event stream.
func (c *Connector) Dial(ctx context.Context, sessionID string) (session.Transport, error) {
	device, err := c.deviceFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	client := whatsmeow.NewClient(device, nil)
	if c.proxyURL != "" {
		client.SetProxyAddress(c.proxyURL)
	}

	// The lifecycle controller owns the reconnect policy.
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	t := newTransport(sessionID, client, c.routing)
	if err := t.start(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (c *Connector) deviceFor(ctx context.Context, sessionID string) (*store.Device, error) {
	jid, err := c.routing.sessionJID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if jid == "" {
		return c.datastore.NewDevice(), nil
	}

	parsed, err := types.ParseJID(jid)
	if err != nil {
		return nil, fmt.Errorf("parse stored session jid: %w", err)
	}

	device, err := c.datastore.GetDevice(ctx, parsed)
	if err != nil {
		return nil, fmt.Errorf("load device for session: %w", err)
	}
	if device == nil {
		// Routing points at credentials that no longer exist; pair again.
		_ = c.routing.deleteSessionRouting(ctx, sessionID)
		return c.datastore.NewDevice(), nil
	}
	return device, nil
}

// Ensure reserves a routing record for the session before its first dial.
func (c *Connector) Ensure(ctx context.Context, sessionID string) error {
	return c.routing.saveSessionRouting(ctx, sessionID, "")
}

// Persist is part of the session.CredentialStore contract. The whatsmeow
// device store writes its own key material, so there is nothing to do here.
func (c *Connector) Persist(ctx context.Context, sessionID string, material []byte) error {
	return nil
}

// Delete removes the session's device credentials and routing record. It is
// idempotent; an unknown session deletes nothing and succeeds.
func (c *Connector) Delete(ctx context.Context, sessionID string) error {
	jid, err := c.routing.sessionJID(ctx, sessionID)
	if err != nil {
		return err
	}

	if jid != "" {
		parsed, err := types.ParseJID(jid)
		if err == nil {
			device, err := c.datastore.GetDevice(ctx, parsed)
			if err == nil && device != nil {
				if err := device.Delete(ctx); err != nil {
					return fmt.Errorf("delete device credentials: %w", err)
				}
			}
		}
	}

	return c.routing.deleteSessionRouting(ctx, sessionID)
}

// SessionRoutings lists every routing record, used to restore sessions on
// startup.
func (c *Connector) SessionRoutings(ctx context.Context) ([]SessionRouting, error) {
	return c.routing.listSessionRoutings(ctx)
}

// RoutingDB exposes the shared routing database handle for collaborators
// that persist alongside it.
func (c *Connector) RoutingDB() *sql.DB {
	return c.routing.db
}

func normalizeDatastoreDriver(driver string) string {
	switch strings.ToLower(driver) {
	case "postgresql", "postgres", "pgx":
		return "pgx"
	default:
		return strings.ToLower(driver)
	}
}

// normalizeDatastoreDSN forces the simple query protocol for pgx so the
// datastore works behind transaction-pooling proxies.
func normalizeDatastoreDSN(driver string, dsn string) string {
	if driver != "pgx" {
		return dsn
	}
	appendParam := func(current string, key string, value string) string {
		if strings.Contains(current, key+"=") {
			return current
		}
		separator := "?"
		if strings.Contains(current, "?") {
			if strings.HasSuffix(current, "?") || strings.HasSuffix(current, "&") {
				separator = ""
			} else {
				separator = "&"
			}
		}
		return current + separator + key + "=" + value
	}
	dsn = appendParam(dsn, "prefer_simple_protocol", "true")
	dsn = appendParam(dsn, "statement_cache_capacity", "0")
	dsn = appendParam(dsn, "default_query_exec_mode", "simple_protocol")
	return dsn
}
