package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rcfaria/go-whatsapp-session-api/pkg/env"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/log"
)

// Engine fans session events out to subscribed endpoints through a worker
// pool. It satisfies the notifier contract of the session facade, so wiring
// it in is just passing the engine where a notifier is expected.
type Engine struct {
	store      *Store
	httpClient *http.Client
	queue      chan *deliveryTask
	workers    int
	retryLimit int
	enabled    bool
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	perHost   rate.Limit
	burst     int
}

type deliveryTask struct {
	webhook Config
	event   Event
}

func NewEngine(store *Store) *Engine {
	workers := env.GetEnvIntOrDefault("WEBHOOK_WORKERS", 4)
	if workers <= 0 {
		workers = 4
	}
	retryLimit := env.GetEnvIntOrDefault("WEBHOOK_RETRY_LIMIT", 3)
	if retryLimit <= 0 {
		retryLimit = 3
	}
	perHost := env.GetEnvIntOrDefault("WEBHOOK_RATE_LIMIT_PER_HOST", 5)
	if perHost <= 0 {
		perHost = 5
	}
	enabled := env.GetEnvBoolOrDefault("WEBHOOKS_ENABLED", true)

	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan *deliveryTask, 1000),
		workers:    workers,
		retryLimit: retryLimit,
		enabled:    enabled,
		ctx:        ctx,
		cancel:     cancel,
		limiters:   make(map[string]*rate.Limiter),
		perHost:    rate.Limit(perHost),
		burst:      perHost * 2,
	}

	if enabled {
		for i := 0; i < workers; i++ {
			engine.wg.Add(1)
			go engine.worker()
		}
	}

	return engine
}

func (e *Engine) Store() *Store {
	return e.store
}

// Shutdown stops the workers. The queue is left open because session
// controllers may still dispatch while they drain their event streams;
// their tasks are simply never picked up.
func (e *Engine) Shutdown() {
	e.cancel()
	e.wg.Wait()
}

// SessionEvent implements the session notifier contract. It must not block,
// so a full queue drops the event with a warning.
func (e *Engine) SessionEvent(sessionID string, event string, data map[string]interface{}) {
	e.Dispatch(context.Background(), sessionID, Event{
		EventType: EventType(event),
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (e *Engine) Dispatch(ctx context.Context, sessionID string, event Event) {
	if !e.enabled || e.ctx.Err() != nil {
		return
	}

	webhooks, err := e.store.GetActiveWebhooks(ctx, sessionID)
	if err != nil {
		log.SessionOp(sessionID, "webhook-fetch").WithError(err).Error("Failed to load active webhooks")
		return
	}

	for _, hook := range webhooks {
		if !e.shouldDispatch(hook, event.EventType) {
			continue
		}
		select {
		case e.queue <- &deliveryTask{webhook: hook, event: event}:
		default:
			log.WebhookOp(sessionID, "dispatch", hook.ID).Warn("Delivery queue full, dropping event")
		}
	}
}

func (e *Engine) shouldDispatch(hook Config, eventType EventType) bool {
	if len(hook.Events) == 0 {
		return true
	}
	for _, evt := range hook.Events {
		if evt == eventType {
			return true
		}
	}
	return false
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case task := <-e.queue:
			e.deliver(task)
		}
	}
}

func (e *Engine) deliver(task *deliveryTask) {
	if err := ValidateEndpointURL(task.webhook.URL); err != nil {
		log.WebhookOp(task.event.SessionID, "deliver", task.webhook.ID).WithError(err).Warn("Rejected webhook endpoint")
		_ = e.store.LogDelivery(context.Background(), task.webhook.ID, task.event.EventType, DeliveryFailed, 0, err.Error())
		return
	}

	if err := e.waitForHost(task.webhook.URL); err != nil {
		return
	}

	payload, err := json.Marshal(task.event)
	if err != nil {
		log.WebhookOp(task.event.SessionID, "deliver", task.webhook.ID).WithError(err).Error("Failed to marshal event payload")
		return
	}

	signature := e.generateSignature(payload, task.webhook.Secret)

	var lastErr error
	for attempt := 1; attempt <= e.retryLimit; attempt++ {
		req, err := http.NewRequestWithContext(e.ctx, http.MethodPost, task.webhook.URL, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			continue
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Signature", signature)
		req.Header.Set("X-Hub-Signature-256", signature)
		req.Header.Set("X-Webhook-Event", string(task.event.EventType))
		req.Header.Set("User-Agent", "WhatsApp-Session-API/1.0")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < e.retryLimit {
				time.Sleep(time.Duration(attempt*2) * time.Second)
			}
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_ = e.store.LogDelivery(context.Background(), task.webhook.ID, task.event.EventType, DeliverySuccess, attempt, "")
			log.WebhookOp(task.event.SessionID, "deliver", task.webhook.ID).
				WithField("event", string(task.event.EventType)).
				WithField("attempt", attempt).
				Info("Webhook delivered")
			return
		}

		lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		if attempt < e.retryLimit {
			time.Sleep(time.Duration(attempt*2) * time.Second)
		}
	}

	errorMsg := ""
	if lastErr != nil {
		errorMsg = lastErr.Error()
	}
	_ = e.store.LogDelivery(context.Background(), task.webhook.ID, task.event.EventType, DeliveryFailed, e.retryLimit, errorMsg)
	log.WebhookOp(task.event.SessionID, "deliver", task.webhook.ID).
		WithField("event", string(task.event.EventType)).
		Warn("Webhook delivery failed after retries")
}

// waitForHost throttles deliveries per destination host.
func (e *Engine) waitForHost(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	e.limiterMu.Lock()
	limiter, ok := e.limiters[u.Host]
	if !ok {
		limiter = rate.NewLimiter(e.perHost, e.burst)
		e.limiters[u.Host] = limiter
	}
	e.limiterMu.Unlock()

	return limiter.Wait(e.ctx)
}

func (e *Engine) generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ValidateEndpointURL rejects endpoints that would let a webhook reach back
// into the local or private network.
func ValidateEndpointURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	if u.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed")
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "0.0.0.0" ||
		strings.HasPrefix(host, "192.168.") || strings.HasPrefix(host, "10.") || strings.HasPrefix(host, "172.") {
		return fmt.Errorf("private/local network URLs are not allowed")
	}

	return nil
}
