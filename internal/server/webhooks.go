package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"deskline/internal/config"
	"deskline/internal/domain"
	"deskline/internal/engine"
)

const (
	webhookPollInterval = 2 * time.Second
	webhookMaxBackoff   = time.Minute
	webhookTimeout      = 5 * time.Second
	webhookBatch        = 100
)

// StartWebhookDispatcher launches one delivery loop per configured endpoint.
// Each loop tails the audit event log behind its own cursor; a failed
// delivery stalls that cursor and backs off, so events are delivered to each
// endpoint in order and none are skipped. All loops exit when ctx is
// cancelled.
func StartWebhookDispatcher(ctx context.Context, e engine.Engine) {
	if e.Config == nil {
		return
	}
	for _, hook := range e.Config.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		go newHookDeliverer(e, hook).run(ctx)
	}
}

type hookDeliverer struct {
	engine engine.Engine
	hook   config.WebhookConfig
	client *http.Client
	accept map[string]struct{}
	cursor int64
}

func newHookDeliverer(e engine.Engine, hook config.WebhookConfig) *hookDeliverer {
	timeout := webhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	var accept map[string]struct{}
	for _, typ := range hook.Events {
		typ = strings.TrimSpace(typ)
		if typ == "" {
			continue
		}
		if accept == nil {
			accept = make(map[string]struct{})
		}
		accept[typ] = struct{}{}
	}
	return &hookDeliverer{
		engine: e,
		hook:   hook,
		client: &http.Client{Timeout: timeout},
		accept: accept,
		cursor: -1,
	}
}

func (h *hookDeliverer) wants(evtType string) bool {
	if h.accept == nil {
		return true
	}
	_, ok := h.accept[evtType]
	return ok
}

func (h *hookDeliverer) run(ctx context.Context) {
	backoff := webhookPollInterval
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	for {
		if h.drain(ctx) {
			backoff = webhookPollInterval
		} else {
			backoff *= 2
			if backoff > webhookMaxBackoff {
				backoff = webhookMaxBackoff
			}
		}
		timer.Reset(backoff)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// drain delivers everything past the cursor. Returns false when the endpoint
// or the store misbehaved and the caller should back off.
func (h *hookDeliverer) drain(ctx context.Context) bool {
	if h.cursor < 0 {
		// New hooks start at the tail; history is not replayed.
		latest, err := h.engine.Repo.LatestEventID(ctx)
		if err != nil {
			log.Printf("webhook %s: init cursor: %v", h.hook.URL, err)
			return false
		}
		h.cursor = latest
	}
	for {
		events, err := h.engine.Repo.EventsAfter(ctx, webhookBatch, h.cursor)
		if err != nil {
			log.Printf("webhook %s: read events: %v", h.hook.URL, err)
			return false
		}
		if len(events) == 0 {
			return true
		}
		for _, evt := range events {
			if h.wants(evt.Type) {
				if err := h.deliver(ctx, evt); err != nil {
					log.Printf("webhook %s: event %d: %v", h.hook.URL, evt.ID, err)
					return false
				}
			}
			h.cursor = evt.ID
		}
	}
}

func (h *hookDeliverer) deliver(ctx context.Context, evt domain.Event) error {
	payload := json.RawMessage(`{}`)
	if json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	body, err := json.Marshal(struct {
		ID         int64           `json:"id"`
		TS         string          `json:"ts"`
		Type       string          `json:"type"`
		EntityKind string          `json:"entity_kind"`
		EntityID   string          `json:"entity_id,omitempty"`
		ActorID    string          `json:"actor_id"`
		Payload    json.RawMessage `json:"payload"`
	}{evt.ID, evt.TS, evt.Type, evt.EntityKind, evt.EntityID, evt.ActorID, payload})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Deskline-Event", evt.Type)
	req.Header.Set("X-Deskline-Delivery", strconv.FormatInt(evt.ID, 10))
	if secret := strings.TrimSpace(h.hook.Secret); secret != "" {
		req.Header.Set("X-Deskline-Signature", signWebhookBody(secret, body))
	}
	res, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("endpoint returned %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// signWebhookBody is an HMAC-SHA256 over the request body so receivers can
// authenticate deliveries without the secret ever crossing the wire.
func signWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
