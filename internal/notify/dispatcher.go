// Package notify delivers persisted notification intents to configured
// webhooks. Delivery is best-effort; a failed post is retried on the next
// tick and never blocks a workflow transition.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"teamline/internal/config"
	"teamline/internal/domain"
	"teamline/internal/repo"
)

const (
	defaultInterval = 2 * time.Second
	defaultTimeout  = 5 * time.Second
	defaultBatch    = 100
)

// Dispatcher drains pending notifications in the background.
type Dispatcher struct {
	Repo     repo.Repo
	PortalID string
	Webhooks []config.WebhookConfig
	Interval time.Duration

	client *http.Client
	stop   chan struct{}
	once   sync.Once
}

// Start launches the dispatch loop. It is a no-op when no webhooks are
// configured.
func Start(r repo.Repo, portalID string, cfg *config.Config) *Dispatcher {
	if cfg == nil || len(cfg.Notify.Webhooks) == 0 {
		return nil
	}
	if strings.TrimSpace(portalID) == "" {
		return nil
	}
	d := &Dispatcher{
		Repo:     r,
		PortalID: portalID,
		Webhooks: cfg.Notify.Webhooks,
		Interval: defaultInterval,
		client:   &http.Client{Timeout: defaultTimeout},
		stop:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.stop) })
}

func (d *Dispatcher) run() {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	for {
		d.DispatchPending(context.Background())
		select {
		case <-ticker.C:
		case <-d.stop:
			return
		}
	}
}

// DispatchPending posts each undelivered notification to every matching
// webhook. A notification is marked delivered only when at least one hook
// accepted it; otherwise its attempt count grows.
func (d *Dispatcher) DispatchPending(ctx context.Context) {
	pending, err := d.Repo.PendingNotifications(ctx, d.PortalID, defaultBatch)
	if err != nil {
		log.Printf("notify: fetch pending failed: %v", err)
		return
	}
	for _, n := range pending {
		delivered := false
		attempted := false
		for _, hook := range d.Webhooks {
			if hook.Enabled != nil && !*hook.Enabled {
				continue
			}
			if strings.TrimSpace(hook.URL) == "" {
				continue
			}
			if !roleMatch(hook.Roles, n.RecipientRole) {
				continue
			}
			attempted = true
			if err := d.post(ctx, hook, n); err != nil {
				log.Printf("notify: deliver %s to %s failed: %v", n.ID, hook.URL, err)
				continue
			}
			delivered = true
		}
		if delivered {
			if err := d.Repo.MarkNotificationDelivered(ctx, n.ID, time.Now()); err != nil {
				log.Printf("notify: mark delivered failed: %v", err)
			}
		} else if attempted {
			if err := d.Repo.BumpNotificationAttempts(ctx, n.ID); err != nil {
				log.Printf("notify: bump attempts failed: %v", err)
			}
		}
	}
}

func roleMatch(roles []string, role domain.Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if strings.TrimSpace(r) == string(role) {
			return true
		}
	}
	return false
}

type payload struct {
	ID            string `json:"id"`
	PortalID      string `json:"portal_id"`
	AssignmentID  string `json:"assignment_id"`
	Recipient     string `json:"recipient"`
	RecipientRole string `json:"recipient_role"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	CreatedAt     string `json:"created_at"`
}

func (d *Dispatcher) post(ctx context.Context, hook config.WebhookConfig, n domain.Notification) error {
	data, err := json.Marshal(payload{
		ID:            n.ID,
		PortalID:      n.PortalID,
		AssignmentID:  n.AssignmentID,
		Recipient:     n.Recipient,
		RecipientRole: string(n.RecipientRole),
		Subject:       n.Subject,
		Body:          n.Body,
		CreatedAt:     n.CreatedAt,
	})
	if err != nil {
		return err
	}
	timeout := defaultTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if client == nil || timeout != client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Teamline-Delivery", n.ID)
	req.Header.Set("X-Teamline-Portal", d.PortalID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Teamline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
