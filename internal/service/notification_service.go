package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civic-desk/issue-sync/internal/config"
	"github.com/civic-desk/issue-sync/internal/events"
)

const (
	webhookQueueSize = 64
	webhookTimeout   = 5 * time.Second
)

// NotificationService reacts to store events. When a webhook URL is
// configured, events are also posted there as JSON by a single sender.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	client     *http.Client

	mu      sync.Mutex
	queue   chan events.Event
	done    chan struct{}
	running bool
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("component", "notifications")),
		cfg:        cfg,
		client:     &http.Client{Timeout: webhookTimeout},
	}
}

// RegisterHandlers subscribes to events and returns a func that removes them.
func (n *NotificationService) RegisterHandlers() func() {
	if n.dispatcher == nil {
		return func() {}
	}
	n.startWebhooks()
	unsubs := []func(){
		n.dispatcher.Subscribe(events.EventIssuesArrived, n.handleIssuesArrived),
		n.dispatcher.Subscribe(events.EventMutationConfirmed, n.handleMutationConfirmed),
		n.dispatcher.Subscribe(events.EventMutationRolledBack, n.handleMutationRolledBack),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
		n.stopWebhooks()
	}
}

func (n *NotificationService) handleIssuesArrived(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.IssuesArrivedPayload)
	n.logger.Info("IssuesArrived", zap.Uint64("cohort", payload.Cohort), zap.Strings("issue_ids", payload.IDs))
	n.notifyWebhook(event)
	return nil
}

func (n *NotificationService) handleMutationConfirmed(ctx context.Context, event events.Event) error {
	n.logger.Info("MutationConfirmed", zap.String("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	n.notifyWebhook(event)
	return nil
}

func (n *NotificationService) handleMutationRolledBack(ctx context.Context, event events.Event) error {
	n.logger.Warn("MutationRolledBack", zap.String("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	return nil
}

// notifyWebhook queues the event for delivery. A full queue drops the event.
func (n *NotificationService) notifyWebhook(event events.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return
	}
	select {
	case n.queue <- event:
	default:
		n.logger.Warn("webhook queue full; dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("issue_id", event.IssueID))
	}
}

func (n *NotificationService) startWebhooks() {
	if n.cfg.WebhookURL == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return
	}
	n.queue = make(chan events.Event, webhookQueueSize)
	n.done = make(chan struct{})
	n.running = true
	go n.deliver(n.queue, n.done)
}

// stopWebhooks closes the queue and waits for queued events to be sent.
func (n *NotificationService) stopWebhooks() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	close(n.queue)
	done := n.done
	n.mu.Unlock()
	<-done
}

func (n *NotificationService) deliver(queue <-chan events.Event, done chan<- struct{}) {
	defer close(done)
	for event := range queue {
		if err := n.postWebhook(event); err != nil {
			n.logger.Warn("webhook delivery failed",
				zap.String("event_type", string(event.Type)),
				zap.String("issue_id", event.IssueID),
				zap.Error(err))
			continue
		}
		n.logger.Debug("webhook delivered",
			zap.String("event_type", string(event.Type)),
			zap.String("issue_id", event.IssueID))
	}
}

func (n *NotificationService) postWebhook(event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
