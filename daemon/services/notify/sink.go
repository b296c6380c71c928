// Package notify implements the NotificationSink (spec.md §2.C): it
// subscribes to the event bus's notification topic and fans each
// dto.Notification out to whichever delivery backends are enabled for its
// event kind, substituting the per-event recipient list configured for
// that backend.
//
// Grounded on the teacher's daemon/services/alerting/dispatcher.go
// (per-channel fan-out, shoutrrr.Send as the one-size-fits-all transport),
// generalized from alert-rule channel lists to the spec's
// enable_<backend>_notifications toggles plus notify_<event>_recipients
// CSV lists.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nicholas-fedor/shoutrrr"

	"github.com/nipil/gcn-manager/daemon/constants"
	"github.com/nipil/gcn-manager/daemon/domain"
	"github.com/nipil/gcn-manager/daemon/dto"
	"github.com/nipil/gcn-manager/daemon/logger"
)

// sendFunc is shoutrrr.Send, indirected so tests can substitute a fake.
var sendFunc = shoutrrr.Send

// backend identifies one delivery channel.
type backend struct {
	name       string
	enabled    func(domain.Config) bool
	url        func(domain.Config) string
	recipients func(domain.Config) map[string]string
}

var backends = []backend{
	{
		name:       "email",
		enabled:    func(c domain.Config) bool { return c.EnableEmailNotifications },
		url:        func(c domain.Config) string { return c.SMTPURL },
		recipients: func(c domain.Config) map[string]string { return c.NotifyEmailRecipients },
	},
	{
		name:       "sms",
		enabled:    func(c domain.Config) bool { return c.EnableSMSNotifications },
		url:        func(c domain.Config) string { return c.SMSURL },
		recipients: func(c domain.Config) map[string]string { return c.NotifySMSRecipients },
	},
	{
		name:       "microblog",
		enabled:    func(c domain.Config) bool { return c.EnableMicroblogNotifications },
		url:        func(c domain.Config) string { return c.MicroblogURL },
		recipients: func(c domain.Config) map[string]string { return c.NotifyMicroblogRecipients },
	},
}

// Sink is the NotificationSink.
type Sink struct {
	mu  sync.RWMutex
	cfg domain.Config
}

// New creates a Sink with the given initial configuration.
func New(cfg domain.Config) *Sink {
	return &Sink{cfg: cfg}
}

// ReloadNotifications swaps in a freshly-read notification section of the
// config (toggles, recipient maps, backend URLs) without touching any MQTT
// settings; called on every domain.WatchNotifications reload.
func (s *Sink) ReloadNotifications(cfg domain.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.EnableEmailNotifications = cfg.EnableEmailNotifications
	s.cfg.EnableSMSNotifications = cfg.EnableSMSNotifications
	s.cfg.EnableMicroblogNotifications = cfg.EnableMicroblogNotifications
	s.cfg.NotifyEmailRecipients = cfg.NotifyEmailRecipients
	s.cfg.NotifySMSRecipients = cfg.NotifySMSRecipients
	s.cfg.NotifyMicroblogRecipients = cfg.NotifyMicroblogRecipients
	s.cfg.SMTPURL = cfg.SMTPURL
	s.cfg.SMSURL = cfg.SMSURL
	s.cfg.MicroblogURL = cfg.MicroblogURL
	logger.Info("Notify: reloaded notification configuration")
}

func (s *Sink) config() domain.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Run subscribes to hub's notification topic and emits every notification
// received until ctx is cancelled.
func (s *Sink) Run(ctx context.Context, hub *domain.EventBus) {
	ch := hub.SubTopics(constants.TopicNotification)
	for {
		select {
		case <-ctx.Done():
			hub.Unsub(ch)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			n, ok := msg.(dto.Notification)
			if !ok {
				continue
			}
			s.Emit(n)
		}
	}
}

// Emit fans n out to every enabled backend that has a non-empty recipient
// list configured for n.Kind().
func (s *Sink) Emit(n dto.Notification) {
	cfg := s.config()
	message := formatMessage(n)

	for _, b := range backends {
		if !b.enabled(cfg) {
			continue
		}
		url := b.url(cfg)
		if url == "" {
			continue
		}
		csv := b.recipients(cfg)[n.Kind()]
		if csv == "" {
			continue
		}
		for _, to := range splitRecipients(csv) {
			if err := s.deliver(b.name, url, to, message); err != nil {
				logger.Error("Notify: failed to deliver %s via %s to %s: %v", n.Kind(), b.name, to, err)
			}
		}
	}
}

func (s *Sink) deliver(backendName, urlTemplate, to, message string) error {
	url := strings.ReplaceAll(urlTemplate, "{to}", to)
	if err := sendFunc(url, message); err != nil {
		return fmt.Errorf("shoutrrr %s: %w", backendName, err)
	}
	return nil
}

func splitRecipients(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// formatMessage renders a notification as one line: its kind followed by
// its full JSON payload. Every backend is sent this same text.
func formatMessage(n dto.Notification) string {
	payload, err := n.MarshalJSON()
	if err != nil {
		return n.Kind()
	}
	return fmt.Sprintf("%s %s", n.Kind(), payload)
}
