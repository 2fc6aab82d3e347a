// Package notify fans operator alerts out to chat channels such as Telegram
// and Discord, filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier implements domain.Alerter over a set of senders.
type Notifier struct {
	algo    string
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier delivers the listed events to senders, prefixing titles with
// the algo name. An empty events list allows every event.
func NewNotifier(algo string, senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		algo:    algo,
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify delivers an alert when its event passes the filter. Every alert is
// logged, delivered or not.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	n.logger.InfoContext(ctx, "alert",
		slog.String("event", event),
		slog.String("title", title),
		slog.String("message", message),
	)
	if !n.Allows(event) {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll delivers regardless of the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if n.algo != "" {
		title = fmt.Sprintf("[%s] %s", n.algo, title)
	}
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

var _ domain.Alerter = (*Notifier)(nil)
