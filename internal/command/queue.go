// Package command carries operator commands from out-of-band channels to the
// dispatch loop.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// DefaultChannel is the pub/sub channel operators publish commands on.
const DefaultChannel = "commands"

// ErrQueueFull is returned when a command is dropped for lack of room.
var ErrQueueFull = errors.New("command: queue full")

// Source is polled once per dispatch iteration. Poll never blocks.
type Source interface {
	Poll() (domain.Command, bool)
}

// Notifier is a Source that signals when a command may be waiting, so a
// consumer blocked on something else can wake up for it.
type Notifier interface {
	Source
	Ready() <-chan struct{}
}

// Queue is a bounded, non-blocking command buffer. When it is full new
// commands are dropped and logged.
type Queue struct {
	ch     chan domain.Command
	ready  chan struct{}
	logger *slog.Logger
}

// NewQueue creates a queue holding up to size commands.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		ch:     make(chan domain.Command, size),
		ready:  make(chan struct{}, 1),
		logger: logger.With(slog.String("component", "commands")),
	}
}

// Push enqueues cmd. It reports false when the queue is full.
func (q *Queue) Push(cmd domain.Command) bool {
	select {
	case q.ch <- cmd:
		q.signal()
		return true
	default:
		q.logger.Warn("command queue full, dropping command", slog.String("command", string(cmd.Kind())))
		return false
	}
}

// PushRaw decodes a wire payload and enqueues it. Malformed and unknown
// commands are logged and returned as errors; they never reach the loop.
func (q *Queue) PushRaw(payload []byte) error {
	cmd, err := domain.DecodeCommand(payload)
	if err != nil {
		q.logger.Warn("dropping command", slog.String("error", err.Error()))
		return err
	}
	if !q.Push(cmd) {
		return fmt.Errorf("%w: dropped %s", ErrQueueFull, cmd.Kind())
	}
	return nil
}

// Poll implements Source. The ready signal is re-armed while commands
// remain.
func (q *Queue) Poll() (domain.Command, bool) {
	select {
	case cmd := <-q.ch:
		if len(q.ch) > 0 {
			q.signal()
		}
		return cmd, true
	default:
		return nil, false
	}
}

// Ready implements Notifier.
func (q *Queue) Ready() <-chan struct{} { return q.ready }

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Len returns the number of queued commands.
func (q *Queue) Len() int { return len(q.ch) }

// Listen forwards commands published on channel into q until ctx is done or
// the subscription ends.
func Listen(ctx context.Context, bus domain.SignalBus, channel string, q *Queue) error {
	if channel == "" {
		channel = DefaultChannel
	}
	msgs, err := bus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("command: subscribe %s: %w", channel, err)
	}
	q.logger.Info("listening for operator commands", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-msgs:
			if !ok {
				q.logger.Info("command subscription closed", slog.String("channel", channel))
				return nil
			}
			_ = q.PushRaw(payload)
		}
	}
}
