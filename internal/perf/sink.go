package perf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// DefaultChannel is the pub/sub channel snapshots are published on.
const DefaultChannel = "perf"

// Sink receives performance snapshots.
type Sink interface {
	Publish(ctx context.Context, snap domain.PerformanceSnapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, snap domain.PerformanceSnapshot) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, snap domain.PerformanceSnapshot) error {
	return f(ctx, snap)
}

// Collector keeps every snapshot in memory; backtests return it as the
// result of the run.
type Collector struct {
	mu    sync.Mutex
	snaps []domain.PerformanceSnapshot
}

// Publish implements Sink.
func (c *Collector) Publish(_ context.Context, snap domain.PerformanceSnapshot) error {
	c.mu.Lock()
	c.snaps = append(c.snaps, snap)
	c.mu.Unlock()
	return nil
}

// Snapshots returns a copy of everything collected.
func (c *Collector) Snapshots() []domain.PerformanceSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.PerformanceSnapshot(nil), c.snaps...)
}

// BusSink publishes snapshots as JSON on a signal bus channel and, when a
// history stream is set, appends them to it.
type BusSink struct {
	bus     domain.SignalBus
	channel string
	stream  string
}

// NewBusSink publishes on channel, or DefaultChannel when empty.
func NewBusSink(bus domain.SignalBus, channel string) *BusSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &BusSink{bus: bus, channel: channel}
}

// WithHistory also appends every snapshot to stream.
func (s *BusSink) WithHistory(stream string) *BusSink {
	s.stream = stream
	return s
}

// Publish implements Sink.
func (s *BusSink) Publish(ctx context.Context, snap domain.PerformanceSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("perf: marshal snapshot: %w", err)
	}
	if err := s.bus.Publish(ctx, s.channel, payload); err != nil {
		return fmt.Errorf("perf: publish snapshot: %w", err)
	}
	if s.stream != "" {
		if err := s.bus.StreamAppend(ctx, s.stream, payload); err != nil {
			return fmt.Errorf("perf: append snapshot: %w", err)
		}
	}
	return nil
}

// MultiSink fans out to several sinks. Every sink is tried; failures are
// returned together.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(ctx context.Context, snap domain.PerformanceSnapshot) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
