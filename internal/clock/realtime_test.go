package clock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

type fakeTime struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Duration
	limit  int
	cancel context.CancelFunc
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.waits) >= f.limit {
		f.cancel()
		return nil
	}
	f.waits = append(f.waits, d)
	f.now = f.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- f.now
	return ch
}

func TestNewRealtimeClockFailsFast(t *testing.T) {
	_, err := NewRealtimeClock(nil, time.Minute)
	assert.ErrorIs(t, err, domain.ErrFatal)

	_, err = NewRealtimeClock(testCalendar(t), 0)
	assert.ErrorIs(t, err, domain.ErrFatal)
}

func TestRealtimeClockAlignsFirstWake(t *testing.T) {
	cal := testCalendar(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ft := &fakeTime{now: at(t, cal, "2024-01-02 10:28"), limit: 3, cancel: cancel}
	clk, err := NewRealtimeClock(cal, 5*time.Minute, WithTimeSource(ft.Now, ft.After))
	require.NoError(t, err)

	out := NewLatest[domain.TickEvent]()
	require.NoError(t, clk.Run(ctx, out))

	require.Len(t, ft.waits, 3)
	assert.Equal(t, 2*time.Minute, ft.waits[0])
	assert.Equal(t, 5*time.Minute, ft.waits[1])
	assert.Equal(t, 5*time.Minute, ft.waits[2])

	// Three wakes were produced with no consumer: only the last survives.
	ev, err := out.Receive(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, at(t, cal, "2024-01-02 10:40"), ev.Timestamp, 0)
	assert.Equal(t, domain.PhaseTradingBar, ev.Phase)
	assert.Equal(t, uint64(2), out.Dropped())

	_, err = out.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRealtimeClockStop(t *testing.T) {
	clk, err := NewRealtimeClock(testCalendar(t), time.Hour)
	require.NoError(t, err)

	done := make(chan error, 1)
	out := NewLatest[domain.TickEvent]()
	go func() { done <- clk.Run(context.Background(), out) }()

	clk.Stop()
	clk.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("clock did not stop")
	}
}
