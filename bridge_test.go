package dtmfin

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	symbol    string
	timestamp float64
}

// recorder 线程安全地记录回调
type recorder struct {
	mu  sync.Mutex
	got []delivery
}

func (r *recorder) callback(symbol string, timestamp float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, delivery{symbol, timestamp})
	return nil
}

func (r *recorder) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.got...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func ev(sym Symbol, ms int) Event {
	return Event{Symbol: sym, At: time.Duration(ms) * time.Millisecond}
}

func TestBridge_DeliversInOrder(t *testing.T) {
	rec := &recorder{}
	b := NewBridge(rec.callback, quietLogger(), nil)
	b.Start()
	defer b.Close()

	for i, sym := range []Symbol{'1', '2', '3'} {
		require.True(t, b.Post(ev(sym, 100*(i+1))))
		want := i + 1
		require.Eventually(t, func() bool { return rec.count() == want }, time.Second, time.Millisecond)
	}

	b.Close()
	assert.Equal(t, []delivery{{"1", 0.1}, {"2", 0.2}, {"3", 0.3}}, rec.deliveries())
	assert.Equal(t, BridgeStats{Posted: 3, Delivered: 3}, b.Stats())
}

func TestBridge_OverwriteKeepsLatest(t *testing.T) {
	rec := &recorder{}
	b := NewBridge(rec.callback, quietLogger(), nil)

	// 消费者还没启动，第二个事件覆盖第一个
	require.True(t, b.Post(ev('1', 10)))
	require.True(t, b.Post(ev('2', 20)))

	b.Start()
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	b.Close()

	assert.Equal(t, []delivery{{"2", 0.02}}, rec.deliveries())
	stats := b.Stats()
	assert.EqualValues(t, 2, stats.Posted)
	assert.EqualValues(t, 1, stats.Overwritten)
	assert.EqualValues(t, 1, stats.Delivered)
}

func TestBridge_CallbackFailuresAreContained(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	cb := func(symbol string, _ float64) error {
		mu.Lock()
		calls = append(calls, symbol)
		mu.Unlock()
		switch symbol {
		case "1":
			return errors.New("consumer rejected")
		case "2":
			panic("consumer crashed")
		}
		return nil
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(calls)
	}

	b := NewBridge(cb, quietLogger(), nil)
	b.Start()
	defer b.Close()

	for i, sym := range []Symbol{'1', '2', '3'} {
		require.True(t, b.Post(ev(sym, i)))
		want := i + 1
		require.Eventually(t, func() bool { return count() == want }, time.Second, time.Millisecond)
	}

	require.Eventually(t, func() bool { return b.Stats().Delivered == 3 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 2, b.Stats().Failed)
}

func TestBridge_CloseDeliversPending(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	rec := &recorder{}
	cb := func(symbol string, ts float64) error {
		if symbol == "1" {
			entered <- struct{}{}
			<-release
		}
		return rec.callback(symbol, ts)
	}

	b := NewBridge(cb, quietLogger(), nil)
	b.Start()
	require.True(t, b.Post(ev('1', 1)))
	<-entered

	// 消费者正在回调中，这个事件停在槽里
	require.True(t, b.Post(ev('2', 2)))

	closed := make(chan struct{})
	go func() {
		b.Close()
		close(closed)
	}()
	close(release)
	<-closed

	assert.Equal(t, []delivery{{"1", 0.001}, {"2", 0.002}}, rec.deliveries())
	assert.False(t, b.Post(ev('3', 3)), "post after close is a no-op")
}

func TestBridge_PostWithoutConsumer(t *testing.T) {
	b := NewBridge(nil, quietLogger(), nil)
	assert.False(t, b.Post(ev('1', 1)))
	b.Close()
	assert.Zero(t, b.Stats().Posted)
}

func TestBridge_CloseIdempotent(t *testing.T) {
	rec := &recorder{}
	b := NewBridge(rec.callback, quietLogger(), nil)
	b.Start()
	b.Close()
	b.Close()

	// 从未启动的桥也可以关闭
	NewBridge(rec.callback, quietLogger(), nil).Close()
}

func TestBridge_PostDoesNotAllocate(t *testing.T) {
	b := NewBridge(func(string, float64) error { return nil }, quietLogger(), nil)
	defer b.Close()

	allocs := testing.AllocsPerRun(100, func() {
		b.Post(ev('9', 1))
	})
	assert.Zero(t, allocs)
}
