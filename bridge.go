package dtmfin

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Callback 检测回调，symbol 是单个字符，timestamp 是流时钟的浮点秒。
// 只在桥的消费者 goroutine 上调用，返回的错误和 panic 都会被记录并吞掉。
type Callback func(symbol string, timestamp float64) error

// BridgeStats 桥的计数器快照
type BridgeStats struct {
	Posted      uint64
	Delivered   uint64
	Overwritten uint64
	Failed      uint64
}

// Bridge 单槽信箱 + 唤醒信号，把音频线程确认的事件交给消费者 goroutine。
//
// 覆盖策略: 消费者还没取走时再次 Post，旧事件被新事件替换 (计入 Overwritten)，
// 所以积压时只有最新的事件一定送达。消费者跟得上时按确认顺序送达。
//
// Post 的临界区只有几次赋值，消费者在回调期间不持有锁，生产者不会被回调阻塞。
type Bridge struct {
	mu         sync.Mutex
	pending    Event
	hasPending bool
	closed     bool
	cb         Callback

	wake chan struct{} // 容量 1，多次唤醒合并为一次
	stop chan struct{}
	done chan struct{}

	started   atomic.Bool
	closeOnce sync.Once

	logger  *slog.Logger
	metrics *Metrics

	posted      atomic.Uint64
	delivered   atomic.Uint64
	overwritten atomic.Uint64
	failed      atomic.Uint64
}

// NewBridge 创建桥，需要 Start 之后才会投递事件
func NewBridge(cb Callback, logger *slog.Logger, m *Metrics) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cb:      cb,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger.With("component", "bridge"),
		metrics: m,
	}
}

// Start 启动消费者 goroutine，重复调用无效
func (b *Bridge) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	go b.loop()
}

// Post 在生产者线程上投递事件。不阻塞，不分配内存。
// 桥已关闭或没有注册回调时什么也不做，返回 false。
func (b *Bridge) Post(ev Event) bool {
	b.mu.Lock()
	if b.closed || b.cb == nil {
		b.mu.Unlock()
		return false
	}
	overwrote := b.hasPending
	b.pending = ev
	b.hasPending = true
	b.mu.Unlock()

	b.posted.Add(1)
	if overwrote {
		b.overwritten.Add(1)
	}
	b.metrics.eventPosted(overwrote)

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

func (b *Bridge) loop() {
	defer close(b.done)
	for {
		select {
		case <-b.wake:
			b.drain()
		case <-b.stop:
			// 关闭前把槽里剩下的事件送出去
			b.drain()
			return
		}
	}
}

// drain 取出槽中的事件并调用回调，锁只保护取槽
func (b *Bridge) drain() {
	b.mu.Lock()
	ev, ok, cb := b.pending, b.hasPending, b.cb
	b.pending = Event{}
	b.hasPending = false
	b.mu.Unlock()

	if !ok || cb == nil {
		return
	}
	b.deliver(cb, ev)
}

func (b *Bridge) deliver(cb Callback, ev Event) {
	err := invokeCallback(cb, ev)
	b.delivered.Add(1)
	if err != nil {
		b.failed.Add(1)
		b.logger.Warn("detection callback failed",
			"symbol", ev.Symbol.String(),
			"timestamp", ev.Seconds(),
			"error", err)
	}
	b.metrics.eventDelivered(err != nil)
}

func invokeCallback(cb Callback, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError("callback", ErrCallback, fmt.Errorf("panic: %v", r))
		}
	}()
	if cbErr := cb(ev.Symbol.String(), ev.Seconds()); cbErr != nil {
		return newError("callback", ErrCallback, cbErr)
	}
	return nil
}

// Close 停止接收事件，送出仍在槽中的事件，等待消费者 goroutine 退出并释放回调。
// 可以重复调用。不能在回调内部调用 (会等待自己退出)。
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		close(b.stop)
		if b.started.Load() {
			<-b.done
		}

		b.mu.Lock()
		b.cb = nil
		b.pending = Event{}
		b.hasPending = false
		b.mu.Unlock()
	})
}

// Stats 返回计数器快照
func (b *Bridge) Stats() BridgeStats {
	return BridgeStats{
		Posted:      b.posted.Load(),
		Delivered:   b.delivered.Load(),
		Overwritten: b.overwritten.Load(),
		Failed:      b.failed.Load(),
	}
}
