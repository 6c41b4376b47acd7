package dtmfin

import (
	"sync/atomic"
	"time"
)

// framesToDuration 把采样点数换算为时长，拆成整秒和余数以避免溢出
func framesToDuration(frames uint64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	r := uint64(rate)
	secs := frames / r
	rem := frames % r
	return time.Duration(secs)*time.Second + time.Duration(rem*uint64(time.Second)/r)
}

// blockAssembler 把后端任意长度的回调数据切成固定长度的块。
// 缓冲区在创建时分配，之后不再分配内存。
type blockAssembler struct {
	buf   []float32
	n     int
	rate  int
	start time.Duration // buf[0] 的流时钟
	emit  func(block []float32, at time.Duration)
}

func newBlockAssembler(blockSize int, emit func([]float32, time.Duration)) *blockAssembler {
	return &blockAssembler{
		buf:  make([]float32, blockSize),
		emit: emit,
	}
}

// write 追加一段采样，at 是 samples[0] 的流时钟
func (a *blockAssembler) write(samples []float32, at time.Duration) {
	off := 0
	for off < len(samples) {
		if a.n == 0 {
			a.start = at + framesToDuration(uint64(off), a.rate)
		}
		c := copy(a.buf[a.n:], samples[off:])
		a.n += c
		off += c
		if a.n == len(a.buf) {
			a.emit(a.buf, a.start)
			a.n = 0
		}
	}
}

func (a *blockAssembler) reset() {
	a.n = 0
	a.start = 0
}

// pipeline 生产者一侧的完整链路: 切块 -> 解码 -> 去抖动 -> 投递到桥。
// 除 detached 标志外所有状态只在音频回调线程上访问。
type pipeline struct {
	adapter   *decodeAdapter
	debouncer *Debouncer
	bridge    *Bridge
	metrics   *Metrics
	asm       *blockAssembler
	detached  atomic.Bool
}

func newPipeline(dec Decoder, debounce DebounceConfig, blockSize int, bridge *Bridge, m *Metrics) *pipeline {
	p := &pipeline{
		adapter:   newDecodeAdapter(dec, blockSize, m),
		debouncer: NewDebouncer(debounce),
		bridge:    bridge,
		metrics:   m,
	}
	p.asm = newBlockAssembler(blockSize, p.processBlock)
	return p
}

// configure 用流的实际采样率配置解码器，必须在流启动之前调用
func (p *pipeline) configure(sampleRate int) error {
	if err := p.adapter.dec.Configure(sampleRate, p.adapter.blockSize); err != nil {
		return err
	}
	p.asm.rate = sampleRate
	p.asm.reset()
	p.debouncer.Reset()
	return nil
}

// onSamples 是交给后端的 BlockFunc
func (p *pipeline) onSamples(samples []float32, at time.Duration) {
	if p.detached.Load() {
		return
	}
	p.asm.write(samples, at)
}

func (p *pipeline) processBlock(block []float32, at time.Duration) {
	sym := p.adapter.decode(block)
	p.metrics.blockDecoded()

	ev, ok := p.debouncer.Observe(sym, at)
	if !ok {
		return
	}
	p.metrics.symbolAccepted(ev.Symbol)
	p.bridge.Post(ev)
}

// detach 之后到达的回调数据全部丢弃
func (p *pipeline) detach() {
	p.detached.Store(true)
}
