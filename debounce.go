package dtmfin

import (
	"fmt"
	"time"
)

// DebounceConfig 去抖动窗口
type DebounceConfig struct {
	MinHold time.Duration `mapstructure:"min_hold"` // 连续出现超过此时长才确认，过滤点击和瞬态
	MaxHold time.Duration `mapstructure:"max_hold"` // 超过此时长仍未确认则放弃本次按住
}

// DefaultDebounceConfig 默认 (50ms, 100ms]
func DefaultDebounceConfig() DebounceConfig {
	return DebounceConfig{
		MinHold: 50 * time.Millisecond,
		MaxHold: 100 * time.Millisecond,
	}
}

// Validate 要求 0 <= MinHold < MaxHold
func (c DebounceConfig) Validate() error {
	if c.MinHold < 0 {
		return newError("config", ErrInvalidConfig, fmt.Errorf("min hold must not be negative, got %v", c.MinHold))
	}
	if c.MaxHold <= c.MinHold {
		return newError("config", ErrInvalidConfig,
			fmt.Errorf("max hold %v must be greater than min hold %v", c.MaxHold, c.MinHold))
	}
	return nil
}

// Debouncer 把逐块的符号流转换为不重复的检测事件。
// 只由生产者 (音频回调) 使用，不需要加锁。
type Debouncer struct {
	cfg DebounceConfig

	active   Symbol        // 当前连续出现的符号，None 表示空闲
	since    time.Duration // 本次按住的开始时间
	accepted bool          // 本次按住是否已经确认过

	lastAcceptedAt  time.Duration
	hasLastAccepted bool
}

// NewDebouncer 创建状态为空的去抖动器
func NewDebouncer(cfg DebounceConfig) *Debouncer {
	return &Debouncer{cfg: cfg}
}

// Reset 回到初始状态 (流重新打开时)
func (d *Debouncer) Reset() {
	d.active = None
	d.since = 0
	d.accepted = false
	d.lastAcceptedAt = 0
	d.hasLastAccepted = false
}

// Active 当前按住的符号
func (d *Debouncer) Active() Symbol {
	return d.active
}

// LastAccepted 最近一次确认的时间
func (d *Debouncer) LastAccepted() (time.Duration, bool) {
	return d.lastAcceptedAt, d.hasLastAccepted
}

// Observe 处理一个块的解码结果，now 是该块的流时钟。
// 返回 true 时 Event 是新确认的检测。
func (d *Debouncer) Observe(sym Symbol, now time.Duration) (Event, bool) {
	if sym == None {
		// 音调结束，重新武装
		d.active = None
		d.accepted = false
		return Event{}, false
	}

	// 首次出现、换了按键或时钟倒退: 重新开始计时
	if sym != d.active || now < d.since {
		d.active = sym
		d.since = now
		d.accepted = false
		return Event{}, false
	}

	if d.accepted {
		return Event{}, false
	}

	// 时钟跳变 (回调长时间未被调用) 会得到很大的 elapsed，自然落在窗口外
	elapsed := now - d.since
	if elapsed <= d.cfg.MinHold || elapsed > d.cfg.MaxHold {
		return Event{}, false
	}

	d.accepted = true
	d.lastAcceptedAt = now
	d.hasLastAccepted = true
	return Event{Symbol: sym, At: now}, true
}
