package dtmfin

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DeviceInfo 采集设备描述
type DeviceInfo struct {
	Index            int    `yaml:"index"`
	Name             string `yaml:"name"`
	MaxInputChannels int    `yaml:"max_input_channels"`
	IsDefault        bool   `yaml:"default"`
}

// StreamConfig 打开流所需的参数
type StreamConfig struct {
	Device     DeviceInfo
	SampleRate int
	BlockSize  int
	Periods    int
}

// StreamInfo 打开的流的元数据。SessionID 和 BlockSize 由 Controller 填写
type StreamInfo struct {
	SessionID  string        `yaml:"session_id"`
	Device     string        `yaml:"device"`
	Latency    time.Duration `yaml:"latency"`
	SampleRate int           `yaml:"sample_rate"`
	BlockSize  int           `yaml:"block_size"`
}

// BlockFunc 后端在音频线程上调用，samples 为单声道浮点采样 (调用返回后不得保留)，
// at 是 samples[0] 的流时钟
type BlockFunc func(samples []float32, at time.Duration)

// Stream 一个已打开的输入流。Stop 返回后不再调用 BlockFunc
type Stream interface {
	Start() error
	Stop() error
	Close() error
	Info() StreamInfo
}

// Backend 音频 I/O 子系统
type Backend interface {
	Devices() ([]DeviceInfo, error)
	OpenStream(cfg StreamConfig, fn BlockFunc) (Stream, error)
}

// finiteStream 会自行结束的流 (文件回放)
type finiteStream interface {
	Done() <-chan struct{}
}

// Option Controller 的可选项
type Option func(*Controller)

// WithLogger 设置日志
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics 设置指标，nil 表示不统计
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithConfig 设置配置，默认 DefaultConfig()
func WithConfig(cfg *Config) Option {
	return func(c *Controller) {
		if cfg != nil {
			c.cfg = cfg
		}
	}
}

// WithDecoderFactory 每次 Open 时用 factory 创建新的解码器
func WithDecoderFactory(factory func() Decoder) Option {
	return func(c *Controller) {
		if factory != nil {
			c.newDecoder = factory
		}
	}
}

type session struct {
	id     string
	stream Stream
	pipe   *pipeline
	bridge *Bridge
	info   StreamInfo
	logger *slog.Logger
}

// Controller 管理一个设备会话: 流 + 解码器 + 去抖动 + 桥。
// 同一时刻最多一个会话，Open 会先拆掉旧会话。
// 方法可以并发调用，但不能在检测回调内调用 Open/Close。
type Controller struct {
	mu         sync.Mutex
	backend    Backend
	cfg        *Config
	logger     *slog.Logger
	metrics    *Metrics
	newDecoder func() Decoder
	session    *session
}

// NewController 创建控制器
func NewController(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		cfg:     DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.newDecoder == nil {
		decOpts := c.cfg.DecoderOptions()
		c.newDecoder = func() Decoder { return NewGoertzelDecoder(decOpts) }
	}
	c.logger = c.logger.With("component", "controller")
	return c
}

// ListDevices 列出可以采集的设备 (输入声道数 > 0)，不需要打开会话
func (c *Controller) ListDevices() ([]DeviceInfo, error) {
	all, err := c.backend.Devices()
	if err != nil {
		return nil, newError("list devices", ErrInitialization, err)
	}
	var out []DeviceInfo
	for _, d := range all {
		if d.MaxInputChannels > 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

// resolveDevice index 为 -1 时选择默认设备
func resolveDevice(devices []DeviceInfo, index int) (DeviceInfo, error) {
	if index == -1 {
		for _, d := range devices {
			if d.IsDefault && d.MaxInputChannels > 0 {
				return d, nil
			}
		}
		return DeviceInfo{}, errors.New("no default input device")
	}
	for _, d := range devices {
		if d.Index == index {
			if d.MaxInputChannels <= 0 {
				return DeviceInfo{}, fmt.Errorf("device %d (%s) has no input channels", index, d.Name)
			}
			return d, nil
		}
	}
	return DeviceInfo{}, fmt.Errorf("device index %d out of range", index)
}

// Open 打开设备并启动检测，cb 在消费者 goroutine 上收到每个确认的按键。
// 任何一步失败都会回滚已经打开的部分。
func (c *Controller) Open(deviceIndex int, cb Callback) (StreamInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.closeLocked(); err != nil {
		c.logger.Warn("previous session teardown reported an error", "error", err)
	}

	if cb == nil {
		return StreamInfo{}, newError("open", ErrInvalidConfig, errors.New("callback is required"))
	}
	if err := c.cfg.Validate(); err != nil {
		return StreamInfo{}, err
	}

	devices, err := c.backend.Devices()
	if err != nil {
		return StreamInfo{}, newError("open", ErrInitialization, err)
	}
	dev, err := resolveDevice(devices, deviceIndex)
	if err != nil {
		return StreamInfo{}, newError("open", ErrDeviceUnavailable, err)
	}

	id := uuid.NewString()
	logger := c.logger.With("session_id", id)
	blockSize := c.cfg.Audio.BlockSize

	bridge := NewBridge(cb, logger, c.metrics)
	pipe := newPipeline(c.newDecoder(), c.cfg.Debounce, blockSize, bridge, c.metrics)

	stream, err := c.backend.OpenStream(StreamConfig{
		Device:     dev,
		SampleRate: c.cfg.Audio.SampleRate,
		BlockSize:  blockSize,
		Periods:    c.cfg.Audio.Periods,
	}, pipe.onSamples)
	if err != nil {
		bridge.Close()
		return StreamInfo{}, newError("open", ErrStreamOpen, err)
	}

	info := stream.Info()
	if info.SampleRate <= 0 {
		info.SampleRate = c.cfg.Audio.SampleRate
	}
	if info.Device == "" {
		info.Device = dev.Name
	}
	info.SessionID = id
	info.BlockSize = blockSize

	if err := pipe.configure(info.SampleRate); err != nil {
		_ = stream.Close()
		bridge.Close()
		return StreamInfo{}, newError("open", ErrInitialization, fmt.Errorf("configure decoder: %w", err))
	}

	bridge.Start()
	if err := stream.Start(); err != nil {
		pipe.detach()
		if closeErr := stream.Close(); closeErr != nil {
			logger.Warn("failed to close stream after start failure", "error", closeErr)
		}
		bridge.Close()
		return StreamInfo{}, newError("open", ErrStreamStart, err)
	}

	c.session = &session{
		id:     id,
		stream: stream,
		pipe:   pipe,
		bridge: bridge,
		info:   info,
		logger: logger,
	}
	c.metrics.sessionOpened()
	logger.Info("session opened",
		"device", info.Device,
		"sample_rate", info.SampleRate,
		"block_size", info.BlockSize,
		"latency", info.Latency)
	return info, nil
}

// Close 停止并关闭流，然后拆掉桥。每一步都会执行，返回第一个错误。
// 没有会话时直接返回 nil。
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Controller) closeLocked() error {
	s := c.session
	if s == nil {
		return nil
	}
	c.session = nil

	var first error
	if err := s.stream.Stop(); err != nil {
		first = newError("close", ErrStreamStop, err)
	}
	if err := s.stream.Close(); err != nil && first == nil {
		first = newError("close", ErrStreamClose, err)
	}
	// 流已经停止，此后不会再有生产者访问桥
	s.pipe.detach()
	s.bridge.Close()

	c.metrics.sessionClosed()
	stats := s.bridge.Stats()
	s.logger.Info("session closed",
		"posted", stats.Posted,
		"delivered", stats.Delivered,
		"overwritten", stats.Overwritten,
		"callback_failures", stats.Failed,
		"decode_failures", s.pipe.adapter.failures.Load())
	return first
}

// Active 是否有打开的会话
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Info 当前会话的流信息
func (c *Controller) Info() (StreamInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return StreamInfo{}, false
	}
	return c.session.info, true
}

// Stats 当前会话的桥计数器
func (c *Controller) Stats() (BridgeStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return BridgeStats{}, false
	}
	return c.session.bridge.Stats(), true
}

// Done 当前流自行结束 (例如回放到文件末尾) 时关闭的通道。
// 设备流或没有会话时返回 nil，select 中永远不会就绪。
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	if fs, ok := c.session.stream.(finiteStream); ok {
		return fs.Done()
	}
	return nil
}
