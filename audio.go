package dtmfin

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// MalgoBackend 基于 miniaudio 的声卡采集后端
type MalgoBackend struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	logger *slog.Logger
}

// NewMalgoBackend 初始化 malgo 上下文
func NewMalgoBackend(logger *slog.Logger) (*MalgoBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, newError("init", ErrInitialization, fmt.Errorf("failed to init malgo context: %w", err))
	}
	return &MalgoBackend{
		ctx:    ctx,
		logger: logger.With("component", "malgo"),
	}, nil
}

// Close 释放 malgo 上下文，之前打开的流必须已经关闭
func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

func (b *MalgoBackend) captureDevices() ([]malgo.DeviceInfo, error) {
	if b.ctx == nil {
		return nil, errors.New("malgo context closed")
	}
	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}
	return infos, nil
}

// Devices 列出采集设备。
// miniaudio 的枚举结果不带声道数，采集设备一律按单声道报告 (流也总是以单声道打开)。
// 没有设备被标记为默认时，把第一个设备当作默认设备。
func (b *MalgoBackend) Devices() ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos, err := b.captureDevices()
	if err != nil {
		return nil, err
	}

	out := make([]DeviceInfo, len(infos))
	hasDefault := false
	for i := range infos {
		out[i] = DeviceInfo{
			Index:            i,
			Name:             infos[i].Name(),
			MaxInputChannels: 1,
			IsDefault:        infos[i].IsDefault == 1,
		}
		hasDefault = hasDefault || out[i].IsDefault
	}
	if !hasDefault && len(out) > 0 {
		out[0].IsDefault = true
	}
	return out, nil
}

// OpenStream 以单声道 float32 打开采集设备
func (b *MalgoBackend) OpenStream(cfg StreamConfig, fn BlockFunc) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos, err := b.captureDevices()
	if err != nil {
		return nil, err
	}
	if cfg.Device.Index < 0 || cfg.Device.Index >= len(infos) {
		return nil, fmt.Errorf("device index %d no longer present", cfg.Device.Index)
	}
	// 设备 ID 的内存必须在 InitDevice 期间保持有效，由 stream 持有
	info := infos[cfg.Device.Index]

	s := &malgoStream{
		info:   info,
		fn:     fn,
		logger: b.logger.With("device", info.Name()),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.Capture.DeviceID = s.info.ID.Pointer()
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.BlockSize)
	if cfg.Periods > 0 {
		deviceConfig.Periods = uint32(cfg.Periods)
	}
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onRecvFrames,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init device: %w", err)
	}
	s.device = device

	rate := int(device.SampleRate())
	periods := cfg.Periods
	if periods <= 0 {
		periods = 1
	}
	s.streamInfo = StreamInfo{
		Device:     info.Name(),
		SampleRate: rate,
		Latency:    framesToDuration(uint64(cfg.BlockSize*periods), rate),
	}
	s.logger.Debug("capture device initialized", "sample_rate", rate)
	return s, nil
}

type malgoStream struct {
	info       malgo.DeviceInfo
	device     *malgo.Device
	fn         BlockFunc
	streamInfo StreamInfo
	logger     *slog.Logger

	mu      sync.Mutex
	running atomic.Bool
	started atomic.Int64 // Start 时刻的 monoNow()，流时钟的零点
}

// clockBase 进程内的单调时钟零点
var clockBase = time.Now()

func monoNow() time.Duration {
	return time.Since(clockBase)
}

// onRecvFrames 运行在 miniaudio 的音频线程上
func (s *malgoStream) onRecvFrames(_, pInputSamples []byte, framecount uint32) {
	if !s.running.Load() || len(pInputSamples) == 0 || framecount == 0 {
		return
	}
	n := int(framecount)
	if limit := len(pInputSamples) / 4; n > limit {
		n = limit
	}
	samples := unsafe.Slice((*float32)(unsafe.Pointer(&pInputSamples[0])), n)
	at := monoNow() - time.Duration(s.started.Load())
	s.fn(samples, at)
}

func (s *malgoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return errors.New("stream closed")
	}
	s.started.Store(int64(monoNow()))
	s.running.Store(true)
	if err := s.device.Start(); err != nil {
		s.running.Store(false)
		return err
	}
	return nil
}

// Stop 返回时 miniaudio 已经不会再调用 Data 回调
func (s *malgoStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil || !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	return s.device.Stop()
}

func (s *malgoStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil
	}
	s.running.Store(false)
	s.device.Uninit()
	s.device = nil
	return nil
}

func (s *malgoStream) Info() StreamInfo {
	return s.streamInfo
}
