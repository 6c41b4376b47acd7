package dtmfin

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// replayChunkFrames 每次回调送出的帧数，故意不等于块长，让切块逻辑真正工作
const replayChunkFrames = 256

// ReplayBackend 把 WAV 文件当作一个输入设备，用于没有声卡时的回放和测试
type ReplayBackend struct {
	path   string
	speed  float64 // 1.0 = 实时，0 = 不限速
	logger *slog.Logger
}

// NewReplayBackend 创建回放后端
func NewReplayBackend(path string, speed float64, logger *slog.Logger) *ReplayBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayBackend{
		path:   path,
		speed:  speed,
		logger: logger.With("component", "replay", "file", path),
	}
}

func openWAV(path string) (*os.File, *wav.Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		_ = f.Close()
		return nil, nil, errors.New("input is not a valid WAV audio file")
	}
	return f, dec, nil
}

// Devices 回放文件是唯一的设备，也是默认设备
func (b *ReplayBackend) Devices() ([]DeviceInfo, error) {
	f, dec, err := openWAV(b.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return []DeviceInfo{{
		Index:            0,
		Name:             "file:" + filepath.Base(b.path),
		MaxInputChannels: int(dec.NumChans),
		IsDefault:        true,
	}}, nil
}

// OpenStream 打开文件。流的采样率就是文件的采样率，cfg.SampleRate 被忽略
func (b *ReplayBackend) OpenStream(cfg StreamConfig, fn BlockFunc) (Stream, error) {
	if cfg.Device.Index != 0 {
		return nil, fmt.Errorf("replay backend has no device %d", cfg.Device.Index)
	}
	f, dec, err := openWAV(b.path)
	if err != nil {
		return nil, err
	}
	divisor, err := sampleDivisor(int(dec.BitDepth))
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	rate := int(dec.SampleRate)
	chans := int(dec.NumChans)
	if rate <= 0 || chans <= 0 {
		_ = f.Close()
		return nil, fmt.Errorf("invalid WAV format: rate=%d channels=%d", rate, chans)
	}

	return &replayStream{
		file:     f,
		dec:      dec,
		fn:       fn,
		rate:     rate,
		chans:    chans,
		divisor:  divisor,
		unsigned: dec.BitDepth == 8,
		speed:    b.speed,
		logger:   b.logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		info: StreamInfo{
			Device:     "file:" + filepath.Base(b.path),
			SampleRate: rate,
			Latency:    framesToDuration(replayChunkFrames, rate),
		},
	}, nil
}

// sampleDivisor 整数采样换算到 [-1, 1) 的除数
func sampleDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8, 16, 24, 32:
		return float32(uint64(1) << (bitDepth - 1)), nil
	default:
		return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
}

type replayStream struct {
	file     *os.File
	dec      *wav.Decoder
	fn       BlockFunc
	rate     int
	chans    int
	divisor  float32
	unsigned bool // 8 位 WAV 是无符号的
	speed    float64
	logger   *slog.Logger
	info     StreamInfo

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	err      error
}

func (s *replayStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("replay already started")
	}
	if s.file == nil {
		return errors.New("stream closed")
	}
	s.started = true
	go s.run()
	return nil
}

// run 读取文件并以 speed 倍实时速度送出数据
func (s *replayStream) run() {
	defer close(s.done)

	buf := &audio.IntBuffer{
		Data:   make([]int, replayChunkFrames*s.chans),
		Format: &audio.Format{SampleRate: s.rate, NumChannels: s.chans},
	}
	mono := make([]float32, replayChunkFrames)

	var ticker *time.Ticker
	if s.speed > 0 {
		interval := time.Duration(float64(framesToDuration(replayChunkFrames, s.rate)) / s.speed)
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	s.logger.Debug("replay started", "sample_rate", s.rate, "channels", s.chans, "speed", s.speed)
	var frames uint64
	for {
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-s.stop:
				return
			}
		} else {
			select {
			case <-s.stop:
				return
			default:
			}
		}

		n, err := s.dec.PCMBuffer(buf)
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.logger.Error("replay read failed", "error", err)
			return
		}
		if n == 0 {
			s.logger.Debug("end of replay file", "frames", frames)
			return
		}

		// 多声道取平均
		nf := n / s.chans
		for i := 0; i < nf; i++ {
			var sum float32
			for c := 0; c < s.chans; c++ {
				v := buf.Data[i*s.chans+c]
				if s.unsigned {
					v -= 128
				}
				sum += float32(v) / s.divisor
			}
			mono[i] = sum / float32(s.chans)
		}

		s.fn(mono[:nf], framesToDuration(frames, s.rate))
		frames += uint64(nf)
	}
}

// Done 文件读完或流停止后关闭
func (s *replayStream) Done() <-chan struct{} {
	return s.done
}

// Err 读取过程中遇到的错误
func (s *replayStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop 等回放 goroutine 退出后返回
func (s *replayStream) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
	return nil
}

func (s *replayStream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *replayStream) Info() StreamInfo {
	return s.info
}

// ReadWAV 不限速地读出整个文件 (多声道取平均)，返回采样和采样率
func ReadWAV(path string) ([]float32, int, error) {
	b := NewReplayBackend(path, 0, slog.New(slog.DiscardHandler))
	devices, err := b.Devices()
	if err != nil {
		return nil, 0, err
	}

	var out []float32
	st, err := b.OpenStream(StreamConfig{Device: devices[0]}, func(samples []float32, _ time.Duration) {
		out = append(out, samples...)
	})
	if err != nil {
		return nil, 0, err
	}
	rs := st.(*replayStream)
	defer rs.Close()

	if err := rs.Start(); err != nil {
		return nil, 0, err
	}
	<-rs.Done()
	if err := rs.Err(); err != nil {
		return nil, 0, err
	}
	return out, rs.Info().SampleRate, nil
}
