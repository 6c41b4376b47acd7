package dtmfin

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ToneSpec 按键序列的合成参数
type ToneSpec struct {
	SampleRate   int
	ToneDuration time.Duration // 每个按键的音调时长
	GapDuration  time.Duration // 按键之间的静音
	LeadIn       time.Duration // 开头的静音
	Amplitude    float64       // 每个单音的幅度 (满幅 = 1.0)
	Twist        float64       // 高频组相对低频组的幅度倍数，1 表示相等
}

// DefaultToneSpec 150ms 音调 / 100ms 间隔，每个单音约 -10 dBFS
func DefaultToneSpec() ToneSpec {
	return ToneSpec{
		SampleRate:   8000,
		ToneDuration: 150 * time.Millisecond,
		GapDuration:  100 * time.Millisecond,
		LeadIn:       100 * time.Millisecond,
		Amplitude:    0.316,
		Twist:        1.0,
	}
}

// ToneFrequencies 按键对应的 (低频, 高频)
func ToneFrequencies(sym Symbol) (low, high float64, ok bool) {
	i := symbolIndex(sym)
	if i < 0 {
		return 0, 0, false
	}
	return lowGroup[i/4], highGroup[i%4], true
}

// AppendTone 在 dst 后追加一个按键的双音信号
func AppendTone(dst []float32, sym Symbol, spec ToneSpec) ([]float32, error) {
	low, high, ok := ToneFrequencies(sym)
	if !ok {
		return dst, fmt.Errorf("invalid DTMF symbol %q", sym)
	}
	n := durationToFrames(spec.ToneDuration, spec.SampleRate)
	rate := float64(spec.SampleRate)
	twist := spec.Twist
	if twist == 0 {
		twist = 1
	}
	for i := 0; i < n; i++ {
		t := float64(i) / rate
		v := spec.Amplitude*math.Sin(2*math.Pi*low*t) + spec.Amplitude*twist*math.Sin(2*math.Pi*high*t)
		dst = append(dst, float32(v))
	}
	return dst, nil
}

// AppendSilence 追加 d 时长的静音
func AppendSilence(dst []float32, d time.Duration, sampleRate int) []float32 {
	n := durationToFrames(d, sampleRate)
	for i := 0; i < n; i++ {
		dst = append(dst, 0)
	}
	return dst
}

// Generate 合成按键序列，空格被忽略
func Generate(keys string, spec ToneSpec) ([]float32, error) {
	if spec.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", spec.SampleRate)
	}
	out := AppendSilence(nil, spec.LeadIn, spec.SampleRate)
	for _, r := range keys {
		if r == ' ' {
			continue
		}
		sym, err := ParseSymbol(r)
		if err != nil {
			return nil, err
		}
		if out, err = AppendTone(out, sym, spec); err != nil {
			return nil, err
		}
		out = AppendSilence(out, spec.GapDuration, spec.SampleRate)
	}
	return out, nil
}

func durationToFrames(d time.Duration, sampleRate int) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}

// WriteWAV 以 16 位单声道 PCM 写出采样，超出 [-1, 1] 的部分被限幅
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		data[i] = int(s * 32767)
	}

	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}
	return enc.Close()
}
