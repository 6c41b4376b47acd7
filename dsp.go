package dtmfin

import (
	"math"
	"math/cmplx"
	"time"

	"github.com/mjibson/go-dsp/fft"
)

// 双音搜索范围 (Hz)，各自略宽于 DTMF 低频组和高频组
const (
	lowBandMin  = 650.0
	lowBandMax  = 1000.0
	highBandMin = 1150.0
	highBandMax = 1700.0
)

// SpectrumAnalyzer 用于频谱分析和峰值检测
type SpectrumAnalyzer struct {
	SampleRate float64
	FFTSize    int
	Window     []float64

	input []complex128
	mags  []float64
}

// NewSpectrumAnalyzer 创建新的频谱分析器
func NewSpectrumAnalyzer(sampleRate float64, fftSize int) *SpectrumAnalyzer {
	// 汉宁窗: 0.5 * (1 - cos(2*PI*n / (N-1)))
	window := make([]float64, fftSize)
	for i := 0; i < fftSize; i++ {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}

	return &SpectrumAnalyzer{
		SampleRate: sampleRate,
		FFTSize:    fftSize,
		Window:     window,
		input:      make([]complex128, fftSize),
		mags:       make([]float64, fftSize/2+1),
	}
}

// Peak 频谱峰值
type Peak struct {
	Freq      float64 `yaml:"freq"`
	Magnitude float64 `yaml:"magnitude"`
}

// spectrum 加窗后做 FFT，结果写入 sa.mags。样本不足返回 false
func (sa *SpectrumAnalyzer) spectrum(samples []float32) bool {
	if len(samples) < sa.FFTSize {
		return false
	}
	for i := 0; i < sa.FFTSize; i++ {
		sa.input[i] = complex(float64(samples[i])*sa.Window[i], 0)
	}
	spec := fft.FFT(sa.input)
	for i := range sa.mags {
		sa.mags[i] = cmplx.Abs(spec[i])
	}
	return true
}

// peakIn 在 [minFreq, maxFreq) 内找最大峰，用抛物线插值估算真实频率
func (sa *SpectrumAnalyzer) peakIn(minFreq, maxFreq float64) Peak {
	binWidth := sa.SampleRate / float64(sa.FFTSize)

	start := int(minFreq / binWidth)
	end := int(maxFreq / binWidth)
	if start < 0 {
		start = 0
	}
	if end > len(sa.mags)-1 {
		end = len(sa.mags) - 1
	}

	maxMag := 0.0
	maxIndex := 0
	for i := start; i < end; i++ {
		if sa.mags[i] > maxMag {
			maxMag = sa.mags[i]
			maxIndex = i
		}
	}

	// p = 0.5 * (alpha - gamma) / (alpha - 2*beta + gamma)
	freq := float64(maxIndex) * binWidth
	if maxIndex > 0 && maxIndex < len(sa.mags)-1 {
		alpha := sa.mags[maxIndex-1]
		beta := sa.mags[maxIndex]
		gamma := sa.mags[maxIndex+1]
		if denom := alpha - 2*beta + gamma; denom != 0 {
			p := 0.5 * (alpha - gamma) / denom
			freq = (float64(maxIndex) + p) * binWidth
		}
	}

	// 幅度归一化到正弦幅度 (汉宁窗相干增益 0.5)
	return Peak{Freq: freq, Magnitude: maxMag * 4 / float64(sa.FFTSize)}
}

// FindDominantFrequency 计算 [minFreq, maxFreq) 内的主频和幅度
func (sa *SpectrumAnalyzer) FindDominantFrequency(samples []float32, minFreq, maxFreq float64) (float64, float64) {
	if !sa.spectrum(samples) {
		return 0, 0
	}
	p := sa.peakIn(minFreq, maxFreq)
	return p.Freq, p.Magnitude
}

// DominantPair 分别给出低频组和高频组的最强分量
func (sa *SpectrumAnalyzer) DominantPair(samples []float32) (low, high Peak, ok bool) {
	if !sa.spectrum(samples) {
		return Peak{}, Peak{}, false
	}
	return sa.peakIn(lowBandMin, lowBandMax), sa.peakIn(highBandMin, highBandMax), true
}

// NearestSymbol 把一对频率映射到最近的按键，偏差超过 tolerance (相对值) 返回 None
func NearestSymbol(low, high, tolerance float64) Symbol {
	li := nearest(lowGroup[:], low, tolerance)
	hi := nearest(highGroup[:], high, tolerance)
	if li < 0 || hi < 0 {
		return None
	}
	return Symbol(Alphabet[li*4+hi])
}

func nearest(group []float64, f, tolerance float64) int {
	best, bestDiff := -1, math.Inf(1)
	for i, g := range group {
		d := math.Abs(f - g)
		if d < bestDiff {
			best, bestDiff = i, d
		}
	}
	if best < 0 || bestDiff > group[best]*tolerance {
		return -1
	}
	return best
}

// ProbeResult 一个分析段的结果
type ProbeResult struct {
	At     time.Duration `yaml:"at"`
	Low    Peak          `yaml:"low"`
	High   Peak          `yaml:"high"`
	Symbol string        `yaml:"symbol,omitempty"`
}

// Probe 把信号切成 segment 长的段，报告两个频率组都超过 minAmplitude 的段
func Probe(samples []float32, sampleRate int, segment time.Duration, minAmplitude float64) []ProbeResult {
	size := durationToFrames(segment, sampleRate)
	if size < 2 {
		return nil
	}
	sa := NewSpectrumAnalyzer(float64(sampleRate), size)

	var out []ProbeResult
	for off := 0; off+size <= len(samples); off += size {
		low, high, ok := sa.DominantPair(samples[off : off+size])
		if !ok || low.Magnitude < minAmplitude || high.Magnitude < minAmplitude {
			continue
		}
		out = append(out, ProbeResult{
			At:     framesToDuration(uint64(off), sampleRate),
			Low:    low,
			High:   high,
			Symbol: NearestSymbol(low.Freq, high.Freq, 0.02).String(),
		})
	}
	return out
}
