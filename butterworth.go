package dtmfin

import (
	"fmt"
	"math"
)

// biquad 二阶 IIR 节，级联组成高阶滤波器
type biquad struct {
	a0, a1, a2, b1, b2 float64
	z1, z2             float64 // 延迟线
}

func (f *biquad) process(in float64) float64 {
	out := in*f.a0 + f.z1
	f.z1 = in*f.a1 - out*f.b1 + f.z2
	f.z2 = in*f.a2 - out*f.b2
	return out
}

// ButterworthFilter 由多个二阶节级联的巴特沃斯低通。
// 解码器用它在判决前去掉 DTMF 频带以上的语音和噪声能量
type ButterworthFilter struct {
	sections []biquad
}

// NewButterworthLowpass 创建 order 阶 (偶数) 低通，截止频率 cutoffFreq
func NewButterworthLowpass(order int, sampleRate, cutoffFreq float64) (*ButterworthFilter, error) {
	if order <= 0 || order%2 != 0 {
		return nil, fmt.Errorf("butterworth order must be a positive even number, got %d", order)
	}
	if sampleRate <= 0 || cutoffFreq <= 0 {
		return nil, fmt.Errorf("invalid lowpass: rate=%v cutoff=%v", sampleRate, cutoffFreq)
	}
	// 截止频率接近奈奎斯特时 tan 趋向无穷
	if cutoffFreq >= sampleRate*0.499 {
		cutoffFreq = sampleRate * 0.499
	}

	// 双线性变换，先预畸变
	w := 2.0 * sampleRate * math.Tan(math.Pi*cutoffFreq/sampleRate)
	k2 := 4.0 * sampleRate * sampleRate

	sections := make([]biquad, order/2)
	for i := range sections {
		// Q 值低的节放在前面
		poleIdx := (order/2 - 1) - i
		theta := math.Pi * (2.0*float64(poleIdx) + 1.0) / (2.0 * float64(order))

		pRe := -w * math.Sin(theta)
		pIm := w * math.Cos(theta)
		mag2 := pRe*pRe + pIm*pIm

		alpha := k2 - 4.0*sampleRate*pRe + mag2
		sections[i] = biquad{
			a0: w * w / alpha,
			a1: 2.0 * w * w / alpha,
			a2: w * w / alpha,
			b1: (-2.0*k2 + 2.0*mag2) / alpha,
			b2: (k2 + 4.0*sampleRate*pRe + mag2) / alpha,
		}
	}
	return &ButterworthFilter{sections: sections}, nil
}

// Process 处理单个采样点
func (f *ButterworthFilter) Process(in float64) float64 {
	out := in
	for i := range f.sections {
		out = f.sections[i].process(out)
	}
	return out
}

// Reset 清空延迟线
func (f *ButterworthFilter) Reset() {
	for i := range f.sections {
		f.sections[i].z1 = 0
		f.sections[i].z2 = 0
	}
}
