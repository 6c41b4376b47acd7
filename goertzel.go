package dtmfin

import (
	"math"
)

// Goertzel 用于检测特定频率的能量
type Goertzel struct {
	sampleRate float64
	targetFreq float64
	coeff      float64
	q1         float64
	q2         float64
}

// NewGoertzel 初始化算法
func NewGoertzel(sampleRate, targetFreq float64) *Goertzel {
	return &Goertzel{
		sampleRate: sampleRate,
		targetFreq: targetFreq,
		coeff:      goertzelCoeff(sampleRate, targetFreq),
	}
}

// goertzelCoeff coeff = 2 * cos(2 * PI * targetFreq / sampleRate)
// 不取整到 bin，目标频率正好落在滤波器中心
func goertzelCoeff(sampleRate, targetFreq float64) float64 {
	return 2.0 * math.Cos(2.0*math.Pi*targetFreq/sampleRate)
}

// Reset 重置状态，通常在处理完一个块（Block）后调用
func (g *Goertzel) Reset() {
	g.q1 = 0
	g.q2 = 0
}

// ProcessSample 处理单个采样点
func (g *Goertzel) ProcessSample(sample float64) {
	q0 := g.coeff*g.q1 - g.q2 + sample
	g.q2 = g.q1
	g.q1 = q0
}

// ProcessBlock 处理一整块音频数据
func (g *Goertzel) ProcessBlock(samples []float32) {
	for _, s := range samples {
		g.ProcessSample(float64(s))
	}
}

// Power 计算当前块的能量 (幅度的平方)
func (g *Goertzel) Power() float64 {
	return goertzelPower(g.q1, g.q2, g.coeff)
}

// Detect 计算当前块的能量幅度
// 返回值越大，表示该频率成分越强
func (g *Goertzel) Detect() float64 {
	return math.Sqrt(g.Power())
}

// magnitude^2 = q1^2 + q2^2 - q1*q2*coeff
func goertzelPower(q1, q2, coeff float64) float64 {
	p := q1*q1 + q2*q2 - q1*q2*coeff
	if p < 0 {
		return 0
	}
	return p
}
