package dtmfin

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/mjibson/go-dsp/window"
)

// Decoder 接口定义逐块解码器行为。
// DecodeBlock 在音频回调中同步调用，不能阻塞，也不应分配内存。
type Decoder interface {
	// Configure 设置采样率和块长，重新配置意味着内部状态清零
	Configure(sampleRate, blockSize int) error
	// DecodeBlock 解码一个固定长度的块，没有按键时返回 None
	DecodeBlock(block []float32) Symbol
}

// DTMF 频率 (Hz)
var (
	lowGroup  = [4]float64{697, 770, 852, 941}
	highGroup = [4]float64{1209, 1336, 1477, 1633}
)

// DecoderOptions Goertzel 解码器的判决参数，含义见 Config.Decoder
type DecoderOptions struct {
	Window         string
	MinAmplitude   float64
	TwistNormalDB  float64
	TwistReverseDB float64
	PeakRatioDB    float64
	MinToneRatio   float64
	LowpassHz      float64
}

// DecoderOptions 从配置中提取解码器参数
func (c *Config) DecoderOptions() DecoderOptions {
	return DecoderOptions{
		Window:         c.Decoder.Window,
		MinAmplitude:   c.Decoder.MinAmplitude,
		TwistNormalDB:  c.Decoder.TwistNormalDB,
		TwistReverseDB: c.Decoder.TwistReverseDB,
		PeakRatioDB:    c.Decoder.PeakRatioDB,
		MinToneRatio:   c.Decoder.MinToneRatio,
		LowpassHz:      c.Decoder.LowpassHz,
	}
}

// GoertzelDecoder 用 8 个 Goertzel 滤波器实现的 DTMF 解码器
type GoertzelDecoder struct {
	opts DecoderOptions

	sampleRate int
	blockSize  int
	configured bool

	bins    [8]Goertzel        // 0-3 低频组, 4-7 高频组
	window  []float64          // nil 表示矩形窗
	lowpass *ButterworthFilter // 可选的前置低通，状态跨块保持
	sumW    float64            // 窗函数之和 (相干增益)
	sumW2   float64            // 窗函数平方和

	// 由 opts 换算出的功率门限
	minPower     float64
	twistNormal  float64
	twistReverse float64
	peakRatio    float64
}

// NewGoertzelDecoder 创建解码器，使用前必须调用 Configure
func NewGoertzelDecoder(opts DecoderOptions) *GoertzelDecoder {
	return &GoertzelDecoder{opts: opts}
}

// Configure 预先计算系数和窗函数，之后 DecodeBlock 不再分配内存
func (d *GoertzelDecoder) Configure(sampleRate, blockSize int) error {
	if sampleRate <= 0 || blockSize <= 0 {
		return fmt.Errorf("invalid decoder geometry: rate=%d block=%d", sampleRate, blockSize)
	}
	// 最高频点 1633Hz 必须低于奈奎斯特频率
	if float64(sampleRate) <= 2*highGroup[3] {
		return fmt.Errorf("sample rate %d Hz too low for DTMF", sampleRate)
	}

	d.sampleRate = sampleRate
	d.blockSize = blockSize

	for i, f := range lowGroup {
		d.bins[i] = *NewGoertzel(float64(sampleRate), f)
	}
	for i, f := range highGroup {
		d.bins[4+i] = *NewGoertzel(float64(sampleRate), f)
	}

	d.lowpass = nil
	if d.opts.LowpassHz > 0 {
		if d.opts.LowpassHz <= highGroup[3] {
			return fmt.Errorf("lowpass cutoff %.0f Hz would cut the high tone group", d.opts.LowpassHz)
		}
		lp, err := NewButterworthLowpass(4, float64(sampleRate), d.opts.LowpassHz)
		if err != nil {
			return err
		}
		d.lowpass = lp
	}

	switch d.opts.Window {
	case "hamming":
		d.window = window.Hamming(blockSize)
	case "", "none":
		d.window = nil
	default:
		return fmt.Errorf("unknown window %q", d.opts.Window)
	}

	d.sumW, d.sumW2 = float64(blockSize), float64(blockSize)
	if d.window != nil {
		d.sumW, d.sumW2 = 0, 0
		for _, w := range d.window {
			d.sumW += w
			d.sumW2 += w * w
		}
	}

	// 幅度为 A 的正弦在中心频点的功率约为 (A * sumW / 2)^2
	amp := d.opts.MinAmplitude * d.sumW / 2
	d.minPower = amp * amp
	d.twistNormal = dbToPowerRatio(d.opts.TwistNormalDB)
	d.twistReverse = dbToPowerRatio(d.opts.TwistReverseDB)
	d.peakRatio = dbToPowerRatio(d.opts.PeakRatioDB)

	d.configured = true
	return nil
}

// DecodeBlock 返回块中的按键，判决失败返回 None
func (d *GoertzelDecoder) DecodeBlock(block []float32) Symbol {
	if !d.configured || len(block) != d.blockSize {
		return None
	}

	for i := range d.bins {
		d.bins[i].Reset()
	}

	energy := 0.0
	for n, s := range block {
		x := float64(s)
		if d.lowpass != nil {
			x = d.lowpass.Process(x)
		}
		if d.window != nil {
			x *= d.window[n]
		}
		energy += x * x
		for i := range d.bins {
			d.bins[i].ProcessSample(x)
		}
	}

	var power [8]float64
	for i := range d.bins {
		power[i] = d.bins[i].Power()
	}

	lo := strongest(power[0:4])
	hi := 4 + strongest(power[4:8])
	pl, ph := power[lo], power[hi]

	// 1. 绝对门限
	if pl < d.minPower || ph < d.minPower {
		return None
	}

	// 2. 扭曲 (twist)
	if ph > pl*d.twistNormal || pl > ph*d.twistReverse {
		return None
	}

	// 3. 每组内峰值要明显高于其它频点
	for i := 0; i < 4; i++ {
		if i != lo && power[i]*d.peakRatio > pl {
			return None
		}
		if 4+i != hi && power[4+i]*d.peakRatio > ph {
			return None
		}
	}

	// 4. 两个音调要占块能量的主要部分，过滤语音和宽带噪声
	toneEnergy := 2 * (pl + ph) * d.sumW2 / (d.sumW * d.sumW)
	if energy <= 0 || toneEnergy < d.opts.MinToneRatio*energy {
		return None
	}

	return Symbol(Alphabet[lo*4+(hi-4)])
}

func strongest(p []float64) int {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}

func dbToPowerRatio(db float64) float64 {
	return math.Pow(10, db/10)
}

// decodeAdapter 在生产者线程里包装外部解码器。
// 解码器的任何失败 (panic、块长不符、字母表外的输出) 都被吸收为 None。
type decodeAdapter struct {
	dec       Decoder
	blockSize int
	metrics   *Metrics
	failures  atomic.Uint64
}

func newDecodeAdapter(dec Decoder, blockSize int, m *Metrics) *decodeAdapter {
	return &decodeAdapter{dec: dec, blockSize: blockSize, metrics: m}
}

func (a *decodeAdapter) decode(block []float32) (sym Symbol) {
	defer func() {
		if r := recover(); r != nil {
			a.fail()
			sym = None
		}
	}()

	if len(block) != a.blockSize {
		a.fail()
		return None
	}
	sym = a.dec.DecodeBlock(block)
	if sym != None && !sym.Valid() {
		a.fail()
		return None
	}
	return sym
}

func (a *decodeAdapter) fail() {
	a.failures.Add(1)
	a.metrics.decodeFailed()
}
