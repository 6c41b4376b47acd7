package dtmfin

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steadyGain 滤波器稳定后正弦的输出幅度与输入幅度之比
func steadyGain(t *testing.T, f *ButterworthFilter, freq, rate float64) float64 {
	t.Helper()
	f.Reset()
	n := int(rate) // 1 秒
	peak := 0.0
	for i := 0; i < n; i++ {
		y := f.Process(math.Sin(2 * math.Pi * freq * float64(i) / rate))
		if i > n/2 && math.Abs(y) > peak {
			peak = math.Abs(y)
		}
	}
	return peak
}

func TestButterworthLowpass_Response(t *testing.T) {
	f, err := NewButterworthLowpass(4, 8000, 2000)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, steadyGain(t, f, 700, 8000), 0.01, "passband")
	assert.InDelta(t, math.Sqrt(0.5), steadyGain(t, f, 2000, 8000), 0.01, "-3dB at cutoff")
	assert.Less(t, steadyGain(t, f, 3500, 8000), 0.01, "stopband")
}

func TestButterworthLowpass_DCAndReset(t *testing.T) {
	f, err := NewButterworthLowpass(2, 8000, 1000)
	require.NoError(t, err)

	var y float64
	for i := 0; i < 1000; i++ {
		y = f.Process(1)
	}
	assert.InDelta(t, 1.0, y, 1e-9)

	f.Reset()
	assert.Less(t, f.Process(0), 1e-12)
}

func TestButterworthLowpass_Errors(t *testing.T) {
	_, err := NewButterworthLowpass(3, 8000, 1000)
	assert.Error(t, err)
	_, err = NewButterworthLowpass(0, 8000, 1000)
	assert.Error(t, err)
	_, err = NewButterworthLowpass(4, 0, 1000)
	assert.Error(t, err)
	_, err = NewButterworthLowpass(4, 8000, -1)
	assert.Error(t, err)

	// 截止频率超过奈奎斯特时被夹住
	f, err := NewButterworthLowpass(4, 8000, 5000)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(f.Process(1)))
}
