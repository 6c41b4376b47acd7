package dtmfin

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindDominantFrequency(t *testing.T) {
	const rate = 8000
	samples := make([]float32, 1024)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*1000*float64(i)/rate))
	}

	sa := NewSpectrumAnalyzer(rate, 1024)
	freq, mag := sa.FindDominantFrequency(samples, 300, 3000)
	assert.InDelta(t, 1000, freq, 2)
	assert.InDelta(t, 0.5, mag, 0.05)

	freq, mag = sa.FindDominantFrequency(samples[:100], 300, 3000)
	assert.Zero(t, freq)
	assert.Zero(t, mag)
}

func TestDominantPair(t *testing.T) {
	spec := DefaultToneSpec()
	spec.ToneDuration = 128 * time.Millisecond
	samples, err := AppendTone(nil, '9', spec)
	require.NoError(t, err)

	sa := NewSpectrumAnalyzer(float64(spec.SampleRate), len(samples))
	low, high, ok := sa.DominantPair(samples)
	require.True(t, ok)
	assert.InDelta(t, 852, low.Freq, 5)
	assert.InDelta(t, 1477, high.Freq, 5)
	assert.Equal(t, Symbol('9'), NearestSymbol(low.Freq, high.Freq, 0.02))
}

func TestNearestSymbol(t *testing.T) {
	assert.Equal(t, Symbol('1'), NearestSymbol(697, 1209, 0.02))
	assert.Equal(t, Symbol('#'), NearestSymbol(945, 1470, 0.02))
	assert.Equal(t, None, NearestSymbol(1000, 1209, 0.02))
	assert.Equal(t, None, NearestSymbol(697, 1800, 0.02))
}

func TestProbe(t *testing.T) {
	spec := DefaultToneSpec()
	samples, err := Generate("5", spec)
	require.NoError(t, err)

	results := Probe(samples, spec.SampleRate, 50*time.Millisecond, 0.05)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "5", r.Symbol, "segment at %v", r.At)
		assert.GreaterOrEqual(t, r.At, 50*time.Millisecond)
		assert.Less(t, r.At, 250*time.Millisecond)
	}

	assert.Empty(t, Probe(make([]float32, 4000), spec.SampleRate, 50*time.Millisecond, 0.05))
	assert.Nil(t, Probe(samples, spec.SampleRate, 0, 0.05))
}
