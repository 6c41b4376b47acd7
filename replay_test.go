package dtmfin

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeKeys 合成按键序列并写入临时 WAV 文件
func writeKeys(t *testing.T, keys string, spec ToneSpec) string {
	t.Helper()
	samples, err := Generate(keys, spec)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteWAV(f, samples, spec.SampleRate))
	require.NoError(t, f.Close())
	return path
}

func TestReplay_EndToEnd(t *testing.T) {
	path := writeKeys(t, "1 1 5 #", DefaultToneSpec())

	c := NewController(NewReplayBackend(path, 5, quietLogger()), WithLogger(quietLogger()))
	rec := &recorder{}

	info, err := c.Open(-1, rec.callback)
	require.NoError(t, err)
	assert.Equal(t, "file:keys.wav", info.Device)
	assert.Equal(t, 8000, info.SampleRate)
	assert.Equal(t, 205, info.BlockSize)

	select {
	case <-c.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("replay did not finish")
	}
	require.NoError(t, c.Close())

	got := rec.deliveries()
	require.Len(t, got, 4)
	var keys string
	for i, d := range got {
		keys += d.symbol
		if i > 0 {
			assert.Greater(t, d.timestamp, got[i-1].timestamp)
		}
	}
	assert.Equal(t, "115#", keys)
	// 第一个按键从 100ms 开始，确认发生在 MinHold 之后、MaxHold 之内
	assert.InDelta(t, 0.175, got[0].timestamp, 0.05)
}

func TestReplay_AllKeys(t *testing.T) {
	path := writeKeys(t, Alphabet, DefaultToneSpec())

	c := NewController(NewReplayBackend(path, 8, quietLogger()), WithLogger(quietLogger()))
	rec := &recorder{}
	_, err := c.Open(0, rec.callback)
	require.NoError(t, err)
	<-c.Done()
	require.NoError(t, c.Close())

	var keys string
	for _, d := range rec.deliveries() {
		keys += d.symbol
	}
	assert.Equal(t, Alphabet, keys)
}

func TestReplay_StopEarly(t *testing.T) {
	spec := DefaultToneSpec()
	spec.GapDuration = time.Second
	path := writeKeys(t, "123", spec)

	c := NewController(NewReplayBackend(path, 1, quietLogger()), WithLogger(quietLogger()))
	_, err := c.Open(-1, (&recorder{}).callback)
	require.NoError(t, err)

	done := c.Done()
	require.NotNil(t, done)
	require.NoError(t, c.Close())

	// Stop 等待回放 goroutine 退出
	select {
	case <-done:
	default:
		t.Fatal("replay goroutine still running after close")
	}
	assert.Nil(t, c.Done())
}

func TestReplay_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav file at all"), 0o644))

	c := NewController(NewReplayBackend(path, 1, quietLogger()), WithLogger(quietLogger()))
	_, err := c.Open(-1, (&recorder{}).callback)
	assert.ErrorIs(t, err, ErrInitialization)

	_, _, err = ReadWAV(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestReadWAV(t *testing.T) {
	spec := DefaultToneSpec()
	spec.LeadIn = 0
	path := writeKeys(t, "9", spec)

	samples, rate, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
	// 150ms 音调 + 100ms 间隔
	assert.Len(t, samples, 2000)

	want, err := AppendTone(nil, '9', spec)
	require.NoError(t, err)
	for i := 0; i < len(want); i += 97 {
		assert.InDelta(t, want[i], samples[i], 1.0/16384)
	}
}

func TestBlockAssembler(t *testing.T) {
	type block struct {
		first float32
		at    time.Duration
	}
	var blocks []block
	asm := newBlockAssembler(4, func(b []float32, at time.Duration) {
		require.Len(t, b, 4)
		blocks = append(blocks, block{b[0], at})
	})
	asm.rate = 1000

	samples := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	asm.write(samples[:3], 0)
	asm.write(samples[3:9], 3*time.Millisecond)
	asm.write(samples[9:], 9*time.Millisecond)

	assert.Equal(t, []block{
		{0, 0},
		{4, 4 * time.Millisecond},
	}, blocks)
	assert.Equal(t, 3, asm.n, "three samples left over")
	assert.Equal(t, 8*time.Millisecond, asm.start)

	asm.reset()
	assert.Zero(t, asm.n)
}

func TestFramesToDuration(t *testing.T) {
	assert.Equal(t, 25625*time.Microsecond, framesToDuration(205, 8000))
	assert.Equal(t, time.Duration(0), framesToDuration(100, 0))
	// 一年的 48kHz 采样不能溢出
	frames := uint64(365 * 24 * 3600 * 48000)
	assert.Equal(t, 365*24*time.Hour, framesToDuration(frames, 48000))
	assert.Equal(t, time.Second+time.Second/3, framesToDuration(4, 3))
}
