package dtmfin

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSerialPort 模拟串口
type MockSerialPort struct {
	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer
	Closed      bool
	WriteErr    error
}

func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{
		ReadBuffer:  new(bytes.Buffer),
		WriteBuffer: new(bytes.Buffer),
	}
}

func (m *MockSerialPort) Read(p []byte) (n int, err error) {
	return m.ReadBuffer.Read(p)
}

func (m *MockSerialPort) Write(p []byte) (n int, err error) {
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	return m.WriteBuffer.Write(p)
}

func (m *MockSerialPort) Close() error {
	m.Closed = true
	return nil
}

func TestForward(t *testing.T) {
	mockPort := NewMockSerialPort()
	fwd := &SerialForwarder{conn: mockPort}

	require.NoError(t, fwd.Forward("5", 1.25))
	require.NoError(t, fwd.Forward("#", 2))

	assert.Equal(t, "5 1.250\r\n# 2.000\r\n", mockPort.WriteBuffer.String())
}

func TestForward_NotOpen(t *testing.T) {
	fwd := NewSerialForwarder("/dev/null", 9600)
	assert.Error(t, fwd.Forward("1", 0))
}

func TestForward_WriteError(t *testing.T) {
	mockPort := NewMockSerialPort()
	mockPort.WriteErr = errors.New("port gone")
	fwd := &SerialForwarder{conn: mockPort}

	assert.EqualError(t, fwd.Forward("1", 0), "port gone")
}

func TestSerialClose(t *testing.T) {
	mockPort := NewMockSerialPort()
	fwd := &SerialForwarder{conn: mockPort}

	require.NoError(t, fwd.Close())
	assert.True(t, mockPort.Closed)

	// 第二次关闭什么也不做
	require.NoError(t, fwd.Close())
}

func TestTee(t *testing.T) {
	var got []string
	record := func(symbol string, _ float64) error {
		got = append(got, symbol)
		return nil
	}
	failing := func(string, float64) error { return errors.New("first") }

	cb := Tee(record, failing, nil, record)
	err := cb("7", 0.5)

	assert.EqualError(t, err, "first")
	assert.Equal(t, []string{"7", "7"}, got)
}
