package dtmfin

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// SerialPort 定义串口操作接口，方便测试 Mock
type SerialPort interface {
	io.ReadWriteCloser
}

// SerialForwarder 把每个检测到的按键写到串口，一行一个: "<按键> <秒>\r\n"
type SerialForwarder struct {
	Port     string
	BaudRate int

	mu   sync.Mutex
	conn SerialPort
	line []byte
}

// NewSerialForwarder 创建转发器，需要 Open 之后才能使用
func NewSerialForwarder(port string, baudRate int) *SerialForwarder {
	return &SerialForwarder{
		Port:     port,
		BaudRate: baudRate,
	}
}

// Open 打开串口连接
func (f *SerialForwarder) Open() error {
	config := &serial.Config{
		Name:        f.Port,
		Baud:        f.BaudRate,
		ReadTimeout: time.Millisecond * 500,
	}
	s, err := serial.OpenPort(config)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", f.Port, err)
	}
	f.mu.Lock()
	f.conn = s
	f.mu.Unlock()
	return nil
}

// Close 关闭串口连接
func (f *SerialForwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close()
	f.conn = nil
	return err
}

// Forward 写出一个检测事件，签名与 Callback 相同
func (f *SerialForwarder) Forward(symbol string, timestamp float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return errors.New("connection not open")
	}

	f.line = f.line[:0]
	f.line = append(f.line, symbol...)
	f.line = append(f.line, ' ')
	f.line = strconv.AppendFloat(f.line, timestamp, 'f', 3, 64)
	f.line = append(f.line, '\r', '\n')

	_, err := f.conn.Write(f.line)
	return err
}

// Tee 把一个事件依次交给多个回调，全部执行后返回第一个错误
func Tee(cbs ...Callback) Callback {
	return func(symbol string, timestamp float64) error {
		var first error
		for _, cb := range cbs {
			if cb == nil {
				continue
			}
			if err := cb(symbol, timestamp); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}
