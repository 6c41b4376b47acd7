package dtmfin

import (
	"errors"
	"fmt"
)

// 错误分类，使用 errors.Is 与具体错误比较
var (
	ErrInitialization    = errors.New("audio subsystem initialization failed")
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrStreamOpen        = errors.New("stream open failed")
	ErrStreamStart       = errors.New("stream start failed")
	ErrStreamStop        = errors.New("stream stop failed")
	ErrStreamClose       = errors.New("stream close failed")
	ErrCallback          = errors.New("consumer callback failed")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// 对外的错误码 (0 = 成功)，给非 Go 宿主和进程退出码使用
var errorCodes = []struct {
	kind error
	code int
}{
	{ErrInitialization, 1},
	{ErrDeviceUnavailable, 2},
	{ErrStreamOpen, 3},
	{ErrStreamStart, 4},
	{ErrStreamStop, 5},
	{ErrStreamClose, 6},
	{ErrCallback, 7},
	{ErrInvalidConfig, 8},
}

// Error 带操作名和分类的错误
type Error struct {
	Op   string // 出错的操作，例如 "open"
	Kind error  // 上面的分类之一
	Err  error  // 底层原因，可以为 nil
}

func newError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrStreamOpen) 这类判断成立
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// ErrorCode 把错误映射为稳定的整数码，nil 返回 0，未分类的错误返回 -1
func ErrorCode(err error) int {
	if err == nil {
		return 0
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.kind) {
			return ec.code
		}
	}
	return -1
}
