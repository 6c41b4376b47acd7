package dtmfin

import (
	"fmt"
	"time"
)

// Symbol 表示一个音频块的解码结果 (一个 DTMF 按键)
// None 表示该块中没有检测到有效音调
type Symbol byte

// None 无音调
const None Symbol = 0

// Alphabet DTMF 全部 16 个按键，按 (低频组, 高频组) 行列排列
const Alphabet = "123A456B789C*0#D"

// Valid 判断是否为字母表内的按键 (None 不算)
func (s Symbol) Valid() bool {
	return s != None && symbolIndex(s) >= 0
}

// String 返回单字符表示，None 返回空串
func (s Symbol) String() string {
	if s == None {
		return ""
	}
	return string(rune(s))
}

// ParseSymbol 将单个字符解析为 Symbol
func ParseSymbol(r rune) (Symbol, error) {
	if r >= 'a' && r <= 'd' {
		r -= 'a' - 'A'
	}
	s := Symbol(r)
	if r > 0x7f || !s.Valid() {
		return None, fmt.Errorf("invalid DTMF symbol %q", r)
	}
	return s, nil
}

// symbolIndex 返回按键在 Alphabet 中的位置，不存在返回 -1
func symbolIndex(s Symbol) int {
	for i := 0; i < len(Alphabet); i++ {
		if Alphabet[i] == byte(s) {
			return i
		}
	}
	return -1
}

// Event 一次被确认的检测事件，创建后不可修改
type Event struct {
	Symbol Symbol
	At     time.Duration // 流时钟 (自流启动起的单调时间)
}

// Seconds 以浮点秒返回事件时间，回调使用这个值
func (e Event) Seconds() float64 {
	return e.At.Seconds()
}

func (e Event) String() string {
	return fmt.Sprintf("%s@%.3fs", e.Symbol, e.Seconds())
}
