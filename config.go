package dtmfin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 结构体用于集中管理会话、解码器和去抖动的所有可调参数
type Config struct {
	// --- 音频流 ---
	Audio struct {
		Device     int `mapstructure:"device"`      // 设备序号，-1 表示系统默认输入设备
		SampleRate int `mapstructure:"sample_rate"` // 采样率 (Hz)。DTMF 只需 8000
		BlockSize  int `mapstructure:"block_size"`  // 每次解码的固定块长 (采样点)。205 点在 8kHz 下约 25.6ms
		Periods    int `mapstructure:"periods"`     // 设备缓冲周期数，决定输入延迟
	} `mapstructure:"audio"`

	// --- 去抖动 ---
	// 一个连续按键只在 (MinHold, MaxHold] 窗口内确认一次
	Debounce DebounceConfig `mapstructure:"debounce"`

	// --- 解码器 (Goertzel) ---
	Decoder struct {
		Window         string  `mapstructure:"window"`           // "hamming" 或 "none"
		MinAmplitude   float64 `mapstructure:"min_amplitude"`    // 单个音调的最小幅度 (满幅 = 1.0)
		TwistNormalDB  float64 `mapstructure:"twist_normal_db"`  // 高频组比低频组最多强多少 dB
		TwistReverseDB float64 `mapstructure:"twist_reverse_db"` // 低频组比高频组最多强多少 dB
		PeakRatioDB    float64 `mapstructure:"peak_ratio_db"`    // 峰值必须比同组其它频点高出的 dB
		MinToneRatio   float64 `mapstructure:"min_tone_ratio"`   // 两个音调能量占块总能量的最小比例
		LowpassHz      float64 `mapstructure:"lowpass_hz"`       // 前置巴特沃斯低通截止频率，0 表示不用
	} `mapstructure:"decoder"`

	// --- 文件回放 ---
	Replay struct {
		File  string  `mapstructure:"file"`  // 非空时使用 WAV 回放代替声卡
		Speed float64 `mapstructure:"speed"` // 回放速度倍数，0 表示不限速
	} `mapstructure:"replay"`

	// --- 串口转发 ---
	Serial struct {
		Port     string `mapstructure:"port"`
		BaudRate int    `mapstructure:"baud_rate"`
	} `mapstructure:"serial"`

	Metrics struct {
		Listen string `mapstructure:"listen"` // 例如 ":9109"，空表示不开启
	} `mapstructure:"metrics"`

	Log struct {
		Level string `mapstructure:"level"`
		JSON  bool   `mapstructure:"json"`
	} `mapstructure:"log"`
}

// DefaultConfig 返回一个包含当前最佳实践的默认配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Audio.Device = -1
	cfg.Audio.SampleRate = 8000
	cfg.Audio.BlockSize = 205
	cfg.Audio.Periods = 2

	cfg.Debounce = DefaultDebounceConfig()

	cfg.Decoder.Window = "hamming"
	cfg.Decoder.MinAmplitude = 0.005 // 约 -46 dBFS
	cfg.Decoder.TwistNormalDB = 8.0
	cfg.Decoder.TwistReverseDB = 4.0
	cfg.Decoder.PeakRatioDB = 6.0
	cfg.Decoder.MinToneRatio = 0.5

	cfg.Replay.Speed = 1.0

	cfg.Serial.BaudRate = 9600

	cfg.Log.Level = "info"

	return cfg
}

// BlockPeriod 一个块对应的时长
func (c *Config) BlockPeriod() time.Duration {
	return framesToDuration(uint64(c.Audio.BlockSize), c.Audio.SampleRate)
}

// Validate 检查配置的一致性
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return newError("config", ErrInvalidConfig, fmt.Errorf("sample rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Audio.BlockSize <= 0 {
		return newError("config", ErrInvalidConfig, fmt.Errorf("block size must be positive, got %d", c.Audio.BlockSize))
	}
	if c.Audio.Device < -1 {
		return newError("config", ErrInvalidConfig, fmt.Errorf("device index %d out of range", c.Audio.Device))
	}
	if err := c.Debounce.Validate(); err != nil {
		return err
	}
	// 块周期必须小于窗口宽度，否则某个按键可能整个跳过 (MinHold, MaxHold]
	if window := c.Debounce.MaxHold - c.Debounce.MinHold; c.BlockPeriod() >= window {
		return newError("config", ErrInvalidConfig,
			fmt.Errorf("block period %v must be shorter than the hold window %v", c.BlockPeriod(), window))
	}
	switch c.Decoder.Window {
	case "hamming", "none", "":
	default:
		return newError("config", ErrInvalidConfig, fmt.Errorf("unknown decoder window %q", c.Decoder.Window))
	}
	if lp := c.Decoder.LowpassHz; lp != 0 && (lp <= highGroup[3] || lp >= float64(c.Audio.SampleRate)/2) {
		return newError("config", ErrInvalidConfig, fmt.Errorf("lowpass cutoff %.0f Hz must lie between %.0f Hz and Nyquist", lp, highGroup[3]))
	}
	if c.Replay.Speed < 0 {
		return newError("config", ErrInvalidConfig, fmt.Errorf("replay speed must not be negative"))
	}
	return nil
}

// setDefaults 将 DefaultConfig 写入 viper 的默认值表
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("audio.device", d.Audio.Device)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.block_size", d.Audio.BlockSize)
	v.SetDefault("audio.periods", d.Audio.Periods)

	v.SetDefault("debounce.min_hold", d.Debounce.MinHold)
	v.SetDefault("debounce.max_hold", d.Debounce.MaxHold)

	v.SetDefault("decoder.window", d.Decoder.Window)
	v.SetDefault("decoder.min_amplitude", d.Decoder.MinAmplitude)
	v.SetDefault("decoder.twist_normal_db", d.Decoder.TwistNormalDB)
	v.SetDefault("decoder.twist_reverse_db", d.Decoder.TwistReverseDB)
	v.SetDefault("decoder.peak_ratio_db", d.Decoder.PeakRatioDB)
	v.SetDefault("decoder.min_tone_ratio", d.Decoder.MinToneRatio)
	v.SetDefault("decoder.lowpass_hz", d.Decoder.LowpassHz)

	v.SetDefault("replay.file", d.Replay.File)
	v.SetDefault("replay.speed", d.Replay.Speed)

	v.SetDefault("serial.port", d.Serial.Port)
	v.SetDefault("serial.baud_rate", d.Serial.BaudRate)

	v.SetDefault("metrics.listen", d.Metrics.Listen)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
}

// NewViper 创建带默认值和环境变量映射 (DTMFIN_AUDIO_DEVICE 等) 的 viper 实例
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DTMFIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig 读取配置。path 为空时在当前目录和用户配置目录下查找 dtmfin.yaml，找不到就使用默认值
func LoadConfig(path string) (*Config, error) {
	return LoadConfigWith(NewViper(), path)
}

// LoadConfigWith 使用调用方提供的 viper 实例 (例如已绑定命令行参数)
func LoadConfigWith(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dtmfin")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "dtmfin"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
