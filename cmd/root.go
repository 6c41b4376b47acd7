package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dtmfin"
)

// app 子命令共享的状态，在 PersistentPreRunE 中填充
type app struct {
	v          *viper.Viper
	configPath string
	cfg        *dtmfin.Config
	logger     *slog.Logger
}

func newApp() *app {
	return &app{v: dtmfin.NewViper()}
}

func rootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dtmfin",
		Short:         "DTMF key detection from an audio input",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaults := dtmfin.DefaultConfig()
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default ./dtmfin.yaml or user config dir)")
	rootCmd.PersistentFlags().String("log-level", defaults.Log.Level, "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-json", defaults.Log.JSON, "Log as JSON")
	bindFlags(a.v, rootCmd, true, map[string]string{
		"log.level": "log-level",
		"log.json":  "log-json",
	})

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := dtmfin.LoadConfigWith(a.v, a.configPath)
		if err != nil {
			return err
		}
		logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.JSON)
		if err != nil {
			return err
		}
		a.cfg = cfg
		a.logger = logger
		slog.SetDefault(logger)
		return nil
	}

	rootCmd.AddCommand(
		devicesCommand(a),
		listenCommand(a),
		genCommand(a),
		probeCommand(a),
	)
	return rootCmd
}

func newLogger(w io.Writer, level string, json bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// bindFlags 把命令行参数绑定到 viper 键，命令行优先于配置文件和环境变量。
// 标志名写错属于编程错误，直接 panic
func bindFlags(v *viper.Viper, cmd *cobra.Command, persistent bool, keys map[string]string) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}
