package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"dtmfin"
)

func listenCommand(a *app) *cobra.Command {
	defaults := dtmfin.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Detect DTMF keys from a capture device or a WAV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd, a)
		},
	}

	flags := cmd.Flags()
	flags.Int("device", defaults.Audio.Device, "Capture device index, -1 for the system default")
	flags.String("file", "", "Replay a WAV file instead of capturing")
	flags.Float64("speed", defaults.Replay.Speed, "Replay speed multiplier, 0 for unpaced")
	flags.String("serial", "", "Forward detections to this serial port")
	flags.Int("baud", defaults.Serial.BaudRate, "Serial baud rate")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9109")
	flags.Float64("lowpass", defaults.Decoder.LowpassHz, "Butterworth lowpass cutoff in Hz before decoding, 0 to disable")
	bindFlags(a.v, cmd, false, map[string]string{
		"audio.device":       "device",
		"replay.file":        "file",
		"replay.speed":       "speed",
		"serial.port":        "serial",
		"serial.baud_rate":   "baud",
		"metrics.listen":     "metrics-addr",
		"decoder.lowpass_hz": "lowpass",
	})
	return cmd
}

func runListen(cmd *cobra.Command, a *app) error {
	cfg := a.cfg
	logger := a.logger

	var backend dtmfin.Backend
	if cfg.Replay.File != "" {
		backend = dtmfin.NewReplayBackend(cfg.Replay.File, cfg.Replay.Speed, logger)
	} else {
		mb, err := dtmfin.NewMalgoBackend(logger)
		if err != nil {
			return err
		}
		defer mb.Close()
		backend = mb
	}

	reg := prometheus.NewRegistry()
	metrics, err := dtmfin.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	out := cmd.OutOrStdout()
	cb := dtmfin.Callback(func(symbol string, timestamp float64) error {
		_, err := fmt.Fprintf(out, "%s\t%.3f\n", symbol, timestamp)
		return err
	})
	if cfg.Serial.Port != "" {
		fwd := dtmfin.NewSerialForwarder(cfg.Serial.Port, cfg.Serial.BaudRate)
		if err := fwd.Open(); err != nil {
			return err
		}
		defer fwd.Close()
		cb = dtmfin.Tee(cb, fwd.Forward)
	}

	ctrl := dtmfin.NewController(backend,
		dtmfin.WithConfig(cfg),
		dtmfin.WithLogger(logger),
		dtmfin.WithMetrics(metrics))

	info, err := ctrl.Open(cfg.Audio.Device, cb)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cmd.ErrOrStderr())
	if err := enc.Encode(info); err != nil {
		logger.Warn("failed to print stream info", "error", err)
	}
	_ = enc.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-ctrl.Done():
			logger.Info("input stream ended")
		}
		err := ctrl.Close()
		cancel()
		return err
	})

	return g.Wait()
}
