package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dtmfin"
)

func genCommand(a *app) *cobra.Command {
	spec := dtmfin.DefaultToneSpec()
	var output string

	cmd := &cobra.Command{
		Use:   "gen KEYS",
		Short: "Synthesise a DTMF key sequence into a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := dtmfin.Generate(args[0], spec)
			if err != nil {
				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()

			if err := dtmfin.WriteWAV(f, samples, spec.SampleRate); err != nil {
				return err
			}
			a.logger.Info("wrote key sequence",
				"file", output,
				"keys", args[0],
				"duration", time.Duration(len(samples))*time.Second/time.Duration(spec.SampleRate))
			return f.Close()
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "dtmf.wav", "Output WAV file")
	flags.IntVar(&spec.SampleRate, "rate", spec.SampleRate, "Sample rate (Hz)")
	flags.DurationVar(&spec.ToneDuration, "tone", spec.ToneDuration, "Tone duration per key")
	flags.DurationVar(&spec.GapDuration, "gap", spec.GapDuration, "Silence between keys")
	flags.DurationVar(&spec.LeadIn, "lead-in", spec.LeadIn, "Leading silence")
	flags.Float64Var(&spec.Amplitude, "amplitude", spec.Amplitude, "Amplitude of each tone (full scale = 1.0)")
	flags.Float64Var(&spec.Twist, "twist", spec.Twist, "High group amplitude relative to the low group")
	return cmd
}
