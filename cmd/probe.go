package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"dtmfin"
)

func probeCommand(a *app) *cobra.Command {
	var (
		segment      time.Duration
		minAmplitude float64
		asYAML       bool
	)

	cmd := &cobra.Command{
		Use:   "probe FILE",
		Short: "Show the dominant low/high group frequencies of a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, rate, err := dtmfin.ReadWAV(args[0])
			if err != nil {
				return err
			}
			a.logger.Debug("probing file", "file", args[0], "sample_rate", rate, "frames", len(samples))

			results := dtmfin.Probe(samples, rate, segment, minAmplitude)

			out := cmd.OutOrStdout()
			if asYAML {
				enc := yaml.NewEncoder(out)
				defer enc.Close()
				return enc.Encode(results)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tLOW\tHIGH\tKEY")
			for _, r := range results {
				fmt.Fprintf(tw, "%.3fs\t%.1f Hz\t%.1f Hz\t%s\n", r.At.Seconds(), r.Low.Freq, r.High.Freq, r.Symbol)
			}
			return tw.Flush()
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&segment, "segment", 50*time.Millisecond, "Analysis segment length")
	flags.Float64Var(&minAmplitude, "min-amplitude", 0.01, "Minimum tone amplitude in both groups")
	flags.BoolVar(&asYAML, "yaml", false, "Print as YAML")
	return cmd
}
