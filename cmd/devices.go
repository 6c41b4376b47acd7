package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"dtmfin"
)

func devicesCommand(a *app) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture-capable audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := dtmfin.NewMalgoBackend(a.logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			devices, err := dtmfin.NewController(backend, dtmfin.WithConfig(a.cfg), dtmfin.WithLogger(a.logger)).ListDevices()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asYAML {
				enc := yaml.NewEncoder(out)
				defer enc.Close()
				return enc.Encode(devices)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tCHANNELS\tDEFAULT\tNAME")
			for _, d := range devices {
				def := ""
				if d.IsDefault {
					def = "*"
				}
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", d.Index, d.MaxInputChannels, def, d.Name)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print as YAML")
	return cmd
}
