package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roffe/canrecon/pkg/bus"
	"github.com/roffe/canrecon/pkg/config"
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List CAN adapters and serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		bold := color.New(color.Bold).SprintFunc()

		fmt.Fprintln(out, bold("Adapters:"))
		fmt.Fprintf(out, "  %s (built-in ECU simulator)\n", config.SimAdapter)
		for _, name := range bus.Adapters() {
			fmt.Fprintf(out, "  %s\n", name)
		}

		ports, err := bus.SerialPorts()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, bold("Serial ports:"))
		if len(ports) == 0 {
			fmt.Fprintln(out, "  none found")
		}
		for _, p := range ports {
			fmt.Fprintf(out, "  %s\n", p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adaptersCmd)
}
