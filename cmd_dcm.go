package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roffe/canrecon/pkg/bus"
	"github.com/roffe/canrecon/pkg/dcm"
	"github.com/roffe/canrecon/pkg/sweep"
)

var dcmCmd = &cobra.Command{
	Use:   "dcm",
	Short: "Diagnostic communication manager discovery",
}

var dcmDiscoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Find arbitration IDs that answer a default session request",
	Long: `Sends a diagnostic session control request (default session) on every
arbitration ID in the range and reports the IDs that get a positive or negative
reply. Scanning stops at the first hit unless --all is given.

Example:
  $ canrecon dcm discovery --min 0x700 --max 0x7FF --autoblacklist 2s`,
	Args: cobra.NoArgs,
	RunE: runDCMDiscovery,
}

var dcmServicesCmd = &cobra.Command{
	Use:   "services <send-id> <recv-id>",
	Short: "List the services an ECU supports",
	Long: `Sends every service id on send-id and lists those the ECU on recv-id does
not reject with serviceNotSupported.

Example:
  $ canrecon dcm services 0x7E0 0x7E8`,
	Args: cobra.ExactArgs(2),
	RunE: runDCMServices,
}

var dcmSubfuncCmd = &cobra.Command{
	Use:   "subfunc <send-id> <recv-id> <service> <position>...",
	Short: "Brute force sub-functions or parameters of a service",
	Long: `Sends the service request with every combination of values at the given
byte positions and lists those the ECU accepts. Position 0 is the length byte
and 1 the service id, so parameters start at 2.

Example:
  $ canrecon dcm subfunc 0x7E0 0x7E8 0x22 2 3 --show-data`,
	Args: cobra.MinimumNArgs(4),
	RunE: runDCMSubFunctions,
}

func init() {
	f := dcmDiscoveryCmd.Flags()
	f.String("min", "0x000", "first arbitration ID")
	f.String("max", fmt.Sprintf("0x%03X", bus.MaxID), "last arbitration ID")
	f.Bool("all", false, "keep scanning after the first DCM")
	f.StringSlice("blacklist", nil, "arbitration IDs to ignore replies from")
	f.Duration("autoblacklist", 0, "listen this long first and blacklist IDs with DCM-like traffic")

	dcmSubfuncCmd.Flags().Bool("show-data", false, "request and print the full multi-frame replies")

	dcmCmd.AddCommand(dcmDiscoveryCmd, dcmServicesCmd, dcmSubfuncCmd)
	rootCmd.AddCommand(dcmCmd)
}

type discoveryFunc func(ctx context.Context, d *dcm.Discoverer, port bus.Port) (*dcm.Report, error)

// discover runs fn against the configured port next to a watcher for the
// port's receive side. The report is written even when fn fails.
func discover(cmd *cobra.Command, fn discoveryFunc) error {
	ctx := cmd.Context()
	format, output, err := reportFlags(cmd)
	if err != nil {
		return err
	}

	port, closePort, err := openPort(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closePort(); err != nil {
			logger.Warn().Err(err).Msg("close adapter")
		}
	}()

	pr := newProgress(cmd.ErrOrStderr(), quiet)
	dc := cfg.Discovery()
	dc.Log = logger
	dc.OnProgress = pr.update
	d := dcm.New(port, dc)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var rep *dcm.Report
	g.Go(func() error {
		defer cancel()
		var err error
		rep, err = fn(gctx, d, port)
		return err
	})
	g.Go(func() error {
		return watchPort(gctx, port)
	})
	err = g.Wait()
	pr.done()

	if rep != nil {
		if werr := writeReport(cmd, rep, format, output); werr != nil && err == nil {
			err = werr
		}
	}
	if ctx.Err() != nil && err == nil {
		logger.Warn().Msg("interrupted")
	}
	return err
}

func runDCMDiscovery(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	minStr, _ := f.GetString("min")
	maxStr, _ := f.GetString("max")
	all, _ := f.GetBool("all")
	manual, _ := f.GetStringSlice("blacklist")
	auto, _ := f.GetDuration("autoblacklist")

	lo, err := parseID(minStr)
	if err != nil {
		return fmt.Errorf("--min: %w", err)
	}
	hi, err := parseID(maxStr)
	if err != nil {
		return fmt.Errorf("--max: %w", err)
	}
	r := sweep.Range{Min: int(lo), Max: int(hi)}
	if err := r.Validate(); err != nil {
		return err
	}
	ids, err := parseIDs(manual)
	if err != nil {
		return fmt.Errorf("--blacklist: %w", err)
	}
	bl := dcm.NewBlacklist(0, ids...)

	return discover(cmd, func(ctx context.Context, d *dcm.Discoverer, port bus.Port) (*dcm.Report, error) {
		if auto > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "listening for background traffic for %s\n", auto)
			added, err := dcm.AutoBlacklist(ctx, port, auto, bl)
			if err != nil {
				return nil, fmt.Errorf("autoblacklist: %w", err)
			}
			logger.Info().Int("added", added).Uints32("blacklist", bl.IDs()).Msg("autoblacklist done")
		}
		return d.FindDCM(ctx, dcm.DCMOptions{Range: &r, All: all, Blacklist: bl})
	})
}

func runDCMServices(cmd *cobra.Command, args []string) error {
	send, recv, err := parseIDPair(args[0], args[1])
	if err != nil {
		return err
	}
	return discover(cmd, func(ctx context.Context, d *dcm.Discoverer, _ bus.Port) (*dcm.Report, error) {
		return d.Services(ctx, send, recv)
	})
}

func runDCMSubFunctions(cmd *cobra.Command, args []string) error {
	send, recv, err := parseIDPair(args[0], args[1])
	if err != nil {
		return err
	}
	service, err := parseByte(args[2])
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}
	positions, err := parsePositions(args[3:])
	if err != nil {
		return err
	}
	showData, _ := cmd.Flags().GetBool("show-data")

	if n := len(positions); n > 2 {
		yellow := color.New(color.FgYellow).SprintFunc()
		candidates := uint64(1) << (8 * n)
		msg := fmt.Sprintf("%d positions is %d candidates", n, candidates)
		if n <= 4 {
			msg += fmt.Sprintf(", worst case %s", time.Duration(candidates)*cfg.Timing.SubFunctionDelay)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), yellow("warning:"), msg)
	}

	return discover(cmd, func(ctx context.Context, d *dcm.Discoverer, _ bus.Port) (*dcm.Report, error) {
		return d.SubFunctions(ctx, dcm.SubFunctionOptions{
			Service:   service,
			SendID:    send,
			RecvID:    recv,
			Positions: positions,
			ShowData:  showData,
		})
	})
}
