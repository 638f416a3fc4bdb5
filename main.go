package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roffe/canrecon/pkg/config"
	"github.com/roffe/canrecon/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "canrecon",
	Short: "Find diagnostic endpoints, services and sub-functions on a CAN bus",
	Long: `canrecon brute forces UDS requests over a CAN bus to map what an ECU
answers to. Results are printed when the scan ends, including partial results
when it is interrupted with Ctrl-C.

Use --adapter sim to try every command against a simulated ECU.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var (
	cfgFile string
	logFile string
	quiet   bool

	cfg      = config.Default()
	logger   = zerolog.Nop()
	closeLog = func() error { return nil }
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "TOML config file")
	pf.StringP("adapter", "a", config.SimAdapter, `CAN adapter name, "sim" for the built-in ECU simulator`)
	pf.StringP("port", "p", "", "serial port for serial adapters")
	pf.Int("baud", 115200, "serial port baudrate")
	pf.Float64("canrate", 500, "CAN bitrate in kbit/s")
	pf.Duration("min-send-interval", 0, "minimum spacing between sent frames")
	pf.StringP("format", "f", "text", "report format: text or cbor")
	pf.StringP("output", "o", "", "write the report to this file instead of stdout")
	pf.StringVar(&logFile, "log-file", "", "append every log record as JSON to this file")
	pf.BoolVarP(&quiet, "quiet", "q", false, "do not print per candidate progress")
}

// setup builds the logger and the effective configuration: defaults, then
// the config file, then flags given on the command line.
func setup(cmd *cobra.Command, args []string) error {
	opts := logging.FromEnv(logging.DefaultOptions())
	opts.Console = cmd.ErrOrStderr()
	opts.DebugFile = logFile
	l, closer, err := logging.New(opts)
	if err != nil {
		return err
	}
	logger, closeLog = l, closer

	cfg = config.Default()
	if cfgFile != "" {
		if cfg, err = config.Load(cfgFile); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("adapter") {
		cfg.Adapter.Name, _ = flags.GetString("adapter")
	}
	if flags.Changed("port") {
		cfg.Adapter.Port, _ = flags.GetString("port")
	}
	if flags.Changed("baud") {
		cfg.Adapter.Baudrate, _ = flags.GetInt("baud")
	}
	if flags.Changed("canrate") {
		cfg.Adapter.CANRate, _ = flags.GetFloat64("canrate")
	}
	if flags.Changed("min-send-interval") {
		cfg.Adapter.MinSendInterval, _ = flags.GetDuration("min-send-interval")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Debug().Str("adapter", cfg.Adapter.Name).Str("port", cfg.Adapter.Port).
		Dur("settle", cfg.Timing.SettleDelay).Dur("subfunction", cfg.Timing.SubFunctionDelay).
		Msg("configuration")
	return nil
}

func main() {
	os.Exit(run())
}

// interruptContext is cancelled by the first SIGINT or SIGTERM. The handler is
// removed right after, so a second signal kills the process.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	context.AfterFunc(ctx, stop)
	return ctx, stop
}

func run() int {
	ctx, stop := interruptContext(context.Background())
	defer stop()
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: close log: %v\n", err)
		}
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
