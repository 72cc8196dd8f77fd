// Package main provides the entry point for velomania, an indoor cycling
// workout controller that drives a Bluetooth LE Fitness Machine Service
// trainer from a ZWO workout file.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"tinygo.org/x/bluetooth"

	"github.com/szymek156/velomania-go/internal/display"
	"github.com/szymek156/velomania-go/internal/ftms"
	"github.com/szymek156/velomania-go/internal/router"
	"github.com/szymek156/velomania-go/internal/telemetry"
	"github.com/szymek156/velomania-go/internal/transport"
	"github.com/szymek156/velomania-go/internal/workout"
)

// Exit codes (spec §6: "0 on clean end-of-workout or user abort; nonzero
// on construction failures (file parse, BLE not found, TLS load)").
const (
	exitOK               = 0
	exitConstructionFail = 1
)

var (
	flagFTP         float64
	flagListen      string
	flagMockTrainer bool
	flagDebug       bool
	flagServiceUUID string
	flagDeviceName  string
)

var rootCmd = &cobra.Command{
	Use:   "velomania <workout-file>",
	Short: "Drive a BLE fitness machine trainer through a ZWO workout",
	Args:  cobra.ExactArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagDebug {
			log.SetLevel(log.DebugLevel)
			log.Debug("debug logging enabled")
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args[0])
	},
}

func init() {
	rootCmd.Flags().Float64Var(&flagFTP, "ftp", 0, "FTP base, in watts (required)")
	rootCmd.Flags().StringVar(&flagListen, "listen", ":8080", "HTTP/WS bind address")
	rootCmd.Flags().BoolVar(&flagMockTrainer, "mock-trainer", false, "use an in-process loopback peripheral instead of scanning for BLE hardware")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVar(&flagServiceUUID, "service-uuid", "1826", "override the FTMS service UUID filter (16-bit hex, no 0x prefix)")
	rootCmd.Flags().StringVar(&flagDeviceName, "device-name", "", "optional substring filter on the advertised peripheral name")

	_ = rootCmd.MarkFlagRequired("ftp")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConstructionFail)
	}
}

func run(workoutPath string) error {
	logger := log.Default()

	shutdownTelemetry := telemetry.Init()
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	if flagFTP <= 0 {
		return fmt.Errorf("--ftp must be a positive number of watts")
	}

	wf, err := workout.Load(workoutPath)
	if err != nil {
		return fmt.Errorf("load workout file: %w", err)
	}
	logger.Info("workout loaded", "name", wf.Name, "steps", len(wf.Steps))

	engine, err := workout.NewEngine(wf.Steps, flagFTP)
	if err != nil {
		return fmt.Errorf("build workout engine: %w", err)
	}
	tracker := workout.NewTracker(engine.CurrentStep(), engine.NextStep(), engine.TotalDuration(), engine.TotalSteps(), flagFTP)

	driver, err := dialDriver()
	if err != nil {
		return fmt.Errorf("connect to trainer: %w", err)
	}
	defer driver.Close()

	if flagMockTrainer {
		stop := make(chan struct{})
		defer close(stop)
		go ftms.MockBikeDataLoop(driver, func() int16 { return tracker.Snapshot().CurrentPowerSet }, stop)
	}

	rt := router.New(engine, tracker, driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("signal received, aborting")
		cancel()
	}()

	printer := display.NewPrinter(os.Stdout)
	statusStates := rt.SubscribeState()
	go printer.Run(statusStates)

	server := transport.NewServer(rt)
	mux := http.NewServeMux()
	server.Routes(mux)
	httpSrv := &http.Server{Addr: flagListen, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()
	defer httpSrv.Close()

	go readStdinCommands(ctx, rt.Commands(), logger, cancel)

	// A canceled context is the signal/stdin-EOF abort path: an orderly
	// user abort, not a failure.
	if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func dialDriver() (*ftms.Driver, error) {
	if flagMockTrainer {
		return ftms.DialMock()
	}

	svcUUID := ftms.ServiceUUID
	if flagServiceUUID != "" {
		raw, err := strconv.ParseUint(flagServiceUUID, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("parse --service-uuid: %w", err)
		}
		svcUUID = bluetooth.New16BitUUID(uint16(raw))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return ftms.Dial(ctx, ftms.DialOptions{
		ServiceUUID: svcUUID,
		NameFilter:  flagDeviceName,
	})
}

// readStdinCommands implements the interactive stdin protocol (spec §6:
// "Line-oriented. Single-letter commands, case-insensitive: S = skip step,
// Q = abort. Anything else warns and continues. EOF on stdin aborts.").
func readStdinCommands(ctx context.Context, commands chan<- router.Command, logger *log.Logger, abort context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToUpper(line) {
		case "S":
			select {
			case commands <- router.CommandSkipStep:
			case <-ctx.Done():
				return
			}
		case "Q":
			select {
			case commands <- router.CommandAbort:
			case <-ctx.Done():
			}
			return
		case "":
			// ignore blank lines
		default:
			logger.Warn("unrecognized stdin command", "input", line)
		}
	}
	// EOF on stdin aborts (spec §6).
	logger.Info("stdin closed, aborting")
	abort()
}
