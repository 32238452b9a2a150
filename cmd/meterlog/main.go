package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/DaveBerkeley/elster-meter/internal/config"
	"github.com/DaveBerkeley/elster-meter/internal/errors"
	"github.com/DaveBerkeley/elster-meter/internal/logger"
	"github.com/DaveBerkeley/elster-meter/internal/meterlog"
	"github.com/DaveBerkeley/elster-meter/internal/pid"
	"go.bug.st/serial"
)

const processName = "meterlog"

var (
	cfg  *config.Config
	port serial.Port
)

func setup() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Str("config_file", cfg.ConfigFile()).Msg("Config loaded")
}

func main() {
	setup()
	errFactory := errors.New()

	if err := pid.Write(processName); err != nil {
		logFatal(err, "Another meterlog is running")
	}

	var err error
	port, err = serial.Open(cfg.Serial.Device, &serial.Mode{
		BaudRate: cfg.Serial.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		removePID()
		logger.FatalWithCode(errFactory.Wrap(errors.ErrSerialOpen, err)).
			Str("device", cfg.Serial.Device).
			Msg("Failed to open serial port")
	}

	logger.Info().
		Str("device", cfg.Serial.Device).
		Int("baud", cfg.Serial.Baud).
		Str("base_dir", cfg.Log.BaseDir).
		Msg("Logging meter readings")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	w := meterlog.NewWriter(cfg.Log.BaseDir, meterlog.WithRetryDelay(cfg.Serial.RetryDelay))
	runErr := readMeter(ctx, w, port)

	cleanup(w)
	if runErr != nil {
		logFatal(runErr, "Meter read loop failed")
	}
}

// readMeter logs readings from r until ctx is cancelled. Any other end of
// the stream, including a clean EOF, is an error.
func readMeter(ctx context.Context, w *meterlog.Writer, r io.Reader) error {
	errFactory := errors.New()

	if err := w.Run(ctx, r); err != nil {
		return errFactory.Wrap(errors.ErrMainLoop, err)
	}
	if ctx.Err() == nil {
		return errFactory.WithData(errors.ErrMainLoop, "meter stream ended")
	}

	return nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
	// Unblocks the pending read.
	if err := port.Close(); err != nil {
		logger.Debug().Err(err).Msg("Failed to close serial port")
	}
}

func cleanup(w *meterlog.Writer) {
	if err := w.Close(); err != nil {
		logger.ErrorWithCode(errors.New().Wrap(errors.ErrShutdownFailed, err)).Msg("Failed to close meter log")
	}
	port.Close()
	removePID()
	logger.Info().Msg("Exiting...")
}

func removePID() {
	if err := pid.Remove(processName); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove PID file")
	}
}

func logFatal(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.FatalWithCode(appErr).Msg(msg)
	}
	logger.Fatal().Err(err).Msg(msg)
}
