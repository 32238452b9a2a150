package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DaveBerkeley/elster-meter/internal/config"
	"github.com/DaveBerkeley/elster-meter/internal/errors"
	"github.com/DaveBerkeley/elster-meter/internal/feed"
	"github.com/DaveBerkeley/elster-meter/internal/history"
	"github.com/DaveBerkeley/elster-meter/internal/livedata"
	"github.com/DaveBerkeley/elster-meter/internal/logger"
	"github.com/DaveBerkeley/elster-meter/internal/pid"
	"github.com/DaveBerkeley/elster-meter/internal/poster"
	"github.com/DaveBerkeley/elster-meter/internal/tailer"
)

const processName = "meterpost"

var cfg *config.Config

func setup() {
	var err error
	cfg, err = config.Load(os.Args[1:], config.WithTestFlag(), config.WithName(processName))
	if err == nil {
		err = cfg.ValidateFeed()
	}
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
		logFatal(err, "Another meterpost is running")
	}

	rec, err := history.NewService(historyConfig(cfg.History))
	if err != nil {
		removePID()
		logFatal(errFactory.Wrap(errors.ErrInitHistory, err), "Failed to initialize history")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	logLastReading(ctx, rec)

	if cfg.ConfigFile() != "" {
		if err := cfg.Watch(ctx, reload); err != nil {
			logger.Warn().Err(err).Msg("Config reload disabled")
		}
	}

	source := tailer.New(cfg.Log.BaseDir)
	client := feed.New(feed.Config{
		Host:    cfg.Feed.Host,
		FeedID:  cfg.Feed.ID,
		APIKey:  cfg.Feed.APIKey,
		Agent:   cfg.Feed.Agent,
		HTTPS:   cfg.Feed.HTTPS,
		Timeout: cfg.Feed.Timeout,
		Test:    cfg.Poster.Test,
	})

	p := poster.New(poster.Config{
		Interval: cfg.Poster.Interval,
		Taps:     cfg.Poster.Taps,
		Test:     cfg.Poster.Test,
	}, source, client,
		poster.WithHistory(rec),
		poster.WithLiveData(livedata.NewWriter(cfg.LiveData.Path)))

	if err := p.Run(ctx); err != nil {
		logger.ErrorWithCode(errFactory.Wrap(errors.ErrMainLoop, err)).Msg("Poster loop failed")
	}

	cleanup(source, rec)
}

// historyConfig overlays the configured history settings on the package
// defaults. Zero values keep the default.
func historyConfig(c config.HistoryConfig) history.Config {
	hc := history.DefaultConfig()
	hc.Enabled = c.Enabled
	if c.DBPath != "" {
		hc.DBPath = c.DBPath
	}
	if c.BatchSize > 0 {
		hc.BatchSize = c.BatchSize
	}
	if c.BatchTimeout > 0 {
		hc.BatchTimeout = c.BatchTimeout
	}

	return hc
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func reload(next *config.Config) {
	if next.LogLevel == cfg.LogLevel {
		return
	}
	if err := logger.SetLevelName(next.LogLevel); err != nil {
		logger.Warn().Err(err).Msg("Ignoring log level change")
		return
	}
	logger.Info().Str("log_level", next.LogLevel).Msg("Log level changed")
	cfg.LogLevel = next.LogLevel
}

func logLastReading(ctx context.Context, rec history.Recorder) {
	last, err := rec.Recent(ctx, 1)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read history")
		return
	}
	if len(last) == 0 {
		return
	}

	logger.Info().
		Time("at", last[0].Timestamp).
		Int("power_w", last[0].Power).
		Float64("total_kwh", last[0].TotalKWh).
		Msg("Last recorded reading")
}

func cleanup(source *tailer.Tailer, rec history.Recorder) {
	if err := source.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close meter log")
	}
	if err := rec.Close(); err != nil {
		logError(errors.New().Wrap(errors.ErrShutdownFailed, err), "Failed to close history")
	}
	removePID()
	logger.Info().Msg("Exiting...")
}

func removePID() {
	if err := pid.Remove(processName); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove PID file")
	}
}

func logError(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.ErrorWithCode(appErr).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}

func logFatal(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.FatalWithCode(appErr).Msg(msg)
	}
	logger.Fatal().Err(err).Msg(msg)
}
