// Package poster turns the growing meter log into feed updates.
package poster

import (
	"context"
	"time"

	"github.com/DaveBerkeley/elster-meter/internal/errors"
	"github.com/DaveBerkeley/elster-meter/internal/feed"
	"github.com/DaveBerkeley/elster-meter/internal/history"
	"github.com/DaveBerkeley/elster-meter/internal/livedata"
	"github.com/DaveBerkeley/elster-meter/internal/logger"
	"github.com/DaveBerkeley/elster-meter/internal/tailer"
)

const (
	defaultInterval = 10 * time.Second
	defaultTaps     = 3
)

// Source yields points appended to the meter log.
type Source interface {
	Poll(now time.Time) tailer.Result
	Baseline() float64
	Path() string
}

// Feed receives the derived readings.
type Feed interface {
	Put(ctx context.Context, p feed.Payload) (feed.Response, error)
}

type Config struct {
	Interval time.Duration
	Taps     int
	Test     bool
}

type Poster struct {
	cfg     Config
	source  Source
	feed    Feed
	session *Session
	history history.Recorder
	live    *livedata.Writer
	now     func() time.Time
}

type Option func(*Poster)

// WithHistory records every emitted reading.
func WithHistory(r history.Recorder) Option {
	return func(p *Poster) {
		p.history = r
	}
}

// WithLiveData writes every emitted reading to a live data file.
func WithLiveData(w *livedata.Writer) Option {
	return func(p *Poster) {
		p.live = w
	}
}

// WithClock sets the time source used to pick the day's log.
func WithClock(now func() time.Time) Option {
	return func(p *Poster) {
		p.now = now
	}
}

func New(cfg Config, source Source, f Feed, opts ...Option) *Poster {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Taps <= 0 {
		cfg.Taps = defaultTaps
	}

	p := &Poster{
		cfg:     cfg,
		source:  source,
		feed:    f,
		session: NewSession(cfg.Taps),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run polls once per interval until ctx is cancelled.
func (p *Poster) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	logger.Info().
		Dur("interval", p.cfg.Interval).
		Int("taps", p.cfg.Taps).
		Bool("test", p.cfg.Test).
		Msg("Poster started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Cycle(ctx)
		}
	}
}

// Cycle performs a single poll. It reports the emitted reading, if any.
// Failures, including panics, are logged and swallowed so the loop keeps
// running.
func (p *Poster) Cycle(ctx context.Context) (r Reading, emitted bool) {
	defer func() {
		if v := recover(); v != nil {
			logger.Error().
				Str("error_code", string(errors.ErrPollCycle)).
				Interface("panic", v).
				Msg("Poll cycle failed")
			r, emitted = Reading{}, false
		}
	}()

	return p.cycle(ctx)
}

func (p *Poster) cycle(ctx context.Context) (Reading, bool) {
	now := p.now()

	res := p.source.Poll(now)
	switch res.Status {
	case tailer.StatusData:
	case tailer.StatusNoData:
		return Reading{}, false
	case tailer.StatusNotReady:
		logger.Debug().Err(res.Err).Msg("Meter log not ready")
		return Reading{}, false
	default:
		logError(res.Err, "Failed to read meter log")
		return Reading{}, false
	}

	reading, ok := p.session.Step(res.Point, p.source.Baseline())
	if !ok {
		last, _ := p.session.Last()
		logger.Debug().
			Int("seconds", res.Point.Seconds).
			Int("last_seconds", last.Seconds).
			Float64("last_ws", last.WattSeconds).
			Msg("Reading skipped")
		return Reading{}, false
	}

	logger.Debug().
		Float64("power_w", reading.Power).
		Floats64("window", p.session.filter.Window()).
		Msg("Power filtered")

	logger.Info().
		Int("power_w", reading.Smoothed).
		Float64("today_kwh", reading.TodayKWh).
		Float64("total_kwh", reading.TotalKWh).
		Msg("Reading")

	p.emit(ctx, now, reading)

	return reading, true
}

func (p *Poster) emit(ctx context.Context, now time.Time, r Reading) {
	_, putErr := p.feed.Put(ctx, feed.Readings(r.Smoothed, r.TodayKWh, r.TotalKWh))
	if putErr != nil {
		logError(putErr, "Failed to update feed")
	}

	if p.history != nil {
		if err := p.history.Record(ctx, &history.Snapshot{
			Timestamp:   now,
			Seconds:     r.Seconds,
			WattSeconds: r.WattSeconds,
			Power:       r.Smoothed,
			TodayKWh:    r.TodayKWh,
			TotalKWh:    r.TotalKWh,
		}); err != nil {
			logError(err, "Failed to record history")
		}
	}

	if p.live != nil {
		if err := p.live.Write(livedata.Status{
			Timestamp: now,
			LogPath:   p.source.Path(),
			PowerW:    r.Smoothed,
			TodayKWh:  r.TodayKWh,
			TotalKWh:  r.TotalKWh,
			Sent:      putErr == nil && !p.cfg.Test,
		}); err != nil {
			logError(err, "Failed to write live data")
		}
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
