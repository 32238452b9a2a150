package meterlog

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/DaveBerkeley/elster-meter/internal/errors"
	"github.com/DaveBerkeley/elster-meter/internal/logger"
)

const (
	defaultDirPerm    = 0o755
	defaultFilePerm   = 0o644
	defaultRetryDelay = 500 * time.Millisecond

	// maxTokenSize bounds a single whitespace separated token read from the
	// meter. Longer runs are returned in chunks and rejected as unparseable.
	maxTokenSize = 4 * 1024
)

// Writer appends meter samples to the daily log files. At most one line
// is written per minute, and only when the reading has changed.
type Writer struct {
	base       string
	now        func() time.Time
	retryDelay time.Duration

	hasLast    bool
	lastValue  int64
	lastMinute int

	path string
	f    *os.File
}

type WriterOption func(*Writer)

// WithClock sets the time source used to stamp samples.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.now = now
	}
}

// WithRetryDelay sets how long Run pauses after an unparseable token.
func WithRetryDelay(d time.Duration) WriterOption {
	return func(w *Writer) {
		w.retryDelay = d
	}
}

func NewWriter(base string, opts ...WriterOption) *Writer {
	w := &Writer{
		base:       base,
		now:        time.Now,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Accept records the cumulative reading wh. It reports whether a line was
// written; repeated values and values within the same minute as the last
// accepted one are dropped.
func (w *Writer) Accept(wh int64) (bool, error) {
	if w.hasLast && wh == w.lastValue {
		return false, nil
	}

	now := w.now()
	if w.hasLast && now.Minute() == w.lastMinute {
		return false, nil
	}

	if err := w.open(Path(w.base, now)); err != nil {
		return false, err
	}

	if _, err := w.f.WriteString(FormatLine(now, wh)); err != nil {
		return false, errors.New().Wrap(errors.ErrWriteLog, err)
	}
	if err := w.f.Sync(); err != nil {
		return false, errors.New().Wrap(errors.ErrWriteLog, err)
	}

	w.hasLast = true
	w.lastValue = wh
	w.lastMinute = now.Minute()

	return true, nil
}

// open makes path the current log file, closing the previous one.
func (w *Writer) open(path string) error {
	if path == w.path && w.f != nil {
		return nil
	}

	errFactory := errors.New()

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return errFactory.WithData(errors.ErrOpenLog, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  path,
			Error: err.Error(),
		})
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return errFactory.Wrap(errors.ErrOpenLog, err)
	}

	if w.f != nil {
		if err := w.f.Close(); err != nil {
			logger.Warn().Err(err).Str("path", w.path).Msg("Failed to close previous meter log")
		}
	}

	logger.Info().Str("path", path).Msg("Opened meter log")
	w.f = f
	w.path = path

	return nil
}

// CurrentPath returns the log file most recently written to.
func (w *Writer) CurrentPath() string {
	return w.path
}

// Run reads whitespace separated readings from r until r is exhausted or
// ctx is cancelled. Tokens that are not integers are skipped after a short
// pause; write failures are logged and the sample dropped.
func (w *Writer) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 512), maxTokenSize)
	scanner.Split(scanReadings)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		token := scanner.Text()
		wh, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			if len(token) >= maxTokenSize {
				logger.Debug().Int("len", len(token)).Msg("Ignoring overlong meter data")
			} else {
				logger.Debug().Str("token", token).Msg("Ignoring unparseable meter reading")
			}
			if !sleep(ctx, w.retryDelay) {
				return nil
			}
			continue
		}

		written, err := w.Accept(wh)
		if err != nil {
			var appErr errors.Error
			if errors.As(err, &appErr) {
				logger.ErrorWithCode(appErr).Int64("wh", wh).Msg("Failed to log meter reading")
			} else {
				logger.Error().Err(err).Int64("wh", wh).Msg("Failed to log meter reading")
			}
			continue
		}
		if written {
			logger.Debug().Int64("wh", wh).Str("path", w.path).Msg("Logged meter reading")
		}
	}

	if ctx.Err() != nil {
		return nil
	}

	return scanner.Err()
}

// scanReadings splits like bufio.ScanWords, except that a full buffer with
// no separator is returned as one token instead of failing the scan.
func scanReadings(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanWords(data, atEOF)
	if advance == 0 && token == nil && err == nil && len(data) >= maxTokenSize {
		return len(data), data, nil
	}

	return advance, token, err
}

// Close closes the current log file, if any.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}

	err := w.f.Close()
	w.f = nil
	w.path = ""

	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
