// Package tailer follows the meter log for the current day.
package tailer

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/DaveBerkeley/elster-meter/internal/errors"
	"github.com/DaveBerkeley/elster-meter/internal/logger"
	"github.com/DaveBerkeley/elster-meter/internal/meterlog"
)

// Status is the outcome of a single poll.
type Status int

const (
	// StatusData means Result.Point holds a newly appended reading.
	StatusData Status = iota
	// StatusNoData means nothing new has been appended since the last poll.
	StatusNoData
	// StatusNotReady means today's log has not been created yet.
	StatusNotReady
	// StatusError means the poll failed; Result.Err says why.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusData:
		return "data"
	case StatusNoData:
		return "no_data"
	case StatusNotReady:
		return "not_ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

type Result struct {
	Status Status
	Point  meterlog.Point
	Err    error
}

// Tailer reads lines appended to the daily log after it was opened. The
// first line of each day's file is kept as the baseline for that day.
type Tailer struct {
	base string

	path    string
	f       *os.File
	r       *bufio.Reader
	partial string
	first   meterlog.Point
}

func New(base string) *Tailer {
	return &Tailer{base: base}
}

// Poll returns the next reading appended to the log for the day of now.
// It never blocks waiting for data.
func (t *Tailer) Poll(now time.Time) Result {
	path := meterlog.Path(t.base, now)
	if path != t.path {
		if res, ok := t.open(path); !ok {
			return res
		}
	}

	return t.next()
}

func (t *Tailer) open(path string) (Result, bool) {
	errFactory := errors.New()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Result{Status: StatusNotReady, Err: errFactory.WithData(errors.ErrLogNotReady, path)}, false
		}
		return errorResult(errFactory.Wrap(errors.ErrOpenLog, err)), false
	}

	f, err := os.Open(path)
	if err != nil {
		return errorResult(errFactory.Wrap(errors.ErrOpenLog, err)), false
	}

	r := bufio.NewReader(f)
	line, err := r.ReadString('\n')
	if err != nil {
		f.Close()
		if err == io.EOF {
			// The writer has created the file but not finished the first line.
			return Result{Status: StatusNoData}, false
		}
		return errorResult(errFactory.Wrap(errors.ErrOpenLog, err)), false
	}

	first, err := meterlog.ParseLine(line)
	if err != nil {
		f.Close()
		return errorResult(err), false
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return errorResult(errFactory.Wrap(errors.ErrOpenLog, err)), false
	}

	if t.f != nil {
		if err := t.f.Close(); err != nil {
			logger.Warn().Err(err).Str("path", t.path).Msg("Failed to close previous meter log")
		}
	}

	logger.Info().
		Str("path", path).
		Float64("first_ws", first.WattSeconds).
		Msg("Opened meter log")

	t.path = path
	t.f = f
	t.r = bufio.NewReader(f)
	t.partial = ""
	t.first = first

	return Result{}, true
}

func (t *Tailer) next() Result {
	line, err := t.r.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			t.partial += line
			return Result{Status: StatusNoData}
		}
		return errorResult(errors.New().Wrap(errors.ErrOpenLog, err))
	}

	line = t.partial + line
	t.partial = ""

	p, err := meterlog.ParseLine(line)
	if err != nil {
		return errorResult(err)
	}

	return Result{Status: StatusData, Point: p}
}

// Baseline returns the first reading of the currently open day's log, in
// watt-seconds.
func (t *Tailer) Baseline() float64 {
	return t.first.WattSeconds
}

// Path returns the log file currently being followed, or "".
func (t *Tailer) Path() string {
	return t.path
}

// Close releases the current log file.
func (t *Tailer) Close() error {
	if t.f == nil {
		return nil
	}

	err := t.f.Close()
	t.f = nil
	t.r = nil
	t.path = ""

	return err
}

func errorResult(err error) Result {
	return Result{Status: StatusError, Err: err}
}
