// Package meterlog reads and writes the daily meter log files.
//
// Each accepted meter sample becomes one line of the form
//
//	HH:MM:SS watt_hours
//
// in the file <base>/<YYYY>/<MM>/<DD>.log for the day it was taken.
package meterlog

import (
	"strconv"
	"strings"
	"time"

	"github.com/DaveBerkeley/elster-meter/internal/errors"
)

const (
	timeLayout       = "15:04:05"
	secondsPerHour   = 3600
	secondsPerMinute = 60
)

// Point is a log line decoded into seconds since midnight and the
// cumulative energy in watt-seconds.
type Point struct {
	Seconds     int
	WattSeconds float64
}

// FormatLine returns the log line, including the trailing newline, for a
// sample of wh watt-hours taken at t.
func FormatLine(t time.Time, wh int64) string {
	return t.Format(timeLayout) + " " + strconv.FormatInt(wh, 10) + "\n"
}

// ParseLine decodes a single log line. Surrounding whitespace is ignored.
func ParseLine(line string) (Point, error) {
	errFactory := errors.New()

	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Point{}, errFactory.WithData(errors.ErrParseLine, strconv.Quote(line))
	}

	hms := strings.Split(fields[0], ":")
	if len(hms) != 3 {
		return Point{}, errFactory.WithData(errors.ErrParseLine, strconv.Quote(line))
	}

	var parts [3]int
	for i, s := range hms {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Point{}, errFactory.Wrap(errors.ErrParseLine, err)
		}
		parts[i] = n
	}

	wh, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Point{}, errFactory.Wrap(errors.ErrParseLine, err)
	}

	return Point{
		Seconds:     parts[0]*secondsPerHour + parts[1]*secondsPerMinute + parts[2],
		WattSeconds: float64(wh) * secondsPerHour,
	}, nil
}
