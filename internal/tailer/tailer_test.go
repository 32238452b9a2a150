package tailer_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DaveBerkeley/elster-meter/internal/errors"
	"github.com/DaveBerkeley/elster-meter/internal/meterlog"
	"github.com/DaveBerkeley/elster-meter/internal/tailer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day1 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)

func appendLog(t *testing.T, base string, day time.Time, text string) {
	t.Helper()

	path := meterlog.Path(base, day)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString(text)
	require.NoError(t, err)
}

func TestNotReadyWhenLogMissing(t *testing.T) {
	tl := tailer.New(t.TempDir())
	defer tl.Close()

	res := tl.Poll(day1)
	assert.Equal(t, tailer.StatusNotReady, res.Status)
	assert.True(t, errors.HasCode(res.Err, errors.ErrLogNotReady))
	assert.Empty(t, tl.Path())
}

func TestSkipsExistingLines(t *testing.T) {
	base := t.TempDir()
	appendLog(t, base, day1, "08:00:00 1000\n08:01:00 1001\n08:02:00 1002\n")

	tl := tailer.New(base)
	defer tl.Close()

	res := tl.Poll(day1)
	assert.Equal(t, tailer.StatusNoData, res.Status)
	assert.Equal(t, 1000.0*3600, tl.Baseline())
	assert.Equal(t, meterlog.Path(base, day1), tl.Path())

	res = tl.Poll(day1)
	assert.Equal(t, tailer.StatusNoData, res.Status)

	appendLog(t, base, day1, "08:03:00 1003\n")
	res = tl.Poll(day1)
	require.Equal(t, tailer.StatusData, res.Status)
	assert.Equal(t, meterlog.Point{Seconds: 8*3600 + 3*60, WattSeconds: 1003 * 3600}, res.Point)

	assert.Equal(t, tailer.StatusNoData, tl.Poll(day1).Status)
}

func TestOneLinePerPoll(t *testing.T) {
	base := t.TempDir()
	appendLog(t, base, day1, "08:00:00 1000\n")

	tl := tailer.New(base)
	defer tl.Close()
	tl.Poll(day1)

	appendLog(t, base, day1, "08:01:00 1001\n08:02:00 1002\n")

	res := tl.Poll(day1)
	require.Equal(t, tailer.StatusData, res.Status)
	assert.Equal(t, 1001.0*3600, res.Point.WattSeconds)

	res = tl.Poll(day1)
	require.Equal(t, tailer.StatusData, res.Status)
	assert.Equal(t, 1002.0*3600, res.Point.WattSeconds)
}

func TestPartialLineCompletedLater(t *testing.T) {
	base := t.TempDir()
	appendLog(t, base, day1, "08:00:00 1000\n")

	tl := tailer.New(base)
	defer tl.Close()
	tl.Poll(day1)

	appendLog(t, base, day1, "08:01:00 10")
	assert.Equal(t, tailer.StatusNoData, tl.Poll(day1).Status)

	appendLog(t, base, day1, "05\n")
	res := tl.Poll(day1)
	require.Equal(t, tailer.StatusData, res.Status)
	assert.Equal(t, 1005.0*3600, res.Point.WattSeconds)
}

func TestMalformedLine(t *testing.T) {
	base := t.TempDir()
	appendLog(t, base, day1, "08:00:00 1000\n")

	tl := tailer.New(base)
	defer tl.Close()
	tl.Poll(day1)

	appendLog(t, base, day1, "garbage\n08:02:00 1002\n")

	res := tl.Poll(day1)
	assert.Equal(t, tailer.StatusError, res.Status)
	assert.True(t, errors.HasCode(res.Err, errors.ErrParseLine))

	res = tl.Poll(day1)
	require.Equal(t, tailer.StatusData, res.Status)
	assert.Equal(t, 1002.0*3600, res.Point.WattSeconds)
}

func TestMalformedFirstLineRetried(t *testing.T) {
	base := t.TempDir()
	appendLog(t, base, day1, "bad line here\n")

	tl := tailer.New(base)
	defer tl.Close()

	res := tl.Poll(day1)
	assert.Equal(t, tailer.StatusError, res.Status)
	assert.Empty(t, tl.Path())
}

func TestEmptyFileIsNoData(t *testing.T) {
	base := t.TempDir()
	appendLog(t, base, day1, "")

	tl := tailer.New(base)
	defer tl.Close()

	assert.Equal(t, tailer.StatusNoData, tl.Poll(day1).Status)
	assert.Empty(t, tl.Path())

	appendLog(t, base, day1, "08:00:00 1000\n")
	assert.Equal(t, tailer.StatusNoData, tl.Poll(day1).Status)
	assert.Equal(t, 1000.0*3600, tl.Baseline())
}

func TestDayRollover(t *testing.T) {
	base := t.TempDir()
	day2 := day1.AddDate(0, 0, 1)
	appendLog(t, base, day1, "00:00:10 1000\n")

	tl := tailer.New(base)
	defer tl.Close()
	tl.Poll(day1)
	assert.Equal(t, 1000.0*3600, tl.Baseline())

	// Tomorrow's log does not exist yet.
	assert.Equal(t, tailer.StatusNotReady, tl.Poll(day2).Status)
	assert.Equal(t, meterlog.Path(base, day1), tl.Path())

	appendLog(t, base, day2, "00:00:05 2000\n00:01:05 2001\n")
	assert.Equal(t, tailer.StatusNoData, tl.Poll(day2).Status)
	assert.Equal(t, meterlog.Path(base, day2), tl.Path())
	assert.Equal(t, 2000.0*3600, tl.Baseline())

	appendLog(t, base, day2, "00:02:05 2002\n")
	res := tl.Poll(day2)
	require.Equal(t, tailer.StatusData, res.Status)
	assert.Equal(t, 2002.0*3600, res.Point.WattSeconds)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "data", tailer.StatusData.String())
	assert.Equal(t, "no_data", tailer.StatusNoData.String())
	assert.Equal(t, "not_ready", tailer.StatusNotReady.String())
	assert.Equal(t, "error", tailer.StatusError.String())
}
