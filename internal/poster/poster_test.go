package poster_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DaveBerkeley/elster-meter/internal/errors"
	"github.com/DaveBerkeley/elster-meter/internal/feed"
	"github.com/DaveBerkeley/elster-meter/internal/history"
	"github.com/DaveBerkeley/elster-meter/internal/livedata"
	"github.com/DaveBerkeley/elster-meter/internal/logger"
	"github.com/DaveBerkeley/elster-meter/internal/meterlog"
	"github.com/DaveBerkeley/elster-meter/internal/poster"
	"github.com/DaveBerkeley/elster-meter/internal/tailer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	mu       sync.Mutex
	results  []tailer.Result
	baseline float64
}

func (s *scriptedSource) Poll(time.Time) tailer.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.results) == 0 {
		return tailer.Result{Status: tailer.StatusNoData}
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r
}

func (s *scriptedSource) Baseline() float64 { return s.baseline }
func (s *scriptedSource) Path() string      { return "/scripted.log" }

type recordingFeed struct {
	mu       sync.Mutex
	payloads []feed.Payload
	err      error
}

func (f *recordingFeed) Put(_ context.Context, p feed.Payload) (feed.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.payloads = append(f.payloads, p)
	return feed.Response{StatusCode: 200, Reason: "OK"}, f.err
}

func (f *recordingFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func data(seconds int, ws float64) tailer.Result {
	return tailer.Result{Status: tailer.StatusData, Point: meterlog.Point{Seconds: seconds, WattSeconds: ws}}
}

func TestCycleSkipsNonData(t *testing.T) {
	src := &scriptedSource{results: []tailer.Result{
		{Status: tailer.StatusNotReady},
		{Status: tailer.StatusNoData},
		{Status: tailer.StatusError, Err: errors.New().New(errors.ErrParseLine)},
		data(0, 0),
		data(10, 36000),
	}}
	f := &recordingFeed{}
	p := poster.New(poster.Config{}, src, f)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, emitted := p.Cycle(ctx)
		assert.False(t, emitted, "cycle %d", i)
	}

	r, emitted := p.Cycle(ctx)
	require.True(t, emitted)
	assert.Equal(t, 3600, r.Smoothed)

	require.Len(t, f.payloads, 1)
	assert.Equal(t, feed.Readings(3600, 0.01, 0.01), f.payloads[0])
}

func TestCycleDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logger.InitWriter(&buf, "debug"))
	defer func() { _ = logger.InitWriter(os.Stderr, "info") }()

	src := &scriptedSource{results: []tailer.Result{data(5, 0), data(15, 36000)}}
	p := poster.New(poster.Config{}, src, &recordingFeed{})

	p.Cycle(context.Background())
	assert.Contains(t, buf.String(), `"last_seconds":5`)
	assert.Contains(t, buf.String(), `"message":"Reading skipped"`)

	buf.Reset()
	p.Cycle(context.Background())
	assert.Contains(t, buf.String(), `"window":[3600,3600,3600]`)
}

func TestCycleContinuesAfterFeedError(t *testing.T) {
	src := &scriptedSource{results: []tailer.Result{data(0, 0), data(10, 1000), data(20, 2000)}}
	f := &recordingFeed{err: errors.New().New(errors.ErrTransport)}
	p := poster.New(poster.Config{}, src, f)

	p.Cycle(context.Background())
	_, emitted := p.Cycle(context.Background())
	assert.True(t, emitted)
	_, emitted = p.Cycle(context.Background())
	assert.True(t, emitted)
	assert.Equal(t, 2, f.count())
}

type panicSource struct{ scriptedSource }

func (*panicSource) Poll(time.Time) tailer.Result { panic("boom") }

func TestCycleRecoversPanic(t *testing.T) {
	p := poster.New(poster.Config{}, &panicSource{}, &recordingFeed{})

	assert.NotPanics(t, func() {
		_, emitted := p.Cycle(context.Background())
		assert.False(t, emitted)
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &scriptedSource{results: []tailer.Result{data(0, 0), data(10, 1000), data(20, 2000)}}
	f := &recordingFeed{}
	p := poster.New(poster.Config{Interval: time.Millisecond}, src, f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return f.count() == 2 }, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPipeline(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
	logPath := meterlog.Path(base, now)

	clock := now
	w := meterlog.NewWriter(base, meterlog.WithClock(func() time.Time { return clock }))
	defer w.Close()

	_, err := w.Accept(1000)
	require.NoError(t, err)

	var out bytes.Buffer
	client := feed.New(feed.Config{Host: "unused.invalid", Test: true}, feed.WithOutput(&out))

	livePath := filepath.Join(t.TempDir(), "live.yaml")
	rec, err := history.NewService(history.Config{
		Enabled: true,
		DBPath:  filepath.Join(t.TempDir(), "history.db"),
	})
	require.NoError(t, err)
	defer rec.Close()

	tl := tailer.New(base)
	defer tl.Close()

	p := poster.New(poster.Config{Test: true}, tl, client,
		poster.WithClock(func() time.Time { return now }),
		poster.WithHistory(rec),
		poster.WithLiveData(livedata.NewWriter(livePath)))
	ctx := context.Background()

	// Opens the log, records the baseline and seeks to the end.
	_, emitted := p.Cycle(ctx)
	assert.False(t, emitted)

	clock = clock.Add(time.Minute)
	_, err = w.Accept(1001)
	require.NoError(t, err)
	_, emitted = p.Cycle(ctx)
	assert.False(t, emitted, "first tailed point is the rate baseline")

	clock = clock.Add(time.Minute)
	_, err = w.Accept(1002)
	require.NoError(t, err)
	r, emitted := p.Cycle(ctx)
	require.True(t, emitted)

	// 1 Wh over 60 s.
	assert.Equal(t, 60, r.Smoothed)
	assert.InDelta(t, 2.0/1000, r.TodayKWh, 1e-12)
	assert.InDelta(t, 1002.0/1000, r.TotalKWh, 1e-12)

	body, err := feed.Encode(feed.Readings(r.Smoothed, r.TodayKWh, r.TotalKWh))
	require.NoError(t, err)
	assert.Equal(t, string(body)+"\n", out.String())

	live, err := livedata.Read(livePath)
	require.NoError(t, err)
	assert.Equal(t, 60, live.PowerW)
	assert.Equal(t, logPath, live.LogPath)
	assert.False(t, live.Sent)

	got, err := rec.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 60, got[0].Power)

	_, statErr := os.Stat(logPath)
	assert.NoError(t, statErr)
}
