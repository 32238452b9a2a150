package poster

import (
	"github.com/DaveBerkeley/elster-meter/internal/filter"
	"github.com/DaveBerkeley/elster-meter/internal/meterlog"
)

// wattSecondsPerKWh converts accumulated watt-seconds to kilowatt-hours.
const wattSecondsPerKWh = 3600 * 1000.0

// Reading is the result of one successful step.
type Reading struct {
	Seconds     int
	WattSeconds float64
	// Power is the average rate since the previous point, in watts.
	Power float64
	// Smoothed is Power after the moving average.
	Smoothed int
	TodayKWh float64
	TotalKWh float64
}

// Session holds the derivation state carried between polls: the previous
// point and the power filter.
type Session struct {
	filter  *filter.MovingAverage
	hasLast bool
	lastT   int
	lastW   float64
}

func NewSession(taps int) *Session {
	return &Session{filter: filter.New(taps)}
}

// Step feeds the next log point into the session. firstW is the first
// reading of the day in watt-seconds. It reports false when nothing should
// be emitted: the reading is unchanged, it is the first point seen, or it
// carries the same timestamp as the previous point.
func (s *Session) Step(p meterlog.Point, firstW float64) (Reading, bool) {
	if s.hasLast && p.WattSeconds == s.lastW {
		return Reading{}, false
	}

	if !s.hasLast {
		s.hasLast = true
		s.lastT = p.Seconds
		s.lastW = p.WattSeconds
		return Reading{}, false
	}

	dt := p.Seconds - s.lastT
	if dt == 0 {
		return Reading{}, false
	}

	dw := p.WattSeconds - s.lastW
	power := dw / float64(dt)
	s.lastT = p.Seconds
	s.lastW = p.WattSeconds

	return Reading{
		Seconds:     p.Seconds,
		WattSeconds: p.WattSeconds,
		Power:       power,
		Smoothed:    s.filter.Update(power),
		TodayKWh:    (p.WattSeconds - firstW) / wattSecondsPerKWh,
		TotalKWh:    p.WattSeconds / wattSecondsPerKWh,
	}, true
}

// Last returns the previous point, and false before the first point.
func (s *Session) Last() (meterlog.Point, bool) {
	return meterlog.Point{Seconds: s.lastT, WattSeconds: s.lastW}, s.hasLast
}
