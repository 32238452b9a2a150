// Package filter smooths power readings with a fixed-length moving average.
package filter

// MovingAverage keeps the last taps values and reports their mean.
// The zero value is not usable; create one with New.
type MovingAverage struct {
	taps   int
	window []float64
}

// New returns a moving average over taps values. taps below one is treated
// as one, which makes the filter a pass-through.
func New(taps int) *MovingAverage {
	if taps < 1 {
		taps = 1
	}

	return &MovingAverage{taps: taps}
}

// Update adds value to the window and returns the window mean truncated
// toward zero. The first call fills every tap with value.
func (m *MovingAverage) Update(value float64) int {
	if m.window == nil {
		m.window = make([]float64, m.taps)
		for i := range m.window {
			m.window[i] = value
		}
	}

	copy(m.window, m.window[1:])
	m.window[m.taps-1] = value

	sum := 0.0
	for _, v := range m.window {
		sum += v
	}

	return int(sum / float64(m.taps))
}

// Window returns a copy of the current window, oldest first. It is nil
// before the first Update.
func (m *MovingAverage) Window() []float64 {
	if m.window == nil {
		return nil
	}

	return append([]float64(nil), m.window...)
}
