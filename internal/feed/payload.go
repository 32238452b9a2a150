package feed

const payloadVersion = "1.0.0"

// Datastream ids used for the meter feed.
const (
	StreamPower    = "0"
	StreamTodayKWh = "1"
	StreamTotalKWh = "2"
)

type Datastream struct {
	ID           string  `json:"id"`
	CurrentValue float64 `json:"current_value"`
}

type Payload struct {
	Version     string       `json:"version"`
	Datastreams []Datastream `json:"datastreams"`
}

// NewPayload returns a payload carrying the given datastreams in order.
func NewPayload(streams ...Datastream) Payload {
	return Payload{
		Version:     payloadVersion,
		Datastreams: streams,
	}
}

// Readings builds the meter payload: smoothed power in watts, energy since
// the start of the day and the meter total, both in kWh.
func Readings(power int, todayKWh, totalKWh float64) Payload {
	return NewPayload(
		Datastream{ID: StreamPower, CurrentValue: float64(power)},
		Datastream{ID: StreamTodayKWh, CurrentValue: todayKWh},
		Datastream{ID: StreamTotalKWh, CurrentValue: totalKWh},
	)
}
