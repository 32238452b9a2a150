package history

import (
	"context"
	"time"
)

// Recorder stores readings emitted by the poster.
type Recorder interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Recent(ctx context.Context, limit int) ([]Snapshot, error)
	Close() error
}

// Repository defines the interface for history data storage
type Repository interface {
	Record(snapshot *Snapshot) error
	Recent(ctx context.Context, limit int) ([]Snapshot, error)
	Close() error
}

// Snapshot is one reading as sent to the feed.
type Snapshot struct {
	Timestamp   time.Time
	Seconds     int
	WattSeconds float64
	Power       int
	TodayKWh    float64
	TotalKWh    float64
}
