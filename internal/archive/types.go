package archive

import "time"

// Config controls batching.
type Config struct {
	// BatchSize is the number of rows written per round trip, and the queue
	// length that triggers an early flush.
	BatchSize int

	// FlushInterval is the maximum time a view waits in the queue.
	FlushInterval time.Duration

	// BufferSize caps the queue. Views recorded while it is full are dropped.
	BufferSize int
}

// DefaultConfig returns the defaults used when no archive settings are given.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		BufferSize:    1000,
	}
}

// Stats counts writer activity.
type Stats struct {
	Recorded int64
	Dropped  int64
	Inserted int64
	Errors   int64
	Flushes  int64
}

// snapshotRow is one row of analytics_snapshots.
type snapshotRow struct {
	ID         string // UUID
	Source     string // rest | push
	Freshness  int64
	PushTs     *time.Time // NULL for REST views and unparsable push timestamps
	ReceivedAt time.Time

	Total     int
	Active    int
	Trial     int
	Cancelled int
	Expired   int

	MonthlyRevenue float64
	YearlyRevenue  float64
	ChurnRate      float64
	ARPU           float64
	NewToday       int
	CancelledToday int
	RecentCount    int
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS analytics_snapshots (
	id               UUID PRIMARY KEY,
	source           TEXT NOT NULL,
	freshness        BIGINT NOT NULL,
	push_ts          TIMESTAMPTZ,
	received_at      TIMESTAMPTZ NOT NULL,
	total            INTEGER NOT NULL,
	active           INTEGER NOT NULL,
	trial            INTEGER NOT NULL,
	cancelled        INTEGER NOT NULL,
	expired          INTEGER NOT NULL,
	monthly_revenue  DOUBLE PRECISION NOT NULL,
	yearly_revenue   DOUBLE PRECISION NOT NULL,
	churn_rate       DOUBLE PRECISION NOT NULL,
	arpu             DOUBLE PRECISION NOT NULL,
	new_today        INTEGER NOT NULL,
	cancelled_today  INTEGER NOT NULL,
	recent_count     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS analytics_snapshots_received_at_idx ON analytics_snapshots (received_at);
`
