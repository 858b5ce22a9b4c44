package analytics

import (
	"log/slog"
	"time"

	"github.com/rickgao/subscription-dashboard/internal/metrics"
	"github.com/rickgao/subscription-dashboard/internal/model"
)

// Source identifies where the current snapshot came from.
type Source int

const (
	SourceNone Source = iota
	SourceREST
	SourcePush
)

func (s Source) String() string {
	switch s {
	case SourceREST:
		return "rest"
	case SourcePush:
		return "push"
	default:
		return "none"
	}
}

// Drop reasons, also used as metric labels.
const (
	DropSupersededByPush = "superseded_by_push"
	DropOutOfOrder       = "out_of_order"
	DropStaleRequest     = "stale_request"
)

// View is the snapshot currently shown, with its provenance.
type View struct {
	Snapshot  model.AnalyticsSnapshot
	Source    Source
	Freshness uint64    // Increases with every applied snapshot, across Reset
	Timestamp time.Time // Push envelope time; zero for REST or when unparsable
	UpdatedAt time.Time // Local arrival time
	Recent    []model.Subscription
}

// Expired is derived from the four counts on every call.
func (v View) Expired() int {
	return v.Snapshot.Expired()
}

// Empty reports whether no snapshot has been applied yet.
func (v View) Empty() bool {
	return v.Source == SourceNone
}

// Config configures an Aggregator.
type Config struct {
	// DropOutOfOrder discards a push whose timestamp is strictly older than
	// the one currently held.
	DropOutOfOrder bool
}

// Stats counts applied and dropped snapshots.
type Stats struct {
	AppliedREST  int64
	AppliedPush  int64
	Dropped      int64
	Inconsistent int64
}

// Aggregator merges REST and push snapshots into a single View.
// It is confined to the event loop.
type Aggregator struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	current    View
	freshness  uint64
	acceptREST bool // Set by Reset; cleared by the next push
	stats      Stats
}

// New creates an empty Aggregator. mt may be nil.
func New(cfg Config, logger *slog.Logger, mt *metrics.Metrics) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		cfg:     cfg,
		logger:  logger.With("component", "analytics"),
		metrics: mt,
	}
}

// ApplyREST offers a snapshot fetched over REST. It is ignored once a push
// snapshot has been applied, until Reset. It reports whether the view changed.
func (a *Aggregator) ApplyREST(snap model.AnalyticsSnapshot, at time.Time) (View, bool) {
	if a.current.Source == SourcePush && !a.acceptREST {
		a.drop(DropSupersededByPush, "freshness", a.current.Freshness)
		return a.current, false
	}

	a.apply(View{
		Snapshot:  snap,
		Source:    SourceREST,
		UpdatedAt: at,
		Recent:    a.current.Recent,
	})
	return a.current, true
}

// ApplyPush offers a decoded push envelope received at receivedAt.
func (a *Aggregator) ApplyPush(data model.RealtimeData, receivedAt time.Time) (View, bool) {
	ts, ok := model.ParseTimestamp(data.Timestamp, receivedAt)
	if !ok {
		a.logger.Debug("unparsable push timestamp", "timestamp", data.Timestamp)
	}

	if a.cfg.DropOutOfOrder && ok && a.current.Source == SourcePush &&
		!a.current.Timestamp.IsZero() && ts.Before(a.current.Timestamp) {
		a.drop(DropOutOfOrder, "timestamp", ts, "held", a.current.Timestamp)
		return a.current, false
	}

	a.acceptREST = false
	a.apply(View{
		Snapshot:  data.Analytics,
		Source:    SourcePush,
		Timestamp: ts,
		UpdatedAt: receivedAt,
		Recent:    data.RecentSubscriptions,
	})
	return a.current, true
}

// Current returns the view being shown.
func (a *Aggregator) Current() View {
	return a.current
}

// Reset lets the next REST snapshot replace a push view. The current view is
// kept until a snapshot actually arrives; freshness keeps counting up.
func (a *Aggregator) Reset() {
	a.acceptREST = true
}

// Stats returns snapshot counters.
func (a *Aggregator) Stats() Stats {
	return a.stats
}

func (a *Aggregator) apply(v View) {
	if !v.Snapshot.Consistent() {
		a.stats.Inconsistent++
		a.logger.Warn("inconsistent analytics counts, expired clamped to 0",
			"source", v.Source,
			"total", v.Snapshot.TotalSubscriptions,
			"active", v.Snapshot.ActiveSubscriptions,
			"trial", v.Snapshot.TrialSubscriptions,
			"cancelled", v.Snapshot.CancelledSubscriptions,
		)
	}

	a.freshness++
	v.Freshness = a.freshness
	a.current = v

	switch v.Source {
	case SourceREST:
		a.stats.AppliedREST++
	case SourcePush:
		a.stats.AppliedPush++
	}
	a.metrics.IncSnapshotApplied(v.Source.String())
}

func (a *Aggregator) drop(reason string, args ...any) {
	a.stats.Dropped++
	a.metrics.IncSnapshotDropped(reason)
	a.logger.Debug("snapshot dropped", append([]any{"reason", reason}, args...)...)
}
