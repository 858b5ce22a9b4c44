package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/subscription-dashboard/internal/analytics"
	"github.com/rickgao/subscription-dashboard/internal/buffer"
	"github.com/rickgao/subscription-dashboard/internal/metrics"
)

// Writer batches analytics views into analytics_snapshots.
// Record is safe to call from any goroutine and never blocks.
type Writer struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	input *buffer.Queue[analytics.View]
	kick  chan struct{}

	db *pgxpool.Pool

	statsMu sync.Mutex
	stats   Stats
}

// NewWriter creates a Writer. db may be nil until Run is called; mt may be nil.
func NewWriter(cfg Config, db *pgxpool.Pool, logger *slog.Logger, mt *metrics.Metrics) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	return &Writer{
		cfg:     cfg,
		logger:  logger.With("component", "archive"),
		metrics: mt,
		input:   buffer.NewQueue[analytics.View](cfg.BatchSize),
		kick:    make(chan struct{}, 1),
		db:      db,
	}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create analytics_snapshots: %w", err)
	}
	return nil
}

// Record queues a view for archiving. Empty views are ignored.
func (w *Writer) Record(v analytics.View) {
	if v.Empty() {
		return
	}
	if w.input.Len() >= w.cfg.BufferSize || !w.input.Send(v) {
		w.statsMu.Lock()
		w.stats.Dropped++
		w.statsMu.Unlock()
		w.logger.Warn("archive buffer full, dropping view", "freshness", v.Freshness)
		return
	}

	w.statsMu.Lock()
	w.stats.Recorded++
	w.statsMu.Unlock()

	if w.input.Len() >= w.cfg.BatchSize {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

// Run writes queued views until ctx is cancelled, then flushes what is left.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)

	for {
		select {
		case <-ctx.Done():
			w.input.Close()
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			w.flush(final)
			cancel()
			w.logger.Info("archive writer stopped")
			return nil
		case <-ticker.C:
			w.flush(ctx)
		case <-w.kick:
			w.flush(ctx)
		}
	}
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// flush drains the queue in batches.
func (w *Writer) flush(ctx context.Context) {
	for {
		views := w.input.DrainTo(w.cfg.BatchSize)
		if len(views) == 0 {
			return
		}

		rows := make([]snapshotRow, len(views))
		for i, v := range views {
			rows[i] = w.transform(v)
		}

		start := time.Now()
		err := w.batchInsert(ctx, rows)

		w.statsMu.Lock()
		w.stats.Flushes++
		if err != nil {
			w.stats.Errors++
		} else {
			w.stats.Inserted += int64(len(rows))
		}
		w.statsMu.Unlock()

		if err != nil {
			w.logger.Error("snapshot batch insert failed", "error", err, "count", len(rows))
			w.metrics.IncArchiveError()
			return
		}
		w.metrics.AddArchivedRows(len(rows))
		w.logger.Debug("flushed snapshots", "count", len(rows), "duration", time.Since(start))
	}
}

// transform converts a view to its row.
func (w *Writer) transform(v analytics.View) snapshotRow {
	s := v.Snapshot
	row := snapshotRow{
		ID:             uuid.NewString(),
		Source:         v.Source.String(),
		Freshness:      int64(v.Freshness),
		ReceivedAt:     v.UpdatedAt,
		Total:          s.TotalSubscriptions,
		Active:         s.ActiveSubscriptions,
		Trial:          s.TrialSubscriptions,
		Cancelled:      s.CancelledSubscriptions,
		Expired:        v.Expired(),
		MonthlyRevenue: s.MonthlyRevenue,
		YearlyRevenue:  s.YearlyRevenue,
		ChurnRate:      s.ChurnRate,
		ARPU:           s.AverageRevenuePerUser,
		NewToday:       s.NewSubscriptionsToday,
		CancelledToday: s.CancellationsToday,
		RecentCount:    len(v.Recent),
	}
	if !v.Timestamp.IsZero() {
		ts := v.Timestamp
		row.PushTs = &ts
	}
	return row
}

func (w *Writer) batchInsert(ctx context.Context, rows []snapshotRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO analytics_snapshots (id, source, freshness, push_ts, received_at, total, active, trial, cancelled, expired,
				monthly_revenue, yearly_revenue, churn_rate, arpu, new_today, cancelled_today, recent_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Source, r.Freshness, r.PushTs, r.ReceivedAt, r.Total, r.Active, r.Trial, r.Cancelled, r.Expired,
			r.MonthlyRevenue, r.YearlyRevenue, r.ChurnRate, r.ARPU, r.NewToday, r.CancelledToday, r.RecentCount)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
