package listing

import (
	"context"
	"log/slog"

	"github.com/rickgao/subscription-dashboard/internal/api"
	"github.com/rickgao/subscription-dashboard/internal/eventloop"
	"github.com/rickgao/subscription-dashboard/internal/metrics"
	"github.com/rickgao/subscription-dashboard/internal/model"
)

// Manager holds the list parameters and the last accepted page.
// Every method must be called on the event loop.
type Manager struct {
	loop    *eventloop.Loop
	source  Source
	handler Handler
	logger  *slog.Logger
	metrics *metrics.Metrics

	query  Query  // Position: latest issued parameters, or the shown ones after a failure
	retry  *Query // Failed latest query, re-issued by Refresh
	total  int    // Total from the latest accepted response
	issued uint64 // Sequence of the latest issued query

	current Page
	loaded  bool

	stats Stats
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records request and stale-response counters.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a Manager positioned at page 1 with no filters.
// Nothing is fetched until the first mutation or Refresh.
func NewManager(pageSize int, loop *eventloop.Loop, source Source, handler Handler, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = HandlerFuncs{}
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	m := &Manager{
		loop:    loop,
		source:  source,
		handler: handler,
		logger:  logger.With("component", "listing"),
		query:   Query{Page: 1, PageSize: pageSize},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetSearch replaces the search text, resets to page 1 and refetches.
func (m *Manager) SetSearch(ctx context.Context, text string) {
	m.query.Search = text
	m.query.Page = 1
	m.fetch(ctx)
}

// SetStatusFilter replaces the status filter ("" for all), resets to page 1
// and refetches. An unknown status is rejected without a fetch.
func (m *Manager) SetStatusFilter(ctx context.Context, status model.Status) error {
	if status != "" && !status.Valid() {
		return ErrInvalidStatus
	}
	m.query.Status = status
	m.query.Page = 1
	m.fetch(ctx)
	return nil
}

// NextPage advances one page. It is a no-op returning false on the last page.
func (m *Manager) NextPage(ctx context.Context) bool {
	if !m.Pagination().HasNext() {
		return false
	}
	m.query.Page++
	m.fetch(ctx)
	return true
}

// PrevPage goes back one page. It is a no-op returning false on page 1.
func (m *Manager) PrevPage(ctx context.Context) bool {
	if !m.Pagination().HasPrev() {
		return false
	}
	m.query.Page--
	m.fetch(ctx)
	return true
}

// Refresh re-issues the current query. After a failure it retries the query
// that failed.
func (m *Manager) Refresh(ctx context.Context) {
	if m.retry != nil {
		m.query = *m.retry
	}
	m.fetch(ctx)
}

// Query returns the latest issued parameters. After a failed fetch it returns
// the parameters of the page still shown.
func (m *Manager) Query() Query {
	return m.query
}

// Pagination combines the current page number with the last accepted total.
func (m *Manager) Pagination() Pagination {
	return Pagination{
		Page:     m.query.Page,
		PageSize: m.query.PageSize,
		Total:    m.total,
	}
}

// Current returns the last accepted page. ok is false before the first
// successful response.
func (m *Manager) Current() (Page, bool) {
	return m.current, m.loaded
}

// Lookup finds a subscription on the current page.
func (m *Manager) Lookup(id int) (model.Subscription, bool) {
	for _, s := range m.current.Subscriptions {
		if s.ID == id {
			return s, true
		}
	}
	return model.Subscription{}, false
}

// Stats returns query outcome counters.
func (m *Manager) Stats() Stats {
	return m.stats
}

func (m *Manager) fetch(ctx context.Context) {
	m.issued++
	seq := m.issued
	q := m.query
	m.retry = nil

	m.stats.Issued++
	m.metrics.IncListRequest()
	m.logger.Debug("list query",
		"seq", seq,
		"page", q.Page,
		"status", q.Status,
		"search", q.Search,
	)

	eventloop.Async(m.loop, ctx,
		func(ctx context.Context) (*api.SubscriptionPage, error) {
			return m.source.ListSubscriptions(ctx, q.Options())
		},
		func(resp *api.SubscriptionPage, err error) {
			m.complete(seq, q, resp, err)
		},
	)
}

func (m *Manager) complete(seq uint64, q Query, resp *api.SubscriptionPage, err error) {
	if seq != m.issued {
		m.stats.Stale++
		m.metrics.IncStaleResponse()
		m.logger.Debug("discarding stale list response", "seq", seq, "latest", m.issued)
		return
	}

	if err != nil {
		m.stats.Failed++
		m.metrics.IncRequestError(api.OpListSubscriptions)
		m.logger.Warn("list query failed", "seq", seq, "page", q.Page, "error", err)
		m.retry = &q
		if m.loaded {
			m.query = m.current.Query
		}
		m.handler.HandleListError(err)
		return
	}

	page := Page{
		Seq:           seq,
		Query:         q,
		Subscriptions: resp.Subscriptions,
		Pagination: Pagination{
			Page:     q.Page,
			PageSize: q.PageSize,
			Total:    resp.Total,
		},
	}
	m.total = resp.Total
	m.current = page
	m.loaded = true
	m.stats.Completed++

	m.handler.HandlePage(page)
}
