package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/subscription-dashboard/internal/analytics"
	"github.com/rickgao/subscription-dashboard/internal/api"
	"github.com/rickgao/subscription-dashboard/internal/connection"
	"github.com/rickgao/subscription-dashboard/internal/eventloop"
	"github.com/rickgao/subscription-dashboard/internal/listing"
	"github.com/rickgao/subscription-dashboard/internal/metrics"
	"github.com/rickgao/subscription-dashboard/internal/model"
)

// Errors
var (
	ErrNotConfirmed = errors.New("delete not confirmed")
	ErrNotFound     = errors.New("subscription not on current page")
)

// DeletePrompt is the question put to the Confirmer before a delete.
const DeletePrompt = "Are you sure you want to delete this subscription?"

// Backend is the REST surface the dashboard needs. *api.Client implements it.
type Backend interface {
	listing.Source
	GetPlans(ctx context.Context) ([]model.Plan, error)
	GetAnalytics(ctx context.Context) (*model.AnalyticsSnapshot, error)
	SaveSubscription(ctx context.Context, p model.SubscriptionPayload) (*model.Subscription, error)
	DeleteSubscription(ctx context.Context, id int) error
}

// Config configures a Controller.
type Config struct {
	PageSize       int
	Push           connection.ManagerConfig
	DropOutOfOrder bool
}

// Overview is a point-in-time copy of everything the dashboard shows.
type Overview struct {
	Connection connection.State
	ConnStats  connection.ManagerStats
	Query      listing.Query
	Pagination listing.Pagination
	Page       listing.Page
	PageLoaded bool
	ListStats  listing.Stats
	Analytics  analytics.View
	Plans      []model.Plan
	EditorOpen bool
	Editor     model.SubscriptionPayload
}

// Controller is the dashboard composition root.
type Controller struct {
	backend   Backend
	renderer  Renderer
	confirmer Confirmer
	logger    *slog.Logger
	metrics   *metrics.Metrics
	sink      SnapshotSink
	now       func() time.Time

	loop *eventloop.Loop
	conn *connection.Manager
	list *listing.Manager
	agg  *analytics.Aggregator

	connOpts []connection.ManagerOption

	// Loop-confined
	ctx        context.Context
	cancel     context.CancelFunc
	plans      []model.Plan
	analyticsN uint64 // Sequence of the latest REST analytics request
	editorOpen bool
	editor     model.SubscriptionPayload
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics wires Prometheus collectors into every component.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = mt
	}
}

// WithSnapshotSink receives every analytics view that is rendered.
func WithSnapshotSink(s SnapshotSink) Option {
	return func(c *Controller) {
		c.sink = s
	}
}

// WithConnectionOptions passes options through to the push connection manager.
func WithConnectionOptions(opts ...connection.ManagerOption) Option {
	return func(c *Controller) {
		c.connOpts = append(c.connOpts, opts...)
	}
}

// WithNow replaces the clock used to stamp REST snapshots.
func WithNow(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Controller. A nil confirmer declines every delete.
func New(cfg Config, backend Backend, renderer Renderer, confirmer Confirmer, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if confirmer == nil {
		confirmer = denyAll{}
	}

	c := &Controller{
		backend:   backend,
		renderer:  renderer,
		confirmer: confirmer,
		logger:    logger.With("component", "dashboard"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.loop = eventloop.New(logger)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.conn = connection.NewManager(cfg.Push, c.loop, connHandler{c}, logger,
		append([]connection.ManagerOption{connection.WithMetrics(c.metrics)}, c.connOpts...)...)
	c.list = listing.NewManager(cfg.PageSize, c.loop, backend, listHandler{c}, logger,
		listing.WithMetrics(c.metrics))
	c.agg = analytics.New(analytics.Config{DropOutOfOrder: cfg.DropOutOfOrder}, logger, c.metrics)

	return c
}

// Start launches the event loop, connects the push channel and loads plans,
// the first list page and the REST analytics snapshot. The loop outlives ctx
// so that Stop can still close the push session.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.loop.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start event loop: %w", err)
	}
	if !c.loop.Post(func() {
		c.logger.Info("dashboard starting")
		c.conn.Start()
		c.loadAll()
	}) {
		return eventloop.ErrStopped
	}
	return nil
}

// Stop ends the push session, abandons in-flight requests and drains the loop.
func (c *Controller) Stop(ctx context.Context) error {
	err := c.loop.Call(ctx, func() {
		c.conn.Stop()
		c.cancel()
	})
	if err != nil && !errors.Is(err, eventloop.ErrStopped) {
		c.logger.Warn("stop: could not reach event loop", "error", err)
	}
	c.cancel()
	if err := c.loop.Stop(ctx); err != nil {
		return fmt.Errorf("stop event loop: %w", err)
	}
	c.logger.Info("dashboard stopped")
	return nil
}

// Run starts the controller and blocks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Stop(stopCtx)
}

// Search sets the free-text search and returns to page 1.
func (c *Controller) Search(text string) error {
	return c.post(func() { c.list.SetSearch(c.ctx, text) })
}

// FilterStatus sets the status filter ("" for all) and returns to page 1.
func (c *Controller) FilterStatus(status string) error {
	st, ok := model.ParseStatus(status)
	if !ok {
		return fmt.Errorf("%w: %q", listing.ErrInvalidStatus, status)
	}
	return c.post(func() {
		if err := c.list.SetStatusFilter(c.ctx, st); err != nil {
			c.renderer.RenderError(err)
		}
	})
}

// NextPage moves forward one page if there is one.
func (c *Controller) NextPage() error {
	return c.post(func() { c.list.NextPage(c.ctx) })
}

// PrevPage moves back one page if there is one.
func (c *Controller) PrevPage() error {
	return c.post(func() { c.list.PrevPage(c.ctx) })
}

// NewSubscription opens the editor for a new record.
func (c *Controller) NewSubscription() error {
	return c.post(func() {
		p := model.SubscriptionPayload{Status: model.StatusActive}
		if len(c.plans) > 0 {
			p.PlanID = c.plans[0].ID
		}
		c.openEditor(p)
	})
}

// Edit opens the editor prefilled from a subscription on the current page.
func (c *Controller) Edit(id int) error {
	return c.post(func() {
		s, ok := c.list.Lookup(id)
		if !ok {
			c.renderer.RenderError(fmt.Errorf("edit %d: %w", id, ErrNotFound))
			return
		}
		c.openEditor(model.PayloadFrom(s))
	})
}

// CloseEditor dismisses the editor without saving.
func (c *Controller) CloseEditor() error {
	return c.post(c.closeEditor)
}

// CreateOrUpdate validates p and sends it to the backend. Validation failures
// are returned here and nothing is sent. On success the editor is closed and
// the current list query is fetched again; request failures are rendered.
func (c *Controller) CreateOrUpdate(ctx context.Context, p model.SubscriptionPayload) error {
	if err := Validate(p); err != nil {
		return err
	}
	return c.post(func() {
		eventloop.Async(c.loop, c.ctx,
			func(context.Context) (*model.Subscription, error) {
				return c.backend.SaveSubscription(ctx, p)
			},
			func(saved *model.Subscription, err error) {
				if err != nil {
					c.requestFailed(api.OpSaveSubscription, err)
					return
				}
				c.logger.Info("subscription saved", "id", savedID(saved, p))
				c.closeEditor()
				c.list.Refresh(c.ctx)
			},
		)
	})
}

// Delete asks the Confirmer, then deletes id. On success the whole view is
// reloaded. A declined confirmation returns ErrNotConfirmed.
func (c *Controller) Delete(ctx context.Context, id int) error {
	if id <= 0 {
		return &ValidationError{Fields: []FieldError{{Field: "id", Rule: "gt"}}}
	}
	if !c.confirmer.Confirm(DeletePrompt) {
		c.logger.Debug("delete declined", "id", id)
		return ErrNotConfirmed
	}
	return c.post(func() {
		eventloop.Async(c.loop, c.ctx,
			func(context.Context) (struct{}, error) {
				return struct{}{}, c.backend.DeleteSubscription(ctx, id)
			},
			func(_ struct{}, err error) {
				if err != nil {
					c.requestFailed(api.OpDeleteSubscription, err)
					return
				}
				c.logger.Info("subscription deleted", "id", id)
				c.reload()
			},
		)
	})
}

// Reload refetches plans, the current list page and REST analytics.
func (c *Controller) Reload() error {
	return c.post(c.reload)
}

// Overview returns a copy of the current dashboard state.
func (c *Controller) Overview(ctx context.Context) (Overview, error) {
	var o Overview
	err := c.loop.Call(ctx, func() {
		page, loaded := c.list.Current()
		o = Overview{
			Connection: c.conn.State(),
			ConnStats:  c.conn.Stats(),
			Query:      c.list.Query(),
			Pagination: c.list.Pagination(),
			Page:       page,
			PageLoaded: loaded,
			ListStats:  c.list.Stats(),
			Analytics:  c.agg.Current(),
			Plans:      append([]model.Plan(nil), c.plans...),
			EditorOpen: c.editorOpen,
			Editor:     c.editor,
		}
	})
	return o, err
}

// ConnectionState is safe to call from any goroutine.
func (c *Controller) ConnectionState() connection.State {
	return c.conn.State()
}

func (c *Controller) post(fn func()) error {
	if !c.loop.Post(fn) {
		return eventloop.ErrStopped
	}
	return nil
}

// loadAll issues the bootstrap requests.
func (c *Controller) loadAll() {
	c.fetchPlans()
	c.list.Refresh(c.ctx)
	c.fetchAnalytics()
}

func (c *Controller) reload() {
	c.logger.Info("reloading dashboard")
	c.agg.Reset()
	c.loadAll()
}

func (c *Controller) fetchPlans() {
	eventloop.Async(c.loop, c.ctx, c.backend.GetPlans, func(plans []model.Plan, err error) {
		if err != nil {
			c.requestFailed(api.OpGetPlans, err)
			return
		}
		c.plans = plans
		c.renderer.RenderPlans(plans)
	})
}

// fetchAnalytics requests the REST snapshot. Only the latest request may
// apply its result, as with list queries.
func (c *Controller) fetchAnalytics() {
	c.analyticsN++
	seq := c.analyticsN
	eventloop.Async(c.loop, c.ctx, c.backend.GetAnalytics, func(snap *model.AnalyticsSnapshot, err error) {
		if seq != c.analyticsN {
			c.metrics.IncSnapshotDropped(analytics.DropStaleRequest)
			c.logger.Debug("discarding stale analytics response", "seq", seq, "latest", c.analyticsN, "error", err)
			return
		}
		if err != nil {
			c.requestFailed(api.OpGetAnalytics, err)
			return
		}
		if v, ok := c.agg.ApplyREST(*snap, c.now()); ok {
			c.showAnalytics(v)
		}
	})
}

func (c *Controller) showAnalytics(v analytics.View) {
	c.renderer.RenderAnalytics(v)
	if v.Source == analytics.SourcePush {
		c.renderer.RenderRecent(v.Recent)
	}
	if c.sink != nil {
		c.sink.Record(v)
	}
}

func (c *Controller) requestFailed(op string, err error) {
	if c.ctx.Err() != nil {
		// Shutting down; the failure is the cancellation.
		return
	}
	c.metrics.IncRequestError(op)
	c.logger.Warn("request failed", "op", op, "error", err)
	c.renderer.RenderError(err)
}

func (c *Controller) openEditor(p model.SubscriptionPayload) {
	c.editorOpen = true
	c.editor = p
	c.renderer.OpenEditor(p)
}

func (c *Controller) closeEditor() {
	if !c.editorOpen {
		return
	}
	c.editorOpen = false
	c.editor = model.SubscriptionPayload{}
	c.renderer.CloseEditor()
}

func savedID(saved *model.Subscription, p model.SubscriptionPayload) int {
	if saved != nil {
		return saved.ID
	}
	return p.ID
}

// connHandler routes push connection events.
type connHandler struct{ c *Controller }

func (h connHandler) HandleState(s connection.State) {
	h.c.renderer.RenderConnection(s)
}

func (h connHandler) HandleRealtime(data model.RealtimeData, receivedAt time.Time) {
	if v, ok := h.c.agg.ApplyPush(data, receivedAt); ok {
		h.c.showAnalytics(v)
	}
}

// listHandler routes list query results.
type listHandler struct{ c *Controller }

func (h listHandler) HandlePage(p listing.Page) {
	h.c.renderer.RenderPage(p)
}

func (h listHandler) HandleListError(err error) {
	h.c.renderer.RenderError(err)
}
