package dashboard

import (
	"log/slog"

	"github.com/rickgao/subscription-dashboard/internal/analytics"
	"github.com/rickgao/subscription-dashboard/internal/connection"
	"github.com/rickgao/subscription-dashboard/internal/listing"
	"github.com/rickgao/subscription-dashboard/internal/model"
)

// Renderer is the presentation boundary. All calls happen on the event loop
// and must not block.
type Renderer interface {
	RenderConnection(connection.State)
	RenderPage(listing.Page)
	RenderAnalytics(analytics.View)
	RenderPlans([]model.Plan)
	RenderRecent([]model.Subscription)
	RenderError(error)
	OpenEditor(model.SubscriptionPayload)
	CloseEditor()
}

// Confirmer asks the operator a yes/no question. It is called on the
// goroutine that issued the command, never on the event loop.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool {
	return f(prompt)
}

// denyAll is used when no Confirmer is configured.
type denyAll struct{}

func (denyAll) Confirm(string) bool { return false }

// SnapshotSink receives every analytics view the dashboard renders.
type SnapshotSink interface {
	Record(analytics.View)
}

// LogRenderer renders the dashboard as structured log lines.
type LogRenderer struct {
	logger *slog.Logger
}

// NewLogRenderer creates a LogRenderer. A nil logger uses slog.Default().
func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRenderer{logger: logger.With("component", "render")}
}

func (r *LogRenderer) RenderConnection(s connection.State) {
	r.logger.Info("connection", "state", s.String())
}

func (r *LogRenderer) RenderPage(p listing.Page) {
	start, end := p.Pagination.Range()
	r.logger.Info("subscriptions",
		"page", p.Pagination.Page,
		"max_page", p.Pagination.MaxPage(),
		"showing", start,
		"to", end,
		"total", p.Pagination.Total,
		"status", p.Query.Status,
		"search", p.Query.Search,
	)
	for _, s := range p.Subscriptions {
		r.logger.Info("subscription",
			"id", s.ID,
			"user", s.UserName,
			"email", s.UserEmail,
			"plan", s.PlanName,
			"status", s.Status,
			"amount", s.Amount,
			"currency", s.Currency,
			"cycle", s.BillingCycle,
		)
	}
}

func (r *LogRenderer) RenderAnalytics(v analytics.View) {
	s := v.Snapshot
	r.logger.Info("analytics",
		"source", v.Source.String(),
		"total", s.TotalSubscriptions,
		"active", s.ActiveSubscriptions,
		"trial", s.TrialSubscriptions,
		"cancelled", s.CancelledSubscriptions,
		"expired", v.Expired(),
		"monthly_revenue", s.MonthlyRevenue,
		"yearly_revenue", s.YearlyRevenue,
		"churn_rate", s.ChurnRate,
		"arpu", s.AverageRevenuePerUser,
		"new_today", s.NewSubscriptionsToday,
		"cancelled_today", s.CancellationsToday,
	)
}

func (r *LogRenderer) RenderPlans(plans []model.Plan) {
	for _, p := range plans {
		r.logger.Info("plan",
			"id", p.ID,
			"name", p.Name,
			"price", p.Price,
			"currency", p.Currency,
			"interval", p.Interval,
			"active", p.Active,
		)
	}
}

func (r *LogRenderer) RenderRecent(subs []model.Subscription) {
	for _, s := range subs {
		r.logger.Info("recent", "user", s.UserName, "plan", s.PlanName, "status", s.Status)
	}
}

func (r *LogRenderer) RenderError(err error) {
	r.logger.Warn("dashboard error", "error", err)
}

func (r *LogRenderer) OpenEditor(p model.SubscriptionPayload) {
	r.logger.Info("editor open",
		"id", p.ID,
		"user_name", p.UserName,
		"user_email", p.UserEmail,
		"plan_id", p.PlanID,
		"status", p.Status,
	)
}

func (r *LogRenderer) CloseEditor() {
	r.logger.Info("editor closed")
}
