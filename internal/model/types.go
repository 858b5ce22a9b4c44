package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusTrial     Status = "trial"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusActive, StatusTrial, StatusCancelled, StatusExpired}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusTrial, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// ParseStatus normalizes user input into a Status. The empty string means
// "no status filter" and is returned as-is.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st == "" || st.Valid() {
		return st, true
	}
	return "", false
}

// -----------------------------------------------------------------------------
// Reference and list data
// -----------------------------------------------------------------------------

// Subscription is a single subscription record with denormalized user and plan identity.
type Subscription struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user_id"`
	UserName     string    `json:"user_name"`
	UserEmail    string    `json:"user_email"`
	PlanID       int       `json:"plan_id"`
	PlanName     string    `json:"plan_name"`
	Status       Status    `json:"status"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"` // May be in the future
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	BillingCycle string    `json:"billing_cycle"` // "monthly" or "yearly"
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Plan is reference data used to populate plan selection controls.
type Plan struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Interval    string   `json:"interval"` // "monthly" or "yearly"
	Features    []string `json:"features"`
	Active      bool     `json:"active"`
}

// SubscriptionPayload is the request body for creating or editing a subscription.
// ID is zero when creating.
type SubscriptionPayload struct {
	ID        int    `json:"id,omitempty"`
	UserName  string `json:"user_name" validate:"required"`
	UserEmail string `json:"user_email" validate:"required,email"`
	PlanID    int    `json:"plan_id" validate:"required,gt=0"`
	Status    Status `json:"status" validate:"required,oneof=active trial cancelled expired"`
}

// PayloadFrom builds an edit payload prefilled from an existing record.
func PayloadFrom(s Subscription) SubscriptionPayload {
	return SubscriptionPayload{
		ID:        s.ID,
		UserName:  s.UserName,
		UserEmail: s.UserEmail,
		PlanID:    s.PlanID,
		Status:    s.Status,
	}
}

// -----------------------------------------------------------------------------
// Analytics
// -----------------------------------------------------------------------------

// AnalyticsSnapshot holds the dashboard's aggregate metrics at one point in time.
//
// The expired count is not transmitted; use Expired.
type AnalyticsSnapshot struct {
	TotalSubscriptions     int     `json:"total_subscriptions"`
	ActiveSubscriptions    int     `json:"active_subscriptions"`
	TrialSubscriptions     int     `json:"trial_subscriptions"`
	CancelledSubscriptions int     `json:"cancelled_subscriptions"`
	MonthlyRevenue         float64 `json:"monthly_revenue"`
	YearlyRevenue          float64 `json:"yearly_revenue"`
	ChurnRate              float64 `json:"churn_rate"` // Percentage, 0-100
	AverageRevenuePerUser  float64 `json:"average_revenue_per_user"`
	NewSubscriptionsToday  int     `json:"new_subscriptions_today"`
	CancellationsToday     int     `json:"cancellations_today"`
}

// Expired returns total - active - trial - cancelled, clamped at zero when
// the source counts are inconsistent.
func (a AnalyticsSnapshot) Expired() int {
	n := a.TotalSubscriptions - a.ActiveSubscriptions - a.TrialSubscriptions - a.CancelledSubscriptions
	if n < 0 {
		return 0
	}
	return n
}

// Consistent reports whether total >= active + trial + cancelled.
func (a AnalyticsSnapshot) Consistent() bool {
	return a.TotalSubscriptions >= a.ActiveSubscriptions+a.TrialSubscriptions+a.CancelledSubscriptions
}

// StatusCounts returns the per-status counts in Statuses order, deriving expired.
func (a AnalyticsSnapshot) StatusCounts() [4]int {
	return [4]int{
		a.ActiveSubscriptions,
		a.TrialSubscriptions,
		a.CancelledSubscriptions,
		a.Expired(),
	}
}

// RealtimeData is the envelope delivered over the push channel.
type RealtimeData struct {
	Analytics           AnalyticsSnapshot `json:"analytics"`
	RecentSubscriptions []Subscription    `json:"recent_subscriptions"`
	Timestamp           string            `json:"timestamp"`
}

// clockLayout is the wall-clock form some backends send instead of RFC 3339.
const clockLayout = "15:04:05"

// ParseTimestamp interprets a push envelope timestamp. RFC 3339 values are
// used as-is; bare "15:04:05" values are anchored to ref's date (and moved
// back a day if that would put them more than a minute after ref).
func ParseTimestamp(s string, ref time.Time) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	clock, err := time.ParseInLocation(clockLayout, s, ref.Location())
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := ref.Date()
	t := time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), 0, ref.Location())
	if t.After(ref.Add(time.Minute)) {
		t = t.AddDate(0, 0, -1)
	}
	return t, true
}
