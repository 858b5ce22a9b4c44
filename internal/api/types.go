package api

import (
	"net/url"
	"strconv"

	"github.com/rickgao/subscription-dashboard/internal/model"
)

// ListOptions configures a ListSubscriptions request.
type ListOptions struct {
	Page   int
	Limit  int
	Status model.Status // Empty = no filter
	Search string       // Empty = no search
}

// Values encodes the options as query parameters. Status and search are
// omitted entirely when unset.
func (o ListOptions) Values() url.Values {
	query := url.Values{}
	if o.Page > 0 {
		query.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		query.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Status != "" {
		query.Set("status", string(o.Status))
	}
	if o.Search != "" {
		query.Set("search", o.Search)
	}
	return query
}

// SubscriptionPage from GET /subscriptions
type SubscriptionPage struct {
	Subscriptions []model.Subscription `json:"subscriptions"`
	Total         int                  `json:"total"`
	Page          int                  `json:"page,omitempty"`
	Limit         int                  `json:"limit,omitempty"`
}
