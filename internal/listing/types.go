package listing

import (
	"context"
	"errors"

	"github.com/rickgao/subscription-dashboard/internal/api"
	"github.com/rickgao/subscription-dashboard/internal/model"
)

// DefaultPageSize is the number of subscriptions per page.
const DefaultPageSize = 10

// ErrInvalidStatus is returned for a status filter outside the known statuses.
var ErrInvalidStatus = errors.New("invalid status filter")

// Query is one request's worth of list parameters.
type Query struct {
	Page     int
	PageSize int
	Search   string
	Status   model.Status // Empty = all statuses
}

// Options converts the query to REST parameters.
func (q Query) Options() api.ListOptions {
	return api.ListOptions{
		Page:   q.Page,
		Limit:  q.PageSize,
		Status: q.Status,
		Search: q.Search,
	}
}

// Pagination is the page position derived from a response.
type Pagination struct {
	Page     int
	PageSize int
	Total    int
}

// MaxPage is ceil(Total/PageSize), never less than 1.
func (p Pagination) MaxPage() int {
	if p.PageSize <= 0 || p.Total <= 0 {
		return 1
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

func (p Pagination) HasPrev() bool {
	return p.Page > 1
}

func (p Pagination) HasNext() bool {
	return p.Page < p.MaxPage()
}

// Range returns the 1-based positions of the first and last items on the
// page, or 0, 0 when there is nothing to show.
func (p Pagination) Range() (start, end int) {
	if p.Total <= 0 || p.PageSize <= 0 {
		return 0, 0
	}
	start = (p.Page-1)*p.PageSize + 1
	end = p.Page * p.PageSize
	if end > p.Total {
		end = p.Total
	}
	if start > end {
		return 0, 0
	}
	return start, end
}

// Page is an accepted list response together with the query that produced it.
type Page struct {
	Seq           uint64
	Query         Query
	Subscriptions []model.Subscription
	Pagination    Pagination
}

// Source fetches a page of subscriptions. *api.Client implements it.
type Source interface {
	ListSubscriptions(ctx context.Context, opts api.ListOptions) (*api.SubscriptionPage, error)
}

// Handler receives list results. Calls happen on the event loop.
type Handler interface {
	HandlePage(Page)
	HandleListError(error)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	OnPage  func(Page)
	OnError func(error)
}

func (h HandlerFuncs) HandlePage(p Page) {
	if h.OnPage != nil {
		h.OnPage(p)
	}
}

func (h HandlerFuncs) HandleListError(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// Stats counts queries by outcome.
type Stats struct {
	Issued    int64
	Completed int64 // Applied to the view
	Stale     int64 // Superseded before arrival
	Failed    int64 // Latest query failed
}
