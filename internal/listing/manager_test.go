package listing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rickgao/subscription-dashboard/internal/api"
	"github.com/rickgao/subscription-dashboard/internal/eventloop"
	"github.com/rickgao/subscription-dashboard/internal/metrics"
	"github.com/rickgao/subscription-dashboard/internal/model"
)

type result struct {
	page *api.SubscriptionPage
	err  error
}

type call struct {
	opts  api.ListOptions
	reply chan result
}

// fakeSource either answers immediately via auto, or hands each call to the
// test through calls so responses can be ordered by hand.
type fakeSource struct {
	auto  func(api.ListOptions) (*api.SubscriptionPage, error)
	calls chan call
}

func newManualSource() *fakeSource {
	return &fakeSource{calls: make(chan call, 16)}
}

func totalSource(total int) *fakeSource {
	return &fakeSource{auto: func(opts api.ListOptions) (*api.SubscriptionPage, error) {
		return pageOf(opts, total), nil
	}}
}

func (s *fakeSource) ListSubscriptions(ctx context.Context, opts api.ListOptions) (*api.SubscriptionPage, error) {
	if s.auto != nil {
		return s.auto(opts)
	}
	c := call{opts: opts, reply: make(chan result, 1)}
	s.calls <- c
	select {
	case r := <-c.reply:
		return r.page, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSource) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-s.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for list request")
		return call{}
	}
}

// pageOf builds a response for opts with ids encoding the page and status.
func pageOf(opts api.ListOptions, total int) *api.SubscriptionPage {
	var subs []model.Subscription
	start := (opts.Page - 1) * opts.Limit
	for i := start; i < total && i < start+opts.Limit; i++ {
		status := opts.Status
		if status == "" {
			status = model.Statuses[i%len(model.Statuses)]
		}
		subs = append(subs, model.Subscription{
			ID:       i + 1,
			UserName: fmt.Sprintf("user-%d", i+1),
			Status:   status,
		})
	}
	return &api.SubscriptionPage{Subscriptions: subs, Total: total, Page: opts.Page, Limit: opts.Limit}
}

type pageRecorder struct {
	mu     sync.Mutex
	pages  []Page
	errors []error
}

func (r *pageRecorder) HandlePage(p Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, p)
}

func (r *pageRecorder) HandleListError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *pageRecorder) Pages() []Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Page(nil), r.pages...)
}

func (r *pageRecorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}

type harness struct {
	m       *Manager
	loop    *eventloop.Loop
	src     *fakeSource
	rec     *pageRecorder
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, src *fakeSource) *harness {
	t.Helper()

	loop := eventloop.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	t.Cleanup(func() {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		loop.Stop(stopCtx)
	})

	h := &harness{loop: loop, src: src, rec: &pageRecorder{}, metrics: metrics.New(nil)}
	h.m = NewManager(10, loop, src, h.rec, nil, WithMetrics(h.metrics))
	return h
}

func (h *harness) do(t *testing.T, fn func(ctx context.Context)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.loop.Call(ctx, func() { fn(context.Background()) }); err != nil {
		t.Fatalf("loop call: %v", err)
	}
}

func (h *harness) stats(t *testing.T) Stats {
	t.Helper()
	var s Stats
	h.do(t, func(context.Context) { s = h.m.Stats() })
	return s
}

func (h *harness) pagination(t *testing.T) Pagination {
	t.Helper()
	var p Pagination
	h.do(t, func(context.Context) { p = h.m.Pagination() })
	return p
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestPagination_MaxPage(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 10, 1},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 10, 3},
		{100, 10, 10},
		{7, 3, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("T=%d,P=%d", tt.total, tt.size), func(t *testing.T) {
			p := Pagination{Page: 1, PageSize: tt.size, Total: tt.total}
			if got := p.MaxPage(); got != tt.want {
				t.Errorf("MaxPage() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPagination_EmptyDisablesNavigation(t *testing.T) {
	p := Pagination{Page: 1, PageSize: 10, Total: 0}
	if p.HasPrev() || p.HasNext() {
		t.Errorf("HasPrev=%v HasNext=%v, want both false", p.HasPrev(), p.HasNext())
	}
}

func TestPagination_Range(t *testing.T) {
	tests := []struct {
		name       string
		p          Pagination
		start, end int
	}{
		{"empty", Pagination{Page: 1, PageSize: 10, Total: 0}, 0, 0},
		{"first page", Pagination{Page: 1, PageSize: 10, Total: 25}, 1, 10},
		{"last partial page", Pagination{Page: 3, PageSize: 10, Total: 25}, 21, 25},
		{"beyond total", Pagination{Page: 4, PageSize: 10, Total: 25}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := tt.p.Range()
			if start != tt.start || end != tt.end {
				t.Errorf("Range() = %d-%d, want %d-%d", start, end, tt.start, tt.end)
			}
		})
	}
}

func TestQuery_Options(t *testing.T) {
	q := Query{Page: 2, PageSize: 10, Search: "bob", Status: model.StatusTrial}
	opts := q.Options()
	if opts.Page != 2 || opts.Limit != 10 || opts.Search != "bob" || opts.Status != model.StatusTrial {
		t.Errorf("Options() = %+v", opts)
	}
}

func TestManager_NavigationScenario(t *testing.T) {
	h := newHarness(t, totalSource(25))

	h.do(t, h.m.Refresh)
	waitFor(t, "first page", func() bool { return len(h.rec.Pages()) == 1 })

	p := h.pagination(t)
	if p.Page != 1 || p.MaxPage() != 3 {
		t.Fatalf("pagination = %+v (max %d), want page 1 of 3", p, p.MaxPage())
	}

	var moved bool
	h.do(t, func(ctx context.Context) { moved = h.m.PrevPage(ctx) })
	if moved {
		t.Error("PrevPage on page 1 should be a no-op")
	}
	if s := h.stats(t); s.Issued != 1 {
		t.Errorf("Issued = %d, want 1 (no-op must not fetch)", s.Issued)
	}

	h.do(t, func(ctx context.Context) { moved = h.m.NextPage(ctx) })
	if !moved {
		t.Fatal("NextPage from page 1 of 3 should advance")
	}
	waitFor(t, "second page", func() bool { return len(h.rec.Pages()) == 2 })

	page := h.rec.Pages()[1]
	if page.Pagination.Page != 2 || page.Subscriptions[0].ID != 11 {
		t.Errorf("page 2 = %+v", page.Pagination)
	}
}

func TestManager_NextPageStopsAtEnd(t *testing.T) {
	h := newHarness(t, totalSource(25))
	h.do(t, h.m.Refresh)

	for i := 2; i <= 3; i++ {
		waitFor(t, "page", func() bool { return len(h.rec.Pages()) == i-1 })
		h.do(t, func(ctx context.Context) { h.m.NextPage(ctx) })
	}
	waitFor(t, "last page", func() bool { return len(h.rec.Pages()) == 3 })

	var moved bool
	h.do(t, func(ctx context.Context) { moved = h.m.NextPage(ctx) })
	if moved {
		t.Error("NextPage on last page should be a no-op")
	}
	if s := h.stats(t); s.Issued != 3 {
		t.Errorf("Issued = %d, want 3", s.Issued)
	}
	if start, end := h.pagination(t).Range(); start != 21 || end != 25 {
		t.Errorf("Range() = %d-%d, want 21-25", start, end)
	}
}

func TestManager_NavigationBeforeFirstResponse(t *testing.T) {
	h := newHarness(t, newManualSource())

	var moved bool
	h.do(t, func(ctx context.Context) { moved = h.m.NextPage(ctx) })
	if moved {
		t.Error("NextPage with unknown total should be a no-op")
	}
}

func TestManager_FilterChangeResetsPage(t *testing.T) {
	h := newHarness(t, totalSource(45))
	h.do(t, h.m.Refresh)
	waitFor(t, "page 1", func() bool { return len(h.rec.Pages()) == 1 })
	h.do(t, func(ctx context.Context) { h.m.NextPage(ctx) })
	waitFor(t, "page 2", func() bool { return len(h.rec.Pages()) == 2 })
	h.do(t, func(ctx context.Context) { h.m.NextPage(ctx) })
	waitFor(t, "page 3", func() bool { return len(h.rec.Pages()) == 3 })

	h.do(t, func(ctx context.Context) { h.m.SetSearch(ctx, "user") })
	waitFor(t, "search page", func() bool { return len(h.rec.Pages()) == 4 })
	if got := h.rec.Pages()[3].Query; got.Page != 1 || got.Search != "user" {
		t.Errorf("after SetSearch query = %+v, want page 1", got)
	}

	// Resetting while already on page 1 still issues exactly one query.
	before := h.stats(t).Issued
	h.do(t, func(ctx context.Context) {
		if err := h.m.SetStatusFilter(ctx, model.StatusActive); err != nil {
			t.Errorf("SetStatusFilter: %v", err)
		}
	})
	waitFor(t, "filter page", func() bool { return len(h.rec.Pages()) == 5 })
	if got := h.stats(t).Issued - before; got != 1 {
		t.Errorf("queries issued = %d, want 1", got)
	}
	if got := h.rec.Pages()[4].Query; got.Page != 1 || got.Status != model.StatusActive || got.Search != "user" {
		t.Errorf("after SetStatusFilter query = %+v", got)
	}
}

func TestManager_InvalidStatus(t *testing.T) {
	h := newHarness(t, totalSource(5))

	var err error
	h.do(t, func(ctx context.Context) { err = h.m.SetStatusFilter(ctx, "paused") })
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("err = %v, want ErrInvalidStatus", err)
	}
	if s := h.stats(t); s.Issued != 0 {
		t.Errorf("Issued = %d, want 0", s.Issued)
	}
}

func TestManager_LastIssuedWins(t *testing.T) {
	for _, order := range []string{"newest first", "oldest first"} {
		t.Run(order, func(t *testing.T) {
			src := newManualSource()
			h := newHarness(t, src)

			h.do(t, func(ctx context.Context) { h.m.SetStatusFilter(ctx, model.StatusTrial) })
			h.do(t, func(ctx context.Context) { h.m.SetStatusFilter(ctx, "") })

			trial := src.next(t)
			all := src.next(t)
			if trial.opts.Status != model.StatusTrial || all.opts.Status != "" {
				t.Fatalf("requests = %+v, %+v", trial.opts, all.opts)
			}

			trialResp := result{page: pageOf(trial.opts, 3)}
			allResp := result{page: pageOf(all.opts, 30)}
			if order == "newest first" {
				all.reply <- allResp
				waitFor(t, "unfiltered page", func() bool { return len(h.rec.Pages()) == 1 })
				trial.reply <- trialResp
			} else {
				trial.reply <- trialResp
				waitFor(t, "stale discard", func() bool { return h.stats(t).Stale == 1 })
				all.reply <- allResp
			}
			waitFor(t, "both responses", func() bool {
				s := h.stats(t)
				return s.Stale+s.Completed == 2
			})

			pages := h.rec.Pages()
			if len(pages) != 1 {
				t.Fatalf("pages rendered = %d, want 1", len(pages))
			}
			if pages[0].Query.Status != "" || pages[0].Pagination.Total != 30 {
				t.Errorf("rendered %+v, want unfiltered query", pages[0].Query)
			}

			var cur Page
			h.do(t, func(context.Context) { cur, _ = h.m.Current() })
			if cur.Query.Status != "" {
				t.Errorf("current page status = %q, want unfiltered", cur.Query.Status)
			}
			if got := testutil.ToFloat64(h.metrics.StaleResponses); got != 1 {
				t.Errorf("stale_responses_total = %v, want 1", got)
			}
		})
	}
}

func TestManager_StaleErrorIsIgnored(t *testing.T) {
	src := newManualSource()
	h := newHarness(t, src)

	h.do(t, func(ctx context.Context) { h.m.SetSearch(ctx, "a") })
	h.do(t, func(ctx context.Context) { h.m.SetSearch(ctx, "ab") })
	first, second := src.next(t), src.next(t)

	first.reply <- result{err: errors.New("boom")}
	second.reply <- result{page: pageOf(second.opts, 2)}
	waitFor(t, "page", func() bool { return len(h.rec.Pages()) == 1 })

	if errs := h.rec.Errors(); len(errs) != 0 {
		t.Errorf("stale failure surfaced: %v", errs)
	}
}

func TestManager_FailureKeepsPreviousPage(t *testing.T) {
	src := newManualSource()
	h := newHarness(t, src)

	h.do(t, h.m.Refresh)
	c := src.next(t)
	c.reply <- result{page: pageOf(c.opts, 25)}
	waitFor(t, "first page", func() bool { return len(h.rec.Pages()) == 1 })

	h.do(t, func(ctx context.Context) { h.m.NextPage(ctx) })
	c = src.next(t)
	reqErr := &api.RequestError{Op: api.OpListSubscriptions, Err: &api.APIError{StatusCode: 500, Message: "Internal Server Error"}}
	c.reply <- result{err: reqErr}
	waitFor(t, "error", func() bool { return len(h.rec.Errors()) == 1 })

	var cur Page
	var ok bool
	h.do(t, func(context.Context) { cur, ok = h.m.Current() })
	if !ok || cur.Pagination.Page != 1 || cur.Pagination.Total != 25 || len(cur.Subscriptions) != 10 {
		t.Errorf("current page changed after failure: %+v", cur.Pagination)
	}
	if len(h.rec.Pages()) != 1 {
		t.Error("failure must not render a page")
	}
	if !errors.Is(h.rec.Errors()[0], reqErr) {
		t.Errorf("error = %v", h.rec.Errors()[0])
	}
	if s := h.stats(t); s.Failed != 1 {
		t.Errorf("Failed = %d, want 1", s.Failed)
	}
	if got := testutil.ToFloat64(h.metrics.RequestErrors.WithLabelValues(api.OpListSubscriptions)); got != 1 {
		t.Errorf("request_errors_total = %v, want 1", got)
	}
	if p := h.pagination(t); p.Page != 1 || p.Total != 25 {
		t.Errorf("pagination after failure = %+v, want page 1 of total 25", p)
	}
	var q Query
	h.do(t, func(context.Context) { q = h.m.Query() })
	if q.Page != 1 {
		t.Errorf("query page after failure = %d, want 1", q.Page)
	}

	// Refresh retries the same query.
	h.do(t, h.m.Refresh)
	c = src.next(t)
	if c.opts.Page != 2 {
		t.Errorf("retry page = %d, want 2", c.opts.Page)
	}
	c.reply <- result{page: pageOf(c.opts, 25)}
	waitFor(t, "retry page", func() bool { return len(h.rec.Pages()) == 2 })
}

func TestManager_NavigationAfterFailure(t *testing.T) {
	src := newManualSource()
	h := newHarness(t, src)

	h.do(t, h.m.Refresh)
	c := src.next(t)
	c.reply <- result{page: pageOf(c.opts, 25)}
	waitFor(t, "first page", func() bool { return len(h.rec.Pages()) == 1 })

	h.do(t, func(ctx context.Context) { h.m.NextPage(ctx) })
	c = src.next(t)
	c.reply <- result{err: errors.New("timeout")}
	waitFor(t, "error", func() bool { return len(h.rec.Errors()) == 1 })

	// Page 2 was never shown, so the next step asks for it again.
	var moved bool
	h.do(t, func(ctx context.Context) { moved = h.m.NextPage(ctx) })
	if !moved {
		t.Fatal("NextPage after failure should advance")
	}
	c = src.next(t)
	if c.opts.Page != 2 {
		t.Errorf("next page requested = %d, want 2", c.opts.Page)
	}
	c.reply <- result{page: pageOf(c.opts, 25)}
	waitFor(t, "page 2", func() bool { return len(h.rec.Pages()) == 2 })

	// A plain step after a success is not a retry.
	h.do(t, func(ctx context.Context) { h.m.PrevPage(ctx) })
	c = src.next(t)
	if c.opts.Page != 1 {
		t.Errorf("prev page requested = %d, want 1", c.opts.Page)
	}
	c.reply <- result{page: pageOf(c.opts, 25)}
	waitFor(t, "page 1", func() bool { return len(h.rec.Pages()) == 3 })
}

func TestManager_FailedSearchKeepsShownQuery(t *testing.T) {
	src := newManualSource()
	h := newHarness(t, src)

	h.do(t, h.m.Refresh)
	c := src.next(t)
	c.reply <- result{page: pageOf(c.opts, 25)}
	waitFor(t, "first page", func() bool { return len(h.rec.Pages()) == 1 })

	h.do(t, func(ctx context.Context) { h.m.SetSearch(ctx, "jane") })
	c = src.next(t)
	c.reply <- result{err: errors.New("boom")}
	waitFor(t, "error", func() bool { return len(h.rec.Errors()) == 1 })

	var q Query
	h.do(t, func(context.Context) { q = h.m.Query() })
	if q.Search != "" || q.Page != 1 {
		t.Errorf("query after failed search = %+v, want the shown unfiltered query", q)
	}

	h.do(t, h.m.Refresh)
	c = src.next(t)
	if c.opts.Search != "jane" {
		t.Errorf("retry search = %q, want jane", c.opts.Search)
	}
	c.reply <- result{page: pageOf(c.opts, 1)}
	waitFor(t, "search page", func() bool { return len(h.rec.Pages()) == 2 })

	h.do(t, func(context.Context) { q = h.m.Query() })
	if q.Search != "jane" {
		t.Errorf("query after retry = %+v", q)
	}
}

func TestManager_TotalRecomputedEveryResponse(t *testing.T) {
	total := 25
	var mu sync.Mutex
	src := &fakeSource{auto: func(opts api.ListOptions) (*api.SubscriptionPage, error) {
		mu.Lock()
		defer mu.Unlock()
		return pageOf(opts, total), nil
	}}
	h := newHarness(t, src)

	h.do(t, h.m.Refresh)
	waitFor(t, "first page", func() bool { return len(h.rec.Pages()) == 1 })
	if maxPage := h.pagination(t).MaxPage(); maxPage != 3 {
		t.Fatalf("MaxPage = %d, want 3", maxPage)
	}

	mu.Lock()
	total = 5
	mu.Unlock()
	h.do(t, h.m.Refresh)
	waitFor(t, "second page", func() bool { return len(h.rec.Pages()) == 2 })

	if maxPage := h.pagination(t).MaxPage(); maxPage != 1 {
		t.Errorf("MaxPage = %d, want 1 after total shrank", maxPage)
	}
	var moved bool
	h.do(t, func(ctx context.Context) { moved = h.m.NextPage(ctx) })
	if moved {
		t.Error("NextPage should be disabled after total shrank")
	}
}

func TestManager_Lookup(t *testing.T) {
	h := newHarness(t, totalSource(25))
	h.do(t, h.m.Refresh)
	waitFor(t, "page", func() bool { return len(h.rec.Pages()) == 1 })

	var sub model.Subscription
	var ok bool
	h.do(t, func(context.Context) { sub, ok = h.m.Lookup(7) })
	if !ok || sub.UserName != "user-7" {
		t.Errorf("Lookup(7) = %+v, %v", sub, ok)
	}
	h.do(t, func(context.Context) { _, ok = h.m.Lookup(17) })
	if ok {
		t.Error("Lookup should only search the current page")
	}
}
