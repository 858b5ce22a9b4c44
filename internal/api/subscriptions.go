package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rickgao/subscription-dashboard/internal/model"
)

// GetPlans fetches all plans, active and inactive.
func (c *Client) GetPlans(ctx context.Context) ([]model.Plan, error) {
	var plans []model.Plan
	if err := c.get(ctx, OpGetPlans, "/plans", nil, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// ListSubscriptions fetches one filtered page of subscriptions.
func (c *Client) ListSubscriptions(ctx context.Context, opts ListOptions) (*SubscriptionPage, error) {
	var page SubscriptionPage
	if err := c.get(ctx, OpListSubscriptions, "/subscriptions", opts.Values(), &page); err != nil {
		return nil, err
	}
	if page.Total < 0 {
		page.Total = 0
	}
	return &page, nil
}

// GetAnalytics fetches the current analytics snapshot.
func (c *Client) GetAnalytics(ctx context.Context) (*model.AnalyticsSnapshot, error) {
	var snap model.AnalyticsSnapshot
	if err := c.get(ctx, OpGetAnalytics, "/analytics", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveSubscription creates (ID == 0) or updates a subscription. The backend
// may echo the stored record; when it sends no body the result is nil.
func (c *Client) SaveSubscription(ctx context.Context, p model.SubscriptionPayload) (*model.Subscription, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/subscriptions", nil, p)
	if err != nil {
		return nil, &RequestError{Op: OpSaveSubscription, Err: err}
	}
	if len(body) == 0 {
		return nil, nil
	}

	var saved model.Subscription
	if err := json.Unmarshal(body, &saved); err != nil {
		// The echo is optional; a 2xx is what matters.
		c.logger.Debug("ignoring undecodable save response", "error", err)
		return nil, nil
	}
	return &saved, nil
}

// DeleteSubscription deletes a subscription by id.
func (c *Client) DeleteSubscription(ctx context.Context, id int) error {
	if id <= 0 {
		return &RequestError{Op: OpDeleteSubscription, Err: fmt.Errorf("invalid id %d", id)}
	}
	if _, err := c.doRequest(ctx, http.MethodDelete, "/subscriptions/"+strconv.Itoa(id), nil, nil); err != nil {
		return &RequestError{Op: OpDeleteSubscription, Err: err}
	}
	return nil
}
