// Package subscription manages the REST-hook Subscription on the upstream
// FHIR server that makes it push Observation notifications to this service.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// cbcCriteria selects complete-blood-count Observations (LOINC 58410-2).
const cbcCriteria = "Observation?code=http://loinc.org|58410-2"

// Channel is the FHIR Subscription delivery channel.
type Channel struct {
	Type     string `json:"type"`
	Endpoint string `json:"endpoint,omitempty"`
	Payload  string `json:"payload,omitempty"`
}

// Subscription is the FHIR R4 Subscription resource subset we exchange.
type Subscription struct {
	ResourceType string  `json:"resourceType"`
	ID           string  `json:"id,omitempty"`
	Status       string  `json:"status"` // requested, active, error, off
	Reason       string  `json:"reason,omitempty"`
	Criteria     string  `json:"criteria"`
	Channel      Channel `json:"channel"`
}

// searchBundle is the subset of a search-result Bundle we read back.
type searchBundle struct {
	ResourceType string `json:"resourceType"`
	Total        int    `json:"total"`
	Entry        []struct {
		Resource Subscription `json:"resource"`
	} `json:"entry"`
}

// Client talks to the FHIR server's Subscription endpoint.
type Client struct {
	httpClient  *resty.Client
	callbackURL string
	logger      *zap.Logger
}

// NewClient creates a subscription client against baseURL. callbackURL is
// the endpoint the FHIR server will push notifications to.
func NewClient(baseURL, callbackURL string, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/fhir+json").
		SetHeader("Accept", "application/fhir+json")

	return &Client{
		httpClient:  httpClient,
		callbackURL: callbackURL,
		logger:      logger,
	}
}

// Create registers the CBC Observation subscription and returns its id.
func (c *Client) Create(ctx context.Context) (string, error) {
	request := Subscription{
		ResourceType: "Subscription",
		Status:       "requested",
		Reason:       "Blood count deviation monitoring",
		Criteria:     cbcCriteria,
		Channel: Channel{
			Type:     "rest-hook",
			Endpoint: c.callbackURL,
			Payload:  "application/fhir+json",
		},
	}

	var created Subscription
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&created).
		Post("/Subscription")
	if err != nil {
		return "", fmt.Errorf("failed to create subscription: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("failed to create subscription: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Info("FHIR subscription created",
		zap.String("subscription_id", created.ID),
		zap.String("criteria", cbcCriteria),
		zap.String("endpoint", c.callbackURL),
	)
	return created.ID, nil
}

// Status fetches the current status of a subscription.
func (c *Client) Status(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("subscription id is required")
	}

	var subscription Subscription
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&subscription).
		Get("/Subscription/" + id)
	if err != nil {
		return "", fmt.Errorf("failed to get subscription %s: %w", id, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("failed to get subscription %s: status %d", id, resp.StatusCode())
	}

	return subscription.Status, nil
}

// List returns every subscription registered on the server.
func (c *Client) List(ctx context.Context) ([]Subscription, error) {
	var bundle searchBundle
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&bundle).
		Get("/Subscription")
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to list subscriptions: status %d", resp.StatusCode())
	}

	subscriptions := make([]Subscription, 0, len(bundle.Entry))
	for _, entry := range bundle.Entry {
		subscriptions = append(subscriptions, entry.Resource)
	}
	return subscriptions, nil
}

// Delete removes a subscription.
func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("subscription id is required")
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		Delete("/Subscription/" + id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", id, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to delete subscription %s: status %d", id, resp.StatusCode())
	}

	c.logger.Info("FHIR subscription deleted",
		zap.String("subscription_id", id),
	)
	return nil
}

// EnsureActive creates the subscription unless an equivalent one is already
// registered, and returns the effective subscription id.
func (c *Client) EnsureActive(ctx context.Context) (string, error) {
	existing, err := c.List(ctx)
	if err != nil {
		return "", err
	}
	for _, subscription := range existing {
		if subscription.Criteria == cbcCriteria &&
			subscription.Channel.Endpoint == c.callbackURL &&
			(subscription.Status == "active" || subscription.Status == "requested") {
			c.logger.Info("Reusing existing FHIR subscription",
				zap.String("subscription_id", subscription.ID),
				zap.String("status", subscription.Status),
			)
			return subscription.ID, nil
		}
	}
	return c.Create(ctx)
}

func (s Subscription) String() string {
	encoded, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("Subscription{id=%s}", s.ID)
	}
	return string(encoded)
}
