package nutrition

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/router-for-me/mealtracker/internal/config"
	log "github.com/sirupsen/logrus"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxResponseBytes      = 1 << 20
)

// Client queries the Nutritionix natural language nutrients endpoint.
type Client struct {
	url     string
	appID   string
	appKey  string
	timeout time.Duration
	client  *http.Client
}

// NewClient constructs a Nutritionix client from cfg.
func NewClient(cfg config.NutritionixConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		endpoint = config.DefaultNutritionixURL
	}
	return &Client{
		url:     endpoint,
		appID:   strings.TrimSpace(cfg.AppID),
		appKey:  strings.TrimSpace(cfg.AppKey),
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c != nil && c.appID != "" && c.appKey != ""
}

// Lookup estimates the calories in query.
func (c *Client) Lookup(ctx context.Context, query string) (Estimate, error) {
	if c == nil {
		return Estimate{}, fmt.Errorf("nutrition: nil client")
	}
	if !c.Configured() {
		return Estimate{}, fmt.Errorf("nutrition: missing app id or app key")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Estimate{}, fmt.Errorf("nutrition: empty query")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("query", query)
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return Estimate{}, fmt.Errorf("nutrition: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-app-id", c.appID)
	req.Header.Set("x-app-key", c.appKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Estimate{}, fmt.Errorf("nutrition: request failed: %w", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("nutrition: close response body failed")
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Estimate{}, fmt.Errorf("nutrition: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Estimate{}, fmt.Errorf("nutrition: read response: %w", err)
	}
	estimate, err := ParseNutrientsPayload(query, body)
	if err != nil {
		return Estimate{}, err
	}
	if len(estimate.Foods) == 0 {
		return Estimate{}, fmt.Errorf("nutrition: no foods recognised")
	}
	return estimate, nil
}

// Calories returns the rounded calorie estimate for description.
func (c *Client) Calories(ctx context.Context, description string) (int, error) {
	estimate, err := c.Lookup(ctx, description)
	if err != nil {
		return 0, err
	}
	return estimate.Calories, nil
}
