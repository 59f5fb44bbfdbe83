// Package forecast provides an HTTP client for the external spending
// prediction service. The service is consumed as an opaque collaborator:
// it receives a user profile plus transaction history and returns a
// category-to-amount breakdown for a period.
package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HistoryEntry is one transaction summarized for the prediction service.
type HistoryEntry struct {
	Category string          `json:"category"`
	Type     string          `json:"type"`
	Amount   decimal.Decimal `json:"amount"`
	Date     time.Time       `json:"date"`
}

// PredictionRequest is the payload sent to the prediction service.
type PredictionRequest struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
	History []HistoryEntry  `json:"history"`
}

// Prediction is the category breakdown returned by the prediction service.
type Prediction struct {
	PeriodStart time.Time                  `json:"period_start"`
	PeriodEnd   time.Time                  `json:"period_end"`
	Categories  map[string]decimal.Decimal `json:"categories"`
}

// Client communicates with the prediction service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new prediction service client. A nil httpClient
// falls back to a client with a 30 second timeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Predict submits the user's profile and history and returns the
// predicted category breakdown.
func (c *Client) Predict(ctx context.Context, request PredictionRequest) (*Prediction, error) {
	jsonBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshaling prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predict", strings.NewReader(string(jsonBody)))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling prediction service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prediction service: unexpected status %d", resp.StatusCode)
	}

	var prediction Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, fmt.Errorf("decoding prediction response: %w", err)
	}
	return &prediction, nil
}
