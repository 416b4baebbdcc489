// Package catalog talks to the remote product catalog service. Each Client
// carries its own timeout: the validation client sits on the order-creation
// request path and stays tight, while the bulk-sync client is built with a
// longer one. Validation calls go through the circuit breaker injected by
// the caller.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProductAvailability is one entry of the validate response, keyed by the
// catalog's product identifier.
type ProductAvailability struct {
	Available bool `json:"available"`
}

// ProductRecord is one record of the bulk products collection used by the
// sync importer.
type ProductRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Description string `json:"description"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`
	IsFeatured  bool   `json:"is_featured"`
	IsAvailable bool   `json:"is_available"`
}

type productPage struct {
	Results []ProductRecord `json:"results"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ValidateProducts performs a single batched availability check for all
// given identifiers. A non-200 response is an error so the breaker records
// it as a failure.
func (c *Client) ValidateProducts(ctx context.Context, ids []string) (map[string]ProductAvailability, error) {
	endpoint := fmt.Sprintf("%s/products/validate?ids=%s", c.baseURL, url.QueryEscape(strings.Join(ids, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to build validate request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: validate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: validate returned status %d", resp.StatusCode)
	}

	result := make(map[string]ProductAvailability)
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("catalog: failed to decode validate response: %w", err)
	}

	return result, nil
}

// FetchProducts retrieves the bulk product collection for synchronization.
func (c *Client) FetchProducts(ctx context.Context, limit int) ([]ProductRecord, error) {
	endpoint := fmt.Sprintf("%s/products/?limit=%d", c.baseURL, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to build products request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: products request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: products returned status %d", resp.StatusCode)
	}

	var page productPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("catalog: failed to decode products response: %w", err)
	}

	return page.Results, nil
}

// Healthy probes the catalog's liveness endpoint. Used by the health
// report, never on the order path.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
