package topology

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"shuttled/internal/domain"
)

// Client talks to the campus route topology service, which owns the ordered
// stop sequences per route and direction.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type stopsResponse struct {
	Stops []domain.RouteStop `json:"stops"`
	Error string             `json:"error,omitempty"`
}

// StopSequence fetches the ordered stops for a route+direction.
func (c *Client) StopSequence(ctx context.Context, routeID string, dir domain.Direction) ([]domain.RouteStop, error) {
	params := url.Values{}
	params.Set("direction", string(dir))
	reqURL := fmt.Sprintf("%s/routes/%s/stops?%s", c.baseURL, url.PathEscape(routeID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body stopsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("topology service error: %s", body.Error)
	}
	return body.Stops, nil
}
