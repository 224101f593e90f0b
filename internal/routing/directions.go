// Package routing wraps the Google Directions API. Calls against it are
// metered, so callers throttle; this package only does the HTTP legwork.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://maps.googleapis.com"

// Client queries the Directions API.
type Client struct {
	apiKey  string
	BaseURL string
	http    *http.Client
}

// NewClient returns a Client. An empty key yields an unconfigured client;
// callers skip ETA computation instead of failing.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		BaseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

// Route is the first route/leg of a directions response.
type Route struct {
	EtaSeconds int
	EtaText    string
	Polyline   string
}

type directionsResponse struct {
	Routes []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			Duration struct {
				Value int    `json:"value"`
				Text  string `json:"text"`
			} `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

// Directions fetches the route from origin to destination. Returns (nil, nil)
// when the API yields no route.
func (c *Client) Directions(ctx context.Context, originLat, originLng, destLat, destLng float64) (*Route, error) {
	q := url.Values{}
	q.Set("origin", formatLatLng(originLat, originLng))
	q.Set("destination", formatLatLng(destLat, destLng))
	q.Set("key", c.apiKey)

	reqURL := c.BaseURL + "/maps/api/directions/json?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directions api: status %d", resp.StatusCode)
	}

	var out directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Routes) == 0 {
		return nil, nil
	}

	route := Route{Polyline: out.Routes[0].OverviewPolyline.Points}
	if len(out.Routes[0].Legs) > 0 {
		route.EtaSeconds = out.Routes[0].Legs[0].Duration.Value
		route.EtaText = out.Routes[0].Legs[0].Duration.Text
	}
	return &route, nil
}

func formatLatLng(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}
