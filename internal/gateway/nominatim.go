package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// NominatimClient reverse-geocodes coordinates against a Nominatim-compatible API.
type NominatimClient struct {
	baseURL        string
	userAgent      string
	acceptLanguage string
	http           *http.Client
}

var _ Geocoder = (*NominatimClient)(nil)

// NewNominatimClient creates a reusable HTTP client.
func NewNominatimClient(baseURL, userAgent, acceptLanguage string) *NominatimClient {
	return &NominatimClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		userAgent:      userAgent,
		acceptLanguage: acceptLanguage,
		http:           &http.Client{Timeout: 15 * time.Second},
	}
}

type nominatimAddress struct {
	Suburb   string `json:"suburb"`
	Town     string `json:"town"`
	Village  string `json:"village"`
	City     string `json:"city"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
}

type nominatimResponse struct {
	Address *nominatimAddress `json:"address"`
	Error   string            `json:"error"`
}

// ReverseGeocode returns a display address for the coordinate.
func (c *NominatimClient) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.acceptLanguage != "" {
		req.Header.Set("Accept-Language", c.acceptLanguage)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	var payload nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if payload.Error != "" {
		return "", fmt.Errorf("geocoder: %s", payload.Error)
	}
	if payload.Address == nil {
		return "", nil
	}
	return formatAddress(*payload.Address), nil
}

// formatAddress builds "locality, city, state - postcode" from the components
// that are present. It returns "" when none are.
func formatAddress(a nominatimAddress) string {
	locality := firstNonEmpty(a.Suburb, a.Town, a.Village)
	city := firstNonEmpty(a.City, a.Town, a.Village)
	if city == locality {
		city = ""
	}

	region := strings.TrimSpace(a.State)
	if pc := strings.TrimSpace(a.Postcode); pc != "" {
		if region != "" {
			region += " - " + pc
		} else {
			region = pc
		}
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{locality, city, region} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
