package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nwflabs/nwf/pkg/net"
)

const keyStatusPath = "/key"

// KeyStatus is the market-data service's description of an API key.
type KeyStatus struct {
	// Whether the key is accepted for requests.
	Active bool `json:"active"`
	// Subscription plan the key is issued under (e.g. free, pro).
	Plan string `json:"plan,omitempty"`
	// Request allowance per day, 0 means unmetered.
	DailyLimit int `json:"daily_limit,omitempty"`
	// Day the key expires (YYYY-MM-DD), empty when it does not.
	ExpiresOn string `json:"expires_on,omitempty"`
}

// CheckKey verifies the API key against the market-data service and
// returns its status. An inactive key is an error.
func CheckKey(baseURL, key string) (*KeyStatus, error) {
	if baseURL == "" {
		return nil, errors.New("baseURL is required")
	}

	if key == "" {
		return nil, errors.New("key is required")
	}

	req, err := http.NewRequest(http.MethodGet, baseURL+keyStatusPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Add("Authorization", "Bearer "+key)
	req.Header.Add("Accept", "application/json")

	client, err := net.GetHTTPClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get http client: %w", err)
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		net.PrintHTTPResponse(res)
		return nil, errors.New("API key rejected by the market-data service")
	}

	if res.StatusCode != http.StatusOK {
		net.PrintHTTPResponse(res)
		body := ""
		if b, err := io.ReadAll(res.Body); err == nil {
			body = string(b)
		}

		return nil, fmt.Errorf("failed to check key: %s - %s - %s", res.Status, req.URL, body)
	}

	var ks KeyStatus
	if err := json.NewDecoder(res.Body).Decode(&ks); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !ks.Active {
		return nil, errors.New("API key is no longer active")
	}

	return &ks, nil
}
