package net

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrorURLNotFound = errors.New("URL not found")

	// ErrorTooManyRequests signals the server throttled the request.
	ErrorTooManyRequests = errors.New("too many requests")
)

// GetJSON retrieves the URL with the given client and decodes the
// response body into the passed target. A nil client gets the
// default tuned client.
func GetJSON[T any](ctx context.Context, client *http.Client, url string, target *T) error {
	resp, err := getResp(ctx, client, url)
	if err != nil {
		return fmt.Errorf("error executing HTTP Get request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrorURLNotFound
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrorTooManyRequests
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("error getting content (status: %d - %s): %s",
			resp.StatusCode, resp.Status, url)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("error decoding content: %w", err)
	}
	return nil
}

func getResp(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	if client == nil {
		c, err := GetHTTPClient()
		if err != nil {
			return nil, fmt.Errorf("error creating HTTP client: %w", err)
		}
		client = c
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP Get request: %w", err)
	}

	req.Header.Set("User-Agent", clientAgent)

	return client.Do(req)
}
