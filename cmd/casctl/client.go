package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// restClient is a small JSON-over-HTTP client for the realm/ticket endpoints
// of §6 that casclient.Transport has no use for (depot CRUD, ticket
// issuance) — the buffered writer only ever needs chunk/commit/tree/raw.
type restClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newRESTClient(baseURL, token string) *restClient {
	return &restClient{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: http.DefaultClient}
}

func (c *restClient) call(method, path string, reqBody any) (int, map[string]any, error) {
	var body io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return resp.StatusCode, nil, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, out, nil
}

func (c *restClient) checkStatus(status int, body map[string]any) error {
	if status >= 200 && status < 300 {
		return nil
	}
	if msg, ok := body["message"].(string); ok {
		return fmt.Errorf("%v: %s", body["error"], msg)
	}
	return fmt.Errorf("server returned status %d", status)
}
