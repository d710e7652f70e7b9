package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dlrs-ng/land-registry/pkg/api"
)

type registryClient struct {
	baseURL string
	http    *http.Client
	header  http.Header
}

func newClient(s settings) *registryClient {
	header := http.Header{}
	if r := s.role(); r != "" {
		header.Set(api.RoleHeader, r)
	}
	if p := s.principal(); p != "" {
		header.Set(api.PrincipalHeader, p)
	}
	if t := s.token(); t != "" {
		header.Set("Authorization", "Bearer "+t)
	}
	return &registryClient{
		baseURL: s.server(),
		http:    &http.Client{Timeout: 30 * time.Second},
		header:  header,
	}
}

// apiError is a non-2xx response from the server.
type apiError struct {
	Status int
	Body   api.ErrorResponse
	Raw    string
}

func (e *apiError) Error() string {
	if e.Body.Message == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Raw)
	}
	msg := fmt.Sprintf("server returned %d: %s", e.Status, e.Body.Message)
	for _, f := range e.Body.Fields {
		msg += fmt.Sprintf("\n  %s: %s", f.Field, f.Message)
	}
	return msg
}

func (c *registryClient) getJSON(path string, v any) error {
	return c.do(http.MethodGet, path, nil, v)
}

func (c *registryClient) postJSON(path string, body, v any) error {
	return c.do(http.MethodPost, path, body, v)
}

func (c *registryClient) putJSON(path string, body, v any) error {
	return c.do(http.MethodPut, path, body, v)
}

func (c *registryClient) deleteJSON(path string, v any) error {
	return c.do(http.MethodDelete, path, nil, v)
}

// do sends a request with an optional JSON body and decodes a 2xx response into v.
func (c *registryClient) do(method, path string, body, v any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	for k, vals := range c.header {
		req.Header[k] = vals
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		apiErr := &apiError{Status: resp.StatusCode, Raw: string(raw)}
		_ = json.Unmarshal(raw, &apiErr.Body)
		return apiErr
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("decode error: %w", err)
		}
	}
	return nil
}
