package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// apiClient talks to a running orchestratord's internal/rpc HTTP surface,
// the same request/decode shape as the teacher's own APIClient.
type apiClient struct {
	baseURL string
	client  *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080/api"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &apiClient{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (c *apiClient) post(path string, body, out any) error {
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	resp, err := c.client.Post(c.baseURL+path, "application/json", rdr)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeAPIResponse(resp, out)
}

func (c *apiClient) get(path string, out any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeAPIResponse(resp, out)
}

func decodeAPIResponse(resp *http.Response, out any) error {
	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Kind  string `json:"kind"`
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("orchestratord returned %s", resp.Status)
		}
		return fmt.Errorf("%s: %s", errResp.Kind, errResp.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
