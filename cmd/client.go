package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const clientTimeout = 10 * time.Second

// syncClient talks to a running instance over the sync protocol.
type syncClient struct {
	baseURL string
	http    *http.Client
}

func newSyncClient(baseURL string) *syncClient {
	return &syncClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: clientTimeout},
	}
}

// protocolError is a non-2xx reply from the sync server.
type protocolError struct {
	Status int
	Msg    string
}

func (e *protocolError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Msg)
}

func (c *syncClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := jsonAPI.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var ack struct {
			Err string `json:"err"`
		}
		msg := strings.TrimSpace(string(data))
		if jsonAPI.Unmarshal(data, &ack) == nil && ack.Err != "" {
			msg = ack.Err
		}
		return &protocolError{Status: resp.StatusCode, Msg: msg}
	}
	if out == nil {
		return nil
	}
	if err := jsonAPI.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// serverURL returns the --url flag when set, else the configured server.
func serverURL(ctx context.Context, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Server().BaseURL(), nil
}
