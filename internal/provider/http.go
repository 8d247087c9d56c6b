package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultCallTimeout = 30 * time.Second

// maxErrorBodyLen caps how much of a provider error body lands in messages.
const maxErrorBodyLen = 512

// doJSON issues one JSON request and returns status and body.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// truncateBody shortens a response body for inclusion in error messages.
func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyLen {
		return s[:maxErrorBodyLen] + "..."
	}
	return s
}

// classifyStatus maps an HTTP status and error body to an error kind.
func classifyStatus(status int, body []byte) ErrorKind {
	switch {
	case status == http.StatusNotFound:
		return ErrModelNotFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status >= 500:
		return ErrTransient
	}
	// Some providers report unknown models as 400; fall back to inspecting
	// the error text for that one case.
	if status == http.StatusBadRequest && mentionsUnknownModel(string(body)) {
		return ErrModelNotFound
	}
	return ErrUnknown
}

func mentionsUnknownModel(body string) bool {
	lowered := strings.ToLower(body)
	if !strings.Contains(lowered, "model") {
		return false
	}
	return strings.Contains(lowered, "not found") ||
		strings.Contains(lowered, "does not exist") ||
		strings.Contains(lowered, "decommissioned") ||
		strings.Contains(lowered, "unknown model")
}

// classifyTransport maps a transport-level error to an error kind. Timeouts,
// DNS failures and connection resets are all retryable.
func classifyTransport(err error) ErrorKind {
	if err == nil {
		return ErrUnknown
	}
	return ErrTransient
}

func millisecondsSince(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
