package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxErrorBody = 64 << 10

// PostJSON sends body as JSON and returns the response for the caller to
// close. Non-2xx responses are turned into a PROVIDER_ERROR whose detail is
// the response body.
func PostJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, Failed(provider, fmt.Sprintf("provider returned %s", resp.Status), string(detail), nil)
	}
	return resp, nil
}

// DecodeBody decodes a provider response, mapping malformed JSON to PROVIDER_ERROR.
func DecodeBody(provider string, resp *http.Response, out any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Failed(provider, "invalid provider response", "", err)
	}
	return nil
}
