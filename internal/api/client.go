package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	DefaultTimeout = 30 * time.Second
	UserAgent      = "xkcd-comics/1.0"

	// maxJSONBody bounds every decoded API body; images have their own limit.
	maxJSONBody = 1 << 20
)

// Client is the HTTP transport shared by the xkcd and VK clients.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWith wraps an existing http.Client, e.g. httptest.Server.Client().
func NewClientWith(hc *http.Client) *Client {
	return &Client{httpClient: hc}
}

func (c *Client) doRequest(op string, req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redactURL(ue.URL)
		}
		return nil, &NetworkError{Op: op, URL: redactURL(req.URL.String()), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, &NetworkError{Op: op, URL: redactURL(req.URL.String()), StatusCode: resp.StatusCode}
	}

	return resp, nil
}

// getJSON issues a GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	resp, err := c.doRequest(op, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeBody(op, resp.Body, out)
}

func decodeBody(op string, body io.Reader, out any) error {
	data, err := readAllWithLimit(body, maxJSONBody)
	if err != nil {
		return &MalformedResponseError{Op: op, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &MalformedResponseError{Op: op, Err: fmt.Errorf("decoding error: %w", err)}
	}
	return nil
}

// copyWithLimit copies at most limit bytes; a longer body fails with ErrTooLarge.
func copyWithLimit(w io.Writer, r io.Reader, limit int64) (int64, error) {
	if limit <= 0 {
		return io.Copy(w, r)
	}
	n, err := io.Copy(w, io.LimitReader(r, limit+1))
	if err != nil {
		return n, err
	}
	if n > limit {
		return n, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, limit)
	}
	return n, nil
}

func readAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}
