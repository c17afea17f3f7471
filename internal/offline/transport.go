package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Transport delivers one queued mutation to the remote store.
type Transport interface {
	Deliver(ctx context.Context, item *QueueItem) error
}

// PermanentError marks a delivery failure that retrying cannot fix (a
// validation rejection, for example). The engine drops such items
// immediately instead of burning the retry budget.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// HTTPTransport maps queued operations onto the REST mutation contract:
// create -> POST, update -> PUT, delete -> DELETE, JSON bodies, bearer auth.
// The item's client-generated id travels as X-Request-Id so idempotent
// servers can deduplicate replays; the engine itself only bounds retries.
type HTTPTransport struct {
	client  *http.Client
	baseURL string
	token   func() string
}

// NewHTTPTransport builds a transport for the given API base URL. tokenFn
// supplies the caller's current bearer token and may return "".
func NewHTTPTransport(client *http.Client, baseURL string, tokenFn func() string) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	if tokenFn == nil {
		tokenFn = func() string { return "" }
	}
	return &HTTPTransport{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   tokenFn,
	}
}

func (t *HTTPTransport) Deliver(ctx context.Context, item *QueueItem) error {
	var method string
	var body io.Reader
	switch item.Op {
	case OpCreate:
		method = http.MethodPost
		body = bytes.NewReader(item.Payload)
	case OpUpdate:
		method = http.MethodPut
		body = bytes.NewReader(item.Payload)
	case OpDelete:
		method = http.MethodDelete
	default:
		return &PermanentError{Err: fmt.Errorf("unknown operation %q", item.Op)}
	}

	url := t.baseURL + "/" + strings.TrimLeft(item.Endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &PermanentError{Err: fmt.Errorf("build request: %w", err)}
	}
	if item.Op != OpDelete {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := t.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("X-Request-Id", item.ID)

	resp, err := t.client.Do(req)
	if err != nil {
		// Timeouts and connection errors are retryable by definition.
		return fmt.Errorf("%s %s: %w", method, item.Endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return fmt.Errorf("%s %s: server returned %d", method, item.Endpoint, resp.StatusCode)
	default:
		return &PermanentError{Err: fmt.Errorf("%s %s: rejected with %d", method, item.Endpoint, resp.StatusCode)}
	}
}
