// Package hitqueue delivers hits (outbound analytics payloads) through a
// network transport with in-place retry.
//
// Hits are persisted to a storage.DataQueue before they are queued, so a
// process restart resumes where it left off. The head hit is retried until
// it succeeds or fails permanently; hits behind it wait, which keeps
// delivery order intact.
package hitqueue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	huberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
)

// Hit is one payload awaiting delivery.
type Hit struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	URL       string            `json:"url"`
	Payload   []byte            `json:"payload,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// NewHit creates a hit with a fresh ID.
func NewHit(url string, payload []byte) Hit {
	return Hit{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		URL:       url,
		Payload:   payload,
	}
}

// Transport submits a hit and returns the response body.
//
// Errors are classified with the errors package: an *errors.HTTPError with a
// recoverable status, an *errors.NetworkError, or a timeout are retried;
// anything else drops the hit.
type Transport interface {
	Submit(ctx context.Context, hit Hit) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, hit Hit) ([]byte, error)

// Submit implements Transport.
func (f TransportFunc) Submit(ctx context.Context, hit Hit) ([]byte, error) {
	return f(ctx, hit)
}

// HTTPTransport posts hits over HTTP.
type HTTPTransport struct {
	Client      *http.Client
	ContentType string
}

// NewHTTPTransport creates a transport using client, or http.DefaultClient
// when nil.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{Client: client, ContentType: "application/json"}
}

// Submit implements Transport. Non-2xx responses return *errors.HTTPError
// carrying the body.
func (t *HTTPTransport) Submit(ctx context.Context, hit Hit) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hit.URL, bytes.NewReader(hit.Payload))
	if err != nil {
		return nil, huberrors.Permanent(err, "build request")
	}
	req.Header.Set("Content-Type", t.ContentType)
	for k, v := range hit.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, &huberrors.NetworkError{Endpoint: hit.URL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &huberrors.NetworkError{Endpoint: hit.URL, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &huberrors.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Endpoint:   hit.URL,
			Body:       body,
		}
	}
	return body, nil
}
