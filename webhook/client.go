// Package webhook delivers session updates and placements to counterparts
// over HTTP. Every delivery must be answered with an acknowledgement.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jpillora/backoff"

	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/logger"
	"github.com/wfunc/playerhook/session"
)

var (
	ErrNotAcknowledged = errors.New("delivery not acknowledged")
	ErrRejected        = errors.New("delivery rejected by counterpart")
)

const (
	KindUpdate    = "update"
	KindPlacement = "placement"

	// PlacementsPath is appended to a session URL to reach its placement
	// endpoint.
	PlacementsPath = "/placements"
)

// Observer is told about every finished delivery.
type Observer interface {
	WebhookDelivered(kind string, err error, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) WebhookDelivered(string, error, time.Duration) {}

// Client posts JSON payloads and retries transport failures and 5xx
// answers with exponential backoff.
type Client struct {
	http     *http.Client
	observer Observer
	attempts int
	backoff  backoff.Backoff
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithRetries sets how many times a delivery is attempted and the backoff
// bounds between attempts.
func WithRetries(attempts int, min, max time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.backoff.Min, c.backoff.Max = min, max
	}
}

func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: timeout},
		observer: nopObserver{},
		attempts: 3,
		backoff:  backoff.Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.attempts < 1 {
		c.attempts = 1
	}
	return c
}

// SendUpdate posts an update record to url.
func (c *Client) SendUpdate(ctx context.Context, url string, u session.UpdateRecord) error {
	return c.deliver(ctx, KindUpdate, url, u, nil)
}

// SendPlacement posts a placement record to url and decodes the answer
// into reply when reply is not nil.
func (c *Client) SendPlacement(ctx context.Context, url string, p session.PlacementRecord, reply any) error {
	return c.deliver(ctx, KindPlacement, url, p, reply)
}

// Forward sends p to the placement endpoint of the session at url. It
// implements session.Forwarder.
func (c *Client) Forward(ctx context.Context, url string, p game.Placement) error {
	return c.SendPlacement(ctx, strings.TrimSuffix(url, "/")+PlacementsPath, session.PlacementRecordOf(p), nil)
}

func (c *Client) deliver(ctx context.Context, kind, url string, payload, reply any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	start := time.Now()
	b := c.backoff
	for attempt := 1; ; attempt++ {
		err = c.post(ctx, url, body, reply)
		if err == nil || !retryable(err) || attempt >= c.attempts {
			break
		}
		wait := b.Duration()
		logger.Log.Debugf("Retrying %s delivery to %s in %s: %v", kind, url, wait, err)
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(wait):
			continue
		}
		break
	}

	c.observer.WebhookDelivered(kind, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("deliver %s to %s: %w", kind, url, err)
	}
	return nil
}

// statusError is a non-2xx answer.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func (e *statusError) Unwrap() error {
	if e.code >= 400 && e.code < 500 {
		return ErrRejected
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrNotAcknowledged) || errors.Is(err, ErrRejected) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) post(ctx context.Context, url string, body []byte, reply any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	var ack session.Acknowledgement
	if err := json.Unmarshal(data, &ack); err != nil || !ack.Acknowledged {
		return ErrNotAcknowledged
	}
	if reply != nil {
		return json.Unmarshal(data, reply)
	}
	return nil
}
