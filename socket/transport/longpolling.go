package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/kleeedolinux/hostel-realtime/debug"
)

// LongPollingDialer opens HTTP long-polling sessions. The server exposes
// /connect, /poll, /send and /disconnect under baseURL.
type LongPollingDialer struct {
	client       *http.Client
	baseURL      string
	headers      http.Header
	pollInterval time.Duration
	timeout      time.Duration
	bufferSize   int
}

type LongPollingOption func(*LongPollingDialer)

func WithLongPollingHeaders(headers http.Header) LongPollingOption {
	return func(d *LongPollingDialer) {
		for k, v := range headers {
			d.headers[k] = v
		}
	}
}

func WithPollInterval(interval time.Duration) LongPollingOption {
	return func(d *LongPollingDialer) {
		d.pollInterval = interval
	}
}

// WithRequestTimeout bounds every individual poll and send request.
func WithRequestTimeout(timeout time.Duration) LongPollingOption {
	return func(d *LongPollingDialer) {
		d.timeout = timeout
	}
}

func WithHTTPClient(client *http.Client) LongPollingOption {
	return func(d *LongPollingDialer) {
		d.client = client
	}
}

func NewLongPollingDialer(baseURL string, opts ...LongPollingOption) *LongPollingDialer {
	d := &LongPollingDialer{
		client:       &http.Client{},
		baseURL:      baseURL,
		headers:      make(http.Header),
		pollInterval: time.Second,
		timeout:      30 * time.Second,
		bufferSize:   100,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *LongPollingDialer) Name() string {
	return NameLongPolling
}

func (d *LongPollingDialer) Dial(ctx context.Context) (Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/connect", nil)
	if err != nil {
		return nil, err
	}
	d.applyHeaders(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("long-polling connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("long-polling connect: %s", resp.Status)
	}

	var connectResp struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&connectResp); err != nil {
		return nil, fmt.Errorf("long-polling connect: %w", err)
	}
	if connectResp.SessionID == "" {
		return nil, fmt.Errorf("long-polling connect: empty session id")
	}

	debug.Printf("LongPollingDialer: session %s opened", connectResp.SessionID)

	pollCtx, cancel := context.WithCancel(context.Background())
	c := &lpConn{
		dialer:    d,
		sessionID: connectResp.SessionID,
		incoming:  make(chan []byte, d.bufferSize),
		errCh:     make(chan error, 1),
		ctx:       pollCtx,
		cancel:    cancel,
	}
	go c.poll()

	return c, nil
}

func (d *LongPollingDialer) applyHeaders(req *http.Request) {
	for k, values := range d.headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
}

func (d *LongPollingDialer) endpoint(path, sessionID string) string {
	return fmt.Sprintf("%s/%s?sessionId=%s", d.baseURL, path, url.QueryEscape(sessionID))
}

type lpConn struct {
	dialer    *LongPollingDialer
	sessionID string
	incoming  chan []byte
	errCh     chan error

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

func (c *lpConn) poll() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.dialer.pollInterval):
			msgs, err := c.fetchMessages()
			if err != nil {
				if c.ctx.Err() != nil {
					return
				}
				c.fail(err)
				return
			}

			for _, msg := range msgs {
				select {
				case c.incoming <- msg:
				case <-c.ctx.Done():
					return
				}
			}
		}
	}
}

func (c *lpConn) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *lpConn) fetchMessages() ([][]byte, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.dialer.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dialer.endpoint("poll", c.sessionID), nil)
	if err != nil {
		return nil, err
	}
	c.dialer.applyHeaders(req)

	resp, err := c.dialer.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusGone:
		return nil, fmt.Errorf("%w: poll %s", ErrServerClosed, resp.Status)
	default:
		return nil, fmt.Errorf("failed to poll: %s", resp.Status)
	}

	var messages []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, err
	}

	result := make([][]byte, len(messages))
	for i, msg := range messages {
		result[i] = []byte(msg)
	}

	return result, nil
}

func (c *lpConn) Send(data []byte) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.dialer.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.dialer.endpoint("send", c.sessionID), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.dialer.applyHeaders(req)

	resp, err := c.dialer.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to send message: %s - %s", resp.Status, string(bodyBytes))
	}

	return nil
}

// Receive delivers every frame fetched before a poll failure ahead of the failure.
func (c *lpConn) Receive() ([]byte, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	default:
	}

	select {
	case msg := <-c.incoming:
		return msg, nil
	case err := <-c.errCh:
		select {
		case msg := <-c.incoming:
			c.fail(err)
			return msg, nil
		default:
			return nil, err
		}
	case <-c.ctx.Done():
		return nil, ErrClosed
	}
}

func (c *lpConn) Close() error {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.dialer.endpoint("disconnect", c.sessionID), nil)
		if err == nil {
			c.dialer.applyHeaders(req)
			resp, err := c.dialer.client.Do(req)
			if err == nil {
				resp.Body.Close()
			}
		}

		c.cancel()
	})
	return nil
}
