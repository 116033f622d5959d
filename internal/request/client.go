// Package request performs authenticated HTTP calls against the broadcasting
// API on behalf of a socket connection.
package request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	HeaderSocketID  = "X-Socket-ID"
	HeaderCSRFToken = "X-CSRF-TOKEN"

	ParamChannelName  = "channel_name"
	ParamSocketID     = "socket_id"
	ParamClientID     = "client_id"
	ParamSessionToken = "session_token"

	defaultTimeout       = 10 * time.Second
	defaultBeaconTimeout = 2 * time.Second
)

// SocketIDer exposes the connection's client identifier.
type SocketIDer interface {
	ID() string
}

type Options struct {
	CSRFToken     string
	Headers       map[string]string
	Timeout       time.Duration
	BeaconTimeout time.Duration
	HTTPClient    *http.Client
}

// Client carries socket id, CSRF token and the session cookie jar on every call.
type Client struct {
	conn          SocketIDer
	http          *http.Client
	headers       map[string]string
	beaconTimeout time.Duration

	mu   sync.RWMutex
	csrf string

	beacons sync.WaitGroup
}

func New(conn SocketIDer, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		jar, _ := cookiejar.New(nil)
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout, Jar: jar}
	}
	bt := opts.BeaconTimeout
	if bt <= 0 {
		bt = defaultBeaconTimeout
	}
	return &Client{
		conn:          conn,
		http:          hc,
		headers:       opts.Headers,
		beaconTimeout: bt,
		csrf:          opts.CSRFToken,
	}
}

// Jar returns the cookie jar so the websocket dialer can share the session.
func (c *Client) Jar() http.CookieJar { return c.http.Jar }

func (c *Client) CSRFToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.csrf
}

func (c *Client) SetCSRFToken(token string) {
	c.mu.Lock()
	c.csrf = token
	c.mu.Unlock()
}

// FetchCSRF reads {"token": "..."} from rawURL and keeps it for later calls.
func (c *Client) FetchCSRF(ctx context.Context, rawURL string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode csrf response: %w", err)
	}
	c.SetCSRFToken(out.Token)
	return out.Token, nil
}

func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	u, err := withQuery(endpoint, params)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodGet, u, nil)
}

func (c *Client) Post(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, endpoint, form(params))
}

func (c *Client) Delete(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, endpoint, form(params))
}

// Authorize negotiates channel access for the current socket.
func (c *Client) Authorize(ctx context.Context, endpoint, channel string) ([]byte, error) {
	return c.Post(ctx, endpoint, map[string]string{
		ParamChannelName: channel,
		ParamSocketID:    c.conn.ID(),
	})
}

// Beacon fires a best-effort request that is never awaited. The session token
// stands in for header auth, so the server can accept it during teardown.
func (c *Client) Beacon(clientID, token, endpoint string, params map[string]string, method string) {
	values := form(params)
	values.Set(ParamClientID, clientID)
	values.Set(ParamSessionToken, token)

	c.beacons.Add(1)
	go func() {
		defer c.beacons.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.beaconTimeout)
		defer cancel()
		if _, err := c.do(ctx, method, endpoint, values); err != nil {
			log.Debug().Err(err).Str("module", "request").Str("url", endpoint).Msg("beacon failed")
		}
	}()
}

// Flush waits for outstanding beacons, bounded by their own timeout.
func (c *Client) Flush() { c.beacons.Wait() }

func (c *Client) do(ctx context.Context, method, rawURL string, body url.Values) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = strings.NewReader(body.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set(HeaderSocketID, c.conn.ID())
	if token := c.CSRFToken(); token != "" {
		req.Header.Set(HeaderCSRFToken, token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, URL: rawURL, Code: resp.StatusCode, Body: data}
	}
	log.Debug().Str("module", "request").Str("method", method).Str("url", rawURL).Int("status", resp.StatusCode).Msg("ok")
	return data, nil
}

func form(params map[string]string) url.Values {
	v := url.Values{}
	for k, p := range params {
		v.Set(k, p)
	}
	return v
}

func withQuery(endpoint string, params map[string]string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", endpoint, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
