// Package transport performs the HTTP requests of the signature pipeline
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

// Request describes one call. URL may be relative to the client's base.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Form    url.Values
	Headers map[string]string
	// Bearer sets an Authorization: Bearer header
	Bearer string
}

// Response carries the status and raw body
type Response struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// JSON decodes the body into dst
func (r *Response) JSON(dst interface{}) error {
	return json.Unmarshal(r.Body, dst)
}

// Requester sends requests
type Requester interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// StatusError is returned by Expect for non-2xx responses
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Status)
}

// Expect turns a non-2xx response into a StatusError
func Expect(resp *Response, rawURL string) error {
	if resp.OK() {
		return nil
	}
	return &StatusError{Status: resp.Status, URL: rawURL}
}

// Client is a fasthttp requester keeping the cookies the server sets, so
// a session established by one call is used by the next.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *fasthttp.Client

	mu      sync.Mutex
	cookies map[string]string
}

// NewClient creates a client resolving relative URLs against baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                "autosig",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		cookies: make(map[string]string),
	}
}

// BaseURL returns the base URL relative requests are resolved against
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) resolve(req *Request) string {
	u := req.URL
	if !strings.Contains(u, "://") {
		u = c.baseURL + "/" + strings.TrimLeft(u, "/")
	}
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + req.Query.Encode()
	}
	return u
}

// Do sends the request. The deadline is the earlier of ctx's deadline
// and the client timeout.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	method := r.Method
	if method == "" {
		method = fasthttp.MethodGet
	}
	target := c.resolve(r)

	req.SetRequestURI(target)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.Bearer)
	}
	if len(r.Form) > 0 {
		req.Header.SetContentType("application/x-www-form-urlencoded; charset=UTF-8")
		req.SetBodyString(r.Form.Encode())
	}

	c.mu.Lock()
	for k, v := range c.cookies {
		req.Header.SetCookie(k, v)
	}
	c.mu.Unlock()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}

	c.keepCookies(resp)

	body := append([]byte(nil), resp.Body()...)
	return &Response{Status: resp.StatusCode(), Body: body}, nil
}

func (c *Client) keepCookies(resp *fasthttp.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp.Header.VisitAllCookie(func(key, value []byte) {
		cookie := fasthttp.AcquireCookie()
		defer fasthttp.ReleaseCookie(cookie)
		if err := cookie.ParseBytes(value); err != nil {
			return
		}
		name := string(cookie.Key())
		if len(cookie.Value()) == 0 || (!cookie.Expire().IsZero() && cookie.Expire().Before(time.Now())) {
			delete(c.cookies, name)
			return
		}
		c.cookies[name] = string(cookie.Value())
	})
}
