// Package httpfetch provides the outbound HTTP client the Ingest Use Case
// issues fetches through. It carries an SSRF guard (deny loopback/private/
// link-local hosts unless explicitly allowed) and connection-pool tuning,
// and is GET-only since the ingest use case never sends a request body.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrPrivateHost  = errors.New("httpfetch: private/loopback/link-local host denied")
	ErrInvalidURL   = errors.New("httpfetch: invalid url")
	ErrNonHTTPScheme = errors.New("httpfetch: non-http scheme denied")
)

// Options configures the Client.
type Options struct {
	AllowPrivateNetworks bool
	Timeout              time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// Client issues SSRF-guarded outbound GETs.
type Client struct {
	opts Options
	http *http.Client
}

// New returns a Client configured per opts.
func New(opts Options) *Client {
	opts = opts.withDefaults()
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{opts: opts, http: &http.Client{Transport: transport, Timeout: opts.Timeout}}
}

// Response is the subset of an HTTP response the Ingest Use Case needs.
type Response struct {
	StatusCode    int
	Body          []byte
	ETag          string
	LastModified  string
	ContentType   string
	ContentLength int64
}

// Get issues a GET to rawURL, rejecting private/loopback/link-local hosts
// unless AllowPrivateNetworks is set, and bounding the response body to
// maxBytes (a non-positive maxBytes means unbounded).
func (c *Client) Get(ctx context.Context, rawURL string, maxBytes int64) (Response, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Response{}, fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Response{}, fmt.Errorf("%w: %s", ErrNonHTTPScheme, u.Scheme)
	}
	if !c.opts.AllowPrivateNetworks && isPrivateHost(u.Hostname()) {
		return Response{}, fmt.Errorf("%w: %s", ErrPrivateHost, u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Response{}, fmt.Errorf("httpfetch: build request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("httpfetch: request failed: %w", err)
	}
	defer res.Body.Close()

	var reader io.Reader = res.Body
	if maxBytes > 0 {
		reader = io.LimitReader(res.Body, maxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return Response{}, fmt.Errorf("httpfetch: read body: %w", err)
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		return Response{}, fmt.Errorf("httpfetch: response exceeds %d bytes", maxBytes)
	}

	return Response{
		StatusCode:    res.StatusCode,
		Body:          body,
		ETag:          res.Header.Get("ETag"),
		LastModified:  res.Header.Get("Last-Modified"),
		ContentType:   res.Header.Get("Content-Type"),
		ContentLength: res.ContentLength,
	}, nil
}

// isPrivateHost detects obvious localhost hostnames plus loopback/private/
// link-local IP literals; a hostname that resolves to a private address via
// DNS is not caught here.
func isPrivateHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || h == "localhost.localdomain" {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return isPrivateIP(ip)
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 10:
			return true
		case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
			return true
		case ip4[0] == 192 && ip4[1] == 168:
			return true
		case ip4[0] == 127:
			return true
		case ip4[0] == 169 && ip4[1] == 254:
			return true
		default:
			return false
		}
	}
	if len(ip) == net.IPv6len {
		if ip[0]&0xfe == 0xfc {
			return true
		}
		if ip.IsLoopback() {
			return true
		}
	}
	return false
}

// BaseMIME strips any ";charset=..." parameters, for allow-list comparison.
func BaseMIME(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(strings.ToLower(base))
}
