package http

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pyhu26/post-woman/internal/model"
)

const (
	// MaxResponseSize limits response body to 50MB to prevent memory exhaustion
	MaxResponseSize = 50 * 1024 * 1024

	// Default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second
)

// Client wraps the standard http.Client with additional functionality
type Client struct {
	client          *http.Client
	maxResponseSize int64
	log             *zap.Logger
	errorResponses  bool
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithMaxResponseSize caps how many body bytes are kept
func WithMaxResponseSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResponseSize = n
		}
	}
}

// WithLogger sets the logger used for warnings
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTransportErrorResponses makes Send report transport failures as a
// status 0 response carrying the error text instead of returning an error.
func WithTransportErrorResponses(enabled bool) Option {
	return func(c *Client) {
		c.errorResponses = enabled
	}
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient creates a new HTTP client
func NewClient(opts ...Option) *Client {
	c := &Client{
		client:          &http.Client{Timeout: DefaultTimeout},
		maxResponseSize: MaxResponseSize,
		log:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send executes a stored request: enabled params are appended to the query
// string, enabled headers are set, and the body is only sent for methods
// that carry one.
func (c *Client) Send(ctx context.Context, req model.Request) (*model.Response, error) {
	start := time.Now()
	resp, err := c.send(ctx, req)
	if err != nil {
		if c.errorResponses {
			return model.NewTransportErrorResponse(err, time.Since(start)), nil
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req model.Request) (*model.Response, error) {
	method := req.Method
	if method == "" {
		method = model.MethodGet
	}
	if !method.Valid() {
		return nil, fmt.Errorf("unsupported method: %s", req.Method)
	}

	target, err := withParams(req.URL, req.ActiveParams())
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	for _, h := range req.ActiveHeaders() {
		header.Set(h.Key, h.Value)
	}

	body := ""
	if method.AllowsBody() {
		body = req.Body
	}
	return c.do(ctx, string(method), target, header, body)
}

func (c *Client) do(ctx context.Context, method, reqURL string, header http.Header, body string) (*model.Response, error) {
	// Validate URL and check for SSRF risks
	if err := c.validateURL(reqURL); err != nil {
		return nil, err
	}

	if strings.HasPrefix(strings.ToLower(reqURL), "http://") {
		c.log.Warn("Using insecure HTTP connection, data will be transmitted unencrypted", zap.String("url", reqURL))
	}

	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header = header

	// Default Content-Type for requests with body
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Read response body with size limit to prevent memory exhaustion
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	duration := time.Since(start)

	if int64(len(respBody)) > c.maxResponseSize {
		respBody = respBody[:c.maxResponseSize]
		c.log.Warn("Response body truncated", zap.Int64("limit_bytes", c.maxResponseSize), zap.String("url", reqURL))
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			respHeaders[key] = strings.Join(values, ", ")
		}
	}

	return &model.Response{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Headers:    respHeaders,
		Body:       string(respBody),
		Time:       duration.Milliseconds(),
	}, nil
}

func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// withParams appends key/value pairs to the query string, keeping any
// query already present in rawURL
func withParams(rawURL string, params []model.KeyValue) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	q := parsed.Query()
	for _, p := range params {
		q.Add(p.Key, p.Value)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// validateURL checks the URL for potential SSRF vulnerabilities
func (c *Client) validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q (only http and https are allowed)", parsed.Scheme)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must have a hostname")
	}

	// Cloud metadata endpoints are common SSRF targets
	if isCloudMetadataEndpoint(hostname) {
		return fmt.Errorf("blocked request to cloud metadata endpoint: %s", hostname)
	}

	switch {
	case isLoopbackHost(hostname):
		c.log.Debug("Request to loopback address", zap.String("host", hostname))
	case isPrivateOrReservedHost(hostname):
		c.log.Warn("Request to private/internal IP address", zap.String("host", hostname))
	}
	return nil
}

func isLoopbackHost(hostname string) bool {
	if strings.EqualFold(hostname, "localhost") {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

// isPrivateOrReservedHost checks if the hostname is a private or reserved IP
func isPrivateOrReservedHost(hostname string) bool {
	ip := net.ParseIP(hostname)
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() ||
		(ip.To4() != nil && ip.To4()[0] == 0)
}

// isCloudMetadataEndpoint checks if the hostname is a cloud metadata service
func isCloudMetadataEndpoint(hostname string) bool {
	metadataHosts := map[string]bool{
		"169.254.169.254":          true, // AWS, GCP, Azure metadata
		"metadata.google.internal": true, // GCP metadata
		"metadata.goog":            true, // GCP metadata alternative
		"100.100.100.200":          true, // Alibaba Cloud metadata
		"169.254.170.2":            true, // AWS ECS task metadata
	}
	return metadataHosts[strings.ToLower(hostname)]
}
