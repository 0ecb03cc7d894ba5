package hostfunc

import (
	"cmp"
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

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 1 << 20 // 1MB
	DefaultRequestTimeout = 30 * time.Second
)

// HTTPConfig restricts outbound requests made through fetch.
type HTTPConfig struct {
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
}

// HTTP backs the guest fetch function.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	return &HTTP{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

func (h *HTTP) Register(r *Registry) {
	r.Register("http_request", h.Request)
}

var fetchMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// fetchRequest is the decoded argument map of a guest fetch.
type fetchRequest struct {
	method  string
	url     *url.URL
	headers map[string]string
	body    string
}

// FetchResponse is what the guest builds its Response object from.
type FetchResponse struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	URL        string            `json:"url"`
}

// parse validates args against the configured limits. Errors carry an
// errno-style prefix the guest exposes as err.code.
func (h *HTTP) parse(args map[string]any) (fetchRequest, error) {
	if len(h.cfg.AllowedHosts) == 0 {
		return fetchRequest{}, errors.New("EACCES: http not enabled")
	}

	method, _ := args["method"].(string)
	method = strings.ToUpper(cmp.Or(method, http.MethodGet))
	if !fetchMethods[method] {
		return fetchRequest{}, fmt.Errorf("EINVAL: unsupported method: %s", method)
	}

	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return fetchRequest{}, errors.New("EINVAL: url required")
	}
	if len(rawURL) > h.cfg.MaxURLLength {
		return fetchRequest{}, fmt.Errorf("EINVAL: url exceeds max length of %d", h.cfg.MaxURLLength)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fetchRequest{}, errors.New("EINVAL: invalid url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fetchRequest{}, errors.New("EINVAL: scheme must be http or https")
	}
	if host := parsed.Hostname(); !h.isHostAllowed(host) {
		return fetchRequest{}, fmt.Errorf("EACCES: host not allowed: %s", host)
	}

	req := fetchRequest{method: method, url: parsed, headers: map[string]string{}}
	if hs, ok := args["headers"].(map[string]any); ok {
		for k, v := range hs {
			if vs, ok := v.(string); ok {
				req.headers[k] = vs
			}
		}
	}
	req.body, _ = args["body"].(string)
	if int64(len(req.body)) > h.cfg.MaxBodySize {
		return fetchRequest{}, fmt.Errorf("EFBIG: request body exceeds max size of %d bytes", h.cfg.MaxBodySize)
	}
	return req, nil
}

// Request performs one fetch and returns a FetchResponse. Response bodies
// are truncated at MaxBodySize.
func (h *HTTP) Request(ctx context.Context, args map[string]any) (any, error) {
	fr, err := h.parse(args)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if fr.body != "" {
		body = strings.NewReader(fr.body)
	}
	req, err := http.NewRequestWithContext(ctx, fr.method, fr.url.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range fr.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	out := FetchResponse{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    make(map[string]string, len(resp.Header)),
		Body:       string(respBody),
		URL:        resp.Request.URL.String(),
	}
	for k, v := range resp.Header {
		if len(v) > 0 {
			out.Headers[strings.ToLower(k)] = strings.Join(v, ", ")
		}
	}
	return out, nil
}

// isHostAllowed matches domains exactly or by subdomain. IP addresses only
// match an equal allowed IP, whatever their textual form.
func (h *HTTP) isHostAllowed(host string) bool {
	ip := net.ParseIP(host)
	for _, allowed := range h.cfg.AllowedHosts {
		if ip != nil {
			if aip := net.ParseIP(allowed); aip != nil && aip.Equal(ip) {
				return true
			}
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
