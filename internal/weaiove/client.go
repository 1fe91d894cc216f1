package weaiove

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

	"go.uber.org/zap"
)

// Fixed request identity of the WeChat mini-program the API expects.
const (
	DefaultBaseURL = "https://vip.weaiove.com/api/minpro-api"
	AppKey         = "wx360959f2f6ecfb97"
	TenantID       = "1585937717626433537"
	PlazaID        = "1719238954936242177"
	UserAgent      = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_4_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148 MicroMessenger/8.0.56(0x1800383b) NetType/WIFI Language/zh_CN"

	DefaultTimeout = 20 * time.Second
)

// Doer is the HTTP capability the client needs; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	HTTP    Doer
	Logger  *zap.Logger
}

// Client issues requests against the minpro API and normalises every
// response into a Result. It holds no per-account state; see Session.
type Client struct {
	hc      Doer
	base    string
	host    string
	timeout time.Duration
	log     *zap.Logger
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	host := ""
	if i := strings.Index(base, "://"); i >= 0 {
		host = base[i+3:]
		if j := strings.Index(host, "/"); j >= 0 {
			host = host[:j]
		}
	}
	return &Client{hc: opts.HTTP, base: base, host: host, timeout: opts.Timeout, log: opts.Logger}
}

// Headers returns the fixed header set for a member token.
func (c *Client) Headers(token string) http.Header {
	h := http.Header{}
	if c.host != "" {
		h.Set("Host", c.host)
	}
	h.Set("tenant-Id", TenantID)
	h.Set("plaza-Id", PlazaID)
	h.Set("appkey", AppKey)
	h.Set("member-token", token)
	h.Set("content-type", "application/json;charset=utf-8")
	h.Set("User-Agent", UserAgent)
	h.Set("Referer", fmt.Sprintf("https://servicewechat.com/%s/72/page-frame.html", AppKey))
	return h
}

// Request performs one call. body, when non-nil, is sent as JSON.
func (c *Client) Request(ctx context.Context, method, path string, headers http.Header, body any) Result {
	return c.request(ctx, c.log, "", method, path, headers, body)
}

func (c *Client) request(ctx context.Context, log *zap.Logger, action, method, path string, headers http.Header, body any) Result {
	log = log.With(zap.String("action", action), zap.String("method", method), zap.String("path", path))

	var rd io.Reader
	if body != nil {
		jb, err := json.Marshal(body)
		if err != nil {
			return transportErr(0, fmt.Errorf("encode request: %w", err))
		}
		rd = bytes.NewReader(jb)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log.Debug("request")
	status, respBody, err := c.do(ctx, method, c.base+path, headers, rd)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timeout after %s: %w", c.timeout, err)
		}
		log.Error("request failed", zap.Error(err))
		return transportErr(status, err)
	}
	if status >= 400 {
		if status == http.StatusUnauthorized {
			log.Error("authentication failed, token may be invalid", zap.Int("status", status))
			return Result{Kind: KindAuth, Status: status, Code: 401, Message: "token may be invalid (HTTP 401)"}
		}
		log.Error("http error", zap.Int("status", status))
		return transportErr(status, fmt.Errorf("http status %d", status))
	}

	res := classifyBody(status, respBody)
	switch res.Kind {
	case KindTransport:
		log.Error("malformed response", zap.Error(res.Err), zap.String("body", truncate(respBody, 500)))
	case KindAuth:
		log.Error("business auth failure", zap.Int("code", res.Code), zap.String("msg", res.Message))
	case KindBusiness:
		if cond := Classify(res.Message); cond.Benign() {
			log.Info("already done or not applicable", zap.String("condition", cond.String()), zap.String("msg", res.Message))
		} else {
			log.Error("business error", zap.Int("code", res.Code), zap.String("msg", res.Message))
		}
	}
	return res
}

func (c *Client) do(ctx context.Context, method, rawURL string, headers http.Header, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return 0, nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if h := req.Header.Get("Host"); h != "" {
		req.Host = h
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
