package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBarkServer = "https://api.day.app"
	barkTimeout       = 10 * time.Second
)

// BarkNotifier pushes through a Bark server with a templated GET request.
type BarkNotifier struct {
	endpoint string
	hc       *http.Client
	// Fallback receives a failure report when a push cannot be delivered.
	Fallback Notifier
	Log      *zap.Logger
}

// NewBark accepts either a bare device key or a full push URL as key.
// server overrides the public Bark server when it is an http(s) URL.
func NewBark(key, server string, log *zap.Logger) (*BarkNotifier, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("bark key is empty")
	}
	var endpoint string
	switch {
	case strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://"):
		endpoint = strings.TrimRight(key, "/")
	case strings.HasPrefix(server, "http://") || strings.HasPrefix(server, "https://"):
		endpoint = strings.TrimRight(server, "/") + "/" + key
	default:
		endpoint = DefaultBarkServer + "/" + key
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BarkNotifier{endpoint: endpoint, hc: &http.Client{Timeout: barkTimeout}, Log: log}, nil
}

// URL builds the push URL for msg.
func (b *BarkNotifier) URL(msg Message) string {
	title := msg.Title
	if msg.Subtitle != "" {
		title += " - " + msg.Subtitle
	}
	u := b.endpoint + "/" + url.PathEscape(title) + "/" + url.PathEscape(msg.Body)

	q := url.Values{}
	o := msg.Options
	if o.Group != "" {
		q.Set("group", o.Group)
	}
	if o.Level != "" {
		q.Set("level", o.Level)
	}
	if o.URL != "" {
		q.Set("url", o.URL)
	}
	if o.Icon != "" {
		q.Set("icon", o.Icon)
	}
	if o.Sound != "" {
		q.Set("sound", o.Sound)
	}
	if o.IsArchive {
		q.Set("isArchive", "1")
	}
	if o.Copy != "" {
		q.Set("copy", o.Copy)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (b *BarkNotifier) Notify(ctx context.Context, msg Message) error {
	err := b.push(ctx, msg)
	if err != nil {
		b.Log.Error("bark push failed", zap.String("title", msg.Title), zap.Error(err))
		if b.Fallback != nil {
			_ = b.Fallback.Notify(ctx, Message{Title: "Bark push failed", Subtitle: msg.Title, Body: err.Error()})
		}
		return err
	}
	b.Log.Debug("bark push sent", zap.String("title", msg.Title))
	return nil
}

func (b *BarkNotifier) push(ctx context.Context, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.URL(msg), nil)
	if err != nil {
		return err
	}
	res, err := b.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("bark http %d: %s", res.StatusCode, string(body))
	}
	var r struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &r); err == nil && r.Code != 0 && r.Code != http.StatusOK {
		b.Log.Warn("bark accepted request but reported an error", zap.Int("code", r.Code), zap.String("msg", r.Message))
	}
	return nil
}
