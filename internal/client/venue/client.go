package venue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a thin REST client for the futures venue gateway.
type Client struct {
	host       string
	httpClient *http.Client
	auth       Auth
	now        func() time.Time
}

type Auth struct {
	APIKeyHeader string
	APIKey       string
	APISecret    string
	SignRequests bool
	// Optional headers for HMAC mode.
	TimestampHeader string
	SignatureHeader string
}

type APIError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("venue API error (%d): %s", e.Status, e.Body)
}

// IsPacing reports whether err is a venue rate-limit response.
func IsPacing(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// IsNotFound reports whether err is a venue 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsRejected reports whether err is a venue refusal of the request itself,
// as opposed to a transport or server failure.
func IsRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnprocessableEntity || apiErr.Status == http.StatusConflict
}

func NewClient(httpClient *http.Client, host string, auth Auth) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		host:       strings.TrimRight(strings.TrimSpace(host), "/"),
		httpClient: httpClient,
		auth:       auth,
		now:        time.Now,
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload any, out any) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("client is nil")
	}
	if c.host == "" {
		return fmt.Errorf("venue host is empty")
	}
	canonicalPath := normalizePath(path)
	if len(query) > 0 {
		canonicalPath += "?" + query.Encode()
	}
	var body io.Reader
	bodyRaw := []byte{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		bodyRaw = raw
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+canonicalPath, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req, method, canonicalPath, bodyRaw)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return decodeEnvelope(respBody, out)
}

func (c *Client) authorize(req *http.Request, method, canonicalPath string, body []byte) {
	if v := strings.TrimSpace(c.auth.APIKey); v != "" {
		h := strings.TrimSpace(c.auth.APIKeyHeader)
		if h == "" {
			h = "X-API-Key"
		}
		req.Header.Set(h, v)
	}
	if !c.auth.SignRequests || strings.TrimSpace(c.auth.APISecret) == "" {
		return
	}
	ts := strconv.FormatInt(c.now().UTC().Unix(), 10)
	th := strings.TrimSpace(c.auth.TimestampHeader)
	if th == "" {
		th = "X-Timestamp"
	}
	sh := strings.TrimSpace(c.auth.SignatureHeader)
	if sh == "" {
		sh = "X-Signature"
	}
	req.Header.Set(th, ts)
	req.Header.Set(sh, Sign(c.auth.APISecret, ts, method, canonicalPath, body))
}

// Sign computes the request signature: base64(HMAC-SHA256(secret,
// ts \n METHOD \n path?query \n body)).
func Sign(secret, ts, method, canonicalPath string, body []byte) string {
	payload := ts + "\n" + strings.ToUpper(strings.TrimSpace(method)) + "\n" + canonicalPath + "\n" + string(body)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// decodeEnvelope accepts both {"data": ...} and bare payloads.
func decodeEnvelope(raw []byte, out any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(raw, out)
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
