package dialogs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/netchat/internal/errors"
	"github.com/alexjbarnes/netchat/internal/message"
	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the social network API root.
const DefaultBaseURL = "https://social-network.samuraijs.com/api/1.0"

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout applies to the default HTTP client only.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads.
	maxAPIResponseBytes = 1024 * 1024

	userAgent = "netchat"
)

// ClientConfig configures a Client. Zero values fall back to defaults.
type ClientConfig struct {
	BaseURL string
	// APIKey is sent in the API-KEY header on every request.
	APIKey string
	// Cookie is the raw session cookie header, if the account uses one.
	Cookie     string
	HTTPClient *http.Client
}

// Client talks to the dialogs REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cookie     string
	logger     *slog.Logger
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so the API key and cookie never
// reach another domain.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     cfg.APIKey,
		cookie:     cfg.Cookie,
		logger:     logger,
	}
}

// sanitizeResponseBody truncates a response body to 256 bytes and
// replaces invalid UTF-8 and control characters for inclusion in errors.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// apiMessage pulls a human readable failure out of a response body. The
// API reports failures as {"resultCode":1,"messages":["..."]} or, on the
// messages endpoint, {"error":"..."}.
func apiMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}

	res := gjson.ParseBytes(body)

	if msgs := res.Get("messages"); msgs.IsArray() {
		var parts []string

		for _, m := range msgs.Array() {
			if s := strings.TrimSpace(m.String()); s != "" {
				parts = append(parts, s)
			}
		}

		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}

	for _, key := range []string{"error", "message"} {
		if v := res.Get(key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}

	return ""
}

// do sends a request and returns the response body. Failures come back as
// *apperrors.RequestError: network errors and retryable statuses are
// transient, a 2xx body with a non-zero resultCode is not.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body any) (int, []byte, error) {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshalling request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.apiKey != "" {
		req.Header.Set("API-KEY", c.apiKey)
	}

	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", slog.String("op", op), slog.String("error", err.Error()))

		return 0, nil, &apperrors.RequestError{
			Op:        op,
			Transient: true,
			Err:       fmt.Errorf("%w: %w", apperrors.ErrAPIRequest, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, &apperrors.RequestError{
			Op:        op,
			Status:    resp.StatusCode,
			Transient: true,
			Err:       fmt.Errorf("reading response: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := apiMessage(respBody)
		if detail == "" {
			detail = sanitizeResponseBody(respBody)
		}

		c.logger.Warn("request rejected",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("detail", detail),
		)

		return resp.StatusCode, nil, &apperrors.RequestError{
			Op:        op,
			Status:    resp.StatusCode,
			Transient: isTransientStatus(resp.StatusCode),
			Err:       fmt.Errorf("%w: %s", apperrors.ErrAPIRequest, detail),
		}
	}

	if code := gjson.GetBytes(respBody, "resultCode"); code.Exists() && code.Int() != 0 {
		detail := apiMessage(respBody)
		if detail == "" {
			detail = "resultCode " + strconv.FormatInt(code.Int(), 10)
		}

		c.logger.Warn("request refused", slog.String("op", op), slog.String("detail", detail))

		return resp.StatusCode, nil, &apperrors.RequestError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%w: %s", apperrors.ErrAPIResponse, detail),
		}
	}

	return resp.StatusCode, respBody, nil
}

func decodeFailure(op string, status int, reason string, err error) error {
	return &apperrors.RequestError{
		Op:     op,
		Status: status,
		Err:    &apperrors.DecodeError{Reason: reason, Err: err},
	}
}

// Dialogs lists the conversations of the signed in user.
func (c *Client) Dialogs(ctx context.Context) ([]Dialog, error) {
	const op = "listing dialogs"

	status, body, err := c.do(ctx, op, http.MethodGet, "dialogs", nil)
	if err != nil {
		return nil, err
	}

	var wire []wireDialog
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, decodeFailure(op, status, "malformed dialog list", err)
	}

	out := make([]Dialog, len(wire))
	for i, w := range wire {
		out[i] = w.toDialog()
	}

	return out, nil
}

// StartDialog opens (or refreshes) the conversation with userID so it
// shows at the top of the dialog list.
func (c *Client) StartDialog(ctx context.Context, userID int64) error {
	_, _, err := c.do(ctx, "starting dialog", http.MethodPut, "dialogs/"+strconv.FormatInt(userID, 10), nil)
	return err
}

// Messages fetches one page of the conversation with userID, oldest first.
func (c *Client) Messages(ctx context.Context, userID int64, page, count int) ([]message.Message, error) {
	const op = "fetching messages"

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("count", strconv.Itoa(count))

	endpoint := "dialogs/" + strconv.FormatInt(userID, 10) + "/messages?" + q.Encode()

	status, body, err := c.do(ctx, op, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	if detail := gjson.GetBytes(body, "error"); detail.Type == gjson.String && detail.String() != "" {
		return nil, &apperrors.RequestError{
			Op:     op,
			Status: status,
			Err:    fmt.Errorf("%w: %s", apperrors.ErrAPIResponse, detail.String()),
		}
	}

	items := gjson.GetBytes(body, "items")
	if !items.IsArray() {
		return nil, decodeFailure(op, status, "page without items", nil)
	}

	var wire []wireMessage
	if err := json.Unmarshal([]byte(items.Raw), &wire); err != nil {
		return nil, decodeFailure(op, status, "malformed message", err)
	}

	out := make([]message.Message, 0, len(wire))

	for _, w := range wire {
		m, err := w.toMessage()
		if err != nil {
			return nil, decodeFailure(op, status, "malformed message", err)
		}

		out = append(out, m)
	}

	return out, nil
}

// SendMessage posts body to the conversation with userID.
func (c *Client) SendMessage(ctx context.Context, userID int64, body string) error {
	payload := struct {
		Body string `json:"body"`
	}{Body: body}

	_, _, err := c.do(ctx, "sending message", http.MethodPost, "dialogs/"+strconv.FormatInt(userID, 10)+"/messages", payload)

	return err
}

// RemoveMessage deletes a message on the server. It can be restored
// until the server purges it.
func (c *Client) RemoveMessage(ctx context.Context, messageID string) error {
	_, _, err := c.do(ctx, "removing message", http.MethodDelete, "dialogs/messages/"+url.PathEscape(messageID), nil)
	return err
}

// RestoreMessage undoes RemoveMessage.
func (c *Client) RestoreMessage(ctx context.Context, messageID string) error {
	_, _, err := c.do(ctx, "restoring message", http.MethodPut, "dialogs/messages/"+url.PathEscape(messageID)+"/restore", nil)
	return err
}

// MarkSpam moves a message to spam.
func (c *Client) MarkSpam(ctx context.Context, messageID string) error {
	_, _, err := c.do(ctx, "marking spam", http.MethodPost, "dialogs/messages/"+url.PathEscape(messageID)+"/spam", nil)
	return err
}
