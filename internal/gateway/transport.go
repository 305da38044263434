package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Payload holds the action parameters. Values are form-encoded the way
// jQuery.ajax posts them: slices become repeated "key[]" fields and maps or
// structs are sent as JSON strings.
type Payload map[string]any

// Envelope is the WordPress AJAX response body.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// Transport performs one round-trip for an action.
type Transport interface {
	Call(ctx context.Context, action string, payload Payload) (Envelope, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, action string, payload Payload) (Envelope, error)

func (f TransportFunc) Call(ctx context.Context, action string, payload Payload) (Envelope, error) {
	return f(ctx, action, payload)
}

type HTTPError struct {
	StatusCode int
	Action     string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d for %s: %s", e.StatusCode, e.Action, e.Message)
	}
	return fmt.Sprintf("http %d for %s", e.StatusCode, e.Action)
}

// HTTPTransport posts actions to a WordPress admin-ajax endpoint. Requests
// are never retried.
type HTTPTransport struct {
	endpoint   string
	nonce      string
	httpClient *http.Client
}

func NewHTTPTransport(endpoint, nonce string, httpClient *http.Client) *HTTPTransport {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8080/wp-admin/admin-ajax.php"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPTransport{
		endpoint:   endpoint,
		nonce:      strings.TrimSpace(nonce),
		httpClient: httpClient,
	}
}

func (t *HTTPTransport) Call(ctx context.Context, action string, payload Payload) (Envelope, error) {
	form, err := encodeForm(action, t.nonce, payload)
	if err != nil {
		return Envelope{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Envelope{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Correlation-Id", correlationID())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Envelope{}, err
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return Envelope{}, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Envelope{}, &HTTPError{
			StatusCode: resp.StatusCode,
			Action:     action,
			Message:    strings.TrimSpace(truncate(string(body), 200)),
		}
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode %s response: %w", action, err)
	}
	return env, nil
}

func encodeForm(action, nonce string, payload Payload) (url.Values, error) {
	form := url.Values{}
	form.Set("action", action)
	if nonce != "" {
		form.Set("nonce", nonce)
	}
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		switch v := payload[key].(type) {
		case nil:
		case string:
			form.Set(key, v)
		case bool:
			form.Set(key, strconv.FormatBool(v))
		case int:
			form.Set(key, strconv.Itoa(v))
		case int64:
			form.Set(key, strconv.FormatInt(v, 10))
		case float64:
			form.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
		case []string:
			for _, item := range v {
				form.Add(key+"[]", item)
			}
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", key, err)
			}
			form.Set(key, string(encoded))
		}
	}
	return form, nil
}

func correlationID() string {
	return fmt.Sprintf("estimator_%d", time.Now().UnixNano())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
