package action

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// httpRequest — аргументы http.request.
type httpRequest struct {
	Method          string            `mapstructure:"method"`
	URL             string            `mapstructure:"url"`
	Headers         map[string]string `mapstructure:"headers"`
	Body            any               `mapstructure:"body"`
	FollowRedirects bool              `mapstructure:"follow_redirects"`
	ValidateSSL     bool              `mapstructure:"validate_ssl"`
	TimeoutSec      int               `mapstructure:"timeout_sec"`
	FailOnStatus    bool              `mapstructure:"fail_on_status"`
}

// HTTPError — ответ с кодом 4xx/5xx при fail_on_status.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

var httpParams = []Param{
	{Name: "url"},
	{Name: "method", Default: http.MethodGet, HasDefault: true},
	{Name: "headers", HasDefault: true},
	{Name: "body", HasDefault: true},
	{Name: "follow_redirects", Default: true, HasDefault: true},
	{Name: "validate_ssl", Default: true, HasDefault: true},
	{Name: "timeout_sec", Default: 0, HasDefault: true},
	{Name: "fail_on_status", Default: false, HasDefault: true},
}

// RegisterWeb регистрирует модуль http (request, get, post) и модуль time (sleep).
//
// Результат http-функций — карта {status_code, headers, body}; JSON-ответ
// разбирается, остальное возвращается строкой.
func RegisterWeb(r *FuncRegistry) {
	r.Register("http", "request", Function{Params: httpParams, Fn: doHTTP})
	r.Register("http", "get", Function{
		Params: []Param{{Name: "url"}, {Name: "headers", HasDefault: true}},
		Fn: func(ctx context.Context, args Args) (any, error) {
			args["method"] = http.MethodGet
			return doHTTP(ctx, withDefaults(args))
		},
	})
	r.Register("http", "post", Function{
		Params: []Param{{Name: "url"}, {Name: "body", HasDefault: true}, {Name: "headers", HasDefault: true}},
		Fn: func(ctx context.Context, args Args) (any, error) {
			args["method"] = http.MethodPost
			return doHTTP(ctx, withDefaults(args))
		},
	})

	r.Register("time", "sleep", Function{
		Params: []Param{{Name: "seconds", Default: 0, HasDefault: true}, {Name: "milliseconds", Default: 0, HasDefault: true}},
		Fn:     sleep,
	})
}

func withDefaults(args Args) Args {
	for _, p := range httpParams {
		if _, ok := args.Value(p.Name); !ok && p.HasDefault {
			args[p.Name] = p.Default
		}
	}
	return args
}

func doHTTP(ctx context.Context, args Args) (any, error) {
	if s, ok := args["headers"].(string); ok && s != "" {
		var h map[string]string
		if err := json.Unmarshal([]byte(s), &h); err != nil {
			return nil, fmt.Errorf("parse headers: %w", err)
		}
		args["headers"] = h
	}

	var req httpRequest
	if err := args.Decode(&req); err != nil {
		return nil, err
	}
	if req.URL == "" {
		return nil, errors.New("url is required")
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	req.Method = strings.ToUpper(req.Method)
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}

	httpReq, err := buildRequest(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := buildClient(&req).Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	return parseResponse(resp, req.FailOnStatus)
}

func buildClient(req *httpRequest) *http.Client {
	timeout := defaultHTTPTimeout
	if req.TimeoutSec > 0 {
		timeout = time.Duration(req.TimeoutSec) * time.Second
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if !req.FollowRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !req.ValidateSSL},
		},
	}
}

func buildRequest(ctx context.Context, req *httpRequest) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil && req.Body != "" {
		b, err := serializeBody(req.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		body = bytes.NewReader(b)

		if _, ok := req.Headers["Content-Type"]; !ok {
			req.Headers["Content-Type"] = "application/json"
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func parseResponse(resp *http.Response, failOnStatus bool) (any, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if failOnStatus && resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}
	}

	var body any = string(raw)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err == nil {
			body = parsed
		}
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}, nil
}

// sleep приостанавливает flow; отмена ctx прерывает ожидание.
func sleep(ctx context.Context, args Args) (any, error) {
	sec, err := args.Float("seconds")
	if err != nil {
		return nil, err
	}
	ms, err := args.Int("milliseconds")
	if err != nil {
		return nil, err
	}

	d := time.Duration(sec*float64(time.Second)) + time.Duration(ms)*time.Millisecond
	if d <= 0 {
		return nil, errors.New("seconds or milliseconds must be positive")
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return d.Milliseconds(), nil
	}
}
