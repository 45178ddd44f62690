// Package recordclient 记录服务的 HTTP 客户端,实现 workflow.Remote
package recordclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// Options 客户端参数
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RPS        float64 // 每秒请求数上限,0 表示不限
	MaxRetries int     // 幂等请求的重试次数
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client 单一记录类型的服务客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	kind       *workflow.KindConfig
	limiter    *rate.Limiter
	maxRetries int
	log        logrus.FieldLogger
}

var _ workflow.Remote = (*Client)(nil)

// New 创建客户端
func New(kind *workflow.KindConfig, opts Options) (*Client, error) {
	if kind == nil {
		return nil, errors.New("record client requires a kind config")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), max(1, int(opts.RPS)))
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    base.String(),
		token:      opts.Token,
		kind:       kind,
		limiter:    limiter,
		maxRetries: opts.MaxRetries,
		log:        log.WithFields(logrus.Fields{"component": "record_client", "kind": kind.Name}),
	}, nil
}

// envelope 统一响应格式
type envelope struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Detail  string              `json:"detail"`
	Data    json.RawMessage     `json:"data"`
	Errors  map[string][]string `json:"errors"`
}

// List GET {list} -> data.{kind}
func (c *Client) List(ctx context.Context) ([]workflow.Record, error) {
	var data map[string][]workflow.Record
	if err := c.do(ctx, "load "+c.kind.Name, http.MethodGet, c.path(c.kind.Endpoints.List, ""), nil, &data); err != nil {
		return nil, err
	}
	return data[c.kind.Name], nil
}

// Create POST {create}
func (c *Client) Create(ctx context.Context, draft workflow.Draft) ([]workflow.Record, error) {
	var data []workflow.Record
	if err := c.do(ctx, "create "+c.kind.Name, http.MethodPost, c.path(c.kind.Endpoints.Create, ""), draft, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// Update POST {update}?_method=PUT
func (c *Client) Update(ctx context.Context, id string, draft workflow.Draft) (workflow.Record, error) {
	var rec workflow.Record
	err := c.do(ctx, "update "+c.kind.Name, http.MethodPost, withMethod(c.path(c.kind.Endpoints.Update, id), http.MethodPut), draft, &rec)
	return rec, err
}

// UpdateStatus POST {status}
func (c *Client) UpdateStatus(ctx context.Context, id string, req workflow.StatusRequest) (workflow.Record, error) {
	var rec workflow.Record
	err := c.do(ctx, "update "+c.kind.Name+" status", http.MethodPost, c.path(c.kind.Endpoints.Status, id), req, &rec)
	return rec, err
}

// Reschedule POST {reschedule}
func (c *Client) Reschedule(ctx context.Context, id string, req workflow.RescheduleRequest) (workflow.Record, error) {
	var rec workflow.Record
	err := c.do(ctx, "reschedule "+c.kind.Name, http.MethodPost, c.path(c.kind.Endpoints.Reschedule, id), req, &rec)
	return rec, err
}

// BulkUpdateStatus POST {bulk}
func (c *Client) BulkUpdateStatus(ctx context.Context, req workflow.BulkRequest) (workflow.BulkResult, error) {
	var result workflow.BulkResult
	err := c.do(ctx, "bulk update "+c.kind.Name, http.MethodPost, c.path(c.kind.Endpoints.Bulk, ""), req, &result)
	return result, err
}

// Delete POST {delete}?_method=DELETE
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete "+c.kind.Name, http.MethodPost, withMethod(c.path(c.kind.Endpoints.Delete, id), http.MethodDelete), nil, nil)
}

// Export 下载表格,原样写入 w
func (c *Client) Export(ctx context.Context, criteria workflow.Criteria, w io.Writer) (int64, error) {
	op := "export " + c.kind.Name
	q := url.Values{}
	setIf(q, "status", criteria.StatusTab)
	setIf(q, "search", criteria.SearchText)
	setIf(q, "from_date", criteria.DateFrom)
	setIf(q, "to_date", criteria.DateTo)
	target := c.path(c.kind.Endpoints.Export, "")
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	resp, err := c.send(ctx, op, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return 0, decodeError(op, resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &workflow.NetworkError{Op: op, Err: err}
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, op, method, target string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
	}
	resp, err := c.send(ctx, op, method, target, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(op, resp)
	}
	if out == nil {
		return nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &workflow.NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if env.Code != 0 {
		return &workflow.RemoteError{StatusCode: resp.StatusCode, Message: env.Message, Fields: env.Errors}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &workflow.NetworkError{Op: op, Err: fmt.Errorf("decode response data: %w", err)}
	}
	return nil
}

// send 发送请求; GET 在传输错误或 5xx 时按指数退避重试
func (c *Client) send(ctx context.Context, op, method, target string, payload []byte) (*http.Response, error) {
	attempts := 1
	if method == http.MethodGet {
		attempts += c.maxRetries
	}
	delay := 200 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &workflow.NetworkError{Op: op, Err: err}
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+target, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to build %s request: %w", op, err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = &workflow.NetworkError{Op: op, Err: err}
		case resp.StatusCode >= http.StatusInternalServerError && attempt < attempts:
			resp.Body.Close()
			lastErr = &workflow.NetworkError{Op: op, Err: fmt.Errorf("server returned %d", resp.StatusCode)}
		default:
			return resp, nil
		}
		if attempt == attempts || ctx.Err() != nil {
			break
		}

		c.log.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).WithError(lastErr).Debug("Retrying request")
		select {
		case <-ctx.Done():
			return nil, &workflow.NetworkError{Op: op, Err: ctx.Err()}
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}

// decodeError 4xx 为服务端拒绝,5xx 视为网络错误
func decodeError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var env envelope
	_ = json.Unmarshal(raw, &env)
	message := env.Message
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return &workflow.NetworkError{Op: op, Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, message)}
	}
	if env.Detail != "" && len(env.Errors) == 0 && env.Detail != message {
		message += ": " + env.Detail
	}
	return &workflow.RemoteError{StatusCode: resp.StatusCode, Message: message, Fields: env.Errors}
}

func (c *Client) path(template, id string) string {
	return c.kind.Endpoints.Path(template, c.kind.Name, url.PathEscape(id))
}

func withMethod(target, method string) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + "_method=" + method
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
