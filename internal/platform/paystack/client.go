package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
)

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	log        *zap.SugaredLogger
}

func NewClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) *Client {
	timeout := cfg.Paystack.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.Paystack.BaseURL, "/"),
		secretKey:  cfg.Paystack.SecretKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %v", ErrProvider, method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read body: %v", ErrProvider, err)
	}
	logctx.FromCtx(ctx, c.log).Debugw("paystack_call", "method", method, "path", path, "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 300 {
		var e envelope[json.RawMessage]
		_ = json.Unmarshal(raw, &e)
		return resp.StatusCode, fmt.Errorf("%w: %s %s: status %d: %s", ErrProvider, method, path, resp.StatusCode, e.Message)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode %s: %v", ErrProvider, path, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) InitializeTransaction(ctx context.Context, req *InitializeRequest) (*InitializeResult, error) {
	var out envelope[InitializeResult]
	if _, err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("%w: initialize: %s", ErrProvider, out.Message)
	}
	return &out.Data, nil
}

func (c *Client) CreateOrGetCustomer(ctx context.Context, email, name string) (*Customer, error) {
	var found envelope[Customer]
	code, err := c.do(ctx, http.MethodGet, "/customer/"+url.PathEscape(email), nil, &found)
	if err != nil {
		return nil, err
	}
	if code != http.StatusNotFound && found.Status && found.Data.CustomerCode != "" {
		return &found.Data, nil
	}

	first, last, _ := strings.Cut(name, " ")
	var created envelope[Customer]
	body := map[string]string{"email": email, "first_name": first, "last_name": last}
	if _, err := c.do(ctx, http.MethodPost, "/customer", body, &created); err != nil {
		return nil, err
	}
	if !created.Status {
		return nil, fmt.Errorf("%w: create customer: %s", ErrProvider, created.Message)
	}
	return &created.Data, nil
}

func (c *Client) CreateOrGetPlan(ctx context.Context, req *PlanRequest) (*Plan, error) {
	if req.Code != "" {
		var found envelope[Plan]
		code, err := c.do(ctx, http.MethodGet, "/plan/"+url.PathEscape(req.Code), nil, &found)
		if err != nil {
			return nil, err
		}
		if code != http.StatusNotFound && found.Status {
			return &found.Data, nil
		}
	}
	var created envelope[Plan]
	if _, err := c.do(ctx, http.MethodPost, "/plan", req, &created); err != nil {
		return nil, err
	}
	if !created.Status {
		return nil, fmt.Errorf("%w: create plan: %s", ErrProvider, created.Message)
	}
	return &created.Data, nil
}

func (c *Client) Refund(ctx context.Context, req *RefundRequest) (*Refund, error) {
	var out envelope[Refund]
	code, err := c.do(ctx, http.MethodPost, "/refund", req, &out)
	if err != nil {
		return nil, err
	}
	if code == http.StatusNotFound || !out.Status {
		return nil, fmt.Errorf("%w: refund %s: %s", ErrProvider, req.Transaction, out.Message)
	}
	return &out.Data, nil
}

var Module = fx.Options(
	fx.Provide(fx.Annotate(NewClient, fx.As(new(Gateway)))),
)
