// Package api is the HTTP transport for the patient service.
//
// It builds requests for the four read endpoints, attaches the session token
// and a request id, and maps every failure to an *Error with a Kind. It knows
// nothing about which query is current; that is the dispatcher's job.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/abelbrown/patientdesk/internal/logging"
	"github.com/abelbrown/patientdesk/internal/patient"
)

// Endpoint paths.
const (
	PathPatients = "/patients"
	PathFilter   = "/patients/filter"
	PathSort     = "/patients/sort"
	PathByID     = "/patients/id"
)

// HeaderRequestID carries the per-dispatch correlation id.
const HeaderRequestID = "X-Request-ID"

// TokenSource supplies the bearer token for each request.
// An error means "no token": the request is sent unauthenticated.
type TokenSource interface {
	Token() (string, error)
}

// Options configures a Client.
type Options struct {
	BaseURL       string
	Timeout       time.Duration // 0 means 10s
	RatePerSecond float64       // 0 means unlimited
	Burst         int           // 0 means 1
	Tokens        TokenSource   // optional
	UserAgent     string
}

// Client calls the patient service. Safe for concurrent use.
type Client struct {
	http    *resty.Client
	tokens  TokenSource
	limiter *rate.Limiter
}

// New creates a Client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "patientdesk/0.1"
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", ua)

	return &Client{
		http:    client,
		tokens:  opts.Tokens,
		limiter: rate.NewLimiter(limit, burst),
	}
}

type requestIDKey struct{}

// WithRequestID attaches a correlation id that is sent as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation id attached to ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ListPatients calls GET /patients.
func (c *Client) ListPatients(ctx context.Context) ([]patient.Record, error) {
	return c.getList(ctx, PathPatients, nil, nil)
}

// FilterPatients calls GET /patients/filter. Blank parameters are omitted.
func (c *Client) FilterPatients(ctx context.Context, name string, bornOnOrBefore patient.Date) ([]patient.Record, error) {
	params := map[string]string{}
	if name = strings.TrimSpace(name); name != "" {
		params["filterName"] = name
	}
	if !bornOnOrBefore.IsZero() {
		params["dateOfBirth"] = bornOnOrBefore.String()
	}
	return c.getList(ctx, PathFilter, params, nil)
}

// SortPatients calls GET /patients/sort, bypassing any HTTP cache.
func (c *Client) SortPatients(ctx context.Context, key patient.SortKey) ([]patient.Record, error) {
	params := map[string]string{}
	if key.IsSet() {
		params["sortBy"] = string(key)
	}
	return c.getList(ctx, PathSort, params, map[string]string{"Cache-Control": "no-cache"})
}

// GetPatient calls GET /patients/id. An empty or null body is NotFound.
func (c *Client) GetPatient(ctx context.Context, id string) (patient.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return patient.Record{}, &Error{Kind: NotFound, Err: errors.New("empty patient id")}
	}

	body, err := c.get(ctx, PathByID, map[string]string{"id": id}, nil)
	if err != nil {
		return patient.Record{}, err
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return patient.Record{}, &Error{Kind: NotFound, Status: http.StatusOK, Err: fmt.Errorf("patient %s: empty response", id)}
	}

	var rec patient.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return patient.Record{}, &Error{Kind: ServerError, Status: http.StatusOK, Err: fmt.Errorf("parse patient: %w", err)}
	}
	if rec.ID == "" {
		return patient.Record{}, &Error{Kind: NotFound, Status: http.StatusOK, Err: fmt.Errorf("patient %s: response has no id", id)}
	}
	return rec, nil
}

func (c *Client) getList(ctx context.Context, path string, params, headers map[string]string) ([]patient.Record, error) {
	body, err := c.get(ctx, path, params, headers)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return []patient.Record{}, nil
	}

	var records []patient.Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, &Error{Kind: ServerError, Status: http.StatusOK, Err: fmt.Errorf("parse patients: %w", err)}
	}
	if records == nil {
		records = []patient.Record{}
	}
	if dups := patient.DuplicateIDs(records); len(dups) > 0 {
		logging.Warn("patient api returned duplicate ids", "path", path, "ids", dups)
	}
	return records, nil
}

// get performs one GET and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, path string, params, headers map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: NetworkFailure, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetHeaders(headers)

	if id := RequestID(ctx); id != "" {
		req.SetHeader(HeaderRequestID, id)
	}
	if c.tokens != nil {
		if token, err := c.tokens.Token(); err == nil && token != "" {
			req.SetAuthToken(token)
		}
	}

	start := time.Now()
	resp, err := req.Get(path)
	if err != nil {
		logging.Debug("patient api transport error", "path", path, "request_id", RequestID(ctx), "err", err)
		return nil, &Error{Kind: NetworkFailure, Err: err}
	}

	logging.Debug("patient api response",
		"path", path,
		"request_id", RequestID(ctx),
		"status", resp.StatusCode(),
		"dur", time.Since(start))

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, statusError(resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}

// statusError maps a non-2xx response to an *Error, keeping the server's
// message field when the body carries one.
func statusError(status int, body []byte) *Error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	kind := ServerError
	if status == http.StatusNotFound {
		kind = NotFound
	}
	return &Error{
		Kind:    kind,
		Status:  status,
		Message: strings.TrimSpace(eb.Message),
		Err:     errors.New(http.StatusText(status)),
	}
}
