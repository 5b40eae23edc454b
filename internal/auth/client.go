// Package auth talks to the login and registration endpoints and keeps the
// issued session token on disk for the other commands.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/abelbrown/patientdesk/internal/logging"
)

// Endpoint paths.
const (
	PathLogin    = "/auth/login"
	PathRegister = "/auth/register"
)

// User-facing messages.
const (
	MsgMissingCredentials = "Email and password are required."
	MsgLoginFailed        = "Login failed!"
	MsgRegisterFailed     = "Register failed!"
)

// ErrMissingCredentials is returned before any request when the email or the
// password is blank.
var ErrMissingCredentials = errors.New(MsgMissingCredentials)

// Error is a failed login or registration. Message is what to show the user.
type Error struct {
	Status  int // 0 when no response arrived
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Client calls the auth endpoints.
type Client struct {
	http *resty.Client
}

// NewClient creates a Client for baseURL. A non-positive timeout means 10s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenBody struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (Token, error) {
	return c.exchange(ctx, PathLogin, email, password, MsgLoginFailed)
}

// Register creates an account and returns its first token.
func (c *Client) Register(ctx context.Context, email, password string) (Token, error) {
	return c.exchange(ctx, PathRegister, email, password, MsgRegisterFailed)
}

func (c *Client) exchange(ctx context.Context, path, email, password, fallback string) (Token, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return "", ErrMissingCredentials
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(credentials{Email: email, Password: password}).
		Post(path)
	if err != nil {
		logging.Warn("auth request failed", "path", path, "err", err)
		return "", &Error{Message: fallback, Err: err}
	}

	var body tokenBody
	_ = json.Unmarshal(resp.Body(), &body)

	if resp.IsError() {
		msg := strings.TrimSpace(body.Message)
		if msg == "" {
			msg = fallback
		}
		logging.Info("auth rejected", "path", path, "status", resp.StatusCode())
		return "", &Error{Status: resp.StatusCode(), Message: msg, Err: errors.New(http.StatusText(resp.StatusCode()))}
	}
	if body.Token == "" {
		return "", &Error{Status: resp.StatusCode(), Message: fallback, Err: fmt.Errorf("%s: response has no token", path)}
	}
	return Token(body.Token), nil
}
