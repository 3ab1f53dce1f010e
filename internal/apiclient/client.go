// Package apiclient talks to the matchcall HTTP API. It implements
// calls.Store and directory.Directory so a remote call agent can drive the
// same state machine the server-side tests use in-process.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"matchcall/internal/auth"
	"matchcall/internal/calls"
	"matchcall/internal/directory"

	"github.com/go-resty/resty/v2"
)

var ErrUnauthorized = errors.New("apiclient: unauthorized")

const DefaultTimeout = 10 * time.Second

type Client struct {
	http *resty.Client

	mu      sync.Mutex
	refresh string
}

type apiError struct {
	Error string `json:"error"`
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: rc}
}

// Login obtains a token pair for userID and uses the access token from then on.
func (c *Client) Login(ctx context.Context, userID string) (auth.TokenPair, error) {
	var pair auth.TokenPair
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"user_id": userID}).
		SetResult(&pair).
		SetError(&apiErr).
		Post("/v1/auth/login")
	if err := check(resp, err, &apiErr, calls.ErrInvalidArgument); err != nil {
		return auth.TokenPair{}, err
	}
	c.use(pair)
	return pair, nil
}

// Refresh swaps the stored refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context) (auth.TokenPair, error) {
	c.mu.Lock()
	token := c.refresh
	c.mu.Unlock()
	if token == "" {
		return auth.TokenPair{}, ErrUnauthorized
	}

	var pair auth.TokenPair
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"refresh_token": token}).
		SetResult(&pair).
		SetError(&apiErr).
		Post("/v1/auth/refresh")
	if err := check(resp, err, &apiErr, calls.ErrInvalidArgument); err != nil {
		return auth.TokenPair{}, err
	}
	c.use(pair)
	return pair, nil
}

func (c *Client) use(pair auth.TokenPair) {
	c.mu.Lock()
	c.refresh = pair.RefreshToken
	c.mu.Unlock()
	c.http.SetAuthToken(pair.AccessToken)
}

func (c *Client) CreateSession(ctx context.Context, callerID, receiverID string, callType calls.CallType) (calls.Session, error) {
	var out calls.Session
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"receiver_id": receiverID, "call_type": callType}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/calls")
	if err := check(resp, err, &apiErr, calls.ErrNotFound); err != nil {
		return calls.Session{}, err
	}
	if out.CallerID != callerID {
		return calls.Session{}, fmt.Errorf("%w: session opened for %q, not %q", calls.ErrInvalidArgument, out.CallerID, callerID)
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id string) (calls.Session, error) {
	var out calls.Session
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/calls/{id}")
	if err := check(resp, err, &apiErr, calls.ErrNotFound); err != nil {
		return calls.Session{}, err
	}
	return out, nil
}

func (c *Client) MarkActive(ctx context.Context, id string) (calls.Session, error) {
	var out calls.Session
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/calls/{id}/active")
	if err := check(resp, err, &apiErr, calls.ErrNotFound); err != nil {
		return calls.Session{}, err
	}
	return out, nil
}

func (c *Client) MarkTerminal(ctx context.Context, id string, status calls.Status, reason string, durationSeconds int) (calls.Session, error) {
	var out calls.Session
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetBody(map[string]any{"status": status, "reason": reason, "duration_seconds": durationSeconds}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/calls/{id}/terminal")
	if err := check(resp, err, &apiErr, calls.ErrNotFound); err != nil {
		return calls.Session{}, err
	}
	return out, nil
}

func (c *Client) Profile(ctx context.Context, userID string) (directory.Profile, error) {
	var out directory.Profile
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("user_id", userID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/profiles/{user_id}")
	if err := check(resp, err, &apiErr, directory.ErrNotFound); err != nil {
		return directory.Profile{}, err
	}
	return out, nil
}

// check maps transport errors and HTTP statuses onto package sentinels.
func check(resp *resty.Response, err error, apiErr *apiError, notFound error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	msg := apiErr.Error
	if msg == "" {
		msg = resp.Status()
	}
	switch resp.StatusCode() {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", calls.ErrInvalidArgument, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", notFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", calls.ErrConflict, msg)
	default:
		return fmt.Errorf("apiclient: %d: %s", resp.StatusCode(), msg)
	}
}
