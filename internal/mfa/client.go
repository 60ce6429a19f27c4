package mfa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/availity-rpa/internal/config"
)

// Client is the bot side of the handoff.
type Client struct {
	baseURL      string
	http         *http.Client
	scriptType   string
	pollInterval time.Duration
	waitTimeout  time.Duration
	logger       *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the backend at cfg.BaseURL.
func NewClient(cfg config.MFAConfig, scriptType string, logger *zap.Logger, opts ...ClientOption) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		http:         &http.Client{Timeout: timeout},
		scriptType:   scriptType,
		pollInterval: cfg.PollInterval,
		waitTimeout:  cfg.WaitTimeout,
		logger:       logger.Named("mfa_client"),
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 3 * time.Second
	}
	if c.waitTimeout <= 0 {
		c.waitTimeout = DefaultTTL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestSession asks the backend for a new session id.
func (c *Client) RequestSession(ctx context.Context) (string, error) {
	body, err := json.Marshal(requestBody{ScriptType: c.scriptType})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mfa-request", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting mfa session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("requesting mfa session: unexpected status %d", resp.StatusCode)
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding mfa session: %w", err)
	}
	if out.SessionID == "" {
		return "", errors.New("requesting mfa session: empty session_id")
	}
	c.logger.Info("MFA session requested", zap.String("session_id", out.SessionID), zap.String("state", string(SessionRequested)))
	return out.SessionID, nil
}

// WaitForCode polls the session until a code arrives. An expired or unknown
// session fails fast with ErrExpired; running out of time returns ErrTimeout.
// Transient request errors are logged and polling continues.
func (c *Client) WaitForCode(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", ErrNotFound
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(c.pollInterval), 1)
	c.logger.Info("Waiting for MFA code", zap.String("session_id", id), zap.String("state", string(AwaitingCode)),
		zap.Duration("timeout", c.waitTimeout))

	for {
		if err := limiter.Wait(waitCtx); err != nil {
			// Wait fails early when the next token lands past the deadline.
			<-waitCtx.Done()
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Error("Timed out waiting for MFA code", zap.String("session_id", id))
			return "", ErrTimeout
		}

		code, err := c.check(waitCtx, id)
		switch {
		case err == nil && code != "":
			c.logger.Info("MFA code received", zap.String("session_id", id), zap.String("state", string(CodeReceived)))
			return code, nil
		case errors.Is(err, ErrExpired):
			c.logger.Error("MFA session expired", zap.String("session_id", id), zap.String("state", string(Expired)))
			return "", err
		case err != nil:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Warn("MFA poll failed", zap.String("session_id", id), zap.Error(err))
		}
	}
}

func (c *Client) check(ctx context.Context, id string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/mfa-check/"+url.PathEscape(id), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", ErrExpired
	default:
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding mfa check: %w", err)
	}
	if out.Status == "expired" {
		return "", ErrExpired
	}
	if out.Code == nil {
		return "", nil
	}
	return *out.Code, nil
}
