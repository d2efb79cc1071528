// Package remote is the HTTP gateway to the backend API that synced
// records are pushed to. It speaks the server's JSON envelope and
// retries transient failures with exponential backoff.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

var (
	// ErrConflict means the server rejected the submission because the
	// record was modified remotely. Never retried.
	ErrConflict = errors.New("remote record conflict")

	// ErrRejected means the server refused the submission for a
	// non-transient reason (validation, auth). Never retried.
	ErrRejected = errors.New("remote rejected record")
)

// envelope is the server's response shape. Only the fields the sync
// path needs are decoded.
type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		ServerID string `json:"server_id"`
	} `json:"data"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Client pushes and deletes records against the remote API.
type Client struct {
	baseURL    string
	authToken  string
	http       *http.Client
	logger     *log.Logger
	maxRetries uint64
}

func NewClient(baseURL string, timeout time.Duration, maxRetries int, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentRemote)
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Client{
		baseURL:    baseURL,
		http:       &http.Client{Timeout: timeout},
		logger:     logger,
		maxRetries: uint64(maxRetries),
	}
}

// SetAuthToken sets the bearer token attached to every request.
func (c *Client) SetAuthToken(token string) {
	c.authToken = token
}

// PushRecord submits a record and returns the server-assigned
// identifier. Transient failures (network, 5xx) are retried with
// exponential backoff; conflicts and client errors are returned as-is.
func (c *Client) PushRecord(ctx context.Context, kind core.Kind, record json.RawMessage) (string, error) {
	url := fmt.Sprintf("%s/api/records/%s", c.baseURL, kind)

	var serverID string
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(record))
		if err != nil {
			return fmt.Errorf("build push request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		env, status, err := c.do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("push %s record: %w", kind, err))
		}
		if err := c.classify(env, status); err != nil {
			return err
		}

		serverID = env.Data.ServerID
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.InfoContext(ctx, "Record pushed to remote",
		log.FieldKind, kind,
		log.FieldServerID, serverID)

	return serverID, nil
}

// DeleteRecord removes a record from the remote by its local
// identifier. Deleting a record the remote never saw is not an error.
func (c *Client) DeleteRecord(ctx context.Context, kind core.Kind, localID string) error {
	url := fmt.Sprintf("%s/api/records/%s/%s", c.baseURL, kind, localID)

	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err != nil {
			return fmt.Errorf("build delete request: %w", err)
		}
		c.authorize(req)

		env, status, err := c.do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("delete %s record: %w", kind, err))
		}
		if status == http.StatusNotFound {
			return nil
		}
		return c.classify(env, status)
	})
	if err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "Record deleted from remote",
		log.FieldKind, kind,
		log.FieldLocalID, localID)

	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

func (c *Client) do(req *http.Request) (envelope, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return envelope{}, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}

	var env envelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return envelope{}, resp.StatusCode, fmt.Errorf("decode response body: %w", err)
		}
	}
	return env, resp.StatusCode, nil
}

// classify turns a decoded response into success, a permanent error or
// a retryable one.
func (c *Client) classify(env envelope, status int) error {
	switch {
	case status >= 200 && status < 300 && env.Success:
		return nil
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, errorMessage(env))
	case status >= 500:
		return retry.RetryableError(fmt.Errorf("remote returned %d: %s", status, errorMessage(env)))
	default:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, status, errorMessage(env))
	}
}

func errorMessage(env envelope) string {
	if env.Error != nil {
		return env.Error.Message
	}
	return "no error detail"
}

func (c *Client) backoff() retry.Backoff {
	b := retry.NewExponential(500 * time.Millisecond)
	b = retry.WithCappedDuration(10*time.Second, b)
	return retry.WithMaxRetries(c.maxRetries, b)
}
