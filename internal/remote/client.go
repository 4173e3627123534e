// Package remote implements the client shim for the hosted VisoLearn app.
//
// The remote surface is a fixed set of named endpoints invoked over HTTP:
// a call is submitted as POST {app}/call/{op} with a JSON argument array and
// the result is read back from GET {app}/call/{op}/{event} as a server-sent
// event stream. Payloads are decoded into typed results at this boundary;
// nothing untyped crosses out of the package.
package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Named remote operations.
const (
	opGenerateImage     = "generate_image_and_reset_chat"
	opChatRespond       = "chat_respond"
	opSaveSessionLog    = "save_session_log"
	opSaveSessionImages = "save_all_session_images"
	opChecklistHTML     = "update_checklist_html"
	opProgressHTML      = "update_progress_html"
	opAttemptCounter    = "update_attempt_counter"
	opSessions          = "update_sessions"
	opDifficultyLabel   = "update_difficulty_label"
)

// Remote runtime stages we care about.
const (
	stageRunning         = "RUNNING"
	stageRunningBuilding = "RUNNING_BUILDING"
	stageSleeping        = "SLEEPING"
)

// Config holds transport configuration for the client.
type Config struct {
	// HubURL is the API host that reports the hosted app's runtime state.
	HubURL string
	// AppURL is the hosted app's own endpoint base.
	AppURL string
	// Space is the hosted app identifier (owner/name).
	Space string
	// DisableQueue, when set, appends the opaque queue-bypass parameter to
	// every call URL. Its remote semantics are undocumented; the client
	// passes it through unchanged.
	DisableQueue bool

	ConnectTimeout  time.Duration
	RequestTimeout  time.Duration
	GenerateTimeout time.Duration
	WakeWait        time.Duration
	PollInterval    time.Duration
}

// DefaultConfig returns default transport configuration.
func DefaultConfig() Config {
	return Config{
		HubURL:          "https://huggingface.co",
		Space:           "Compumacy/VisoLearn",
		ConnectTimeout:  10 * time.Second,
		RequestTimeout:  30 * time.Second,
		GenerateTimeout: 120 * time.Second,
		WakeWait:        2 * time.Minute,
		PollInterval:    5 * time.Second,
	}
}

// Client is a handle to the remote service. Exactly one live handle exists
// per session; the session layer replaces it atomically on credential change.
type Client struct {
	cfg    Config
	token  string
	http   *http.Client
	logger *slog.Logger

	// stage is the runtime stage observed at dial time. Validate refreshes
	// it while Stage may be read from another request, so both go through
	// the mutex; the handle is otherwise immutable.
	mu    sync.Mutex
	stage string
}

// Dial verifies the credential against the remote runtime endpoint and
// returns a connected handle. It fails fast: an empty or malformed token
// never reaches the network.
func Dial(ctx context.Context, token string, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HubURL == "" || cfg.PollInterval == 0 {
		def := DefaultConfig()
		if cfg.HubURL == "" {
			cfg.HubURL = def.HubURL
		}
		if cfg.Space == "" {
			cfg.Space = def.Space
		}
		if cfg.ConnectTimeout == 0 {
			cfg.ConnectTimeout = def.ConnectTimeout
		}
		if cfg.RequestTimeout == 0 {
			cfg.RequestTimeout = def.RequestTimeout
		}
		if cfg.GenerateTimeout == 0 {
			cfg.GenerateTimeout = def.GenerateTimeout
		}
		if cfg.WakeWait == 0 {
			cfg.WakeWait = def.WakeWait
		}
		if cfg.PollInterval == 0 {
			cfg.PollInterval = def.PollInterval
		}
	}
	if cfg.AppURL == "" {
		cfg.AppURL = appURLForSpace(cfg.Space)
	}

	if err := checkTokenShape(token); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		token:  token,
		http:   &http.Client{},
		logger: logger,
	}

	probeCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	stage, err := c.runtimeStage(probeCtx)
	if err != nil {
		return nil, err
	}
	c.setStage(stage)

	logger.Info("connected to remote service", "space", cfg.Space, "stage", stage)
	return c, nil
}

// checkTokenShape rejects credentials that cannot possibly be valid before
// any network I/O happens.
func checkTokenShape(token string) error {
	if token == "" {
		return fmt.Errorf("%w: no token provided; set VISOLEARN_TOKEN or enter a token in the UI", ErrAuth)
	}
	if strings.TrimSpace(token) != token || strings.ContainsAny(token, " \t\r\n") {
		return fmt.Errorf("%w: token contains whitespace", ErrAuth)
	}
	return nil
}

// appURLForSpace derives the hosted app endpoint from the owner/name
// identifier the hub uses.
func appURLForSpace(space string) string {
	host := strings.ToLower(strings.ReplaceAll(space, "/", "-"))
	return "https://" + host + ".hf.space"
}

// runtimeStage probes the hub for the hosted app's runtime stage and
// classifies every failure mode into the package taxonomy.
func (c *Client) runtimeStage(ctx context.Context) (string, error) {
	url := c.cfg.HubURL + "/api/spaces/" + c.cfg.Space + "/runtime"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build runtime request: %v", ErrConnection, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", fmt.Errorf("%w: the remote rejected the token (401); check the token and try again", ErrAuth)
	case resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: the token has no access to %s (403); request access from the owner", ErrAuth, c.cfg.Space)
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s not found (404); the hosted app may have moved", ErrConnection, c.cfg.Space)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: runtime probe returned status %d", ErrConnection, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read runtime response: %v", ErrConnection, err)
	}
	// Empty or non-JSON bodies have been observed from half-started
	// instances. They must classify as protocol failures, never success.
	if len(bytes.TrimSpace(body)) == 0 {
		return "", fmt.Errorf("%w: empty runtime response", ErrProtocol)
	}
	var runtime struct {
		Stage string `json:"stage"`
	}
	if err := json.Unmarshal(body, &runtime); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if runtime.Stage == "" {
		return "", fmt.Errorf("%w: runtime response missing stage", ErrProtocol)
	}
	return runtime.Stage, nil
}

// wake asks the hub to start a dormant instance. Best effort; Validate polls
// the stage afterwards regardless.
func (c *Client) wake(ctx context.Context) error {
	url := c.cfg.HubURL + "/api/spaces/" + c.cfg.Space + "/wake"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Validate wakes a dormant remote instance and waits, within a bounded
// window, for it to report a running stage. It returns false on timeout or
// persistent failure, never an error, so the caller can simply retry.
func (c *Client) Validate(ctx context.Context) bool {
	deadline := time.Now().Add(c.cfg.WakeWait)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	stage, err := c.runtimeStage(ctx)
	if err == nil && isRunning(stage) {
		c.setStage(stage)
		return true
	}
	if err == nil && stage == stageSleeping {
		if wakeErr := c.wake(ctx); wakeErr != nil {
			c.logger.Warn("wake request failed", "error", wakeErr)
		}
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			stage, err := c.runtimeStage(ctx)
			if err != nil {
				continue
			}
			c.setStage(stage)
			if isRunning(stage) {
				return true
			}
		}
	}
}

func isRunning(stage string) bool {
	return stage == stageRunning || stage == stageRunningBuilding
}

// Stage returns the last observed runtime stage.
func (c *Client) Stage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

func (c *Client) setStage(stage string) {
	c.mu.Lock()
	c.stage = stage
	c.mu.Unlock()
}

// call submits one named operation and reads its result event stream.
// The returned slice is the remote's JSON result array, element by element.
func (c *Client) call(ctx context.Context, op string, timeout time.Duration, args ...any) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if args == nil {
		args = []any{}
	}
	payload, err := json.Marshal(map[string]any{"data": args})
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s arguments: %v", ErrRemoteCall, op, err)
	}

	callURL := c.cfg.AppURL + "/call/" + op
	if c.cfg.DisableQueue {
		callURL += "?queue=disabled"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build %s request: %v", ErrRemoteCall, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnection, op, err)
	}
	var submitted struct {
		EventID string `json:"event_id"`
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("%w: %s: read submit response: %v", ErrConnection, op, readErr)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrRemoteCall, op, resp.StatusCode)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: %s: empty submit response", ErrProtocol, op)
	}
	if err := json.Unmarshal(body, &submitted); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProtocol, op, err)
	}
	if submitted.EventID == "" {
		return nil, fmt.Errorf("%w: %s: submit response missing event id", ErrProtocol, op)
	}

	return c.readResult(ctx, op, submitted.EventID)
}

// readResult consumes the server-sent event stream for one submitted call
// until a terminal event arrives.
func (c *Client) readResult(ctx context.Context, op, eventID string) ([]json.RawMessage, error) {
	url := c.cfg.AppURL + "/call/" + op + "/" + eventID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build %s result request: %v", ErrRemoteCall, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s result: %v", ErrConnection, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s result returned status %d", ErrRemoteCall, op, resp.StatusCode)
	}

	var event string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "error":
				return nil, fmt.Errorf("%w: %s reported an error: %s", ErrRemoteCall, op, data)
			case "complete", "":
				var result []json.RawMessage
				if err := json.Unmarshal([]byte(data), &result); err != nil {
					return nil, fmt.Errorf("%w: %s result: %v", ErrProtocol, op, err)
				}
				return result, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s result stream: %v", ErrConnection, op, err)
	}
	return nil, fmt.Errorf("%w: %s result stream ended without a terminal event", ErrProtocol, op)
}
