package termhost

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termspace/schema"
)

// Client talks to a host server over its unix socket.
type Client struct {
	paths Paths
	token string
	http  *http.Client
	log   pslog.Logger
}

// NewClient dials the host under dir. It fails when no token exists yet,
// which means no host has ever started there.
func NewClient(dir string, logger pslog.Logger) (*Client, error) {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	paths := Paths{Dir: dir}
	token, err := paths.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("host token: %w", err)
	}
	socket := paths.Socket()
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		},
	}
	return &Client{
		paths: paths,
		token: token,
		http:  &http.Client{Transport: transport},
		log:   logger,
	}, nil
}

// Available reports whether the host answers on its socket.
func (c *Client) Available() bool {
	return c.paths.DetectRunning()
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://host"+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", schema.ErrHostUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return decodeError(resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("host %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(status int, message string) error {
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", schema.ErrSessionNotFound, message)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", schema.ErrSessionNotLive, message)
	default:
		return fmt.Errorf("host: %s", message)
	}
}

// Attach attaches to the terminal keyed by key, spawning when needed.
func (c *Client) Attach(ctx context.Context, key schema.TerminalKey, cols, rows int) (schema.SessionID, bool, string, bool, error) {
	var resp attachResponse
	err := c.do(ctx, http.MethodPost, "/api/attach", attachRequest{Key: key, Cols: cols, Rows: rows}, &resp)
	if err != nil {
		return "", false, "", false, err
	}
	scrollback, err := base64.StdEncoding.DecodeString(resp.ScrollbackB64)
	if err != nil {
		return "", false, "", false, fmt.Errorf("host scrollback decode: %w", err)
	}
	return resp.Session, resp.IsNew, string(scrollback), resp.WasRecovered, nil
}

// Write sends keystrokes to a session.
func (c *Client) Write(ctx context.Context, id schema.SessionID, data []byte) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/"+string(id)+"/write",
		writeRequest{DataB64: base64.StdEncoding.EncodeToString(data)}, nil)
}

// Resize changes a session's PTY dimensions.
func (c *Client) Resize(ctx context.Context, id schema.SessionID, cols, rows int) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/"+string(id)+"/resize",
		resizeRequest{Cols: cols, Rows: rows}, nil)
}

// Close terminates a session's backing process.
func (c *Client) Close(ctx context.Context, id schema.SessionID) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/"+string(id)+"/close", nil, nil)
}

// Sessions lists every session the host knows about.
func (c *Client) Sessions(ctx context.Context) ([]schema.SessionSnapshot, error) {
	var resp sessionsResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Scrollback fetches a session's buffered output.
func (c *Client) Scrollback(ctx context.Context, id schema.SessionID) (string, error) {
	var resp scrollbackResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+string(id)+"/scrollback", nil, &resp); err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(resp.ScrollbackB64)
	if err != nil {
		return "", fmt.Errorf("host scrollback decode: %w", err)
	}
	return string(data), nil
}

// Stream subscribes to a session's live output. The returned channel closes
// when the session exits or the context is cancelled.
func (c *Client) Stream(ctx context.Context, id schema.SessionID) (<-chan Output, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://host/api/sessions/"+string(id)+"/stream", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrHostUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, decodeError(resp.StatusCode, "stream rejected")
	}
	ch := make(chan Output, 64)
	go c.readStream(resp.Body, id, ch)
	return ch, nil
}

func (c *Client) readStream(body io.ReadCloser, id schema.SessionID, ch chan<- Output) {
	defer body.Close()
	defer close(ch)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var event streamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			c.log.Warn("host stream decode failed", "session", id, "err", err)
			continue
		}
		out := Output{Exit: event.Exit}
		if event.DataB64 != "" {
			data, err := base64.StdEncoding.DecodeString(event.DataB64)
			if err != nil {
				c.log.Warn("host stream decode failed", "session", id, "err", err)
				continue
			}
			out.Data = data
		}
		ch <- out
	}
}

// WaitAvailable polls until the host socket answers or the context expires.
// Used right after starting a host process in the background.
func (c *Client) WaitAvailable(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Available() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return schema.ErrHostUnavailable
}
