package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/tide-labs/tide/internal/daemon"
	"github.com/tide-labs/tide/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// apiClient talks to a running daemon.
type apiClient struct {
	base string
	hc   *http.Client
}

// newClient resolves the daemon address from --addr or the config file.
func newClient() (*apiClient, error) {
	addr := apiAddr
	if addr == "" {
		cfg, err := daemon.LoadConfig()
		if err != nil {
			return nil, err
		}
		addr = fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &apiClient{
		base: strings.TrimRight(addr, "/"),
		hc:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// do sends in as JSON (if non-nil) and decodes the response into out (if
// non-nil). Non-2xx answers become errors carrying the server message.
func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (is `tide serve` running?): %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s", apiErr.Error.Message)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// watch streams a task's events into fn until ctx ends or the daemon
// closes the stream.
func (c *apiClient) watch(ctx context.Context, taskID string, fn func(domain.Event)) error {
	u, err := url.Parse(c.base + "/api/tasks/" + url.PathEscape(taskID) + "/events")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
		}
		return fmt.Errorf("open event stream: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		var evt domain.Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		fn(evt)
	}
}
