// Package odoo talks to an Odoo server over its JSON-RPC web endpoints.
package odoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pbaille/ots/internal/domain"
	"github.com/pbaille/ots/internal/ledger"
)

const sessionCookie = "session_id"

// DefaultTimeout bounds every remote call when no timeout is configured
const DefaultTimeout = 60 * time.Second

// Client is a JSON-RPC client bound to one Odoo server and, once authenticated, one session
type Client struct {
	http      *resty.Client
	sessionID string
	seq       atomic.Int64
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &Client{http: c}
}

// BaseURL returns the server URL for the connection parameters
func BaseURL(conn ledger.Connection) string {
	scheme := "http"
	if conn.Protocol == "jsonrpc+ssl" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, conn.Hostname, conn.Port)
}

// SessionID returns the session the client authenticates with
func (c *Client) SessionID() string {
	return c.sessionID
}

// SetSessionID makes the client reuse a stored session
func (c *Client) SetSessionID(id string) {
	c.sessionID = id
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

func (e *rpcError) Error() string {
	if e.Data.Message != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Data.Message)
	}
	return e.Message
}

func (c *Client) call(ctx context.Context, path string, params any, out any) (*resty.Response, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  params,
		ID:      c.seq.Add(1),
	}

	r := c.http.R().SetContext(ctx).SetBody(&req)
	if c.sessionID != "" {
		r.SetCookie(&http.Cookie{Name: sessionCookie, Value: c.sessionID})
	}
	resp, err := r.Post(path)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(resp.Body(), &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return resp, nil
}

// Authenticate logs in and keeps the session the server hands out. It returns the user id.
func (c *Client) Authenticate(ctx context.Context, database, login, password string) (int64, error) {
	params := map[string]any{"db": database, "login": login, "password": password}
	var result struct {
		UID json.RawMessage `json:"uid"`
	}
	resp, err := c.call(ctx, "/web/session/authenticate", params, &result)
	if err != nil {
		return 0, &domain.RemoteError{Op: "authenticate", Err: err}
	}
	uid, ok := parseUID(result.UID)
	if !ok {
		return 0, &domain.RemoteError{Op: "authenticate", Err: fmt.Errorf("login refused for %s", login)}
	}

	for _, ck := range resp.Cookies() {
		if ck.Name == sessionCookie {
			c.sessionID = ck.Value
		}
	}
	if c.sessionID == "" {
		return 0, &domain.RemoteError{Op: "authenticate", Err: fmt.Errorf("server returned no session")}
	}
	return uid, nil
}

// SessionUID returns the user of the current session, or false once the session expired
func (c *Client) SessionUID(ctx context.Context) (int64, bool, error) {
	var result struct {
		UID json.RawMessage `json:"uid"`
	}
	if _, err := c.call(ctx, "/web/session/get_session_info", map[string]any{}, &result); err != nil {
		return 0, false, &domain.RemoteError{Op: "session info", Err: err}
	}
	uid, ok := parseUID(result.UID)
	return uid, ok, nil
}

// Destroy ends the session on the server
func (c *Client) Destroy(ctx context.Context) error {
	if _, err := c.call(ctx, "/web/session/destroy", map[string]any{}, nil); err != nil {
		return &domain.RemoteError{Op: "logout", Err: err}
	}
	c.sessionID = ""
	return nil
}

// ListDatabases returns the databases the server exposes
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	var dbs []string
	if _, err := c.call(ctx, "/web/database/list", map[string]any{}, &dbs); err != nil {
		return nil, &domain.RemoteError{Op: "list databases", Err: err}
	}
	return dbs, nil
}

// CallKW calls method on model with positional and keyword arguments and decodes the result into out
func (c *Client) CallKW(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	params := map[string]any{
		"model":  model,
		"method": method,
		"args":   args,
		"kwargs": kwargs,
	}
	if _, err := c.call(ctx, "/web/dataset/call_kw/"+model+"/"+method, params, out); err != nil {
		return &domain.RemoteError{Op: model + "." + method, Err: err}
	}
	return nil
}

// parseUID reads a uid field, which Odoo sends as false when nobody is logged in
func parseUID(raw json.RawMessage) (int64, bool) {
	uid, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || uid <= 0 {
		return 0, false
	}
	return uid, true
}
