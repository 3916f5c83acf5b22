package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/http2"

	"github.com/mqy/minimirror/wire"
)

const requestTimeout = 10 * time.Second

// Client implements IPuller over HTTP+JSON with a bearer token.
type Client struct {
	base  string
	token string
	hc    *http.Client
}

// NewClient creates a Client for the given base URL. HTTP/2 is enabled on
// the transport when the server supports it.
func NewClient(base, token string) *Client {
	tr := &http.Transport{
		MaxIdleConns:    4,
		IdleConnTimeout: 90 * time.Second,
		TLSClientConfig: &tls.Config{},
	}
	if err := http2.ConfigureTransport(tr); err != nil {
		glog.Errorf("NewClient(): http2 configure error: %v", err)
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		hc: &http.Client{
			Transport: tr,
			Timeout:   requestTimeout,
		},
	}
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("api: GET %s: status %d: %s", path, resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) GetConversations(ctx context.Context) ([]*wire.Conversation, error) {
	var out []*wire.Conversation
	if err := c.get(ctx, "/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetMessages(ctx context.Context, conversationID int64) ([]*wire.Message, error) {
	var out []*wire.Message
	if err := c.get(ctx, fmt.Sprintf("/conversations/%d/messages", conversationID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetMe(ctx context.Context) (*wire.User, error) {
	var out wire.User
	if err := c.get(ctx, "/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetUsers(ctx context.Context) ([]*wire.User, error) {
	var out []*wire.User
	if err := c.get(ctx, "/users", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoginResp is the auth endpoint response.
type LoginResp struct {
	Token string    `json:"token,omitempty"`
	User  wire.User `json:"user,omitempty"`
}

// Login exchanges credentials for a session token. It does not require an
// existing token on the client.
func Login(ctx context.Context, base, email, password string) (*LoginResp, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(base, "/")+"/auth/login", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	hc := &http.Client{Timeout: requestTimeout}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, resp.Body)
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("api: login: status %d: %s", resp.StatusCode, string(b))
	}

	var out LoginResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
