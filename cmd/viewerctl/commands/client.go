package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/oauth2"
)

var (
	success = color.New(color.FgGreen)
	failure = color.New(color.FgRed, color.Bold)
	muted   = color.New(color.FgHiBlack)
	keyName = color.New(color.FgCyan)
)

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type client struct {
	base *url.URL
	http *http.Client
}

func newClient(ctx context.Context, server, token string) (*client, error) {
	base, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return &client{base: base, http: oauth2.NewClient(ctx, src)}, nil
}

func (c *client) endpoint(elem ...string) string {
	return c.base.JoinPath(append([]string{"api", "viewer"}, elem...)...).String()
}

// call sends body as JSON and decodes the envelope data into out.
func (c *client) call(ctx context.Context, method string, body, out interface{}, elem ...string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(elem...), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: status %d", method, req.URL.Path, resp.StatusCode)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return fmt.Errorf("%s (%d)", env.Message, resp.StatusCode)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// download streams a non-JSON response body to w.
func (c *client) download(ctx context.Context, w io.Writer, query url.Values, elem ...string) error {
	target := c.endpoint(elem...)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return fmt.Errorf("%s (%d)", env.Message, resp.StatusCode)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// wsURL is the websocket address of a session, token in the query.
func (c *client) wsURL(sessionID, token string) string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u = *u.JoinPath("api", "viewer", "sessions", sessionID, "ws")
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}
