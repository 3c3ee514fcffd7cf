package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Snapshot is one pushed value of a subscribed path.
type Snapshot struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func dataEndpoint(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return "/v1/data/" + strings.Join(segments, "/")
}

// Get reads the value at path; absent paths yield nil.
func (c *Client) Get(ctx context.Context, token, path string) (any, error) {
	var out any
	if err := c.do(ctx, http.MethodGet, dataEndpoint(path), nil, token, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Set replaces the value at path.
func (c *Client) Set(ctx context.Context, token, path string, value any) error {
	return c.do(ctx, http.MethodPut, dataEndpoint(path), value, token, nil)
}

// Update writes every key of patch below path atomically.
func (c *Client) Update(ctx context.Context, token, path string, patch map[string]any) error {
	return c.do(ctx, http.MethodPatch, dataEndpoint(path), patch, token, nil)
}

// Remove deletes the subtree at path.
func (c *Client) Remove(ctx context.Context, token, path string) error {
	return c.do(ctx, http.MethodDelete, dataEndpoint(path), nil, token, nil)
}

// Subscribe opens a websocket subscription on path. onValue runs on the read goroutine for
// every snapshot, starting with the current value; onError receives the terminal read error
// unless the subscription was disposed. The returned disposer closes the connection and
// waits for the read loop to exit; no callback starts after it returns. Called from inside
// onValue, it returns without waiting for the callback it is running in.
func (c *Client) Subscribe(ctx context.Context, token, path string, onValue func(any), onError func(error)) (func(), error) {
	endpoint, err := url.Parse(c.baseURL + "/v1/subscribe")
	if err != nil {
		return nil, fmt.Errorf("build subscribe url: %w", err)
	}
	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	default:
		endpoint.Scheme = "ws"
	}
	q := endpoint.Query()
	q.Set("path", path)
	endpoint.RawQuery = q.Encode()

	header := http.Header{}
	if strings.TrimSpace(token) != "" {
		header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
		}
		return nil, fmt.Errorf("dial subscription: %w", err)
	}

	var (
		once       sync.Once
		mu         sync.Mutex
		disposed   bool
		delivering bool
		done       = make(chan struct{})
	)
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				mu.Lock()
				quiet := disposed
				mu.Unlock()
				if !quiet && onError != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					onError(err)
				}
				return
			}
			var snap Snapshot
			decoder := json.NewDecoder(bytes.NewReader(data))
			decoder.UseNumber()
			if err := decoder.Decode(&snap); err != nil {
				if onError != nil {
					onError(fmt.Errorf("decode snapshot: %w", err))
				}
				continue
			}
			mu.Lock()
			if disposed {
				mu.Unlock()
				return
			}
			delivering = true
			mu.Unlock()
			onValue(snap.Value)
			mu.Lock()
			delivering = false
			mu.Unlock()
		}
	}()

	return func() {
		once.Do(func() {
			mu.Lock()
			disposed = true
			wait := !delivering
			mu.Unlock()
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
			if wait {
				<-done
			}
		})
	}, nil
}

// ErrNoSession is returned by Remote when no access token is available.
var ErrNoSession = errors.New("not signed in")

// Remote binds the data calls to a live access token.
type Remote struct {
	client *Client
	token  func() string
}

// NewRemote returns a Remote reading the access token from token on every call.
func NewRemote(c *Client, token func() string) *Remote {
	return &Remote{client: c, token: token}
}

func (r *Remote) accessToken() (string, error) {
	t := r.token()
	if strings.TrimSpace(t) == "" {
		return "", ErrNoSession
	}
	return t, nil
}

// Get reads the value at path.
func (r *Remote) Get(ctx context.Context, path string) (any, error) {
	token, err := r.accessToken()
	if err != nil {
		return nil, err
	}
	return r.client.Get(ctx, token, path)
}

// Set replaces the value at path.
func (r *Remote) Set(ctx context.Context, path string, value any) error {
	token, err := r.accessToken()
	if err != nil {
		return err
	}
	return r.client.Set(ctx, token, path, value)
}

// Update writes patch below path.
func (r *Remote) Update(ctx context.Context, path string, patch map[string]any) error {
	token, err := r.accessToken()
	if err != nil {
		return err
	}
	return r.client.Update(ctx, token, path, patch)
}

// Remove deletes the subtree at path.
func (r *Remote) Remove(ctx context.Context, path string) error {
	token, err := r.accessToken()
	if err != nil {
		return err
	}
	return r.client.Remove(ctx, token, path)
}

// Subscribe opens a snapshot subscription on path.
func (r *Remote) Subscribe(ctx context.Context, path string, onValue func(any), onError func(error)) (func(), error) {
	token, err := r.accessToken()
	if err != nil {
		return nil, err
	}
	return r.client.Subscribe(ctx, token, path, onValue, onError)
}
