package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/conquest/api/internal/replica"
	"github.com/freeeve/conquest/api/pkg/conquest"
)

// WSEvent mirrors handler.WSEvent for client-side deserialization.
type WSEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

// StatusError is an HTTP failure the server answered with.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client is an HTTP+WebSocket client for a single bot player. It implements
// replica.Transport.
type Client struct {
	name     string
	baseURL  string
	token    string
	userID   string
	wsConn   *websocket.Conn
	events   chan WSEvent
	httpC    *http.Client
	mu       sync.Mutex
	closedWS bool
}

var _ replica.Transport = (*Client)(nil)

// NewClient creates a new bot client targeting the given server URL.
func NewClient(name, baseURL string) *Client {
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		events:  make(chan WSEvent, 64),
		httpC:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the bot name.
func (c *Client) Name() string { return c.name }

// UserID returns the bot's user ID after login.
func (c *Client) UserID() string { return c.userID }

// Login authenticates via the dev login endpoint.
func (c *Client) Login(ctx context.Context) error {
	var tokens struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/dev?name="+url.QueryEscape(c.name), nil, &tokens); err != nil {
		return fmt.Errorf("dev login: %w", err)
	}
	c.token = tokens.AccessToken

	var me struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/me", nil, &me); err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	c.userID = me.ID
	log.Debug().Str("bot", c.name).Str("userId", c.userID).Msg("Bot logged in")
	return nil
}

// CreateSession creates a lobby and returns its ID.
func (c *Client) CreateSession(ctx context.Context, name, setupMode string, maxPlayers int) (string, error) {
	body := map[string]any{"name": name, "setup_mode": setupMode, "max_players": maxPlayers}
	var sess struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", body, &sess); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// JoinSession takes a seat as a bot player.
func (c *Client) JoinSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/join", map[string]bool{"bot": true}, nil)
}

// StartSession starts a session (creator only).
func (c *Client) StartSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/start", nil, nil)
}

// StopSession ends a session early (creator only).
func (c *Client) StopSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/stop", nil, nil)
}

// GetMap fetches the board and rebuilds it as a graph.
func (c *Client) GetMap(ctx context.Context) (*conquest.Graph, error) {
	var view struct {
		Territories []struct {
			ID        string   `json:"id"`
			Name      string   `json:"name"`
			Continent string   `json:"continent"`
			Neighbors []string `json:"neighbors"`
		} `json:"territories"`
		Continents []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Bonus int    `json:"bonus"`
		} `json:"continents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/map", nil, &view); err != nil {
		return nil, err
	}
	terrs := make([]conquest.TerritoryDef, 0, len(view.Territories))
	for _, t := range view.Territories {
		terrs = append(terrs, conquest.TerritoryDef{ID: t.ID, Name: t.Name, Continent: t.Continent, Neighbors: t.Neighbors})
	}
	conts := make([]conquest.ContinentDef, 0, len(view.Continents))
	for _, ct := range view.Continents {
		conts = append(conts, conquest.ContinentDef{ID: ct.ID, Name: ct.Name, Bonus: ct.Bonus})
	}
	return conquest.NewGraph(terrs, conts)
}

// FetchSnapshot returns the authoritative snapshot of a session.
func (c *Client) FetchSnapshot(ctx context.Context, sessionID string) (conquest.Snapshot, error) {
	var snap conquest.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID+"/snapshot", nil, &snap)
	return snap, err
}

// Submit posts an intent. Refusals come back with the server's Response and
// an error matching the engine's sentinel errors.
func (c *Client) Submit(ctx context.Context, in conquest.Intent) (conquest.Response, error) {
	path := "/api/v1/sessions/" + in.SessionID + "/intents"
	status, body, err := c.roundTrip(ctx, http.MethodPost, path, in)
	if err != nil {
		return conquest.Response{}, err
	}
	var resp conquest.Response
	decodeErr := json.Unmarshal(body, &resp)
	if status < 400 {
		if decodeErr != nil {
			return conquest.Response{}, fmt.Errorf("decode response: %w", decodeErr)
		}
		return resp, nil
	}
	if decodeErr != nil {
		return conquest.Response{}, &StatusError{Method: http.MethodPost, Path: path, Status: status, Body: string(body)}
	}
	return resp, verdict(status, resp.Reason)
}

// verdict maps a refusal back onto the engine's errors.
func verdict(status int, reason string) error {
	switch {
	case status == http.StatusUnprocessableEntity:
		return &conquest.ValidationError{Op: "intent", Message: reason}
	case status == http.StatusGone:
		return fmt.Errorf("%w: %s", conquest.ErrGameOver, reason)
	case status == http.StatusConflict && strings.Contains(reason, conquest.ErrStaleVersion.Error()):
		return fmt.Errorf("%w: %s", conquest.ErrStaleVersion, reason)
	case status == http.StatusConflict && strings.Contains(reason, conquest.ErrNotYourTurn.Error()):
		return fmt.Errorf("%w: %s", conquest.ErrNotYourTurn, reason)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", replica.ErrRejected, reason)
	}
	return &StatusError{Method: http.MethodPost, Status: status, Body: reason}
}

// ConnectWS opens a WebSocket connection and starts listening for events.
func (c *Client) ConnectWS(ctx context.Context) error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/v1/ws?token=" + url.QueryEscape(c.token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}
	c.wsConn = conn

	go c.readWSLoop()
	return nil
}

// Subscribe asks for the events of one session.
func (c *Client) Subscribe(sessionID string) error {
	msg := map[string]string{"action": "subscribe", "session_id": sessionID}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn == nil {
		return errors.New("ws not connected")
	}
	return c.wsConn.WriteJSON(msg)
}

// Events returns the channel of incoming WebSocket events.
func (c *Client) Events() <-chan WSEvent { return c.events }

// CloseWS closes the WebSocket connection.
func (c *Client) CloseWS() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn != nil && !c.closedWS {
		c.closedWS = true
		c.wsConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.wsConn.Close()
	}
}

func (c *Client) readWSLoop() {
	defer close(c.events)
	for {
		_, msg, err := c.wsConn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closedWS
			c.mu.Unlock()
			if !closed {
				log.Debug().Err(err).Str("bot", c.name).Msg("WS read error")
			}
			return
		}
		var event WSEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			continue
		}
		c.events <- event
	}
}

// do sends a request and decodes a JSON reply into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	status, body, err := c.roundTrip(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if status >= 400 {
		return &StatusError{Method: method, Path: path, Status: status, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpC.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	return resp.StatusCode, body, nil
}
