package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
)

const (
	// DefaultHeartbeat keeps the channel alive on the server side.
	DefaultHeartbeat = 25 * time.Second
	joinTimeout      = 10 * time.Second
	eventBuffer      = 16
	channelTopic     = "realtime:cropcare"
)

// phxMessage is a realtime channel frame.
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type changeConfig struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table,omitempty"`
	Filter string `json:"filter,omitempty"`
}

type joinPayload struct {
	Config struct {
		PostgresChanges []changeConfig `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Type      string         `json:"type"`
		Schema    string         `json:"schema"`
		Table     string         `json:"table"`
		Record    map[string]any `json:"record"`
		OldRecord map[string]any `json:"old_record"`
	} `json:"data"`
}

// Realtime implements ports.RealtimePort over the websocket change feed.
type Realtime struct {
	client    *Client
	dialer    *websocket.Dialer
	heartbeat time.Duration
	logger    *logging.Logger
}

var _ ports.RealtimePort = (*Realtime)(nil)

// NewRealtime creates a realtime adapter. A nil logger uses the default.
func NewRealtime(client *Client, logger *logging.Logger) *Realtime {
	if logger == nil {
		logger = logging.Default()
	}
	return &Realtime{
		client:    client,
		dialer:    websocket.DefaultDialer,
		heartbeat: DefaultHeartbeat,
		logger:    logger,
	}
}

func (r *Realtime) endpoint() (string, error) {
	u, err := url.Parse(r.client.BaseURL())
	if err != nil {
		return "", errors.NewError(errors.CodeConfiguration, "invalid backend url", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/realtime/v1/websocket"
	q := url.Values{}
	q.Set("apikey", r.client.config.AnonKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe joins a channel listening for the given row changes. The
// subscription ends when ctx is done or Close is called.
func (r *Realtime) Subscribe(ctx context.Context, filters []ports.ChangeFilter) (ports.Subscription, error) {
	if len(filters) == 0 {
		return nil, errors.Validation("at least one change filter is required")
	}
	endpoint, err := r.endpoint()
	if err != nil {
		return nil, err
	}

	conn, _, err := r.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, errors.NewError(errors.CodeNetwork, "realtime connect failed", err)
	}
	conn.SetReadLimit(1 << 20)

	var join joinPayload
	for _, f := range filters {
		cfg := changeConfig{Event: f.Event, Schema: f.Schema, Table: f.Table, Filter: f.Filter}
		if cfg.Event == "" {
			cfg.Event = "*"
		}
		if cfg.Schema == "" {
			cfg.Schema = "public"
		}
		join.Config.PostgresChanges = append(join.Config.PostgresChanges, cfg)
	}
	join.AccessToken = r.client.AccessToken()

	if err := r.join(conn, join); err != nil {
		conn.Close()
		return nil, err
	}

	sub := &subscription{
		conn:   conn,
		events: make(chan ports.ChangeEvent, eventBuffer),
		done:   make(chan struct{}),
		logger: r.logger,
	}
	go sub.readLoop()
	go sub.heartbeatLoop(r.heartbeat)
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (r *Realtime) join(conn *websocket.Conn, join joinPayload) error {
	payload, err := json.Marshal(join)
	if err != nil {
		return errors.NewError(errors.CodeValidation, "failed to marshal join", err)
	}
	if err := conn.WriteJSON(phxMessage{Topic: channelTopic, Event: "phx_join", Payload: payload, Ref: "1"}); err != nil {
		return errors.NewError(errors.CodeNetwork, "realtime join failed", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(joinTimeout))
	defer conn.SetReadDeadline(time.Time{}) //nolint:errcheck
	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return errors.NewError(errors.CodeNetwork, "realtime join reply not received", err)
		}
		if msg.Event != "phx_reply" || msg.Ref != "1" {
			continue
		}
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return errors.NewError(errors.CodeService, "malformed join reply", err)
		}
		if reply.Status != "ok" {
			return errors.NewError(errors.CodeService, fmt.Sprintf("realtime join rejected: %s", reply.Response), nil)
		}
		return nil
	}
}

type subscription struct {
	conn   *websocket.Conn
	wmu    sync.Mutex // gorilla connections allow a single writer
	events chan ports.ChangeEvent
	done   chan struct{}
	once   sync.Once
	logger *logging.Logger
}

func (s *subscription) Events() <-chan ports.ChangeEvent { return s.events }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.wmu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.wmu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *subscription) write(msg phxMessage) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *subscription) readLoop() {
	defer close(s.events)
	defer s.Close() //nolint:errcheck

	for {
		var msg phxMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("realtime connection lost", "error", err)
			}
			return
		}
		if msg.Event != "postgres_changes" {
			continue
		}
		ev, ok := decodeChange(msg.Payload)
		if !ok {
			s.logger.Debug("ignoring malformed change event", "topic", msg.Topic)
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *subscription) heartbeatLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	ref := 1
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ref++
			if err := s.write(phxMessage{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`), Ref: strconv.Itoa(ref)}); err != nil {
				return
			}
		}
	}
}

// decodeChange extracts the row identity from a change notification. The
// record body is not trusted beyond its id.
func decodeChange(raw json.RawMessage) (ports.ChangeEvent, bool) {
	var p changePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Data.Table == "" {
		return ports.ChangeEvent{}, false
	}
	ev := ports.ChangeEvent{Event: p.Data.Type, Schema: p.Data.Schema, Table: p.Data.Table}
	for _, rec := range []map[string]any{p.Data.Record, p.Data.OldRecord} {
		if id, ok := rec["id"]; ok && id != nil {
			ev.RecordID = fmt.Sprint(id)
			break
		}
	}
	return ev, true
}
