package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"noescape.gg/internal/protocol"
)

// client is a scripted host: it sends STATE/EVENT and pairs GATE/QUERY/STOP
// with their results by req_id. Everything else the engine pushes is counted.
type client struct {
	conn    *websocket.Conn
	log     *log.Logger
	welcome protocol.WelcomeMsg

	wmu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan []byte
	pushed  map[string]int
	errs    []protocol.ErrorMsg

	done   chan struct{}
	closed atomic.Bool
}

func dial(ctx context.Context, url, serverID, token string, logger *log.Logger) (*client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ServerID:        serverID,
		Token:           token,
	}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send HELLO: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read WELCOME: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if base.Type != protocol.TypeWelcome {
		_ = conn.Close()
		return nil, fmt.Errorf("expected WELCOME, got %s: %s", base.Type, msg)
	}
	c := &client{
		conn:    conn,
		log:     logger,
		pending: map[string]chan []byte{},
		pushed:  map[string]int{},
		done:    make(chan struct{}),
	}
	if err := json.Unmarshal(msg, &c.welcome); err != nil {
		_ = conn.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func (c *client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *client) readLoop() {
	defer close(c.done)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		c.mu.Lock()
		if ch, ok := c.pending[base.ReqID]; ok && base.ReqID != "" {
			delete(c.pending, base.ReqID)
			c.mu.Unlock()
			ch <- msg
			continue
		}
		c.pushed[base.Type]++
		if base.Type == protocol.TypeError {
			var e protocol.ErrorMsg
			if json.Unmarshal(msg, &e) == nil {
				c.errs = append(c.errs, e)
			}
		}
		c.mu.Unlock()
	}
}

func (c *client) send(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(v)
}

// Pushed returns how many unsolicited messages of type t arrived so far.
func (c *client) Pushed(t string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushed[t]
}

// Errors returns the ERROR messages not tied to a request.
func (c *client) Errors() []protocol.ErrorMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.ErrorMsg(nil), c.errs...)
}

func (c *client) Subscribed(event string) bool {
	for _, s := range c.welcome.Subscriptions {
		if s == event {
			return true
		}
	}
	return false
}

func (c *client) State(st protocol.StateMsg) error {
	st.Type = protocol.TypeState
	return c.send(st)
}

func (c *client) Event(ev protocol.EventMsg) error {
	ev.Type = protocol.TypeEvent
	return c.send(ev)
}

// request sends v under a fresh req_id and decodes the matching reply into out.
func (c *client) request(ctx context.Context, build func(reqID string) any, out any) error {
	id := uuid.NewString()
	ch := make(chan []byte, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	if err := c.send(build(id)); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return err
	}
	select {
	case msg := <-ch:
		base, _ := protocol.DecodeBase(msg)
		if base.Type == protocol.TypeError {
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			return fmt.Errorf("%s: %s", e.Code, e.Message)
		}
		return json.Unmarshal(msg, out)
	case <-c.done:
		return fmt.Errorf("connection closed")
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	}
}

func (c *client) Query(ctx context.Context, actor, kind string) (protocol.QueryResultMsg, error) {
	var res protocol.QueryResultMsg
	err := c.request(ctx, func(id string) any {
		return protocol.QueryMsg{Type: protocol.TypeQuery, ReqID: id, Actor: actor, Kind: kind}
	}, &res)
	return res, err
}

func (c *client) Gate(ctx context.Context, actor, action string) (protocol.GateResultMsg, error) {
	var res protocol.GateResultMsg
	err := c.request(ctx, func(id string) any {
		return protocol.GateMsg{Type: protocol.TypeGate, ReqID: id, Actor: actor, Action: action}
	}, &res)
	return res, err
}

func (c *client) Stop(ctx context.Context, actor, kind string) (protocol.StopResultMsg, error) {
	var res protocol.StopResultMsg
	err := c.request(ctx, func(id string) any {
		return protocol.StopMsg{Type: protocol.TypeStop, ReqID: id, Actor: actor, Kind: kind}
	}, &res)
	return res, err
}
