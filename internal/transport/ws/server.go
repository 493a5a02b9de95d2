package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"noescape.gg/internal/hostmirror"
	"noescape.gg/internal/protocol"
	"noescape.gg/internal/sim/engine"
	"noescape.gg/internal/sim/engine/feature/gating"
	"noescape.gg/internal/sim/engine/kernel/model"
)

// Engine is the part of *engine.Engine the bridge drives.
type Engine interface {
	TrySubmit(in engine.Input) bool
	Gate(ctx context.Context, req gating.Request) (gating.Result, error)
	Status(ctx context.Context, actor string) (engine.Status, error)
	StopBlock(ctx context.Context, actor string, kind model.Kind) (int, error)
	Subscriptions() []string
	BlockTypes() []string
	Permissions() []string
}

type Options struct {
	// ConfigDigest is echoed in WELCOME so a host can detect config drift.
	ConfigDigest string
	// Rate and Burst bound inbound messages per connection. Rate <= 0 disables the limit.
	Rate  float64
	Burst int
	// QueueSize is the per-connection outbound queue.
	QueueSize int
}

type Server struct {
	eng    Engine
	mirror *hostmirror.Mirror
	hub    *Hub
	auth   *Authenticator
	opts   Options
	log    *log.Logger

	upgrader websocket.Upgrader
}

const (
	requestTimeout = 2 * time.Second
	readTimeout    = 60 * time.Second
	writeTimeout   = 5 * time.Second
)

func NewServer(eng Engine, mirror *hostmirror.Mirror, hub *Hub, auth *Authenticator, opts Options, logger *log.Logger) *Server {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Server{
		eng:    eng,
		mirror: mirror,
		hub:    hub,
		auth:   auth,
		opts:   opts,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // game servers, not browsers
		},
	}
}

type session struct {
	id       string
	serverID string
	out      chan []byte
	limiter  *rate.Limiter
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.hub.attach(sess.id, sess.out)
		defer s.hub.detach(sess.id)
		s.log.Printf("host connected: server=%s session=%s", sess.serverID, sess.id)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleMessage(ctx, sess, msg)
		}
		s.log.Printf("host disconnected: server=%s session=%s", sess.serverID, sess.id)
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		closeWith(conn, protocol.ErrProtoBadRequest, err.Error())
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, protocol.ErrProtoBadRequest, "bad HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, protocol.ErrProtoVersion, "bad protocol_version")
		return nil
	}
	if err := s.auth.Verify(hello.ServerID, hello.Token); err != nil {
		s.log.Printf("host rejected: server=%s: %v", hello.ServerID, err)
		closeWith(conn, protocol.ErrUnauthorized, "bad token")
		return nil
	}

	sess := &session{
		id:       uuid.NewString(),
		serverID: strings.TrimSpace(hello.ServerID),
		out:      make(chan []byte, s.opts.QueueSize),
	}
	if s.opts.Rate > 0 {
		sess.limiter = rate.NewLimiter(rate.Limit(s.opts.Rate), s.opts.Burst)
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		Subscriptions:   s.eng.Subscriptions(),
		BlockTypes:      s.eng.BlockTypes(),
		Permissions:     s.eng.Permissions(),
		ConfigDigest:    s.opts.ConfigDigest,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	return sess
}

func (s *Server) handleMessage(ctx context.Context, sess *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.reply(ctx, sess, errorMsg("", protocol.ErrProtoBadRequest, "bad json"))
		return
	}
	if sess.limiter != nil && !sess.limiter.Allow() {
		s.reply(ctx, sess, errorMsg(base.ReqID, protocol.ErrRateLimit, "slow down"))
		return
	}
	if !protocol.HasSchema(base.Type) || base.Type == protocol.TypeHello {
		s.reply(ctx, sess, errorMsg(base.ReqID, protocol.ErrProtoBadRequest, "unexpected type "+base.Type))
		return
	}
	if err := protocol.Validate(base.Type, msg); err != nil {
		s.reply(ctx, sess, errorMsg(base.ReqID, protocol.ErrBadRequest, err.Error()))
		return
	}

	switch base.Type {
	case protocol.TypeState:
		var st protocol.StateMsg
		if err := json.Unmarshal(msg, &st); err != nil {
			s.reply(ctx, sess, errorMsg("", protocol.ErrBadRequest, err.Error()))
			return
		}
		s.submit(ctx, sess, "", engine.Apply{Fn: func() { s.mirror.ApplyState(st) }})
	case protocol.TypeEvent:
		var ev protocol.EventMsg
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.reply(ctx, sess, errorMsg("", protocol.ErrBadRequest, err.Error()))
			return
		}
		in, err := toInput(ev)
		if err != nil {
			s.reply(ctx, sess, errorMsg("", protocol.ErrBadRequest, err.Error()))
			return
		}
		s.submit(ctx, sess, "", in)
	case protocol.TypeGate:
		var g protocol.GateMsg
		if err := json.Unmarshal(msg, &g); err != nil {
			s.reply(ctx, sess, errorMsg(base.ReqID, protocol.ErrBadRequest, err.Error()))
			return
		}
		s.handleGate(ctx, sess, g)
	case protocol.TypeQuery:
		var q protocol.QueryMsg
		if err := json.Unmarshal(msg, &q); err != nil {
			s.reply(ctx, sess, errorMsg(base.ReqID, protocol.ErrBadRequest, err.Error()))
			return
		}
		s.handleQuery(ctx, sess, q)
	case protocol.TypeStop:
		var st protocol.StopMsg
		if err := json.Unmarshal(msg, &st); err != nil {
			s.reply(ctx, sess, errorMsg(base.ReqID, protocol.ErrBadRequest, err.Error()))
			return
		}
		s.handleStop(ctx, sess, st)
	}
}

func (s *Server) submit(ctx context.Context, sess *session, reqID string, in engine.Input) {
	if !s.eng.TrySubmit(in) {
		s.reply(ctx, sess, errorMsg(reqID, protocol.ErrBusy, "engine busy"))
	}
}

func (s *Server) handleGate(ctx context.Context, sess *session, g protocol.GateMsg) {
	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := s.eng.Gate(rctx, gating.Request{
		Actor:         g.Actor,
		Action:        g.Action,
		EntityDamaged: g.EntityDamaged,
		Prefab:        g.Prefab,
	})
	if err != nil {
		// Gating never fails closed.
		res = gating.Result{Allowed: true}
	}
	s.reply(ctx, sess, protocol.GateResultMsg{
		Type:    protocol.TypeGateResult,
		ReqID:   g.ReqID,
		Allowed: res.Allowed,
		Kind:    res.Kind.String(),
		Message: res.Message,
	})
}

func (s *Server) handleQuery(ctx context.Context, sess *session, q protocol.QueryMsg) {
	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	st, err := s.eng.Status(rctx, q.Actor)
	if err != nil {
		st = engine.Status{Actor: q.Actor}
	}
	res := protocol.QueryResultMsg{
		Type:              protocol.TypeQueryResult,
		ReqID:             q.ReqID,
		Actor:             q.Actor,
		RaidRemainingMs:   st.RaidRemainingMs,
		CombatRemainingMs: st.CombatRemainingMs,
		Message:           st.Message,
	}
	switch q.Kind {
	case "":
		res.Blocked = st.Blocked
	case "raid":
		res.Blocked = st.RaidRemainingMs > 0
	case "combat":
		res.Blocked = st.CombatRemainingMs > 0
	}
	s.reply(ctx, sess, res)
}

func (s *Server) handleStop(ctx context.Context, sess *session, st protocol.StopMsg) {
	var kind model.Kind
	if st.Kind != "" {
		k, ok := model.ParseKind(st.Kind)
		if !ok {
			s.reply(ctx, sess, errorMsg(st.ReqID, protocol.ErrUnknownKind, st.Kind))
			return
		}
		kind = k
	}
	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	n, err := s.eng.StopBlock(rctx, st.Actor, kind)
	if err != nil {
		code := protocol.ErrInternal
		if errors.Is(err, context.DeadlineExceeded) {
			code = protocol.ErrBusy
		}
		s.reply(ctx, sess, errorMsg(st.ReqID, code, err.Error()))
		return
	}
	s.reply(ctx, sess, protocol.StopResultMsg{Type: protocol.TypeStopResult, ReqID: st.ReqID, Actor: st.Actor, Stopped: n})
}

// reply queues v on the session, waiting while the writer drains.
func (s *Server) reply(ctx context.Context, sess *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("reply marshal: %v", err)
		return
	}
	select {
	case sess.out <- b:
	case <-ctx.Done():
	}
}

func errorMsg(reqID, code, message string) protocol.ErrorMsg {
	return protocol.ErrorMsg{Type: protocol.TypeError, ReqID: reqID, Code: code, Message: message}
}

func closeWith(conn *websocket.Conn, code, reason string) {
	_ = writeJSON(conn, errorMsg("", code, reason))
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
