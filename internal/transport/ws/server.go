package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/minbar-live/translation-service/internal/domain"
	"github.com/minbar-live/translation-service/internal/session"
)

// SessionRegistry is the slice of the registry the ws layer needs.
type SessionRegistry interface {
	Join(ctx context.Context, sessionID string, conn session.Conn, userID int64, role domain.Role, lang domain.Language) (int, error)
	Leave(ctx context.Context, sessionID, connID string) error
	AppendUtterance(ctx context.Context, sessionID, connID, text string, uctx *domain.UtteranceContext) (domain.Utterance, error)
	SubmitTranslation(ctx context.Context, sessionID string, sub session.TranslationSubmission) (domain.Translation, error)
	Snapshot(sessionID string) (session.StatePayload, error)
}

type Server struct {
	upgrader websocket.Upgrader
	reg      SessionRegistry

	pingEvery time.Duration
}

func NewServer(reg SessionRegistry) *Server {
	return &Server{
		reg: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
	}
}

// WS endpoint: GET /ws/sessions/{id}?access_token=...&user_id=...&role=...&language=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if strings.TrimSpace(q.Get("access_token")) == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}
	uid, err := strconv.ParseInt(strings.TrimSpace(q.Get("user_id")), 10, 64)
	if err != nil || uid <= 0 {
		http.Error(w, "invalid user_id", http.StatusUnauthorized)
		return
	}
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	role := domain.Role(q.Get("role"))
	if role == "" {
		role = domain.RoleListener
	}
	switch role {
	case domain.RoleBroadcaster, domain.RoleListener, domain.RoleTranslator:
	default:
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}
	lang := domain.Language(strings.ToLower(strings.TrimSpace(q.Get("language"))))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, sessionID, uid, role)

	if state, err := s.reg.Snapshot(sessionID); err == nil {
		_ = c.Send(session.Event{Type: session.EventState, Payload: state})
	}

	if _, err := s.reg.Join(r.Context(), sessionID, c, uid, role, lang); err != nil {
		c.sendError(err)
		_ = c.Close()
		return
	}

	go s.writeLoop(r.Context(), c)
	s.readLoop(r.Context(), c, lang)

	if err := s.reg.Leave(context.Background(), sessionID, c.ID()); err != nil {
		slog.Debug("ws leave failed", "session", sessionID, "user", uid, "err", err)
	}
	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "session", sessionID, "user", uid, "err", err)
	}
}

func (s *Server) readLoop(ctx context.Context, c *wsConn, joinLang domain.Language) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(1 << 20)
	c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case TypeUtterance:
			var p UtterancePayload
			if decode(msg.Payload, &p) != nil {
				continue
			}
			u, err := s.reg.AppendUtterance(ctx, c.sessionID, c.ID(), p.Text, p.Context)
			if err != nil {
				c.sendError(err)
				continue
			}
			_ = c.sendMsg(Message{
				Type:    TypeUtteranceAck,
				Payload: UtteranceAckPayload{UtteranceID: u.ID, Seq: u.Seq},
			})

		case TypeTranslation:
			var p TranslationPayload
			if decode(msg.Payload, &p) != nil {
				continue
			}
			lang := domain.Language(strings.ToLower(strings.TrimSpace(p.Language)))
			if lang == "" {
				lang = joinLang
			}
			t, err := s.reg.SubmitTranslation(ctx, c.sessionID, session.TranslationSubmission{
				UtteranceID: p.UtteranceID,
				Language:    lang,
				Text:        p.Text,
				Confidence:  p.Confidence,
				Source:      domain.SourceHuman,
				SubmittedBy: c.userID,
			})
			if err != nil {
				c.sendError(err)
				continue
			}
			_ = c.sendMsg(Message{
				Type:    TypeTranslationAck,
				Payload: TranslationAckPayload{UtteranceID: t.UtteranceID, Language: string(t.Language)},
			})

		default:
			// ignore
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

// --- helpers ---

func decode(payload interface{}, dst interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func errCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrUtteranceNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrDuplicateBroadcast):
		return "duplicate_broadcast"
	case errors.Is(err, domain.ErrAppendFailed):
		return "append_failed"
	default:
		return "internal"
	}
}

type wsConn struct {
	conn      *websocket.Conn
	id        string
	sessionID string
	userID    int64
	role      domain.Role
	sendMu    chan struct{}
	closed    chan struct{}
}

func newWsConn(c *websocket.Conn, sessionID string, userID int64, role domain.Role) *wsConn {
	return &wsConn{
		conn:      c,
		id:        uuid.NewString(),
		sessionID: sessionID,
		userID:    userID,
		role:      role,
		sendMu:    make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send implements session.Conn for fanout events.
func (c *wsConn) Send(ev session.Event) error {
	return c.sendMsg(Message{Type: ev.Type, Payload: ev.Payload})
}

func (c *wsConn) sendMsg(msg Message) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) sendError(err error) {
	_ = c.sendMsg(Message{
		Type:    TypeError,
		Payload: ErrorPayload{Code: errCode(err), Message: err.Error()},
	})
}

func (c *wsConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return c.conn.Close()
}
