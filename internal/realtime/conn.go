package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

const (
	writeWait     = 10 * time.Second
	maxFrameBytes = 4096
)

// Conn is one websocket. Writes go through a bounded buffer drained by writePump;
// a full buffer closes the socket instead of blocking the publisher.
type Conn struct {
	hub     *Hub
	ws      *websocket.Conn
	userID  uuid.UUID
	send    chan []byte
	limiter *rate.Limiter

	done      chan struct{}
	closeOnce sync.Once
	closeCode int
}

func newConn(h *Hub, ws *websocket.Conn, userID uuid.UUID) *Conn {
	return &Conn{
		hub:     h,
		ws:      ws,
		userID:  userID,
		send:    make(chan []byte, h.cfg.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.FrameRateLimit), h.cfg.FrameBurst),
		done:    make(chan struct{}),
	}
}

func (c *Conn) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.hub.logg.Warn(c.hub.logg.WithUserID(context.Background(), c.userID.String()), "realtime.slow_consumer")
		c.hub.metrics.Dropped("slow_consumer")
		c.close(websocket.ClosePolicyViolation)
		return false
	}
}

func (c *Conn) close(code int) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		close(c.done)
		c.hub.unregister(c)
	})
}

func (c *Conn) pongWait() time.Duration {
	return 2 * c.hub.cfg.PingInterval
}

func (c *Conn) readPump(ctx context.Context) {
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logg.Debug(c.hub.logg.WithField(ctx, "error", err.Error()), "realtime.read_closed")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))

		if !c.limiter.Allow() {
			c.hub.metrics.Dropped("rate_limited")
			continue
		}
		c.handleFrame(ctx, data)
	}
}

func (c *Conn) handleFrame(ctx context.Context, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.reply(EventError, errorData{Code: string(pkgerrors.CodeValidation), Message: "malformed frame"})
		return
	}

	frames := c.hub.frameHandler()
	var err error
	switch frame.Type {
	case FramePing:
		c.reply(EventPong, nil)
		return
	case FrameTyping:
		var typing TypingFrame
		if err = json.Unmarshal(frame.Data, &typing); err == nil {
			err = frames.Typing(ctx, c.userID, typing)
		}
	case FrameLocation:
		var loc LocationFrame
		if err = json.Unmarshal(frame.Data, &loc); err == nil {
			err = frames.Location(ctx, c.userID, loc)
		}
	default:
		c.reply(EventError, errorData{Code: string(pkgerrors.CodeValidation), Message: "unknown frame type"})
		return
	}
	if err != nil {
		c.reply(EventError, errorFor(err))
	}
}

func (c *Conn) reply(eventType string, data any) {
	raw, err := json.Marshal(NewEvent(eventType, data))
	if err != nil {
		return
	}
	c.enqueue(raw)
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close(websocket.CloseAbnormalClosure)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close(websocket.CloseAbnormalClosure)
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorFor(err error) errorData {
	if typed := pkgerrors.As(err); typed != nil && typed.Code() != pkgerrors.CodeInternal {
		return errorData{Code: string(typed.Code()), Message: typed.Message()}
	}
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntax) || errors.As(err, &typeErr) {
		return errorData{Code: string(pkgerrors.CodeValidation), Message: "malformed frame data"}
	}
	return errorData{Code: string(pkgerrors.CodeInternal), Message: "internal error"}
}
