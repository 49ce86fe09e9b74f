package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
)

const (
	defaultSendBuffer   = 64
	defaultPingInterval = 25 * time.Second
	defaultFrameRate    = 5
	defaultFrameBurst   = 10
)

// FrameHandler receives the client frames that have side effects elsewhere.
type FrameHandler interface {
	Typing(ctx context.Context, userID uuid.UUID, frame TypingFrame) error
	Location(ctx context.Context, userID uuid.UUID, frame LocationFrame) error
}

// FrameFuncs adapts plain functions to FrameHandler. Nil funcs ignore the frame.
type FrameFuncs struct {
	OnTyping   func(ctx context.Context, userID uuid.UUID, frame TypingFrame) error
	OnLocation func(ctx context.Context, userID uuid.UUID, frame LocationFrame) error
}

func (f FrameFuncs) Typing(ctx context.Context, userID uuid.UUID, frame TypingFrame) error {
	if f.OnTyping == nil {
		return nil
	}
	return f.OnTyping(ctx, userID, frame)
}

func (f FrameFuncs) Location(ctx context.Context, userID uuid.UUID, frame LocationFrame) error {
	if f.OnLocation == nil {
		return nil
	}
	return f.OnLocation(ctx, userID, frame)
}

// HubParams configures a Hub.
type HubParams struct {
	Bus            Bus
	Config         config.RealtimeConfig
	Logger         *logger.Logger
	Metrics        *metrics.RealtimeMetrics
	AllowedOrigins []string
}

// Hub tracks the sockets connected to this process and routes events to them.
type Hub struct {
	bus      Bus
	cfg      config.RealtimeConfig
	logg     *logger.Logger
	metrics  *metrics.RealtimeMetrics
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	conns  map[uuid.UUID]map[*Conn]struct{}
	frames FrameHandler
}

func NewHub(params HubParams) (*Hub, error) {
	if params.Bus == nil {
		return nil, fmt.Errorf("realtime bus is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg := params.Config
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.FrameRateLimit <= 0 {
		cfg.FrameRateLimit = defaultFrameRate
	}
	if cfg.FrameBurst <= 0 {
		cfg.FrameBurst = defaultFrameBurst
	}

	h := &Hub{
		bus:     params.Bus,
		cfg:     cfg,
		logg:    params.Logger,
		metrics: params.Metrics,
		conns:   map[uuid.UUID]map[*Conn]struct{}{},
		frames:  FrameFuncs{},
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(params.AllowedOrigins),
	}
	return h, nil
}

// SetFrameHandler installs the handler for typing and location frames.
// Call it before Serve starts accepting sockets.
func (h *Hub) SetFrameHandler(frames FrameHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if frames == nil {
		frames = FrameFuncs{}
	}
	h.frames = frames
}

func (h *Hub) frameHandler() FrameHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.frames
}

// Publish sends an event to every socket of userID on every instance.
func (h *Hub) Publish(ctx context.Context, userID uuid.UUID, event Event) error {
	payload, err := encodeEnvelope(userID, event)
	if err != nil {
		return err
	}
	return h.bus.Publish(ctx, userID, payload)
}

// Run consumes the bus until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	h.logg.Info(ctx, "realtime.hub.started")
	err := h.bus.Subscribe(ctx, h.dispatch)
	h.closeAll()
	h.logg.Info(ctx, "realtime.hub.stopped")
	return err
}

func (h *Hub) dispatch(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.logg.Warn(h.logg.WithField(context.Background(), "error", err.Error()), "realtime.envelope_invalid")
		return
	}
	if h.deliver(env.UserID, env.Event) > 0 {
		h.metrics.Delivered(env.Type)
	}
}

// deliver writes to the local sockets of userID and reports how many accepted it.
func (h *Hub) deliver(userID uuid.UUID, msg []byte) int {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(msg) {
			delivered++
		}
	}
	return delivered
}

// Connections reports the number of local sockets for userID.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.userID]
	if !ok {
		set = map[*Conn]struct{}{}
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
	h.metrics.ConnOpened()
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.userID]
	if !ok {
		return
	}
	delete(set, c)
	h.metrics.ConnClosed()
	if len(set) == 0 {
		delete(h.conns, c.userID)
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	all := make([]*Conn, 0)
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.close(websocket.CloseGoingAway)
	}
}

// Serve upgrades an authenticated request and blocks until the socket closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	ctx := h.logg.WithUserID(context.WithoutCancel(r.Context()), userID.String())
	c := newConn(h, ws, userID)
	h.register(c)
	h.logg.Debug(ctx, "realtime.connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	c.readPump(ctx)
	c.close(websocket.CloseNormalClosure)
	wg.Wait()
	h.logg.Debug(ctx, "realtime.disconnected")
	return nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}
