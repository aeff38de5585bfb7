// Package stream implements Server-Sent Events (SSE) streaming of fired
// events. Clients connect via GET /api/v1/stream/events and receive every
// event the scheduler fires, optionally filtered by body and kind.
//
// SSE message format:
//
//	id: 6f1c...\ndata: {"type":"event","id":"6f1c...","body":"Sun","kind":"rise","date":"2026-03-20T11:36:12Z","azimuth":89.5}\n\n
//
// First message is always metadata, carrying the reconnect delay:
//
//	retry: 4821\ndata: {"type":"metadata","pending":42,"next":{...}}\n\n
//
// A keepalive comment (: keepalive <time>) goes out after KeepaliveInterval
// without traffic.
package stream

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/star/skywatch/internal/event"
	"github.com/star/skywatch/internal/httputil"
	"github.com/star/skywatch/internal/metrics"
	"github.com/star/skywatch/internal/notify"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrent      int           // Max concurrent streams overall (default: 256).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Use X-Forwarded-For for the per-IP limit.
}

// Pending lists the events waiting to fire. *schedule.Queue implements it.
type Pending interface {
	Snapshot() []event.Event
}

// Handler manages SSE streaming connections.
type Handler struct {
	hub     *notify.Hub
	pending Pending
	config  Config
	limiter *connLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(hub *notify.Hub, pending Pending, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 256
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		hub:     hub,
		pending: pending,
		config:  config,
		limiter: newConnLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger.With("component", "stream"),
	}
}

// filter selects events by body and kind. Empty sets match everything.
type filter struct {
	bodies map[string]bool
	kinds  map[event.Kind]bool
}

func parseFilter(r *http.Request) (filter, error) {
	f := filter{bodies: make(map[string]bool), kinds: make(map[event.Kind]bool)}
	q := r.URL.Query()
	for _, b := range q["body"] {
		f.bodies[b] = true
	}
	for _, s := range q["kind"] {
		k, err := event.ParseKind(s)
		if err != nil {
			return f, err
		}
		f.kinds[k] = true
	}
	return f, nil
}

func (f filter) match(e event.Event) bool {
	if len(f.bodies) > 0 && !f.bodies[e.Body] {
		return false
	}
	if len(f.kinds) > 0 && !f.kinds[e.Kind] {
		return false
	}
	return true
}

// HandleEvents serves the SSE event stream.
// GET /api/v1/stream/events?body=Sun&kind=rise
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	release, err := h.limiter.acquire(ip)
	if err != nil {
		reason := "rate_limit"
		if errors.Is(err, errTotalLimit) {
			reason = "capacity"
		}
		forIP, total := h.limiter.active(ip)
		metrics.IncStreamErrors(reason)
		h.logger.Warn("stream rejected",
			"remote_ip", ip,
			"reason", reason,
			"ip_streams", forIP,
			"total_streams", total,
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, err.Error())
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"bodies", len(f.bodies),
		"kinds", len(f.kinds),
	)

	sub := h.hub.Subscribe("sse")
	var c *client

	defer func() {
		sub.Close()
		release()
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages_sent", c.sent(),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c = &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Jittered 3-7s retry so a restart does not bring every client back at once.
	retry := 3*time.Second + time.Duration(rand.Int64N(int64(4*time.Second)))
	if err := c.send(frame{retry: retry, data: h.metadata(f)}); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if !f.match(e) {
				continue
			}
			if err := c.send(frame{id: e.ID.String(), data: newEventMessage(e)}); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case now := <-keepaliveTicker.C:
			if err := c.sendKeepalive(now); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func (h *Handler) metadata(f filter) metadataMessage {
	meta := metadataMessage{Type: "metadata"}
	if h.pending == nil {
		return meta
	}
	for _, e := range h.pending.Snapshot() {
		if !f.match(e) {
			continue
		}
		if meta.Pending == 0 {
			next := newEventMessage(e)
			next.Type = "pending"
			meta.Next = &next
		}
		meta.Pending++
	}
	return meta
}

// SSE message payload types.

type metadataMessage struct {
	Type    string        `json:"type"`
	Pending int           `json:"pending"`
	Next    *eventMessage `json:"next,omitempty"`
}

type eventMessage struct {
	Type     string   `json:"type"`
	ID       string   `json:"id"`
	Body     string   `json:"body"`
	Kind     string   `json:"kind"`
	Date     string   `json:"date"`
	Azimuth  *float64 `json:"azimuth,omitempty"`
	Altitude *float64 `json:"altitude,omitempty"`
}

func newEventMessage(e event.Event) eventMessage {
	m := eventMessage{
		Type: "event",
		ID:   e.ID.String(),
		Body: e.Body,
		Kind: string(e.Kind),
		Date: e.Date.UTC().Format(time.RFC3339),
	}
	v := e.AzAlt
	if e.Kind.MeasuresAltitude() {
		m.Altitude = &v
	} else {
		m.Azimuth = &v
	}
	return m
}
