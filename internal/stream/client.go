package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/star/skywatch/internal/metrics"
)

const writeTimeout = 30 * time.Second

// client writes SSE frames to one connection.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// frame is one SSE message. Empty fields are omitted; a frame with only
// comment set is a keepalive.
type frame struct {
	id      string
	retry   time.Duration
	data    any
	comment string
}

func (f frame) encode() ([]byte, error) {
	var b strings.Builder
	if f.comment != "" {
		fmt.Fprintf(&b, ": %s\n", f.comment)
	}
	if f.retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", f.retry.Milliseconds())
	}
	if f.id != "" {
		fmt.Fprintf(&b, "id: %s\n", f.id)
	}
	if f.data != nil {
		data, err := json.Marshal(f.data)
		if err != nil {
			return nil, fmt.Errorf("json marshal: %w", err)
		}
		fmt.Fprintf(&b, "data: %s\n", data)
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// send writes f and flushes it. Each write pushes the deadline forward so
// an idle but healthy stream is never cut by the server's WriteTimeout.
func (c *client) send(f frame) error {
	msg, err := f.encode()
	if err != nil {
		return err
	}
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := c.w.Write(msg)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.flusher.Flush()

	c.bytesSent += int64(n)
	metrics.AddStreamBytes(int64(n))
	if f.data != nil {
		c.messagesSent++
		metrics.IncStreamMessages()
	}
	return nil
}

func (c *client) sendKeepalive(now time.Time) error {
	return c.send(frame{comment: "keepalive " + now.UTC().Format(time.RFC3339)})
}

// sent is nil-safe so deferred logging works before the stream starts.
func (c *client) sent() int64 {
	if c == nil {
		return 0
	}
	return c.messagesSent
}
