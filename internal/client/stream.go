package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"sepsis-predictor/internal/api"
)

// Stream is an open prediction stream. Send is not safe for concurrent use.
type Stream struct {
	conn    *websocket.Conn
	timeout time.Duration
	once    sync.Once
}

// DialStream opens the websocket stream of the service at base.
func DialStream(ctx context.Context, base string, timeout time.Duration) (*Stream, error) {
	url := strings.TrimRight(base, "/") + "/api/stream"
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}

	log.Debug().Str("url", url).Msg("Opening prediction stream")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	conn.SetReadLimit(512 * 1024)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Stream{conn: conn, timeout: timeout}, nil
}

// Send scores one row and waits for its reply. Rejected rows come back as a
// reply with Error set, not as an error.
func (s *Stream) Send(row json.RawMessage) (api.StreamReply, error) {
	var reply api.StreamReply

	s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, row); err != nil {
		return reply, fmt.Errorf("write message failed: %w", err)
	}

	s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	if err := s.conn.ReadJSON(&reply); err != nil {
		if websocket.IsCloseError(err, websocket.CloseGoingAway) {
			return reply, fmt.Errorf("server closed the stream: %w", err)
		}
		return reply, fmt.Errorf("read message failed: %w", err)
	}
	return reply, nil
}

// Close sends a close frame and releases the connection.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
