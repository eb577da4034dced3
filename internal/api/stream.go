package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"sepsis-predictor/internal/features"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// StreamReply answers one stream message. Seq is the 1-based position of the
// message on its connection.
type StreamReply struct {
	Seq int64 `json:"seq"`
	*PredictResponse
	Error string `json:"error,omitempty"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	if s.opts.Metrics != nil {
		s.opts.Metrics.StreamConnectionsAdd(1)
		defer s.opts.Metrics.StreamConnectionsAdd(-1)
	}
	logger.Info().Str("remote", r.RemoteAddr).Msg("Stream client connected")

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(conn, done)

	var seq int64
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("Stream read failed")
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		seq++
		if s.opts.Metrics != nil {
			s.opts.Metrics.StreamMessagesInc()
		}

		reply := s.streamReply(seq, data)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn().Err(err).Msg("Stream write failed")
			break
		}
	}
	logger.Info().Int64("messages", seq).Msg("Stream client disconnected")
}

func (s *Server) streamReply(seq int64, data []byte) StreamReply {
	fields, err := features.DecodeFields(bytes.NewReader(data))
	if err != nil {
		return StreamReply{Seq: seq, Error: err.Error()}
	}
	pred, err := s.predictFields(fields)
	if err != nil {
		return StreamReply{Seq: seq, Error: err.Error()}
	}
	resp := newPredictResponse(pred)
	return StreamReply{Seq: seq, PredictResponse: &resp}
}

// keepAlive pings the client until done is closed. When the server is stopping
// it sends a close frame so the client sees an orderly shutdown. WriteControl is
// safe to call alongside the handler's writes.
func (s *Server) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-s.closing.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		case <-done:
			return
		}
	}
}
