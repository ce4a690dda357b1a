package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/becomeliminal/dlmm-scout/core"
	"github.com/becomeliminal/dlmm-scout/engine"
	"github.com/becomeliminal/dlmm-scout/guardrails"
	"github.com/becomeliminal/dlmm-scout/validation"
)

const wsWriteTimeout = 10 * time.Second

// Frame types sent to WebSocket clients.
const (
	FrameChunk = "chunk"
	FrameDone  = "done"
	FrameError = "error"
)

// Frame is one server-to-client WebSocket message.
type Frame struct {
	Type       string `json:"type"`
	Content    string `json:"content,omitempty"`
	Error      string `json:"error,omitempty"`
	Field      string `json:"field,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// handleWebSocket serves the chat relay over a WebSocket. Every text frame
// from the client is a chat request body; replies are chunk frames followed
// by a done or error frame. Requests on one connection are handled in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", requestIDField(r), zap.Error(err))
		return
	}
	defer conn.Close()

	s.metrics.WebSocketOpened()
	defer s.metrics.WebSocketClosed()

	conn.SetReadLimit(validation.MaxRequestBodyBytes)
	clientID := guardrails.ClientKey(r)
	log := s.logger.With(requestIDField(r), zap.String("client", clientID))
	log.Debug("websocket connected")

	for {
		msgType, body, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := s.serveWebSocketRequest(r, conn, clientID, body); err != nil {
			log.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

// serveWebSocketRequest handles one chat request. It returns an error only
// when the connection can no longer be written to.
func (s *Server) serveWebSocketRequest(r *http.Request, conn *websocket.Conn, clientID string, body []byte) error {
	if _, err := s.limiter.Check(clientID); err != nil {
		s.metrics.ObserveChat("rate_limited")
		return writeFrame(conn, errorFrame(err, s.development))
	}

	req, err := validation.ValidateChatRequest(body)
	if err != nil {
		s.metrics.ObserveChat("invalid")
		return writeFrame(conn, errorFrame(err, s.development))
	}

	var writeErr error
	_, err = s.relay.Stream(r.Context(), &engine.Input{
		Request:   req,
		ClientID:  clientID,
		RequestID: requestID(r.Context()),
	}, func(fragment string) error {
		writeErr = writeFrame(conn, Frame{Type: FrameChunk, Content: fragment})
		return writeErr
	})
	if writeErr != nil {
		s.metrics.ObserveChat("error")
		return writeErr
	}
	if err != nil {
		s.metrics.ObserveChat("error")
		s.logger.Warn("websocket chat failed", requestIDField(r), zap.Error(err))
		return writeFrame(conn, errorFrame(err, s.development))
	}

	s.metrics.ObserveChat("ok")
	return writeFrame(conn, Frame{Type: FrameDone})
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(f)
}

// errorFrame mirrors the HTTP error policy: validation and rate-limit errors
// are reported as is, anything else is generic outside development.
func errorFrame(err error, development bool) Frame {
	var (
		vErr  *core.ValidationError
		rlErr *core.RateLimitError
	)
	switch {
	case errors.As(err, &vErr):
		return Frame{Type: FrameError, Error: vErr.Message, Field: vErr.Field}
	case errors.As(err, &rlErr):
		return Frame{Type: FrameError, Error: "Rate limit exceeded", RetryAfter: retryAfterSeconds(rlErr.RetryAfter)}
	case development:
		return Frame{Type: FrameError, Error: err.Error()}
	default:
		return Frame{Type: FrameError, Error: "An unexpected error occurred"}
	}
}
