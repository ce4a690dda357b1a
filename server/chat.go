package server

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/becomeliminal/dlmm-scout/core"
	"github.com/becomeliminal/dlmm-scout/engine"
	"github.com/becomeliminal/dlmm-scout/guardrails"
	"github.com/becomeliminal/dlmm-scout/validation"
)

func (s *Server) handleChatProbe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "API route is working"})
}

// handleChat relays a chat request to the model and streams plain text
// fragments back. Once streaming has started an upstream failure aborts the
// connection so the client never sees a clean end of stream.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > validation.MaxRequestBodyBytes {
		s.metrics.ObserveChat("too_large")
		s.writeError(w, r, errBodyTooLarge)
		return
	}

	clientID := guardrails.ClientKey(r)
	res, err := s.limiter.Check(clientID)
	if err != nil {
		s.metrics.ObserveChat("rate_limited")
		s.logger.Info("rate limited", requestIDField(r), zap.String("client", clientID))
		s.writeError(w, r, err)
		return
	}
	setRateLimitHeaders(w, res.Limit, res.Remaining, 0)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validation.MaxRequestBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.ObserveChat("too_large")
			s.writeError(w, r, errBodyTooLarge)
			return
		}
		s.writeError(w, r, core.NewValidationError("body", "could not read request body"))
		return
	}

	req, err := validation.ValidateChatRequest(body)
	if err != nil {
		s.metrics.ObserveChat("invalid")
		s.writeError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	started := false
	startStream := func() {
		if started {
			return
		}
		started = true
		h := w.Header()
		h.Set("Content-Type", "text/event-stream; charset=utf-8")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}

	_, err = s.relay.Stream(r.Context(), &engine.Input{
		Request:   req,
		ClientID:  clientID,
		RequestID: requestID(r.Context()),
	}, func(fragment string) error {
		startStream()
		if _, err := io.WriteString(w, fragment); err != nil {
			return err
		}
		return rc.Flush()
	})

	switch {
	case err == nil:
		s.metrics.ObserveChat("ok")
		startStream()
	case started:
		s.metrics.ObserveChat("error")
		s.logger.Warn("aborting chat stream", requestIDField(r), zap.Error(err))
		panic(http.ErrAbortHandler)
	default:
		s.metrics.ObserveChat("error")
		var gwErr *core.GatewayError
		if errors.As(err, &gwErr) {
			// Upstream model failures are not the client's concern.
			s.logger.Error("chat upstream failed", requestIDField(r), zap.Error(err))
			s.writeInternal(w, err)
			return
		}
		s.writeError(w, r, err)
	}
}
