package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/becomeliminal/dlmm-scout/core"
)

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

var errBodyTooLarge = errors.New("request body too large")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and a client-safe body. Validation
// and rate-limit errors are returned verbatim; everything else is logged in
// full and reduced to a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr   *core.ValidationError
		rlErr  *core.RateLimitError
		cfgErr *core.ConfigurationError
		gwErr  *core.GatewayError
	)

	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "Validation error",
			Message: vErr.Message,
			Field:   vErr.Field,
		})

	case errors.As(err, &rlErr):
		setRateLimitHeaders(w, rlErr.Limit, 0, rlErr.RetryAfter)
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:   "Too many requests",
			Message: fmt.Sprintf("Rate limit exceeded. Please try again in %d seconds.", retryAfterSeconds(rlErr.RetryAfter)),
		})

	case errors.Is(err, errBodyTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error:   "Payload too large",
			Message: "Request body must not exceed 1MB",
		})

	case errors.As(err, &cfgErr):
		s.logger.Error("server misconfigured", requestIDField(r), zap.Error(err))
		s.writeInternal(w, err)

	case errors.As(err, &gwErr):
		s.logger.Error("upstream failure", requestIDField(r), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:   "Bad gateway",
			Message: "Upstream service unavailable",
		})

	default:
		s.logger.Error("request failed", requestIDField(r), zap.Error(err))
		s.writeInternal(w, err)
	}
}

func (s *Server) writeInternal(w http.ResponseWriter, err error) {
	message := "An unexpected error occurred"
	if s.development {
		message = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error:   "Internal server error",
		Message: message,
	})
}

func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int, retryAfter time.Duration) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if retryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
	}
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}
