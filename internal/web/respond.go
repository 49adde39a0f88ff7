package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vbonduro/mealverify/internal/apperr"
)

const maxJSONBody = 1 << 20

// statusFor maps an error kind to the HTTP status returned to clients.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindExternal, apperr.KindMalformedPrediction:
		return http.StatusBadGateway
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response failed", "request_id", requestID(r), "path", r.URL.Path, "error", err)
	}
}

// writeError logs err and writes {"error": message}. Server-side failures
// are logged at error level with their full chain; client errors at info.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(apperr.KindOf(err))

	attrs := []any{"request_id", requestID(r), "method", r.Method, "path", r.URL.Path, "status", status}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		attrs = append(attrs, appErr.LogFields()...)
	} else {
		attrs = append(attrs, "error", err)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", attrs...)
	} else {
		s.logger.Info("request rejected", attrs...)
	}

	s.writeJSON(w, r, status, map[string]string{"error": apperr.MessageOf(err)})
}

// decodeBody reads a JSON request body into dst.
func decodeBody(r *http.Request, op string, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(err, apperr.KindValidation, op, "invalid JSON body")
	}
	return nil
}

// parseID extracts the {id} path variable and returns it as int64.
func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.NewValidation("parse id", "invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
