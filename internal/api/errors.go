package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
	"github.com/ccdanpian/sat-yuntai/internal/httputil"
	"github.com/ccdanpian/sat-yuntai/internal/passes"
	"github.com/ccdanpian/sat-yuntai/internal/passlog"
	"github.com/ccdanpian/sat-yuntai/internal/propagation"
	"github.com/ccdanpian/sat-yuntai/internal/scene"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
	"github.com/ccdanpian/sat-yuntai/internal/tracking"
)

var errPassLogDisabled = errors.New("pass log is disabled")

// inputError marks a failure caused by the request itself.
type inputError struct{ err error }

func (e inputError) Error() string { return e.err.Error() }
func (e inputError) Unwrap() error { return e.err }

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return inputError{err: err}
}

func invalidf(format string, args ...any) error {
	return inputError{err: fmt.Errorf(format, args...)}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var in inputError
	switch {
	case errors.As(err, &in),
		errors.Is(err, anglemath.ErrInvalidAngle),
		errors.Is(err, scene.ErrDegenerateFrame),
		errors.Is(err, tle.ErrChecksum):
		return http.StatusBadRequest
	case errors.Is(err, passes.ErrNoPass),
		errors.Is(err, tle.ErrNotFound),
		errors.Is(err, passlog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracking.ErrNoSession),
		errors.Is(err, tracking.ErrNoFrame),
		errors.Is(err, tle.ErrFetchDisabled):
		return http.StatusConflict
	case errors.Is(err, propagation.ErrNoCatalog),
		errors.Is(err, errPassLogDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErr writes err as a JSON error. Internal failures are logged and
// reported without detail.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"component", "api",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		msg = "internal error"
	} else {
		s.logger.Log(r.Context(), slog.LevelDebug, "request rejected",
			"component", "api",
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	httputil.WriteError(w, status, msg)
}
