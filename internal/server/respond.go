package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	jerrors "trade-journal/internal/errors"
	"trade-journal/internal/importer"
	"trade-journal/internal/security"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		verr *jerrors.ValidationError
		roe  *security.ReadOnlyError
		ie   *jerrors.ImportError
	)
	switch {
	case errors.Is(err, jerrors.ErrNotAuthenticated),
		errors.Is(err, jerrors.ErrSessionExpired),
		errors.Is(err, jerrors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, jerrors.ErrEmailNotVerified), errors.As(err, &roe):
		return http.StatusForbidden
	case errors.Is(err, jerrors.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, jerrors.ErrDocumentNotFound), errors.Is(err, jerrors.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.As(err, &verr), errors.Is(err, jerrors.ErrInputValidation):
		return http.StatusBadRequest
	case errors.As(err, &ie):
		if errors.Is(err, importer.ErrServiceUnavailable) ||
			(ie.StatusCode == 0 && ie.Message == "import service url is not configured") {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case errors.Is(err, jerrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError renders err as JSON. Server errors are logged; their text is
// masked before it leaves the process.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: security.MaskSensitive(err.Error())}

	var verr *jerrors.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

// badRequest renders a 400 with a fixed message.
func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
