package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/apperr"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
)

type handlers struct {
	appointments AppointmentService
	followUps    FollowUpService
	validate     *validator.Validate
	log          zerolog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleError maps a service error to its HTTP status by kind.
func (h *handlers) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch apperr.Kind(err) {
	case apperr.ErrNotFound:
		status, code = http.StatusNotFound, "not_found"
	case apperr.ErrInvalidRequest:
		status, code = http.StatusBadRequest, "invalid_request"
	case apperr.ErrConflict:
		status, code = http.StatusConflict, "conflict"
	case apperr.ErrUnavailable:
		status, code = http.StatusServiceUnavailable, "unavailable"
	case apperr.ErrIllegalState:
		status, code = http.StatusUnprocessableEntity, "illegal_state"
	}

	ev := h.log.Warn()
	if status >= 500 {
		ev = h.log.Error()
	}
	ev.Err(err).
		Str("request_id", GetRequestID(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("request failed")

	writeError(w, status, code, err.Error())
}

// decode reads a JSON body into dst and runs struct validation.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", describeValidation(err))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func principal(w http.ResponseWriter, r *http.Request, roles ...auth.Role) (*auth.Principal, bool) {
	pr, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthenticated")
		return nil, false
	}
	if len(roles) > 0 && !slices.Contains(roles, pr.Role) {
		writeError(w, http.StatusForbidden, "forbidden", "not available to role "+string(pr.Role))
		return nil, false
	}
	return pr, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryUUID(w http.ResponseWriter, r *http.Request, name string) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return nil, false
	}
	return &id, true
}

// queryDate parses an optional YYYY-MM-DD parameter.
func queryDate(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	d, err := time.Parse(appointment.DateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be YYYY-MM-DD")
		return nil, false
	}
	return &d, true
}

func requiredDate(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	d, ok := queryDate(w, r, name)
	if !ok {
		return time.Time{}, false
	}
	if d == nil {
		writeError(w, http.StatusBadRequest, "missing_"+name, name+" is required")
		return time.Time{}, false
	}
	return *d, true
}
