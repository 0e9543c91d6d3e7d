package api

import (
	"net/http"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/pagination"
)

func (h *handlers) requestAppointment(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r, appointment.RolePatient)
	if !ok {
		return
	}
	var req BookAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := h.appointments.RequestAppointment(r.Context(), req.toDomain(pr.UserID))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *handlers) requestEmergencyAppointment(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r, appointment.RolePatient)
	if !ok {
		return
	}
	var req EmergencyAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := h.appointments.RequestEmergencyAppointment(r.Context(), req.toDomain(pr.UserID))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *handlers) updateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r, appointment.RoleDoctor)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateAppointmentStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := h.appointments.UpdateAppointmentStatus(r.Context(), appointment.StatusUpdate{
		AppointmentID:      id,
		DoctorID:           pr.UserID,
		Status:             appointment.Status(req.Status),
		Notes:              req.Notes,
		DoctorNotes:        req.DoctorNotes,
		CancellationReason: req.CancellationReason,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	d, err := h.appointments.GetAppointment(r.Context(), pr.Scope(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// listFor serves /patient and /doctor. Callers with the matching role see
// their own appointments; admins name the subject with ?userId=.
func (h *handlers) listFor(role appointment.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pr, ok := principal(w, r, role, appointment.RoleAdmin)
		if !ok {
			return
		}
		subject := pr.UserID
		if pr.Is(appointment.RoleAdmin) {
			id, ok := queryUUID(w, r, "userId")
			if !ok {
				return
			}
			if id == nil {
				writeError(w, http.StatusBadRequest, "missing_userId", "userId is required for admin callers")
				return
			}
			subject = *id
		}

		f, ok := listFilter(w, r)
		if !ok {
			return
		}
		page, err := h.appointments.List(r.Context(), appointment.Scope{Role: role, UserID: subject}, f)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (h *handlers) listUpcoming(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	from, ok := queryDate(w, r, "from")
	if !ok {
		return
	}
	items, err := h.appointments.ListUpcoming(r.Context(), pr.Scope(), from)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handlers) listAppointmentRange(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	from, ok := requiredDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := requiredDate(w, r, "to")
	if !ok {
		return
	}

	items, err := h.appointments.ListBetween(r.Context(), pr.Scope(), from, to)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// internalGetAppointment is the inter-service detail read; the caller's
// role decides nothing here beyond the internal:read permission.
func (h *handlers) internalGetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.appointments.GetAppointment(r.Context(), appointment.Scope{Role: appointment.RoleService}, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handlers) internalListAppointments(w http.ResponseWriter, r *http.Request) {
	scope := appointment.Scope{Role: appointment.RoleService}
	if raw := r.URL.Query().Get("role"); raw != "" {
		role := appointment.Role(raw)
		if role != appointment.RolePatient && role != appointment.RoleDoctor {
			writeError(w, http.StatusBadRequest, "invalid_role", "role must be PATIENT or DOCTOR")
			return
		}
		id, ok := queryUUID(w, r, "userId")
		if !ok {
			return
		}
		if id == nil {
			writeError(w, http.StatusBadRequest, "missing_userId", "userId is required with role")
			return
		}
		scope = appointment.Scope{Role: role, UserID: *id}
	}

	f, ok := listFilter(w, r)
	if !ok {
		return
	}
	page, err := h.appointments.List(r.Context(), scope, f)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func listFilter(w http.ResponseWriter, r *http.Request) (appointment.ListFilter, bool) {
	f := appointment.ListFilter{
		Status: appointment.Status(r.URL.Query().Get("status")),
		Page:   pagination.ParseParams(r),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+string(f.Status))
		return f, false
	}
	date, ok := queryDate(w, r, "date")
	if !ok {
		return f, false
	}
	f.Date = date
	return f, true
}
