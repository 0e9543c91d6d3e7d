package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/followup"
	"github.com/hackgods/clinic-appointments/internal/pagination"
)

func (h *handlers) scheduleFollowUp(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r, appointment.RoleDoctor)
	if !ok {
		return
	}
	var req ScheduleFollowUpRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := h.followUps.Schedule(r.Context(), req.toDomain(pr.UserID))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *handlers) getFollowUp(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	d, err := h.followUps.Get(r.Context(), pr.Scope(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handlers) listFollowUps(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	f := followup.ListFilter{
		Status: followup.Status(r.URL.Query().Get("status")),
		Page:   pagination.ParseParams(r),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+string(f.Status))
		return
	}

	page, err := h.followUps.List(r.Context(), pr.Scope(), f)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) listFollowUpRange(w http.ResponseWriter, r *http.Request) {
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

	items, err := h.followUps.ListBetween(r.Context(), pr.Scope(), from, to)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handlers) listUrgentFollowUps(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r, appointment.RoleDoctor)
	if !ok {
		return
	}
	level := followup.MaxUrgency - 1
	if raw := r.URL.Query().Get("level"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_level", "level must be an integer")
			return
		}
		level = n
	}

	items, err := h.followUps.ListUrgent(r.Context(), pr.UserID, level)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handlers) followUpSummary(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	patientID, ok := pathUUID(w, r, "patientId")
	if !ok {
		return
	}

	s, err := h.followUps.Summary(r.Context(), pr.Scope(), patientID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) updateFollowUpStatus(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateFollowUpStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := h.followUps.UpdateStatus(r.Context(), pr.Scope(), followup.StatusChange{
		FollowUpID:         id,
		Status:             followup.Status(req.Status),
		Notes:              req.Notes,
		CancellationReason: req.CancellationReason,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handlers) rescheduleFollowUp(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r, appointment.RoleDoctor)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req RescheduleFollowUpRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, _ := time.Parse(appointment.DateLayout, req.NewDate)

	d, err := h.followUps.Reschedule(r.Context(), followup.RescheduleRequest{
		FollowUpID: id,
		DoctorID:   pr.UserID,
		NewDate:    date,
		Notes:      req.Notes,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handlers) processOverdue(w http.ResponseWriter, r *http.Request) {
	n, err := h.followUps.ProcessOverdue(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Processed: n})
}
