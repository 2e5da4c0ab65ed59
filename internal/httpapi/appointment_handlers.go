package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"medcore.org/internal/audit"
	"medcore.org/internal/auth"
	"medcore.org/internal/clinic"
	"medcore.org/internal/ids"
	"medcore.org/internal/obs"
)

type bookRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Notes     string `json:"notes"`
}

type rescheduleRequest struct {
	Date  string `json:"date"`
	Time  string `json:"time"`
	Notes string `json:"notes"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleAppointmentsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.bookAppointment(w, r)
	case http.MethodGet:
		a.listAppointments(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleAppointmentResource dispatches /v1/appointments/{id} and
// /v1/appointments/{id}/status.
func (a *API) handleAppointmentResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/appointments/")
	id, sub, _ := strings.Cut(rest, "/")
	if !ids.Valid(id) {
		writeError(w, r, http.StatusNotFound, "appointment not found")
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			a.getAppointment(w, r, id)
		case http.MethodPatch:
			a.rescheduleAppointment(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
		}
	case "status":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.updateAppointmentStatus(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) bookAppointment(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	appt, err := a.scheduler.Book(r.Context(), clinic.BookingRequest{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Date:      req.Date,
		Time:      req.Time,
		Notes:     req.Notes,
	})
	if err != nil {
		a.clinicError(w, r, err)
		return
	}

	obs.AppointmentsBooked.Inc()
	audit.LogEvent(r.Context(), "appointment.booked", map[string]any{
		"appointment_id": appt.ID,
		"doctor_id":      appt.DoctorID,
		"patient_id":     appt.PatientID,
		"date":           appt.Date,
		"time":           appt.Time,
	})
	writeJSON(w, http.StatusCreated, appt)
}

// listAppointments serves the unfiltered listing to admins only; a doctor
// may request exactly their own ?doctor_id= view.
func (a *API) listAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID := strings.TrimSpace(r.URL.Query().Get("doctor_id"))
	principal, _ := auth.PrincipalFromContext(r.Context())
	if principal.Role != auth.RoleAdmin {
		if doctorID == "" {
			writeError(w, r, http.StatusForbidden, "insufficient role")
			return
		}
		own, err := a.ownDoctorID(r.Context(), principal.Subject)
		if err != nil || own != doctorID {
			writeError(w, r, http.StatusForbidden, "insufficient role")
			return
		}
	}
	appts, err := a.scheduler.List(r.Context(), doctorID)
	if err != nil {
		a.clinicError(w, r, err)
		return
	}
	if appts == nil {
		appts = []clinic.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointments": appts,
	})
}

func (a *API) getAppointment(w http.ResponseWriter, r *http.Request, id string) {
	appt, err := a.scheduler.Get(r.Context(), id)
	if err != nil {
		a.clinicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (a *API) rescheduleAppointment(w http.ResponseWriter, r *http.Request, id string) {
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	appt, err := a.scheduler.Reschedule(r.Context(), id, req.Date, req.Time, req.Notes)
	if err != nil {
		a.clinicError(w, r, err)
		return
	}

	audit.LogEvent(r.Context(), "appointment.rescheduled", map[string]any{
		"appointment_id": appt.ID,
		"date":           appt.Date,
		"time":           appt.Time,
	})
	writeJSON(w, http.StatusOK, appt)
}

func (a *API) updateAppointmentStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	appt, err := a.scheduler.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		a.clinicError(w, r, err)
		return
	}

	audit.LogEvent(r.Context(), "appointment.status", map[string]any{
		"appointment_id": appt.ID,
		"status":         string(appt.Status),
	})
	writeJSON(w, http.StatusOK, appt)
}

func (a *API) handleDoctors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	doctors, err := a.scheduler.Doctors(r.Context())
	if err != nil {
		a.clinicError(w, r, err)
		return
	}
	if doctors == nil {
		doctors = []clinic.Doctor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doctors": doctors,
	})
}

func (a *API) handlePatientResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/patients/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	patient, err := a.scheduler.PatientByID(r.Context(), id)
	if err != nil {
		a.clinicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

// ownDoctorID resolves the doctor record behind a token subject. Token
// subjects are emails; appointment filters use doctor ids.
func (a *API) ownDoctorID(ctx context.Context, subject string) (string, error) {
	doctors, err := a.scheduler.Doctors(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range doctors {
		if strings.EqualFold(d.Email, subject) {
			return d.ID, nil
		}
	}
	return "", fmt.Errorf("no doctor record for %s", subject)
}

// clinicError maps domain sentinels onto HTTP status codes.
func (a *API) clinicError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, clinic.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, clinic.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, clinic.ErrSlotConflict):
		obs.SlotConflicts.Inc()
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, clinic.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		obs.LogEvent(map[string]any{
			"level": "error",
			"msg":   "request failed",
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
