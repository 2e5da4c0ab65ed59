package clinic

import (
	"context"
	"fmt"
	"time"

	"medcore.org/internal/ids"
	"medcore.org/internal/obs"
)

// Store describes the persistence operations the scheduling core needs.
// CreateAppointment and Reschedule must uphold the slot-uniqueness invariant
// at the storage layer and surface violations as ErrSlotConflict, so the
// guard-then-insert pair cannot race its way into a double booking.
type Store interface {
	FindDoctor(ctx context.Context, id string) (Doctor, error)
	FindPatient(ctx context.Context, id string) (Patient, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)

	FindAppointment(ctx context.Context, id string) (Appointment, error)
	ListAppointments(ctx context.Context, doctorID string) ([]Appointment, error)
	CreateAppointment(ctx context.Context, appt *Appointment) error
	UpdateAppointment(ctx context.Context, appt *Appointment) error
	SlotTaken(ctx context.Context, slot Slot, excludeID string) (bool, error)
}

// Notifier delivers the rejection notice to a patient. Every outcome is
// treated as non-fatal by the scheduler.
type Notifier interface {
	SendRejection(ctx context.Context, toEmail, patientName, date, timeOfDay string) error
}

// BookingRequest carries the inputs of a booking operation.
type BookingRequest struct {
	PatientID string
	DoctorID  string
	Date      string
	Time      string
	Notes     string
}

// Scheduler owns the appointment state machine and the booking conflict
// guard. It is safe for concurrent use as long as the Store is.
type Scheduler struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

// NewScheduler constructs the scheduler. notifier may be nil, in which case
// rejections are persisted without a notice.
func NewScheduler(store Store, notifier Notifier) *Scheduler {
	return &Scheduler{store: store, notifier: notifier, now: time.Now}
}

// SlotTaken is the conflict guard: true iff a non-REJECTED appointment
// occupies the exact (doctor, date, time) slot. Read-only and safe to call
// repeatedly; REJECTED appointments free the slot for rebooking.
func (s *Scheduler) SlotTaken(ctx context.Context, doctorID, date, timeOfDay string) (bool, error) {
	slot, err := ParseSlot(doctorID, date, timeOfDay)
	if err != nil {
		return false, err
	}
	return s.store.SlotTaken(ctx, slot, "")
}

// Book creates a PENDING appointment after resolving both parties and
// checking the conflict guard. Identity lookups fail fast before any
// mutation; the storage layer backstops the guard under concurrency.
func (s *Scheduler) Book(ctx context.Context, req BookingRequest) (Appointment, error) {
	slot, err := ParseSlot(req.DoctorID, req.Date, req.Time)
	if err != nil {
		return Appointment{}, err
	}
	if req.PatientID == "" {
		return Appointment{}, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}

	doctor, err := s.store.FindDoctor(ctx, slot.DoctorID)
	if err != nil {
		return Appointment{}, fmt.Errorf("%w: doctor %s", ErrNotFound, slot.DoctorID)
	}
	patient, err := s.store.FindPatient(ctx, req.PatientID)
	if err != nil {
		return Appointment{}, fmt.Errorf("%w: patient %s", ErrNotFound, req.PatientID)
	}

	taken, err := s.store.SlotTaken(ctx, slot, "")
	if err != nil {
		return Appointment{}, err
	}
	if taken {
		return Appointment{}, ErrSlotConflict
	}

	now := s.now().UTC()
	appt := Appointment{
		ID:        ids.New(),
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		Date:      slot.Date,
		Time:      slot.Time,
		StartsAt:  slot.At(),
		Status:    StatusPending,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAppointment(ctx, &appt); err != nil {
		return Appointment{}, err
	}
	return appt, nil
}

// UpdateStatus applies the lifecycle decision. Only PENDING→ACCEPTED and
// PENDING→REJECTED are permitted. A REJECTED outcome attempts exactly one
// rejection notice; delivery failure is logged and never affects the
// already-persisted status.
func (s *Scheduler) UpdateStatus(ctx context.Context, appointmentID, rawStatus string) (Appointment, error) {
	next, err := ParseStatus(rawStatus)
	if err != nil {
		return Appointment{}, err
	}

	appt, err := s.store.FindAppointment(ctx, appointmentID)
	if err != nil {
		return Appointment{}, fmt.Errorf("%w: appointment %s", ErrNotFound, appointmentID)
	}
	if !appt.Status.CanTransitionTo(next) {
		return Appointment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, next)
	}

	appt.Status = next
	appt.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateAppointment(ctx, &appt); err != nil {
		return Appointment{}, err
	}

	if next == StatusRejected {
		s.notifyRejection(ctx, appt)
	}
	return appt, nil
}

// notifyRejection is fire-and-forget: the outcome never feeds back into the
// appointment's persisted state.
func (s *Scheduler) notifyRejection(ctx context.Context, appt Appointment) {
	if s.notifier == nil {
		return
	}
	patient, err := s.store.FindPatient(ctx, appt.PatientID)
	if err != nil || patient.Email == "" {
		obs.LogEvent(map[string]any{
			"level":          "warn",
			"msg":            "rejection notice skipped, patient unresolvable",
			"appointment_id": appt.ID,
		})
		return
	}
	if err := s.notifier.SendRejection(ctx, patient.Email, patient.FirstName, appt.Date, appt.Time); err != nil {
		obs.LogEvent(map[string]any{
			"level":          "warn",
			"msg":            "rejection notice failed",
			"appointment_id": appt.ID,
			"error":          err.Error(),
		})
	}
}

// Reschedule moves an appointment to a new slot and replaces its notes,
// re-running the conflict guard with the appointment itself excluded.
func (s *Scheduler) Reschedule(ctx context.Context, appointmentID, date, timeOfDay, notes string) (Appointment, error) {
	appt, err := s.store.FindAppointment(ctx, appointmentID)
	if err != nil {
		return Appointment{}, fmt.Errorf("%w: appointment %s", ErrNotFound, appointmentID)
	}
	slot, err := ParseSlot(appt.DoctorID, date, timeOfDay)
	if err != nil {
		return Appointment{}, err
	}

	taken, err := s.store.SlotTaken(ctx, slot, appt.ID)
	if err != nil {
		return Appointment{}, err
	}
	if taken {
		return Appointment{}, ErrSlotConflict
	}

	appt.Date = slot.Date
	appt.Time = slot.Time
	appt.StartsAt = slot.At()
	appt.Notes = notes
	appt.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateAppointment(ctx, &appt); err != nil {
		return Appointment{}, err
	}
	return appt, nil
}

// Get returns a single appointment.
func (s *Scheduler) Get(ctx context.Context, id string) (Appointment, error) {
	appt, err := s.store.FindAppointment(ctx, id)
	if err != nil {
		return Appointment{}, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
	}
	return appt, nil
}

// List returns appointments, optionally filtered by doctor.
func (s *Scheduler) List(ctx context.Context, doctorID string) ([]Appointment, error) {
	return s.store.ListAppointments(ctx, doctorID)
}

// Doctors returns the bookable doctors.
func (s *Scheduler) Doctors(ctx context.Context) ([]Doctor, error) {
	return s.store.ListDoctors(ctx)
}

// PatientByID resolves a patient reference for read-only display.
func (s *Scheduler) PatientByID(ctx context.Context, id string) (Patient, error) {
	p, err := s.store.FindPatient(ctx, id)
	if err != nil {
		return Patient{}, fmt.Errorf("%w: patient %s", ErrNotFound, id)
	}
	return p, nil
}
