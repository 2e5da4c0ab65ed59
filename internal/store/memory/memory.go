// Package memory implements the clinic and credential stores in process
// memory. It backs tests and local development; the single mutex makes the
// guard-then-insert pair in booking atomic, so the slot invariant holds
// under concurrent requests.
package memory

import (
	"context"
	"sort"
	"sync"

	"medcore.org/internal/auth"
	"medcore.org/internal/clinic"
)

// Store keeps all records behind one lock.
type Store struct {
	mu           sync.RWMutex
	doctors      map[string]clinic.Doctor
	patients     map[string]clinic.Patient
	appointments map[string]clinic.Appointment
	admins       map[string]auth.Credential // keyed by email
	doctorCreds  map[string]auth.Credential // keyed by email
}

var (
	_ clinic.Store         = (*Store)(nil)
	_ auth.CredentialStore = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		doctors:      make(map[string]clinic.Doctor),
		patients:     make(map[string]clinic.Patient),
		appointments: make(map[string]clinic.Appointment),
		admins:       make(map[string]auth.Credential),
		doctorCreds:  make(map[string]auth.Credential),
	}
}

// AddDoctor registers a doctor record plus its login credential.
func (s *Store) AddDoctor(d clinic.Doctor, passwordHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[d.ID] = d
	if d.Email != "" {
		s.doctorCreds[d.Email] = auth.Credential{
			ID:           d.ID,
			Email:        d.Email,
			Name:         d.Name,
			PasswordHash: passwordHash,
		}
	}
}

// AddPatient registers a patient record.
func (s *Store) AddPatient(p clinic.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p
}

// AddAdmin registers an admin login credential.
func (s *Store) AddAdmin(c auth.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[c.Email] = c
}

func (s *Store) FindDoctor(ctx context.Context, id string) (clinic.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[id]
	if !ok {
		return clinic.Doctor{}, clinic.ErrNotFound
	}
	return d, nil
}

func (s *Store) FindPatient(ctx context.Context, id string) (clinic.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return clinic.Patient{}, clinic.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListDoctors(ctx context.Context) ([]clinic.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]clinic.Doctor, 0, len(s.doctors))
	for _, d := range s.doctors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindAppointment(ctx context.Context, id string) (clinic.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return clinic.Appointment{}, clinic.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAppointments(ctx context.Context, doctorID string) ([]clinic.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []clinic.Appointment
	for _, a := range s.appointments {
		if doctorID != "" && a.DoctorID != doctorID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

// CreateAppointment re-checks the slot under the write lock before
// inserting; two racing bookings therefore serialize here and the loser
// gets ErrSlotConflict.
func (s *Store) CreateAppointment(ctx context.Context, appt *clinic.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slotTakenLocked(clinic.Slot{DoctorID: appt.DoctorID, Date: appt.Date, Time: appt.Time}, "") {
		return clinic.ErrSlotConflict
	}
	s.appointments[appt.ID] = *appt
	return nil
}

func (s *Store) UpdateAppointment(ctx context.Context, appt *clinic.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.appointments[appt.ID]
	if !ok {
		return clinic.ErrNotFound
	}
	moved := prev.Date != appt.Date || prev.Time != appt.Time
	if moved && appt.Status != clinic.StatusRejected {
		if s.slotTakenLocked(clinic.Slot{DoctorID: appt.DoctorID, Date: appt.Date, Time: appt.Time}, appt.ID) {
			return clinic.ErrSlotConflict
		}
	}
	s.appointments[appt.ID] = *appt
	return nil
}

func (s *Store) SlotTaken(ctx context.Context, slot clinic.Slot, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slotTakenLocked(slot, excludeID), nil
}

func (s *Store) slotTakenLocked(slot clinic.Slot, excludeID string) bool {
	for _, a := range s.appointments {
		if a.ID == excludeID {
			continue
		}
		if a.DoctorID == slot.DoctorID && a.Date == slot.Date && a.Time == slot.Time &&
			a.Status != clinic.StatusRejected {
			return true
		}
	}
	return false
}

func (s *Store) FindAdminByEmail(ctx context.Context, email string) (auth.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.admins[email]
	if !ok {
		return auth.Credential{}, clinic.ErrNotFound
	}
	return c, nil
}

func (s *Store) FindDoctorByEmail(ctx context.Context, email string) (auth.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.doctorCreds[email]
	if !ok {
		return auth.Credential{}, clinic.ErrNotFound
	}
	return c, nil
}
