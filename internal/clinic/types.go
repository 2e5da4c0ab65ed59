package clinic

import (
	"fmt"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Doctor is a read-only reference resolved during booking. Record management
// for doctors lives outside the scheduling core.
type Doctor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Specialty string `json:"specialty,omitempty"`
}

// Patient is a read-only reference resolved during booking.
type Patient struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Appointment is owned exclusively by the scheduling core. Billing and
// medical records reference appointments by id but never mutate them.
type Appointment struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	DoctorID  string    `json:"doctor_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	StartsAt  time.Time `json:"starts_at"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Slot is the unit of schedulable capacity: one doctor at one exact
// date and time-of-day. The domain models fixed-duration visits, so
// collisions are only possible at identical start times and no interval
// overlap math is needed.
type Slot struct {
	DoctorID string
	Date     string
	Time     string
}

// ParseSlot validates the wire representation of a slot and normalizes it.
func ParseSlot(doctorID, date, timeOfDay string) (Slot, error) {
	if doctorID == "" {
		return Slot{}, fmt.Errorf("%w: doctor_id is required", ErrInvalidInput)
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return Slot{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	t, err := time.Parse(timeLayout, timeOfDay)
	if err != nil {
		return Slot{}, fmt.Errorf("%w: time must be HH:MM", ErrInvalidInput)
	}
	return Slot{
		DoctorID: doctorID,
		Date:     d.Format(dateLayout),
		Time:     t.Format(timeLayout),
	}, nil
}

// At combines the slot's date and time into the appointment instant. The
// combined value is always derived here, never set by callers, so the split
// fields and the instant cannot diverge.
func (s Slot) At() time.Time {
	t, _ := time.Parse(dateLayout+" "+timeLayout, s.Date+" "+s.Time)
	return t.UTC()
}
