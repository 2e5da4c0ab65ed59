// Package pg implements the clinic and credential stores on PostgreSQL.
//
// The slot-uniqueness invariant lives in the schema: a partial unique index
// on (doctor_id, visit_date, visit_time) where status <> 'REJECTED'. The
// application-level guard in the scheduler gives friendly errors; the index
// is what makes two racing bookings impossible.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"medcore.org/internal/auth"
	"medcore.org/internal/clinic"
)

const uniqueViolation = "23505"

// Store wraps the database handle.
type Store struct {
	db *sql.DB
}

var (
	_ clinic.Store         = (*Store)(nil)
	_ auth.CredentialStore = (*Store)(nil)
)

// Open connects to PostgreSQL via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) FindDoctor(ctx context.Context, id string) (clinic.Doctor, error) {
	var d clinic.Doctor
	var specialty sql.NullString
	err := s.db.QueryRowContext(ctx,
		`select id, name, email, specialty from doctors where id=$1`, id,
	).Scan(&d.ID, &d.Name, &d.Email, &specialty)
	if errors.Is(err, sql.ErrNoRows) {
		return clinic.Doctor{}, clinic.ErrNotFound
	}
	if err != nil {
		return clinic.Doctor{}, err
	}
	if specialty.Valid {
		d.Specialty = specialty.String
	}
	return d, nil
}

func (s *Store) FindPatient(ctx context.Context, id string) (clinic.Patient, error) {
	var p clinic.Patient
	err := s.db.QueryRowContext(ctx,
		`select id, first_name, last_name, email from patients where id=$1`, id,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return clinic.Patient{}, clinic.ErrNotFound
	}
	if err != nil {
		return clinic.Patient{}, err
	}
	return p, nil
}

func (s *Store) ListDoctors(ctx context.Context) ([]clinic.Doctor, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, email, coalesce(specialty, '') from doctors order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []clinic.Doctor
	for rows.Next() {
		var d clinic.Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Email, &d.Specialty); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const appointmentColumns = `id, patient_id, doctor_id,
	to_char(visit_date, 'YYYY-MM-DD'), to_char(visit_time, 'HH24:MI'),
	starts_at, status, coalesce(notes, ''), created_at, updated_at`

func (s *Store) FindAppointment(ctx context.Context, id string) (clinic.Appointment, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+appointmentColumns+` from appointments where id=$1`, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return clinic.Appointment{}, clinic.ErrNotFound
	}
	return appt, err
}

func (s *Store) ListAppointments(ctx context.Context, doctorID string) ([]clinic.Appointment, error) {
	query := `select ` + appointmentColumns + ` from appointments`
	args := []any{}
	if doctorID != "" {
		query += ` where doctor_id=$1`
		args = append(args, doctorID)
	}
	query += ` order by starts_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []clinic.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func (s *Store) CreateAppointment(ctx context.Context, appt *clinic.Appointment) error {
	_, err := s.db.ExecContext(ctx,
		`insert into appointments
		   (id, patient_id, doctor_id, visit_date, visit_time, starts_at, status, notes, created_at, updated_at)
		 values ($1,$2,$3,$4::date,$5::time,$6,$7,$8,$9,$10)`,
		appt.ID, appt.PatientID, appt.DoctorID, appt.Date, appt.Time,
		appt.StartsAt, string(appt.Status), appt.Notes, appt.CreatedAt, appt.UpdatedAt,
	)
	return mapSlotError(err)
}

func (s *Store) UpdateAppointment(ctx context.Context, appt *clinic.Appointment) error {
	res, err := s.db.ExecContext(ctx,
		`update appointments
		 set visit_date=$2::date, visit_time=$3::time, starts_at=$4, status=$5, notes=$6, updated_at=$7
		 where id=$1`,
		appt.ID, appt.Date, appt.Time, appt.StartsAt, string(appt.Status), appt.Notes, appt.UpdatedAt,
	)
	if err != nil {
		return mapSlotError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return clinic.ErrNotFound
	}
	return nil
}

func (s *Store) SlotTaken(ctx context.Context, slot clinic.Slot, excludeID string) (bool, error) {
	query := `select exists(
		select 1 from appointments
		where doctor_id=$1 and visit_date=$2::date and visit_time=$3::time
		  and status <> 'REJECTED'`
	args := []any{slot.DoctorID, slot.Date, slot.Time}
	if excludeID != "" {
		query += ` and id <> $4`
		args = append(args, excludeID)
	}
	query += `)`

	var taken bool
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&taken)
	return taken, err
}

func (s *Store) FindAdminByEmail(ctx context.Context, email string) (auth.Credential, error) {
	return s.findCredential(ctx, `select id, email, name, password_hash from admins where email=$1`, email)
}

func (s *Store) FindDoctorByEmail(ctx context.Context, email string) (auth.Credential, error) {
	return s.findCredential(ctx, `select id, email, name, password_hash from doctors where email=$1`, email)
}

func (s *Store) findCredential(ctx context.Context, query, email string) (auth.Credential, error) {
	var c auth.Credential
	err := s.db.QueryRowContext(ctx, query, email).Scan(&c.ID, &c.Email, &c.Name, &c.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Credential{}, clinic.ErrNotFound
	}
	if err != nil {
		return auth.Credential{}, err
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (clinic.Appointment, error) {
	var a clinic.Appointment
	var status string
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Time,
		&a.StartsAt, &status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return clinic.Appointment{}, err
	}
	a.Status = clinic.Status(status)
	return a, nil
}

// mapSlotError converts a unique violation on the slot index into the
// domain conflict error; this is the backstop for the check-then-act race.
func mapSlotError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return clinic.ErrSlotConflict
	}
	return err
}
