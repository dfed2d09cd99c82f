// Package catalog exposes read-only clinic, doctor, service and patient
// lookups. The booking core uses it to validate references; the API uses it
// for browsing. Nothing here mutates rows outside of seeding.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthlinkr/clinic-booking/internal/db"
)

var (
	ErrClinicNotFound  = errors.New("clinic not found")
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrServiceNotFound = errors.New("service not found")
)

type Clinic struct {
	ID            uuid.UUID
	Name          string
	Address       string
	ContactNumber string
	Email         string
	Description   string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Doctor struct {
	ID              uuid.UUID
	ClinicID        *uuid.UUID
	FullName        string
	Specialty       string
	Qualification   string
	ConsultationFee float64
	YearsExperience int
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Patient struct {
	ID        uuid.UUID
	FullName  string
	BirthDate *time.Time
	Gender    string
	Phone     string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Service struct {
	ID              uuid.UUID
	ClinicID        uuid.UUID
	Name            string
	Description     string
	DurationMinutes int
	Fee             float64
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Store struct {
	db db.DBTX
}

func NewStore(db db.DBTX) *Store {
	return &Store{db: db}
}

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Address,
		&c.ContactNumber,
		&c.Email,
		&c.Description,
		&c.Active,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}
	return &c, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.ClinicID,
		&d.FullName,
		&d.Specialty,
		&d.Qualification,
		&d.ConsultationFee,
		&d.YearsExperience,
		&d.Active,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.FullName,
		&p.BirthDate,
		&p.Gender,
		&p.Phone,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	err := row.Scan(
		&s.ID,
		&s.ClinicID,
		&s.Name,
		&s.Description,
		&s.DurationMinutes,
		&s.Fee,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

const clinicColumns = `id, name, address, contact_number, email, description, is_active, created_at, updated_at`

func (s *Store) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+clinicColumns+`
		FROM clinics
		WHERE id = $1
	`, id)
	return scanClinic(row)
}

func (s *Store) ListClinics(ctx context.Context) ([]Clinic, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+clinicColumns+`
		FROM clinics
		WHERE is_active = TRUE
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

const doctorColumns = `id, clinic_id, full_name, specialty, qualification, consultation_fee, years_experience, is_active, created_at, updated_at`

func (s *Store) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

// ListDoctorsByClinic returns the active doctors attached to a clinic.
func (s *Store) ListDoctorsByClinic(ctx context.Context, clinicID uuid.UUID) ([]Doctor, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE clinic_id = $1 AND is_active = TRUE
		ORDER BY full_name
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (s *Store) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, full_name, birth_date, gender, phone, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (s *Store) GetServiceByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, clinic_id, name, description, duration_minutes, fee, is_active, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}
