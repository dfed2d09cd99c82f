package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthlinkr/clinic-booking/internal/db"
)

// SlotStore owns schedule slot rows and is the only component allowed to
// write is_booked.
type SlotStore struct {
	db db.DBTX
}

func NewSlotStore(db db.DBTX) *SlotStore {
	return &SlotStore{db: db}
}

// bind returns a copy of the store running its statements on tx.
func (s *SlotStore) bind(tx pgx.Tx) *SlotStore {
	return &SlotStore{db: tx}
}

const slotColumns = `id, doctor_id, start_time, end_time, is_booked, is_available, created_at, updated_at`

func scanSlot(row pgx.Row) (*ScheduleSlot, error) {
	var sl ScheduleSlot
	err := row.Scan(
		&sl.ID,
		&sl.DoctorID,
		&sl.StartTime,
		&sl.EndTime,
		&sl.IsBooked,
		&sl.IsAvailable,
		&sl.CreatedAt,
		&sl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sl, nil
}

func (s *SlotStore) GetByID(ctx context.Context, id uuid.UUID) (*ScheduleSlot, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM schedule_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

// ListAvailable returns a doctor's open slots starting after the given time,
// ordered by start time. Side-effect free.
func (s *SlotStore) ListAvailable(ctx context.Context, doctorID uuid.UUID, after time.Time) ([]ScheduleSlot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM schedule_slots
		WHERE doctor_id = $1
		  AND is_booked = FALSE
		  AND is_available = TRUE
		  AND start_time > $2
		ORDER BY start_time
	`, doctorID, after)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	defer rows.Close()

	var result []ScheduleSlot
	for rows.Next() {
		sl, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sl)
	}
	return result, rows.Err()
}

// Reserve atomically marks the slot booked. The UPDATE is the check-and-set:
// it only matches a slot that exists, belongs to the doctor, is open,
// enabled and still in the future. Two concurrent reservations of the same
// slot cannot both match.
func (s *SlotStore) Reserve(ctx context.Context, slotID, doctorID uuid.UUID) (*ScheduleSlot, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE schedule_slots
		SET is_booked = TRUE,
		    updated_at = now()
		WHERE id = $1
		  AND doctor_id = $2
		  AND is_booked = FALSE
		  AND is_available = TRUE
		  AND start_time > now()
		RETURNING `+slotColumns+`
	`, slotID, doctorID)

	sl, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("reserve slot: %w", err)
	}
	return sl, nil
}

// Release clears is_booked. Idempotent: releasing a deleted or already open
// slot is a no-op, not an error.
func (s *SlotStore) Release(ctx context.Context, slotID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE schedule_slots
		SET is_booked = FALSE,
		    updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

// Create adds a new availability window for a doctor.
func (s *SlotStore) Create(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*ScheduleSlot, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: slot end must be after start", ErrValidation)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO schedule_slots (id, doctor_id, start_time, end_time, is_booked, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, TRUE, now(), now())
		RETURNING `+slotColumns+`
	`, uuid.New(), doctorID, start, end)

	sl, err := scanSlot(row)
	if err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}
	return sl, nil
}

// Disable administratively withdraws the slot from booking without touching
// is_booked.
func (s *SlotStore) Disable(ctx context.Context, slotID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE schedule_slots
		SET is_available = FALSE,
		    updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return fmt.Errorf("disable slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a slot, refusing while a non-cancelled appointment still
// references it.
func (s *SlotStore) Delete(ctx context.Context, slotID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM schedule_slots
		WHERE id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM appointments
			WHERE slot_id = $1 AND status <> 'CANCELLED'
		  )
	`, slotID)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing slot from one still in use.
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schedule_slots WHERE id = $1)`, slotID).Scan(&exists); err != nil {
			return fmt.Errorf("delete slot: %w", err)
		}
		if exists {
			return ErrSlotInUse
		}
		return ErrNotFound
	}
	return nil
}
