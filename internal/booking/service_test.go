package booking

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthlinkr/clinic-booking/internal/catalog"
	"github.com/healthlinkr/clinic-booking/internal/identity"
	redisclient "github.com/healthlinkr/clinic-booking/internal/redis"
	"github.com/healthlinkr/clinic-booking/pkg/logging"
)

// passLocker runs the critical section directly, no Redis involved.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(context.Context) error) error {
	return fn(ctx)
}

// heldLocker simulates a contended slot lock.
type heldLocker struct{}

func (heldLocker) WithSlotLock(context.Context, uuid.UUID, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

var patientCols = []string{"id", "full_name", "birth_date", "gender", "phone", "email", "created_at", "updated_at"}

func patientRows(id uuid.UUID) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(patientCols).
		AddRow(id, "Pat Doe", (*time.Time)(nil), "F", "555-0100", (*string)(nil), now, now)
}

var doctorCols = []string{"id", "clinic_id", "full_name", "specialty", "qualification", "consultation_fee", "years_experience", "is_active", "created_at", "updated_at"}

func doctorRows(id uuid.UUID, active bool) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(doctorCols).
		AddRow(id, (*uuid.UUID)(nil), "Dr. Roe", "Cardiology", "MD", 120.0, 8, active, now, now)
}

func newBookingService(mock pgxmock.PgxPoolIface, locker redisclient.Locker) *BookingService {
	slots := NewSlotStore(mock)
	sink := NewNotificationStore(mock)
	logger := logging.NewWithWriter("error", io.Discard)
	ledger := NewAppointmentLedger(mock, slots, sink, identity.RoleChecker{}, logger)
	return NewBookingService(mock, slots, ledger, catalog.NewStore(mock), locker, logger)
}

func TestBook(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	patientID := uuid.New()
	doctorID := uuid.New()
	slotID := uuid.New()
	start := time.Now().Add(48 * time.Hour)

	apptID := uuid.New()
	now := time.Now()
	apptRows := pgxmock.NewRows(apptCols).
		AddRow(apptID, patientID, doctorID, (*uuid.UUID)(nil), &slotID, start, StatusPending, "first visit", "", now, now)

	mock.ExpectQuery(`FROM patients`).WithArgs(patientID).WillReturnRows(patientRows(patientID))
	mock.ExpectQuery(`FROM doctors`).WithArgs(doctorID).WillReturnRows(doctorRows(doctorID, true))
	mock.ExpectBegin()
	mock.ExpectQuery(`SET is_booked = TRUE`).
		WithArgs(slotID, doctorID).
		WillReturnRows(slotRow(slotID, doctorID, start, start.Add(30*time.Minute), true, true))
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), patientID, doctorID, pgxmock.AnyArg(), slotID, start, "first visit").
		WillReturnRows(apptRows)
	expectEmitInTx(mock, patientID, CategoryBooking)
	expectEmitInTx(mock, doctorID, CategoryBooking)
	mock.ExpectCommit()

	svc := newBookingService(mock, passLocker{})
	appt, err := svc.Book(context.Background(), patientID, doctorID, nil, slotID, "first visit")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, patientID, appt.PatientID)
	require.NotNil(t, appt.SlotID)
	assert.Equal(t, slotID, *appt.SlotID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A failed notification insert is confined to its savepoint; the booking
// itself still commits.
func TestBookSurvivesSinkFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	patientID := uuid.New()
	doctorID := uuid.New()
	slotID := uuid.New()
	start := time.Now().Add(48 * time.Hour)

	apptID := uuid.New()
	now := time.Now()
	apptRows := pgxmock.NewRows(apptCols).
		AddRow(apptID, patientID, doctorID, (*uuid.UUID)(nil), &slotID, start, StatusPending, "", "", now, now)

	mock.ExpectQuery(`FROM patients`).WithArgs(patientID).WillReturnRows(patientRows(patientID))
	mock.ExpectQuery(`FROM doctors`).WithArgs(doctorID).WillReturnRows(doctorRows(doctorID, true))
	mock.ExpectBegin()
	mock.ExpectQuery(`SET is_booked = TRUE`).
		WithArgs(slotID, doctorID).
		WillReturnRows(slotRow(slotID, doctorID, start, start.Add(30*time.Minute), true, true))
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), patientID, doctorID, pgxmock.AnyArg(), slotID, start, "").
		WillReturnRows(apptRows)
	mock.ExpectExec(`^SAVEPOINT emit_notification`).
		WillReturnResult(pgxmock.NewResult("SAVEPOINT", 0))
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(pgxmock.AnyArg(), patientID, pgxmock.AnyArg(), CategoryBooking, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)
	mock.ExpectExec(`^ROLLBACK TO SAVEPOINT emit_notification`).
		WillReturnResult(pgxmock.NewResult("ROLLBACK", 0))
	expectEmitInTx(mock, doctorID, CategoryBooking)
	mock.ExpectCommit()

	svc := newBookingService(mock, passLocker{})
	appt, err := svc.Book(context.Background(), patientID, doctorID, nil, slotID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookSlotTaken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	patientID := uuid.New()
	doctorID := uuid.New()
	slotID := uuid.New()

	mock.ExpectQuery(`FROM patients`).WithArgs(patientID).WillReturnRows(patientRows(patientID))
	mock.ExpectQuery(`FROM doctors`).WithArgs(doctorID).WillReturnRows(doctorRows(doctorID, true))
	mock.ExpectBegin()
	mock.ExpectQuery(`SET is_booked = TRUE`).
		WithArgs(slotID, doctorID).
		WillReturnRows(pgxmock.NewRows(slotCols))
	mock.ExpectRollback()

	svc := newBookingService(mock, passLocker{})
	_, err = svc.Book(context.Background(), patientID, doctorID, nil, slotID, "")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A failure after the reservation rolls the whole booking back, including
// the slot flip.
func TestBookRollsBackOnCreateFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	patientID := uuid.New()
	doctorID := uuid.New()
	slotID := uuid.New()
	start := time.Now().Add(48 * time.Hour)

	mock.ExpectQuery(`FROM patients`).WithArgs(patientID).WillReturnRows(patientRows(patientID))
	mock.ExpectQuery(`FROM doctors`).WithArgs(doctorID).WillReturnRows(doctorRows(doctorID, true))
	mock.ExpectBegin()
	mock.ExpectQuery(`SET is_booked = TRUE`).
		WithArgs(slotID, doctorID).
		WillReturnRows(slotRow(slotID, doctorID, start, start.Add(30*time.Minute), true, true))
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), patientID, doctorID, pgxmock.AnyArg(), slotID, start, "").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	svc := newBookingService(mock, passLocker{})
	_, err = svc.Book(context.Background(), patientID, doctorID, nil, slotID, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlotUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookUnknownPatient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	patientID := uuid.New()

	mock.ExpectQuery(`FROM patients`).WithArgs(patientID).WillReturnRows(pgxmock.NewRows(patientCols))

	svc := newBookingService(mock, passLocker{})
	_, err = svc.Book(context.Background(), patientID, uuid.New(), nil, uuid.New(), "")
	assert.ErrorIs(t, err, ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookInactiveDoctor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	patientID := uuid.New()
	doctorID := uuid.New()

	mock.ExpectQuery(`FROM patients`).WithArgs(patientID).WillReturnRows(patientRows(patientID))
	mock.ExpectQuery(`FROM doctors`).WithArgs(doctorID).WillReturnRows(doctorRows(doctorID, false))

	svc := newBookingService(mock, passLocker{})
	_, err = svc.Book(context.Background(), patientID, doctorID, nil, uuid.New(), "")
	assert.ErrorIs(t, err, ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Losing the slot lock reads the same as a booked slot.
func TestBookLockContention(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	patientID := uuid.New()
	doctorID := uuid.New()

	mock.ExpectQuery(`FROM patients`).WithArgs(patientID).WillReturnRows(patientRows(patientID))
	mock.ExpectQuery(`FROM doctors`).WithArgs(doctorID).WillReturnRows(doctorRows(doctorID, true))

	svc := newBookingService(mock, heldLocker{})
	_, err = svc.Book(context.Background(), patientID, doctorID, nil, uuid.New(), "")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
