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

	"github.com/healthlinkr/clinic-booking/internal/identity"
	redisclient "github.com/healthlinkr/clinic-booking/internal/redis"
	"github.com/healthlinkr/clinic-booking/pkg/logging"
)

func newRescheduleService(mock pgxmock.PgxPoolIface, locker redisclient.Locker) *RescheduleService {
	slots := NewSlotStore(mock)
	sink := NewNotificationStore(mock)
	logger := logging.NewWithWriter("error", io.Discard)
	ledger := NewAppointmentLedger(mock, slots, sink, identity.RoleChecker{}, logger)
	return NewRescheduleService(mock, slots, ledger, locker, logger)
}

func TestReschedule(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fix := newApptFixture(StatusPending)
	newSlotID := uuid.New()
	newStart := time.Now().Add(72 * time.Hour)
	now := time.Now()

	movedRows := pgxmock.NewRows(apptCols).
		AddRow(fix.ID, fix.PatientID, fix.DoctorID, (*uuid.UUID)(nil), &newSlotID, newStart, StatusPending, "", "", now, now)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(fix.ID).WillReturnRows(fix.rows(StatusPending))
	mock.ExpectQuery(`SET is_booked = TRUE`).
		WithArgs(newSlotID, fix.DoctorID).
		WillReturnRows(slotRow(newSlotID, fix.DoctorID, newStart, newStart.Add(30*time.Minute), true, true))
	mock.ExpectExec(`SET is_booked = FALSE`).
		WithArgs(*fix.SlotID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`SET slot_id =`).
		WithArgs(fix.ID, newSlotID, newStart).
		WillReturnRows(movedRows)
	expectEmitInTx(mock, fix.DoctorID, CategoryReschedule)
	mock.ExpectCommit()

	svc := newRescheduleService(mock, passLocker{})
	moved, err := svc.Reschedule(context.Background(), fix.ID, newSlotID, fix.PatientID)
	require.NoError(t, err)
	require.NotNil(t, moved.SlotID)
	assert.Equal(t, newSlotID, *moved.SlotID)
	assert.Equal(t, StatusPending, moved.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// If the new slot cannot be reserved the old reservation must survive: the
// transaction rolls back before the old slot is released.
func TestRescheduleNewSlotTaken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fix := newApptFixture(StatusPending)
	newSlotID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(fix.ID).WillReturnRows(fix.rows(StatusPending))
	mock.ExpectQuery(`SET is_booked = TRUE`).
		WithArgs(newSlotID, fix.DoctorID).
		WillReturnRows(pgxmock.NewRows(slotCols))
	mock.ExpectRollback()

	svc := newRescheduleService(mock, passLocker{})
	_, err = svc.Reschedule(context.Background(), fix.ID, newSlotID, fix.PatientID)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleNotOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fix := newApptFixture(StatusPending)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(fix.ID).WillReturnRows(fix.rows(StatusPending))
	mock.ExpectRollback()

	svc := newRescheduleService(mock, passLocker{})
	_, err = svc.Reschedule(context.Background(), fix.ID, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleNonPending(t *testing.T) {
	for _, status := range []Status{StatusConfirmed, StatusCompleted, StatusCancelled} {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)

		fix := newApptFixture(status)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WithArgs(fix.ID).WillReturnRows(fix.rows(status))
		mock.ExpectRollback()

		svc := newRescheduleService(mock, passLocker{})
		_, err = svc.Reschedule(context.Background(), fix.ID, uuid.New(), fix.PatientID)
		assert.ErrorIs(t, err, ErrIllegalTransition, "status %s", status)
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	}
}

func TestRescheduleUnknownAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(id).WillReturnRows(pgxmock.NewRows(apptCols))
	mock.ExpectRollback()

	svc := newRescheduleService(mock, passLocker{})
	_, err = svc.Reschedule(context.Background(), id, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleLockContention(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := newRescheduleService(mock, heldLocker{})
	_, err = svc.Reschedule(context.Background(), uuid.New(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
