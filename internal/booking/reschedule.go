package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthlinkr/clinic-booking/internal/db"
	redisclient "github.com/healthlinkr/clinic-booking/internal/redis"
	"github.com/healthlinkr/clinic-booking/pkg/logging"
)

// RescheduleService atomically moves a PENDING appointment to a different
// slot of the same doctor. The new slot is reserved before the old one is
// released, so a failure mid-operation never leaves the patient with no
// reserved slot; the surrounding transaction rolls every step back together.
type RescheduleService struct {
	pool   db.Pool
	slots  *SlotStore
	ledger *AppointmentLedger
	locker redisclient.Locker
	logger *logging.Logger
}

func NewRescheduleService(pool db.Pool, slots *SlotStore, ledger *AppointmentLedger, locker redisclient.Locker, logger *logging.Logger) *RescheduleService {
	if logger == nil {
		logger = logging.Default()
	}
	return &RescheduleService{
		pool:   pool,
		slots:  slots,
		ledger: ledger,
		locker: locker,
		logger: logger,
	}
}

func (s *RescheduleService) Reschedule(ctx context.Context, appointmentID, newSlotID, actingPatientID uuid.UUID) (*Appointment, error) {
	var updated *Appointment

	err := s.locker.WithSlotLock(ctx, newSlotID, func(lockCtx context.Context) error {
		tx, err := s.pool.Begin(lockCtx)
		if err != nil {
			return fmt.Errorf("begin reschedule: %w", err)
		}
		defer func() { _ = tx.Rollback(lockCtx) }()

		ledger := s.ledger.bind(tx)
		slots := s.slots.bind(tx)

		appt, err := ledger.getForUpdate(lockCtx, appointmentID)
		if err != nil {
			return err
		}
		if appt.PatientID != actingPatientID {
			return fmt.Errorf("%w: not your appointment", ErrForbidden)
		}
		if appt.Status != StatusPending {
			return fmt.Errorf("%w: only pending appointments can be rescheduled", ErrIllegalTransition)
		}

		// Reserve the new slot before releasing the old one.
		newSlot, err := slots.Reserve(lockCtx, newSlotID, appt.DoctorID)
		if err != nil {
			return err
		}
		if appt.SlotID != nil {
			if err := slots.Release(lockCtx, *appt.SlotID); err != nil {
				return err
			}
		}

		moved, err := ledger.reassignSlot(lockCtx, appt.ID, newSlot)
		if err != nil {
			return err
		}

		ledger.emit(lockCtx, Notification{
			UserID:        moved.DoctorID,
			AppointmentID: &moved.ID,
			Category:      CategoryReschedule,
			Title:         "Appointment rescheduled",
			Message: fmt.Sprintf("An appointment was moved to %s.",
				moved.Datetime.Format(time.RFC1123)),
		})

		if err := tx.Commit(lockCtx); err != nil {
			return fmt.Errorf("commit reschedule: %w", err)
		}

		updated = moved
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("slot is being booked: %w", ErrSlotUnavailable)
		}
		return nil, err
	}

	s.logger.Info("appointment rescheduled",
		"appointment_id", updated.ID,
		"new_slot_id", newSlotID,
		"patient_id", actingPatientID,
	)
	return updated, nil
}
