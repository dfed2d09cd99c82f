package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/healthlinkr/clinic-booking/internal/catalog"
	"github.com/healthlinkr/clinic-booking/internal/db"
	redisclient "github.com/healthlinkr/clinic-booking/internal/redis"
	"github.com/healthlinkr/clinic-booking/pkg/logging"
)

// BookingService composes slot reservation and appointment creation into one
// all-or-nothing operation. For a given slot at most one Book call can ever
// succeed; every concurrent loser observes ErrSlotUnavailable.
type BookingService struct {
	pool    db.Pool
	slots   *SlotStore
	ledger  *AppointmentLedger
	catalog *catalog.Store
	locker  redisclient.Locker
	logger  *logging.Logger
}

func NewBookingService(pool db.Pool, slots *SlotStore, ledger *AppointmentLedger, cat *catalog.Store, locker redisclient.Locker, logger *logging.Logger) *BookingService {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingService{
		pool:    pool,
		slots:   slots,
		ledger:  ledger,
		catalog: cat,
		locker:  locker,
		logger:  logger,
	}
}

// Book reserves the slot and creates a PENDING appointment in a single
// transaction. The reservation UPDATE is the mutual-exclusion point; the
// per-slot Redis lock in front of it sheds contending requests before they
// open a transaction.
func (s *BookingService) Book(ctx context.Context, patientID, doctorID uuid.UUID, serviceID *uuid.UUID, slotID uuid.UUID, notes string) (*Appointment, error) {
	if err := s.validateRefs(ctx, patientID, doctorID, serviceID); err != nil {
		return nil, err
	}

	var created *Appointment

	err := s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		tx, err := s.pool.Begin(lockCtx)
		if err != nil {
			return fmt.Errorf("begin booking: %w", err)
		}
		defer func() { _ = tx.Rollback(lockCtx) }()

		slot, err := s.slots.bind(tx).Reserve(lockCtx, slotID, doctorID)
		if err != nil {
			return err
		}

		appt, err := s.ledger.bind(tx).create(lockCtx, patientID, doctorID, serviceID, slot, notes)
		if err != nil {
			// Rolling back the transaction also undoes the reservation.
			return err
		}

		if err := tx.Commit(lockCtx); err != nil {
			return fmt.Errorf("commit booking: %w", err)
		}

		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			// Somebody else is mid-booking on this slot; same remedy as a
			// booked slot, re-pick.
			return nil, fmt.Errorf("slot is being booked: %w", ErrSlotUnavailable)
		}
		return nil, err
	}

	s.logger.Info("appointment booked",
		"appointment_id", created.ID,
		"patient_id", patientID,
		"doctor_id", doctorID,
		"slot_id", slotID,
	)
	return created, nil
}

// validateRefs rejects dangling patient, doctor or service references
// before any state is touched.
func (s *BookingService) validateRefs(ctx context.Context, patientID, doctorID uuid.UUID, serviceID *uuid.UUID) error {
	if _, err := s.catalog.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, catalog.ErrPatientNotFound) {
			return fmt.Errorf("%w: unknown patient %s", ErrValidation, patientID)
		}
		return fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.catalog.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, catalog.ErrDoctorNotFound) {
			return fmt.Errorf("%w: unknown doctor %s", ErrValidation, doctorID)
		}
		return fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.Active {
		return fmt.Errorf("%w: doctor %s is not accepting appointments", ErrValidation, doctorID)
	}

	if serviceID != nil {
		svc, err := s.catalog.GetServiceByID(ctx, *serviceID)
		if err != nil {
			if errors.Is(err, catalog.ErrServiceNotFound) {
				return fmt.Errorf("%w: unknown service %s", ErrValidation, *serviceID)
			}
			return fmt.Errorf("load service: %w", err)
		}
		if !svc.Active {
			return fmt.Errorf("%w: service %s is not offered", ErrValidation, *serviceID)
		}
	}

	return nil
}
