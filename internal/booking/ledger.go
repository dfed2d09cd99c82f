package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthlinkr/clinic-booking/internal/db"
	"github.com/healthlinkr/clinic-booking/internal/identity"
	"github.com/healthlinkr/clinic-booking/pkg/logging"
)

// allowedTransitions is the whole state machine. Terminal states have no
// entry, so any attempt to leave them fails the lookup.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func transitionAllowed(from, to Status) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// AppointmentLedger owns appointment rows and their status transitions.
// Every caller, self-service, doctor or admin bulk action, goes through
// Transition so slot release is inseparable from cancellation.
type AppointmentLedger struct {
	pool   db.Pool
	q      db.DBTX
	tx     pgx.Tx // set by bind; emit needs it for savepoints
	slots  *SlotStore
	sink   NotificationSink
	roles  identity.Checker
	logger *logging.Logger
}

func NewAppointmentLedger(pool db.Pool, slots *SlotStore, sink NotificationSink, roles identity.Checker, logger *logging.Logger) *AppointmentLedger {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentLedger{
		pool:   pool,
		q:      pool,
		slots:  slots,
		sink:   sink,
		roles:  roles,
		logger: logger,
	}
}

// bind returns a copy of the ledger whose statements, slot writes and
// notification records all join tx.
func (l *AppointmentLedger) bind(tx pgx.Tx) *AppointmentLedger {
	c := *l
	c.q = tx
	c.tx = tx
	c.slots = l.slots.bind(tx)
	if ts, ok := l.sink.(txSink); ok {
		c.sink = ts.bindTx(tx)
	}
	return &c
}

const appointmentColumns = `id, patient_id, doctor_id, service_id, slot_id, datetime, status, notes, cancel_reason, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ServiceID,
		&a.SlotID,
		&a.Datetime,
		&a.Status,
		&a.Notes,
		&a.CancelReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (l *AppointmentLedger) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := l.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// getForUpdate locks the appointment row for the rest of the transaction.
func (l *AppointmentLedger) getForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := l.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

// create inserts a PENDING appointment with datetime copied from the slot.
// The caller (BookingService) has already reserved the slot inside the same
// transaction. Emits the booking notifications, patient confirmation and
// doctor alert.
func (l *AppointmentLedger) create(ctx context.Context, patientID, doctorID uuid.UUID, serviceID *uuid.UUID, slot *ScheduleSlot, notes string) (*Appointment, error) {
	row := l.q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, service_id, slot_id, datetime, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', $7, now(), now())
		RETURNING `+appointmentColumns+`
	`, uuid.New(), patientID, doctorID, serviceID, slot.ID, slot.StartTime, notes)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	when := appt.Datetime.Format(time.RFC1123)
	l.emit(ctx, Notification{
		UserID:        appt.PatientID,
		AppointmentID: &appt.ID,
		Category:      CategoryBooking,
		Title:         "Appointment booked",
		Message:       fmt.Sprintf("Your appointment on %s is pending confirmation.", when),
	})
	l.emit(ctx, Notification{
		UserID:        appt.DoctorID,
		AppointmentID: &appt.ID,
		Category:      CategoryBooking,
		Title:         "New appointment",
		Message:       fmt.Sprintf("A patient booked your slot on %s.", when),
	})

	return appt, nil
}

// Transition moves an appointment through the state machine as one
// transaction: status change, slot release on cancellation and the
// notification record all commit together or not at all.
func (l *AppointmentLedger) Transition(ctx context.Context, id uuid.UUID, target Status, actor identity.Principal, reason string) (*Appointment, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := l.bind(tx)

	appt, err := b.getForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	if !transitionAllowed(appt.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, appt.Status, target)
	}
	if err := l.authorize(actor, appt, target); err != nil {
		return nil, err
	}

	updated, err := b.updateStatus(ctx, appt.ID, appt.Status, target, reason)
	if err != nil {
		return nil, err
	}

	if target == StatusCancelled && appt.SlotID != nil {
		if err := b.slots.Release(ctx, *appt.SlotID); err != nil {
			return nil, err
		}
	}

	b.notifyTransition(ctx, updated, appt.Status, actor)

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	l.logger.Info("appointment transitioned",
		"appointment_id", updated.ID,
		"from", appt.Status,
		"to", target,
		"actor", actor.ID,
	)
	return updated, nil
}

// authorize checks the actor against the transition-authorization table.
// Patients may only cancel their own non-terminal appointments; doctors and
// admins may perform any legal transition.
func (l *AppointmentLedger) authorize(actor identity.Principal, appt *Appointment, target Status) error {
	if l.roles.HasRole(actor, identity.RoleAdmin) || l.roles.HasRole(actor, identity.RoleDoctor) {
		return nil
	}
	if l.roles.HasRole(actor, identity.RolePatient) {
		if target != StatusCancelled {
			return fmt.Errorf("%w: patients may only cancel", ErrForbidden)
		}
		if appt.PatientID != actor.ID {
			return fmt.Errorf("%w: not your appointment", ErrForbidden)
		}
		return nil
	}
	return ErrForbidden
}

// updateStatus is a compare-and-swap on the status column; the WHERE clause
// keeps a concurrent writer from resurrecting a terminal appointment even
// without the row lock.
func (l *AppointmentLedger) updateStatus(ctx context.Context, id uuid.UUID, from, to Status, reason string) (*Appointment, error) {
	row := l.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancel_reason = CASE WHEN $2 = 'CANCELLED' THEN $4 ELSE cancel_reason END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, reason)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: concurrent status change", ErrIllegalTransition)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}
	return appt, nil
}

// reassignSlot points a PENDING appointment at a new slot and refreshes its
// datetime. Used only by RescheduleService inside its transaction.
func (l *AppointmentLedger) reassignSlot(ctx context.Context, id uuid.UUID, slot *ScheduleSlot) (*Appointment, error) {
	row := l.q.QueryRow(ctx, `
		UPDATE appointments
		SET slot_id = $2,
		    datetime = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'PENDING'
		RETURNING `+appointmentColumns+`
	`, id, slot.ID, slot.StartTime)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: only pending appointments can be rescheduled", ErrIllegalTransition)
		}
		return nil, fmt.Errorf("reassign slot: %w", err)
	}
	return appt, nil
}

func (l *AppointmentLedger) notifyTransition(ctx context.Context, appt *Appointment, from Status, actor identity.Principal) {
	when := appt.Datetime.Format(time.RFC1123)

	var n Notification
	switch appt.Status {
	case StatusConfirmed:
		n = Notification{
			UserID:  appt.PatientID,
			Title:   "Appointment confirmed",
			Message: fmt.Sprintf("Your appointment on %s has been confirmed.", when),
		}
	case StatusCompleted:
		n = Notification{
			UserID:  appt.PatientID,
			Title:   "Appointment completed",
			Message: fmt.Sprintf("Your appointment on %s has been marked completed.", when),
		}
	case StatusCancelled:
		// Tell the counterparty, not whoever pressed the button.
		recipient := appt.PatientID
		if actor.ID == appt.PatientID {
			recipient = appt.DoctorID
		}
		n = Notification{
			UserID:  recipient,
			Title:   "Appointment cancelled",
			Message: fmt.Sprintf("The appointment on %s has been cancelled.", when),
		}
	default:
		return
	}

	n.AppointmentID = &appt.ID
	n.Category = CategoryStatus
	l.emit(ctx, n)
}

// emit records a notification, logging a warning instead of failing the
// caller's transaction when the sink errors. When the ledger is bound to a
// transaction the insert runs under a savepoint: without one, a failed
// INSERT would abort the whole transaction (25P02) and every statement up
// to and including the commit would fail with it.
func (l *AppointmentLedger) emit(ctx context.Context, n Notification) {
	if l.sink == nil {
		return
	}

	if l.tx == nil {
		if err := l.sink.Enqueue(ctx, n); err != nil {
			l.warnEnqueueFailed(n, err)
		}
		return
	}

	if _, err := l.tx.Exec(ctx, `SAVEPOINT emit_notification`); err != nil {
		l.warnEnqueueFailed(n, err)
		return
	}
	if err := l.sink.Enqueue(ctx, n); err != nil {
		if _, rbErr := l.tx.Exec(ctx, `ROLLBACK TO SAVEPOINT emit_notification`); rbErr != nil {
			l.logger.Warn("notification savepoint rollback failed", "error", rbErr)
		}
		l.warnEnqueueFailed(n, err)
		return
	}
	if _, err := l.tx.Exec(ctx, `RELEASE SAVEPOINT emit_notification`); err != nil {
		l.warnEnqueueFailed(n, err)
	}
}

func (l *AppointmentLedger) warnEnqueueFailed(n Notification, err error) {
	l.logger.Warn("notification enqueue failed",
		"user_id", n.UserID,
		"category", n.Category,
		"error", err,
	)
}

// ListByPatient returns a patient's appointments, newest first, optionally
// filtered by status.
func (l *AppointmentLedger) ListByPatient(ctx context.Context, patientID uuid.UUID, status *Status, limit int) ([]Appointment, error) {
	return l.list(ctx, "patient_id", patientID, status, limit)
}

// ListByDoctor returns a doctor's appointments, newest first.
func (l *AppointmentLedger) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status *Status, limit int) ([]Appointment, error) {
	return l.list(ctx, "doctor_id", doctorID, status, limit)
}

func (l *AppointmentLedger) list(ctx context.Context, column string, id uuid.UUID, status *Status, limit int) ([]Appointment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ` + column + ` = $1
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY datetime DESC
		LIMIT $3
	`
	rows, err := l.q.Query(ctx, query, id, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// ListUpcomingWithoutReminder feeds the reminder worker: confirmed or
// pending appointments starting within the lead window that have no
// reminder notification yet.
func (l *AppointmentLedger) ListUpcomingWithoutReminder(ctx context.Context, now time.Time, lead time.Duration) ([]Appointment, error) {
	rows, err := l.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.status IN ('PENDING', 'CONFIRMED')
		  AND a.datetime > $1
		  AND a.datetime <= $2
		  AND NOT EXISTS (
			SELECT 1 FROM notifications n
			WHERE n.appointment_id = a.id AND n.category = 'reminder'
		  )
	`, now, now.Add(lead))
	if err != nil {
		return nil, fmt.Errorf("list upcoming appointments: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}
