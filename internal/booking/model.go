package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseStatus maps a wire value onto a known status.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return Status(s), true
	}
	return "", false
}

// ScheduleSlot is a bookable time window owned by a doctor. is_booked is
// written only through SlotStore; is_available is an administrative switch
// independent of booking.
type ScheduleSlot struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	IsBooked    bool
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Appointment binds a patient, a doctor, an optional service and usually a
// slot. Datetime is copied from the slot at (re)booking time and stays
// authoritative once the slot reference is cleared.
type Appointment struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	ServiceID    *uuid.UUID
	SlotID       *uuid.UUID
	Datetime     time.Time
	Status       Status
	Notes        string
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type NotificationCategory string

const (
	CategoryBooking    NotificationCategory = "booking"
	CategoryStatus     NotificationCategory = "status"
	CategoryReschedule NotificationCategory = "reschedule"
	CategoryReminder   NotificationCategory = "reminder"
)

// Notification is the sink record created alongside every booking or status
// change. Immutable once written except for the read flag.
type Notification struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	AppointmentID *uuid.UUID
	Category      NotificationCategory
	Title         string
	Message       string
	SentAt        time.Time
	Read          bool
}
