package api

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/healthlinkr/clinic-booking/internal/booking"
)

// validate checks the request structs below; handlers reject anything it
// flags before touching the core.
var validate = validator.New()

type CreateBookingRequest struct {
	PatientID string `json:"patient_id" validate:"required,uuid4_rfc4122"`
	DoctorID  string `json:"doctor_id" validate:"required,uuid4_rfc4122"`
	ServiceID string `json:"service_id" validate:"omitempty,uuid4_rfc4122"`
	SlotID    string `json:"slot_id" validate:"required,uuid4_rfc4122"`
	Notes     string `json:"notes" validate:"max=2000"`
}

type RescheduleRequest struct {
	NewSlotID string `json:"new_slot_id" validate:"required,uuid4_rfc4122"`
	PatientID string `json:"patient_id" validate:"required,uuid4_rfc4122"`
}

type TransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING CONFIRMED COMPLETED CANCELLED"`
	Reason string `json:"reason" validate:"max=2000"`
}

type BulkTransitionRequest struct {
	AppointmentIDs []string `json:"appointment_ids" validate:"required,min=1,max=100,dive,uuid4_rfc4122"`
	Status         string   `json:"status" validate:"required,oneof=PENDING CONFIRMED COMPLETED CANCELLED"`
	Reason         string   `json:"reason" validate:"max=2000"`
}

type CreateSlotRequest struct {
	DoctorID  string    `json:"doctor_id" validate:"required,uuid4_rfc4122"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

type AppointmentResponse struct {
	ID           uuid.UUID  `json:"id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	DoctorID     uuid.UUID  `json:"doctor_id"`
	ServiceID    *uuid.UUID `json:"service_id,omitempty"`
	SlotID       *uuid.UUID `json:"slot_id,omitempty"`
	Datetime     time.Time  `json:"datetime"`
	Status       string     `json:"status"`
	Notes        string     `json:"notes,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		PatientID:    a.PatientID,
		DoctorID:     a.DoctorID,
		ServiceID:    a.ServiceID,
		SlotID:       a.SlotID,
		Datetime:     a.Datetime,
		Status:       string(a.Status),
		Notes:        a.Notes,
		CancelReason: a.CancelReason,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsBooked    bool      `json:"is_booked"`
	IsAvailable bool      `json:"is_available"`
}

func toSlotResponse(s *booking.ScheduleSlot) SlotResponse {
	return SlotResponse{
		ID:          s.ID,
		DoctorID:    s.DoctorID,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		IsBooked:    s.IsBooked,
		IsAvailable: s.IsAvailable,
	}
}

type NotificationResponse struct {
	ID       uuid.UUID `json:"id"`
	Category string    `json:"category"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	SentAt   time.Time `json:"sent_at"`
	Read     bool      `json:"read"`
}

type BulkTransitionResult struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status,omitempty"`
	Error         string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
