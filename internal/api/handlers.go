package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/healthlinkr/clinic-booking/internal/booking"
	"github.com/healthlinkr/clinic-booking/internal/identity"
)

func createBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		patientID := uuid.MustParse(req.PatientID)
		doctorID := uuid.MustParse(req.DoctorID)
		slotID := uuid.MustParse(req.SlotID)

		var serviceID *uuid.UUID
		if req.ServiceID != "" {
			id := uuid.MustParse(req.ServiceID)
			serviceID = &id
		}

		appt, err := svc.Book(r.Context(), patientID, doctorID, serviceID, slotID, req.Notes)
		if err != nil {
			writeCoreError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func rescheduleHandler(svc RescheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apptID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		appt, err := svc.Reschedule(r.Context(), apptID, uuid.MustParse(req.NewSlotID), uuid.MustParse(req.PatientID))
		if err != nil {
			writeCoreError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func transitionHandler(svc LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apptID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		actor, ok := GetPrincipal(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_principal", "X-User-ID header is required")
			return
		}

		var req TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		target, ok := booking.ParseStatus(req.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+req.Status)
			return
		}

		appt, err := svc.Transition(r.Context(), apptID, target, actor, req.Reason)
		if err != nil {
			writeCoreError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// bulkTransitionHandler applies the same Transition entry point per
// appointment so bulk admin actions cannot diverge from the self-service
// path. Each appointment succeeds or fails on its own.
func bulkTransitionHandler(svc LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := GetPrincipal(r.Context())
		if !ok || !(identity.RoleChecker{}).HasRole(actor, identity.RoleAdmin) {
			writeError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}

		var req BulkTransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		target, ok := booking.ParseStatus(req.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+req.Status)
			return
		}

		results := make([]BulkTransitionResult, 0, len(req.AppointmentIDs))
		for _, raw := range req.AppointmentIDs {
			id := uuid.MustParse(raw)
			appt, err := svc.Transition(r.Context(), id, target, actor, req.Reason)
			if err != nil {
				results = append(results, BulkTransitionResult{AppointmentID: raw, Error: err.Error()})
				continue
			}
			results = append(results, BulkTransitionResult{AppointmentID: raw, Status: string(appt.Status)})
		}

		writeJSON(w, http.StatusOK, results)
	}
}

func listSlotsHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		after := time.Now()
		if raw := r.URL.Query().Get("after"); raw != "" {
			after, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_after", "after must be RFC3339")
				return
			}
		}

		slots, err := svc.ListAvailable(r.Context(), doctorID, after)
		if err != nil {
			writeCoreError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for i := range slots {
			resp = append(resp, toSlotResponse(&slots[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createSlotHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireStaff(w, r) {
			return
		}

		var req CreateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		slot, err := svc.Create(r.Context(), uuid.MustParse(req.DoctorID), req.StartTime, req.EndTime)
		if err != nil {
			writeCoreError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(slot))
	}
}

func disableSlotHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireStaff(w, r) {
			return
		}

		slotID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := svc.Disable(r.Context(), slotID); err != nil {
			writeCoreError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteSlotHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireStaff(w, r) {
			return
		}

		slotID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := svc.Delete(r.Context(), slotID); err != nil {
			writeCoreError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listAppointmentsHandler(svc LedgerService, byDoctor bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
			return
		}

		var status *booking.Status
		if raw := r.URL.Query().Get("status"); raw != "" {
			st, ok := booking.ParseStatus(raw)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_status", "unknown status filter")
				return
			}
			status = &st
		}

		var appts []booking.Appointment
		if byDoctor {
			appts, err = svc.ListByDoctor(r.Context(), id, status, 0)
		} else {
			appts, err = svc.ListByPatient(r.Context(), id, status, 0)
		}
		if err != nil {
			writeCoreError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listNotificationsHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "id must be a valid UUID")
			return
		}

		notifs, err := svc.ListByUser(r.Context(), userID, 0)
		if err != nil {
			writeCoreError(w, err)
			return
		}

		resp := make([]NotificationResponse, 0, len(notifs))
		for _, n := range notifs {
			resp = append(resp, NotificationResponse{
				ID:       n.ID,
				Category: string(n.Category),
				Title:    n.Title,
				Message:  n.Message,
				SentAt:   n.SentAt,
				Read:     n.Read,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func markNotificationReadHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_notification_id", "id must be a valid UUID")
			return
		}

		if err := svc.MarkRead(r.Context(), id); err != nil {
			writeCoreError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listClinicsHandler(svc CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinics, err := svc.ListClinics(r.Context())
		if err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, clinics)
	}
}

func getClinicHandler(svc CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "id must be a valid UUID")
			return
		}

		clinic, err := svc.GetClinicByID(r.Context(), id)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, clinic)
	}
}

func listClinicDoctorsHandler(svc CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "id must be a valid UUID")
			return
		}

		doctors, err := svc.ListDoctorsByClinic(r.Context(), id)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doctors)
	}
}

// requireStaff gates slot administration behind the doctor or admin role.
func requireStaff(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := GetPrincipal(r.Context())
	checker := identity.RoleChecker{}
	if !ok || !(checker.HasRole(actor, identity.RoleDoctor) || checker.HasRole(actor, identity.RoleAdmin)) {
		writeError(w, http.StatusForbidden, "forbidden", "doctor or admin role required")
		return false
	}
	return true
}
