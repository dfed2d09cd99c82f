package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/healthlinkr/clinic-booking/pkg/logging"
)

// ReminderService creates reminder notifications for upcoming appointments.
// It only writes notification records, never slots or appointments, so it
// can run alongside request traffic without coordination.
type ReminderService struct {
	ledger *AppointmentLedger
	sink   NotificationSink
	logger *logging.Logger
}

func NewReminderService(ledger *AppointmentLedger, sink NotificationSink, logger *logging.Logger) *ReminderService {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReminderService{ledger: ledger, sink: sink, logger: logger}
}

// RemindUpcoming records one reminder per appointment starting within the
// lead window. Repeated runs are safe, already-reminded appointments are
// filtered out.
func (s *ReminderService) RemindUpcoming(ctx context.Context, lead time.Duration) (int, error) {
	now := time.Now()

	due, err := s.ledger.ListUpcomingWithoutReminder(ctx, now, lead)
	if err != nil {
		return 0, fmt.Errorf("find appointments due for reminder: %w", err)
	}

	sent := 0
	for _, appt := range due {
		apptID := appt.ID
		n := Notification{
			UserID:        appt.PatientID,
			AppointmentID: &apptID,
			Category:      CategoryReminder,
			Title:         "Upcoming appointment",
			Message: fmt.Sprintf("You have an appointment on %s.",
				appt.Datetime.Format(time.RFC1123)),
		}
		if err := s.sink.Enqueue(ctx, n); err != nil {
			s.logger.Warn("reminder enqueue failed", "appointment_id", appt.ID, "error", err)
			continue
		}
		sent++
	}

	if sent > 0 {
		s.logger.Info("reminders recorded", "count", sent)
	}
	return sent, nil
}
