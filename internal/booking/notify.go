package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthlinkr/clinic-booking/internal/db"
)

// NotificationSink receives booking and status-change events. Record
// creation happens inside the ledger's transaction; delivery is somebody
// else's problem. Enqueue failures must never fail the enclosing state
// change, the ledger logs them and moves on.
type NotificationSink interface {
	Enqueue(ctx context.Context, n Notification) error
}

// txSink is implemented by sinks whose writes can join an open transaction.
type txSink interface {
	bindTx(tx pgx.Tx) NotificationSink
}

// NotificationStore is the Postgres-backed sink. It also serves the
// read-side endpoints (per-user listing, read flag).
type NotificationStore struct {
	db db.DBTX
}

func NewNotificationStore(db db.DBTX) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) bindTx(tx pgx.Tx) NotificationSink {
	return &NotificationStore{db: tx}
}

func (s *NotificationStore) Enqueue(ctx context.Context, n Notification) error {
	id := n.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, appointment_id, category, title, message, sent_at, read_flag)
		VALUES ($1, $2, $3, $4, $5, $6, now(), FALSE)
	`, id, n.UserID, n.AppointmentID, n.Category, n.Title, n.Message)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

const notificationColumns = `id, user_id, appointment_id, category, title, message, sent_at, read_flag`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.AppointmentID,
		&n.Category,
		&n.Title,
		&n.Message,
		&n.SentAt,
		&n.Read,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// ListByUser returns a user's notifications, newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

// MarkRead flips the read flag, the only mutation a notification admits.
func (s *NotificationStore) MarkRead(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications
		SET read_flag = TRUE
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// HasReminder reports whether a reminder was already recorded for the
// appointment, used by the reminder worker for dedup.
func (s *NotificationStore) HasReminder(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE appointment_id = $1 AND category = $2
		)
	`, appointmentID, CategoryReminder).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reminder: %w", err)
	}
	return exists, nil
}
