package core

import (
	"context"
	"fmt"
	"time"

	"access.service/internal/ports/messaging"
	"github.com/rs/zerolog/log"
)

// AttendanceSignal tells the caller which mutation a match produced.
type AttendanceSignal string

const (
	SignalCheckIn        AttendanceSignal = "check_in"
	SignalCheckOutUpdate AttendanceSignal = "check_out_update"
)

// ProcessMatch converts a confirmed identity match into the day's session
// mutation. The first match of the day opens the session; every later match
// pushes check_out forward and recomputes session_minutes (last-scan-wins,
// one session per employee per calendar day). Check-out is assumed same-day
// as check-in; overnight shifts are out of scope.
func (s *AccessService) ProcessMatch(ctx context.Context, deviceID string, employeeID int64, matchedAt time.Time) (AttendanceSignal, error) {
	y, m, d := matchedAt.Date()
	workDate := time.Date(y, m, d, 0, 0, 0, 0, matchedAt.Location())

	session, err := s.repo.FindSession(ctx, employeeID, workDate)
	if err != nil {
		return "", fmt.Errorf("failed to query attendance session: %w", err)
	}

	if session == nil {
		if _, err := s.repo.CreateSession(ctx, employeeID, workDate, matchedAt); err != nil {
			return "", fmt.Errorf("failed to create attendance session: %w", err)
		}
		return SignalCheckIn, nil
	}

	minutes := int(matchedAt.Sub(session.CheckIn).Minutes())
	if minutes < 0 {
		minutes = 0
	}

	if err := s.repo.UpdateSessionCheckOut(ctx, session.ID, matchedAt, minutes); err != nil {
		return "", fmt.Errorf("failed to update check-out: %w", err)
	}

	// Fire-and-forget: the summary mail must never fail the attendance write.
	event := messaging.EmailEvent{
		EmployeeID:     employeeID,
		DeviceID:       deviceID,
		WorkDate:       workDate.Format("2006-01-02"),
		SessionMinutes: minutes,
		CheckOutTime:   matchedAt,
		OccurredAt:     s.now(),
	}
	if err := s.emails.PublishEmail(ctx, event); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Int64("employee_id", employeeID).
			Msg("Failed to publish check-out email event")
	}

	return SignalCheckOutUpdate, nil
}
