package reservation

import (
	"context"
	"fmt"
	"time"
)

// DayAvailability is the advisory status of one date.
type DayAvailability struct {
	Date   SlotDate
	Status SlotStatus
}

// ConflictGuard answers availability questions and performs the binding claim.
type ConflictGuard struct {
	calendar CalendarStore
	holdTTL  time.Duration
	options
}

// NewConflictGuard wires a ConflictGuard with the hold TTL applied to every claim.
func NewConflictGuard(calendar CalendarStore, holdTTL time.Duration, opts ...Option) (*ConflictGuard, error) {
	if calendar == nil {
		return nil, fmt.Errorf("%w: calendar store is nil", ErrInvalidServiceConfig)
	}
	if holdTTL <= 0 {
		return nil, fmt.Errorf("%w: hold ttl must be positive", ErrInvalidServiceConfig)
	}
	return &ConflictGuard{calendar: calendar, holdTTL: holdTTL, options: buildOptions(opts)}, nil
}

// HoldTTL returns the configured hold duration.
func (guard *ConflictGuard) HoldTTL() time.Duration {
	return guard.holdTTL
}

// CheckAvailability is advisory and may be stale by the time a claim is attempted.
func (guard *ConflictGuard) CheckAvailability(ctx context.Context, captainID CaptainID, date SlotDate) (Availability, error) {
	entry, err := guard.calendar.Get(ctx, captainID, date)
	if err != nil {
		return Unavailable, err
	}
	if entry.Status == SlotAvailable {
		return Available, nil
	}
	return Unavailable, nil
}

// Availability returns the status of every date in the range, filling absent rows as available.
func (guard *ConflictGuard) Availability(ctx context.Context, captainID CaptainID, dateRange DateRange) ([]DayAvailability, error) {
	entries, err := guard.calendar.ListRange(ctx, captainID, dateRange)
	if err != nil {
		return nil, err
	}
	byDate := make(map[SlotDate]SlotStatus, len(entries))
	for _, entry := range entries {
		byDate[entry.Date] = entry.Status
	}
	dates := dateRange.Dates()
	days := make([]DayAvailability, 0, len(dates))
	for _, date := range dates {
		status, ok := byDate[date]
		if !ok {
			status = SlotAvailable
		}
		days = append(days, DayAvailability{Date: date, Status: status})
	}
	return days, nil
}

// Claim is the binding check: a pending hold is taken for bookingID or the claim conflicts.
func (guard *ConflictGuard) Claim(ctx context.Context, captainID CaptainID, date SlotDate, bookingID BookingID) (ClaimOutcome, error) {
	outcome, err := guard.calendar.TryClaim(ctx, captainID, date, bookingID, guard.now().Add(guard.holdTTL))
	guard.logOperation(ctx, OperationLog{
		Operation: operationClaim,
		CaptainID: captainID,
		BookingID: bookingID,
		Date:      date,
		Detail:    string(outcome),
		Error:     err,
	})
	if err != nil {
		return ClaimConflict, err
	}
	return outcome, nil
}

// Block marks a date as operator-blocked, or reopens it.
func (guard *ConflictGuard) Block(ctx context.Context, captainID CaptainID, date SlotDate, blocked bool) error {
	return guard.calendar.SetBlocked(ctx, captainID, date, blocked)
}
