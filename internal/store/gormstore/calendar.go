package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (store *Store) Get(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate) (reservation.CalendarEntry, error) {
	var model CalendarSlot
	err := store.db.WithContext(ctx).
		Where("captain_id = ? AND slot_date = ?", captainID.String(), date.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reservation.AvailableEntry(captainID, date), nil
	}
	if err != nil {
		return reservation.CalendarEntry{}, wrapStoreError(errorSubjectSlot, errorCodeGet, err)
	}
	entry, err := mapCalendarSlot(model)
	if err != nil {
		return reservation.CalendarEntry{}, wrapStoreError(errorSubjectSlot, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) ListRange(ctx context.Context, captainID reservation.CaptainID, dateRange reservation.DateRange) ([]reservation.CalendarEntry, error) {
	var rows []CalendarSlot
	err := store.db.WithContext(ctx).
		Where("captain_id = ? AND slot_date >= ? AND slot_date <= ?", captainID.String(), dateRange.From().String(), dateRange.To().String()).
		Order("slot_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSlot, errorCodeList, err)
	}
	entries := make([]reservation.CalendarEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapCalendarSlot(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSlot, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// TryClaim flips an available row, or inserts a fresh one; both are single conditional statements.
func (store *Store) TryClaim(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate, bookingID reservation.BookingID, holdExpiresAt time.Time) (reservation.ClaimOutcome, error) {
	expiresAt := holdExpiresAt.UTC()
	holder := bookingID.String()
	result := store.db.WithContext(ctx).
		Model(&CalendarSlot{}).
		Where("captain_id = ? AND slot_date = ? AND status = ?", captainID.String(), date.String(), reservation.SlotAvailable.String()).
		Updates(map[string]any{
			"status":            reservation.SlotPendingHold.String(),
			"holder_booking_id": holder,
			"hold_expires_at":   expiresAt,
			"updated_at":        store.now(),
		})
	if result.Error != nil {
		return reservation.ClaimConflict, wrapStoreError(errorSubjectSlot, errorCodeClaim, result.Error)
	}
	if result.RowsAffected == 1 {
		return reservation.ClaimClaimed, nil
	}
	model := CalendarSlot{
		CaptainID:       captainID.String(),
		SlotDate:        date.String(),
		Status:          reservation.SlotPendingHold.String(),
		HolderBookingID: &holder,
		HoldExpiresAt:   &expiresAt,
		UpdatedAt:       store.now(),
	}
	result = store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return reservation.ClaimConflict, nil
		}
		return reservation.ClaimConflict, wrapStoreError(errorSubjectSlot, errorCodeClaim, result.Error)
	}
	if result.RowsAffected == 1 {
		return reservation.ClaimClaimed, nil
	}
	return reservation.ClaimConflict, nil
}

func (store *Store) Release(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate, bookingID reservation.BookingID) error {
	result := store.db.WithContext(ctx).
		Model(&CalendarSlot{}).
		Where("captain_id = ? AND slot_date = ? AND holder_booking_id = ? AND status IN ?",
			captainID.String(), date.String(), bookingID.String(),
			[]string{reservation.SlotPendingHold.String(), reservation.SlotBooked.String()}).
		Updates(availableAssignments(store.now()))
	if result.Error != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeRelease, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSlot, errorCodeRelease, reservation.ErrSlotNotHeld)
	}
	return nil
}

func (store *Store) Finalize(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate, bookingID reservation.BookingID) error {
	result := store.db.WithContext(ctx).
		Model(&CalendarSlot{}).
		Where("captain_id = ? AND slot_date = ? AND holder_booking_id = ? AND status = ?",
			captainID.String(), date.String(), bookingID.String(), reservation.SlotPendingHold.String()).
		Updates(map[string]any{
			"status":          reservation.SlotBooked.String(),
			"hold_expires_at": gorm.Expr("NULL"),
			"updated_at":      store.now(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeFinalize, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSlot, errorCodeFinalize, reservation.ErrSlotNotHeld)
	}
	return nil
}

// ExpireStaleHolds releases each stale hold with its own conditional update, so a hold
// finalized between the scan and the write is left alone.
func (store *Store) ExpireStaleHolds(ctx context.Context, now time.Time) ([]reservation.ReleasedSlot, error) {
	var rows []CalendarSlot
	err := store.db.WithContext(ctx).
		Where("status = ? AND hold_expires_at <= ?", reservation.SlotPendingHold.String(), now.UTC()).
		Order("hold_expires_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSlot, errorCodeExpire, err)
	}
	released := make([]reservation.ReleasedSlot, 0, len(rows))
	for _, row := range rows {
		result := store.db.WithContext(ctx).
			Model(&CalendarSlot{}).
			Where("captain_id = ? AND slot_date = ? AND status = ? AND holder_booking_id = ? AND hold_expires_at <= ?",
				row.CaptainID, row.SlotDate, reservation.SlotPendingHold.String(), stringOrEmpty(row.HolderBookingID), now.UTC()).
			Updates(availableAssignments(store.now()))
		if result.Error != nil {
			return released, wrapStoreError(errorSubjectSlot, errorCodeExpire, result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}
		entry, err := mapCalendarSlot(row)
		if err != nil {
			return released, wrapStoreError(errorSubjectSlot, errorCodeInvalid, err)
		}
		released = append(released, reservation.ReleasedSlot{
			CaptainID: entry.CaptainID,
			Date:      entry.Date,
			BookingID: entry.HolderBookingID,
		})
	}
	return released, nil
}

func (store *Store) SetBlocked(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate, blocked bool) error {
	from, to := reservation.SlotAvailable, reservation.SlotBlocked
	if !blocked {
		from, to = reservation.SlotBlocked, reservation.SlotAvailable
	}
	result := store.db.WithContext(ctx).
		Model(&CalendarSlot{}).
		Where("captain_id = ? AND slot_date = ? AND status = ?", captainID.String(), date.String(), from.String()).
		Updates(map[string]any{"status": to.String(), "updated_at": store.now()})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeBlock, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	if blocked {
		model := CalendarSlot{
			CaptainID: captainID.String(),
			SlotDate:  date.String(),
			Status:    reservation.SlotBlocked.String(),
			UpdatedAt: store.now(),
		}
		result = store.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
		if result.Error != nil && !isUniqueViolation(result.Error) {
			return wrapStoreError(errorSubjectSlot, errorCodeBlock, result.Error)
		}
		if result.Error == nil && result.RowsAffected == 1 {
			return nil
		}
	}
	return wrapStoreError(errorSubjectSlot, errorCodeBlock, reservation.ErrSlotNotBlockable)
}

func availableAssignments(now time.Time) map[string]any {
	return map[string]any{
		"status":            reservation.SlotAvailable.String(),
		"holder_booking_id": gorm.Expr("NULL"),
		"hold_expires_at":   gorm.Expr("NULL"),
		"updated_at":        now,
	}
}

func mapCalendarSlot(row CalendarSlot) (reservation.CalendarEntry, error) {
	captainID, err := reservation.NewCaptainID(row.CaptainID)
	if err != nil {
		return reservation.CalendarEntry{}, err
	}
	date, err := reservation.NewSlotDate(row.SlotDate)
	if err != nil {
		return reservation.CalendarEntry{}, err
	}
	status, err := reservation.ParseSlotStatus(row.Status)
	if err != nil {
		return reservation.CalendarEntry{}, err
	}
	entry := reservation.CalendarEntry{
		CaptainID:     captainID,
		Date:          date,
		Status:        status,
		HoldExpiresAt: timeOrZero(row.HoldExpiresAt),
	}
	if row.HolderBookingID != nil && *row.HolderBookingID != "" {
		holder, err := reservation.NewBookingID(*row.HolderBookingID)
		if err != nil {
			return reservation.CalendarEntry{}, err
		}
		entry.HolderBookingID = holder
	}
	return entry, nil
}
