package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (store *Store) CreateWaitlistEntry(ctx context.Context, entry reservation.WaitlistEntry) error {
	contact, err := json.Marshal(entry.Contact)
	if err != nil {
		return wrapStoreError(errorSubjectWaitlist, errorCodeInvalid, err)
	}
	joinedAt := entry.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = store.now()
	}
	model := WaitlistEntry{
		EntryID:        entry.ID.String(),
		CharterID:      entry.CharterID.String(),
		SlotDate:       entry.Date.String(),
		Status:         entry.Status.String(),
		JoinedAt:       joinedAt.UTC(),
		CustomerID:     entry.CustomerID.String(),
		PartySize:      entry.PartySize,
		Contact:        datatypes.JSON(contact),
		OfferExpiresAt: timePointer(entry.OfferExpiresAt),
		BookingID:      stringPointer(entry.BookingID.String()),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return wrapStoreError(errorSubjectWaitlist, errorCodeDuplicate, err)
		}
		return wrapStoreError(errorSubjectWaitlist, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetWaitlistEntry(ctx context.Context, entryID reservation.WaitlistEntryID) (reservation.WaitlistEntry, error) {
	var model WaitlistEntry
	err := store.db.WithContext(ctx).Where("entry_id = ?", entryID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reservation.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeGet, reservation.ErrUnknownWaitlistEntry)
	}
	if err != nil {
		return reservation.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeGet, err)
	}
	entry, err := mapWaitlistEntry(model)
	if err != nil {
		return reservation.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) FindLiveWaitlistEntry(ctx context.Context, charterID reservation.CharterID, date reservation.SlotDate, customerID reservation.CustomerID) (reservation.WaitlistEntry, bool, error) {
	var model WaitlistEntry
	err := store.db.WithContext(ctx).
		Where("charter_id = ? AND slot_date = ? AND customer_id = ? AND status IN ?",
			charterID.String(), date.String(), customerID.String(),
			[]string{reservation.WaitlistWaiting.String(), reservation.WaitlistNotified.String()}).
		Order("joined_at ASC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reservation.WaitlistEntry{}, false, nil
	}
	if err != nil {
		return reservation.WaitlistEntry{}, false, wrapStoreError(errorSubjectWaitlist, errorCodeGet, err)
	}
	entry, err := mapWaitlistEntry(model)
	if err != nil {
		return reservation.WaitlistEntry{}, false, wrapStoreError(errorSubjectWaitlist, errorCodeInvalid, err)
	}
	return entry, true, nil
}

func (store *Store) ListWaitlist(ctx context.Context, charterID reservation.CharterID, date reservation.SlotDate, status reservation.WaitlistStatus) ([]reservation.WaitlistEntry, error) {
	var rows []WaitlistEntry
	err := store.db.WithContext(ctx).
		Where("charter_id = ? AND slot_date = ? AND status = ?", charterID.String(), date.String(), status.String()).
		Order("joined_at ASC").
		Order("entry_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectWaitlist, errorCodeList, err)
	}
	return mapWaitlistEntries(rows)
}

func (store *Store) UpdateWaitlistEntry(ctx context.Context, entryID reservation.WaitlistEntryID, from reservation.WaitlistStatus, update reservation.WaitlistUpdate) error {
	assignments := map[string]any{
		"status":           update.Status.String(),
		"offer_expires_at": timePointer(update.OfferExpiresAt),
		"booking_id":       stringPointer(update.BookingID.String()),
	}
	result := store.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Where("entry_id = ? AND status = ?", entryID.String(), from.String()).
		Updates(assignments)
	if result.Error != nil {
		return wrapStoreError(errorSubjectWaitlist, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := store.db.WithContext(ctx).Model(&WaitlistEntry{}).Where("entry_id = ?", entryID.String()).Count(&count).Error; err != nil {
		return wrapStoreError(errorSubjectWaitlist, errorCodeGet, err)
	}
	if count == 0 {
		return wrapStoreError(errorSubjectWaitlist, errorCodeUpdate, reservation.ErrUnknownWaitlistEntry)
	}
	return wrapStoreError(errorSubjectWaitlist, errorCodeUpdate, reservation.ErrWaitlistEntryClosed)
}

func (store *Store) ListExpiredOffers(ctx context.Context, now time.Time) ([]reservation.WaitlistEntry, error) {
	var rows []WaitlistEntry
	err := store.db.WithContext(ctx).
		Where("status = ? AND offer_expires_at <= ?", reservation.WaitlistNotified.String(), now.UTC()).
		Order("offer_expires_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectWaitlist, errorCodeList, err)
	}
	return mapWaitlistEntries(rows)
}

func mapWaitlistEntries(rows []WaitlistEntry) ([]reservation.WaitlistEntry, error) {
	entries := make([]reservation.WaitlistEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapWaitlistEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectWaitlist, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func mapWaitlistEntry(model WaitlistEntry) (reservation.WaitlistEntry, error) {
	entryID, err := reservation.NewWaitlistEntryID(model.EntryID)
	if err != nil {
		return reservation.WaitlistEntry{}, err
	}
	charterID, err := reservation.NewCharterID(model.CharterID)
	if err != nil {
		return reservation.WaitlistEntry{}, err
	}
	date, err := reservation.NewSlotDate(model.SlotDate)
	if err != nil {
		return reservation.WaitlistEntry{}, err
	}
	customerID, err := reservation.NewCustomerID(model.CustomerID)
	if err != nil {
		return reservation.WaitlistEntry{}, err
	}
	status, err := reservation.ParseWaitlistStatus(model.Status)
	if err != nil {
		return reservation.WaitlistEntry{}, err
	}
	var contact reservation.ContactInfo
	raw := []byte(model.Contact)
	if len(raw) == 0 {
		raw = []byte(defaultContactJSON)
	}
	if err := json.Unmarshal(raw, &contact); err != nil {
		return reservation.WaitlistEntry{}, err
	}
	entry := reservation.WaitlistEntry{
		ID:             entryID,
		CharterID:      charterID,
		Date:           date,
		CustomerID:     customerID,
		PartySize:      model.PartySize,
		Contact:        contact,
		Status:         status,
		JoinedAt:       model.JoinedAt.UTC(),
		OfferExpiresAt: timeOrZero(model.OfferExpiresAt),
	}
	if holder := stringOrEmpty(model.BookingID); holder != "" {
		bookingID, err := reservation.NewBookingID(holder)
		if err != nil {
			return reservation.WaitlistEntry{}, err
		}
		entry.BookingID = bookingID
	}
	return entry, nil
}
