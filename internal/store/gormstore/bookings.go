package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	"gorm.io/gorm"
)

func (store *Store) CreateBooking(ctx context.Context, booking reservation.Booking) error {
	createdAt := booking.CreatedAt
	if createdAt.IsZero() {
		createdAt = store.now()
	}
	model := Booking{
		BookingID:        booking.ID.String(),
		CharterID:        booking.CharterID.String(),
		CaptainID:        booking.CaptainID.String(),
		CustomerID:       booking.CustomerID.String(),
		SlotDate:         booking.Date.String(),
		Status:           booking.Status.String(),
		BasePriceCents:   booking.BasePrice.Int64(),
		DiscountCents:    booking.Discount.Int64(),
		FinalPriceCents:  booking.FinalPrice.Int64(),
		ReferralCode:     booking.ReferralCode.String(),
		PaymentSessionID: booking.PaymentSessionID,
		PaymentRef:       booking.PaymentRef,
		StatusReason:     booking.StatusReason,
		WaitlistEntryID:  booking.WaitlistEntryID.String(),
		CreatedAt:        createdAt.UTC(),
		UpdatedAt:        createdAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return wrapStoreError(errorSubjectBooking, errorCodeDuplicate, err)
		}
		return wrapStoreError(errorSubjectBooking, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetBooking(ctx context.Context, bookingID reservation.BookingID) (reservation.Booking, error) {
	var model Booking
	err := store.db.WithContext(ctx).Where("booking_id = ?", bookingID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reservation.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, reservation.ErrUnknownBooking)
	}
	if err != nil {
		return reservation.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	booking, err := mapBooking(model)
	if err != nil {
		return reservation.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return booking, nil
}

func (store *Store) UpdateBookingStatus(ctx context.Context, bookingID reservation.BookingID, from reservation.BookingStatus, to reservation.BookingStatus, update reservation.BookingUpdate) error {
	updatedAt := update.At
	if updatedAt.IsZero() {
		updatedAt = store.now()
	}
	assignments := map[string]any{
		"status":     to.String(),
		"updated_at": updatedAt.UTC(),
	}
	if update.PaymentRef != "" {
		assignments["payment_ref"] = update.PaymentRef
	}
	if update.Reason != "" {
		assignments["status_reason"] = update.Reason
	}
	if to == reservation.BookingConfirmed {
		assignments["confirmed_at"] = updatedAt.UTC()
	}
	result := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("booking_id = ? AND status = ?", bookingID.String(), from.String()).
		Updates(assignments)
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	return store.missingOrClosed(ctx, bookingID)
}

func (store *Store) SetPaymentSession(ctx context.Context, bookingID reservation.BookingID, sessionID string) error {
	result := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("booking_id = ? AND status = ?", bookingID.String(), reservation.BookingPending.String()).
		Updates(map[string]any{"payment_session_id": sessionID, "updated_at": store.now()})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	return store.missingOrClosed(ctx, bookingID)
}

// MarkRefundRequested stamps the refund marker once; later calls leave the first stamp in place.
func (store *Store) MarkRefundRequested(ctx context.Context, bookingID reservation.BookingID, paymentRef string, at time.Time) error {
	if at.IsZero() {
		at = store.now()
	}
	assignments := map[string]any{
		"refund_requested_at": at.UTC(),
		"updated_at":          at.UTC(),
	}
	if paymentRef != "" {
		assignments["payment_ref"] = paymentRef
	}
	result := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("booking_id = ? AND refund_requested_at IS NULL", bookingID.String()).
		Updates(assignments)
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := store.db.WithContext(ctx).Model(&Booking{}).Where("booking_id = ?", bookingID.String()).Count(&count).Error; err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	if count == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, reservation.ErrUnknownBooking)
	}
	return nil
}

func (store *Store) missingOrClosed(ctx context.Context, bookingID reservation.BookingID) error {
	var count int64
	if err := store.db.WithContext(ctx).Model(&Booking{}).Where("booking_id = ?", bookingID.String()).Count(&count).Error; err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	if count == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, reservation.ErrUnknownBooking)
	}
	return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, reservation.ErrBookingClosed)
}

func mapBooking(model Booking) (reservation.Booking, error) {
	bookingID, err := reservation.NewBookingID(model.BookingID)
	if err != nil {
		return reservation.Booking{}, err
	}
	charterID, err := reservation.NewCharterID(model.CharterID)
	if err != nil {
		return reservation.Booking{}, err
	}
	captainID, err := reservation.NewCaptainID(model.CaptainID)
	if err != nil {
		return reservation.Booking{}, err
	}
	customerID, err := reservation.NewCustomerID(model.CustomerID)
	if err != nil {
		return reservation.Booking{}, err
	}
	date, err := reservation.NewSlotDate(model.SlotDate)
	if err != nil {
		return reservation.Booking{}, err
	}
	status, err := reservation.ParseBookingStatus(model.Status)
	if err != nil {
		return reservation.Booking{}, err
	}
	booking := reservation.Booking{
		ID:                bookingID,
		CharterID:         charterID,
		CaptainID:         captainID,
		CustomerID:        customerID,
		Date:              date,
		Status:            status,
		BasePrice:         reservation.PriceCents(model.BasePriceCents),
		Discount:          reservation.PriceCents(model.DiscountCents),
		FinalPrice:        reservation.PriceCents(model.FinalPriceCents),
		PaymentSessionID:  model.PaymentSessionID,
		PaymentRef:        model.PaymentRef,
		StatusReason:      model.StatusReason,
		CreatedAt:         model.CreatedAt.UTC(),
		UpdatedAt:         model.UpdatedAt.UTC(),
		ConfirmedAt:       timeOrZero(model.ConfirmedAt),
		RefundRequestedAt: timeOrZero(model.RefundRequestedAt),
	}
	if model.ReferralCode != "" {
		code, err := reservation.NewReferralCode(model.ReferralCode)
		if err != nil {
			return reservation.Booking{}, err
		}
		booking.ReferralCode = code
	}
	if model.WaitlistEntryID != "" {
		entryID, err := reservation.NewWaitlistEntryID(model.WaitlistEntryID)
		if err != nil {
			return reservation.Booking{}, err
		}
		booking.WaitlistEntryID = entryID
	}
	return booking, nil
}
