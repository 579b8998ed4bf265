package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetReferralTerms locks the code row so concurrent redemptions serialize on it.
// SQLite ignores the locking clause and relies on its database-level write lock instead.
func (store *Store) GetReferralTerms(ctx context.Context, code reservation.ReferralCode) (reservation.ReferralTerms, error) {
	var model ReferralCode
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reservation.ReferralTerms{}, wrapStoreError(errorSubjectReferral, errorCodeGet, reservation.ErrInvalidReferral)
	}
	if err != nil {
		return reservation.ReferralTerms{}, wrapStoreError(errorSubjectReferral, errorCodeGet, err)
	}
	normalized, err := reservation.NewReferralCode(model.Code)
	if err != nil {
		return reservation.ReferralTerms{}, wrapStoreError(errorSubjectReferral, errorCodeInvalid, err)
	}
	return reservation.ReferralTerms{
		Code:             normalized,
		AmountOff:        reservation.PriceCents(model.AmountOffCents),
		PercentOffBps:    model.PercentOffBps,
		MaxDiscount:      reservation.PriceCents(model.MaxDiscountCents),
		PerCustomerLimit: model.PerCustomerLimit,
		MaxRedemptions:   model.MaxRedemptions,
		ExpiresAt:        timeOrZero(model.ExpiresAt),
		Active:           model.Active,
	}, nil
}

func (store *Store) PutReferralTerms(ctx context.Context, terms reservation.ReferralTerms) error {
	model := ReferralCode{
		Code:             terms.Code.String(),
		AmountOffCents:   terms.AmountOff.Int64(),
		PercentOffBps:    terms.PercentOffBps,
		MaxDiscountCents: terms.MaxDiscount.Int64(),
		PerCustomerLimit: terms.PerCustomerLimit,
		MaxRedemptions:   terms.MaxRedemptions,
		ExpiresAt:        timePointer(terms.ExpiresAt),
		Active:           terms.Active,
		UpdatedAt:        store.now(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"amount_off_cents", "percent_off_bps", "max_discount_cents",
				"per_customer_limit", "max_redemptions", "expires_at", "active", "updated_at",
			}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectReferral, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) CountRedemptions(ctx context.Context, code reservation.ReferralCode, customerID reservation.CustomerID) (reservation.RedemptionCounts, error) {
	var counts reservation.RedemptionCounts
	base := store.db.WithContext(ctx).Model(&ReferralRedemption{}).Where("code = ?", code.String())
	if err := base.Session(&gorm.Session{}).Count(&counts.Total).Error; err != nil {
		return reservation.RedemptionCounts{}, wrapStoreError(errorSubjectRedemption, errorCodeCount, err)
	}
	if err := base.Session(&gorm.Session{}).Where("customer_id = ?", customerID.String()).Count(&counts.ByCustomer).Error; err != nil {
		return reservation.RedemptionCounts{}, wrapStoreError(errorSubjectRedemption, errorCodeCount, err)
	}
	return counts, nil
}

func (store *Store) FindRedemption(ctx context.Context, code reservation.ReferralCode, bookingID reservation.BookingID) (reservation.ReferralRedemption, bool, error) {
	var model ReferralRedemption
	err := store.db.WithContext(ctx).
		Where("code = ? AND booking_id = ?", code.String(), bookingID.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reservation.ReferralRedemption{}, false, nil
	}
	if err != nil {
		return reservation.ReferralRedemption{}, false, wrapStoreError(errorSubjectRedemption, errorCodeGet, err)
	}
	customerID, err := reservation.NewCustomerID(model.CustomerID)
	if err != nil {
		return reservation.ReferralRedemption{}, false, wrapStoreError(errorSubjectRedemption, errorCodeInvalid, err)
	}
	status, err := reservation.ParseRedemptionStatus(model.Status)
	if err != nil {
		return reservation.ReferralRedemption{}, false, wrapStoreError(errorSubjectRedemption, errorCodeInvalid, err)
	}
	return reservation.ReferralRedemption{
		Code:       code,
		CustomerID: customerID,
		BookingID:  bookingID,
		Status:     status,
		RedeemedAt: model.RedeemedAt.UTC(),
	}, true, nil
}

// InsertRedemption is idempotent per (code, booking).
func (store *Store) InsertRedemption(ctx context.Context, redemption reservation.ReferralRedemption) error {
	redeemedAt := redemption.RedeemedAt
	if redeemedAt.IsZero() {
		redeemedAt = store.now()
	}
	status := redemption.Status
	if status == "" {
		status = reservation.RedemptionRedeemed
	}
	model := ReferralRedemption{
		Code:       redemption.Code.String(),
		BookingID:  redemption.BookingID.String(),
		CustomerID: redemption.CustomerID.String(),
		Status:     status.String(),
		RedeemedAt: redeemedAt.UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}, {Name: "booking_id"}},
			DoNothing: true,
		}).
		Create(&model).Error
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return wrapStoreError(errorSubjectRedemption, errorCodeInsert, err)
	}
	return nil
}

// ConfirmRedemption turns the pending use of a booking into a redemption. A missing or already
// redeemed row is left alone.
func (store *Store) ConfirmRedemption(ctx context.Context, code reservation.ReferralCode, bookingID reservation.BookingID, at time.Time) error {
	if at.IsZero() {
		at = store.now()
	}
	err := store.db.WithContext(ctx).
		Model(&ReferralRedemption{}).
		Where("code = ? AND booking_id = ? AND status = ?", code.String(), bookingID.String(), reservation.RedemptionPending.String()).
		Updates(map[string]any{"status": reservation.RedemptionRedeemed.String(), "redeemed_at": at.UTC()}).Error
	if err != nil {
		return wrapStoreError(errorSubjectRedemption, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) DeletePendingRedemption(ctx context.Context, code reservation.ReferralCode, bookingID reservation.BookingID) error {
	err := store.db.WithContext(ctx).
		Where("code = ? AND booking_id = ? AND status = ?", code.String(), bookingID.String(), reservation.RedemptionPending.String()).
		Delete(&ReferralRedemption{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectRedemption, errorCodeDelete, err)
	}
	return nil
}
