package reservation

import (
	"context"
	"time"
)

// CalendarStore owns CalendarEntry rows. Every mutation is a single conditional write.
type CalendarStore interface {
	// Get returns the slot, or an available entry when no row exists.
	Get(ctx context.Context, captainID CaptainID, date SlotDate) (CalendarEntry, error)
	// ListRange returns stored rows within the range ordered by date. Absent dates are available.
	ListRange(ctx context.Context, captainID CaptainID, dateRange DateRange) ([]CalendarEntry, error)
	// TryClaim moves an available (or absent) slot to pending_hold for bookingID.
	TryClaim(ctx context.Context, captainID CaptainID, date SlotDate, bookingID BookingID, holdExpiresAt time.Time) (ClaimOutcome, error)
	// Release reverts a pending_hold or booked slot held by bookingID to available.
	// It returns ErrSlotNotHeld when the slot is not held by that booking.
	Release(ctx context.Context, captainID CaptainID, date SlotDate, bookingID BookingID) error
	// Finalize moves a pending_hold held by bookingID to booked.
	// It returns ErrSlotNotHeld when the hold no longer belongs to that booking.
	Finalize(ctx context.Context, captainID CaptainID, date SlotDate, bookingID BookingID) error
	// ExpireStaleHolds reverts every pending_hold whose expiry is not after now.
	ExpireStaleHolds(ctx context.Context, now time.Time) ([]ReleasedSlot, error)
	// SetBlocked toggles available <-> blocked. Other states yield ErrSlotNotBlockable.
	SetBlocked(ctx context.Context, captainID CaptainID, date SlotDate, blocked bool) error
}

// BookingStore persists bookings. Status changes are compare-and-set.
type BookingStore interface {
	CreateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, bookingID BookingID) (Booking, error)
	// UpdateBookingStatus applies from -> to only while the stored status equals from.
	// Empty PaymentRef and Reason leave the stored values unchanged. Moving to confirmed stamps ConfirmedAt.
	UpdateBookingStatus(ctx context.Context, bookingID BookingID, from BookingStatus, to BookingStatus, update BookingUpdate) error
	SetPaymentSession(ctx context.Context, bookingID BookingID, sessionID string) error
	// MarkRefundRequested stamps RefundRequestedAt once and records paymentRef when it is not empty.
	// Marking an already marked booking is a no-op.
	MarkRefundRequested(ctx context.Context, bookingID BookingID, paymentRef string, at time.Time) error
}

// ReferralStore persists referral terms and redemptions.
type ReferralStore interface {
	WithReferralTx(ctx context.Context, fn func(ctx context.Context, txStore ReferralStore) error) error
	// GetReferralTerms returns ErrInvalidReferral for unknown codes; inside a transaction it locks the row.
	GetReferralTerms(ctx context.Context, code ReferralCode) (ReferralTerms, error)
	PutReferralTerms(ctx context.Context, terms ReferralTerms) error
	CountRedemptions(ctx context.Context, code ReferralCode, customerID CustomerID) (RedemptionCounts, error)
	FindRedemption(ctx context.Context, code ReferralCode, bookingID BookingID) (ReferralRedemption, bool, error)
	// InsertRedemption is idempotent per (code, booking).
	InsertRedemption(ctx context.Context, redemption ReferralRedemption) error
	// ConfirmRedemption moves a pending redemption to redeemed. Other states are left alone.
	ConfirmRedemption(ctx context.Context, code ReferralCode, bookingID BookingID, at time.Time) error
	// DeletePendingRedemption drops the pending redemption of bookingID, if any.
	DeletePendingRedemption(ctx context.Context, code ReferralCode, bookingID BookingID) error
}

// WaitlistStore persists waitlist entries.
type WaitlistStore interface {
	WithWaitlistTx(ctx context.Context, fn func(ctx context.Context, txStore WaitlistStore) error) error
	CreateWaitlistEntry(ctx context.Context, entry WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, entryID WaitlistEntryID) (WaitlistEntry, error)
	FindLiveWaitlistEntry(ctx context.Context, charterID CharterID, date SlotDate, customerID CustomerID) (WaitlistEntry, bool, error)
	// ListWaitlist returns entries with the given status ordered by joinedAt, then id.
	ListWaitlist(ctx context.Context, charterID CharterID, date SlotDate, status WaitlistStatus) ([]WaitlistEntry, error)
	// UpdateWaitlistEntry applies the update only while the stored status equals from.
	UpdateWaitlistEntry(ctx context.Context, entryID WaitlistEntryID, from WaitlistStatus, update WaitlistUpdate) error
	ListExpiredOffers(ctx context.Context, now time.Time) ([]WaitlistEntry, error)
}

// PriceAlertStore persists price alerts.
type PriceAlertStore interface {
	CreatePriceAlert(ctx context.Context, alert PriceAlert) error
	GetPriceAlert(ctx context.Context, alertID PriceAlertID) (PriceAlert, error)
	// ListWatchedPriceAlerts returns every active or triggered alert.
	ListWatchedPriceAlerts(ctx context.Context) ([]PriceAlert, error)
	// UpdatePriceAlert applies the update only while the stored status equals from.
	UpdatePriceAlert(ctx context.Context, alertID PriceAlertID, from PriceAlertStatus, update PriceAlertUpdate) error
}

// CharterCatalog resolves a charter to its captain and current base price.
type CharterCatalog interface {
	GetCharter(ctx context.Context, charterID CharterID) (Charter, error)
	// ListChartersByCaptain returns every charter run by captainID ordered by id.
	ListChartersByCaptain(ctx context.Context, captainID CaptainID) ([]Charter, error)
}

// CharterStore is a writable CharterCatalog.
type CharterStore interface {
	CharterCatalog
	PutCharter(ctx context.Context, charter Charter) error
}

// PaymentGateway is the narrow handoff to the external payment processor.
// Implementations return ErrUpstreamUnavailable for transient failures.
type PaymentGateway interface {
	CreateSession(ctx context.Context, request PaymentSessionRequest) (PaymentSession, error)
	RequestRefund(ctx context.Context, request RefundRequest) error
}

// Notifier delivers customer notifications. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// BookingStarter begins a booking attempt. The Coordinator implements it.
type BookingStarter interface {
	StartBooking(ctx context.Context, request BookingRequest) (BookingAttempt, error)
}

// WaitlistHook receives slot release events and offer expiry sweeps. The WaitlistCoordinator implements it.
type WaitlistHook interface {
	OnSlotFreed(ctx context.Context, charterID CharterID, date SlotDate) error
	ExpireOffers(ctx context.Context) (int, error)
}
