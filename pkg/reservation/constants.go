package reservation

import "time"

const (
	operationClaim          = "claim"
	operationBook           = "book"
	operationConfirm        = "confirm"
	operationCancel         = "cancel"
	operationExpire         = "expire"
	operationPaymentHandoff = "payment_handoff"
	operationRefund         = "refund"
	operationRedeem         = "redeem"
	operationReserve        = "referral_reserve"
	operationRelease        = "referral_release"
	operationWaitlistJoin   = "waitlist_join"
	operationWaitlistOffer  = "waitlist_offer"
	operationWaitlistReply  = "waitlist_respond"
	operationAlertRegister  = "price_alert_register"
	operationAlertTrigger   = "price_alert_trigger"
	operationAlertRearm     = "price_alert_rearm"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	cancelReasonCustomer      = "customer_cancelled"
	cancelReasonPaymentFailed = "payment_failed"
	cancelReasonHoldLost      = "hold_lost"
	expireReasonHoldExpired   = "hold_expired"
	expireReasonTimeout       = "payment_timeout"
	expireReasonUpstream      = "payment_upstream_unavailable"
	expireReasonOrphanedHold  = "orphaned_hold"
	refundReasonNoBooking     = "charge_without_booking"

	slotDateLayout        = "2006-01-02"
	maxAvailabilityDays   = 92
	basisPointsPerWhole   = 10000
	waitlistLockStripes   = 64
	defaultOfferWindow    = 30 * time.Minute
	defaultPaymentRetry   = 3
	defaultPaymentBackoff = 200 * time.Millisecond
)
