package reservation

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the reservation engine.
var (
	ErrSlotConflict            = errors.New("slot conflict")
	ErrSlotNotHeld             = errors.New("slot not held by booking")
	ErrSlotNotBlockable        = errors.New("slot not blockable")
	ErrInvalidReferral         = errors.New("invalid referral code")
	ErrReferralAlreadyUsed     = errors.New("referral code already used")
	ErrReferralExpired         = errors.New("referral code expired")
	ErrPaymentTimeout          = errors.New("payment timeout")
	ErrUpstreamUnavailable     = errors.New("upstream unavailable")
	ErrUnknownBooking          = errors.New("unknown booking")
	ErrBookingClosed           = errors.New("booking closed")
	ErrUnknownCharter          = errors.New("unknown charter")
	ErrUnknownWaitlistEntry    = errors.New("unknown waitlist entry")
	ErrWaitlistEntryClosed     = errors.New("waitlist entry closed")
	ErrWaitlistOfferExpired    = errors.New("waitlist offer expired")
	ErrUnknownPriceAlert       = errors.New("unknown price alert")
	ErrPriceAlertClosed        = errors.New("price alert closed")
	ErrTargetNotBelowPrice     = errors.New("target price not below current price")
	ErrNotOwner                = errors.New("not owner")
	ErrInvalidCaptainID        = errors.New("invalid captain id")
	ErrInvalidCharterID        = errors.New("invalid charter id")
	ErrInvalidCustomerID       = errors.New("invalid customer id")
	ErrInvalidBookingID        = errors.New("invalid booking id")
	ErrInvalidEntryID          = errors.New("invalid waitlist entry id")
	ErrInvalidAlertID          = errors.New("invalid price alert id")
	ErrInvalidReferralCode     = errors.New("invalid referral code format")
	ErrInvalidSlotDate         = errors.New("invalid slot date")
	ErrInvalidDateRange        = errors.New("invalid date range")
	ErrInvalidPriceCents       = errors.New("invalid price cents")
	ErrInvalidPartySize        = errors.New("invalid party size")
	ErrInvalidSlotStatus       = errors.New("invalid slot status")
	ErrInvalidBookingStatus    = errors.New("invalid booking status")
	ErrInvalidRedemptionStatus = errors.New("invalid redemption status")
	ErrInvalidWaitlistStatus   = errors.New("invalid waitlist status")
	ErrInvalidAlertStatus      = errors.New("invalid price alert status")
	ErrInvalidPaymentOutcome   = errors.New("invalid payment outcome")
	ErrInvalidDiscount         = errors.New("invalid discount")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// IsReferralError reports whether err is one of the recoverable referral failures.
func IsReferralError(err error) bool {
	return errors.Is(err, ErrInvalidReferral) || errors.Is(err, ErrReferralAlreadyUsed) || errors.Is(err, ErrReferralExpired)
}
