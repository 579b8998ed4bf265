package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BookingRequest asks for one (charter, date) on behalf of a customer.
type BookingRequest struct {
	CharterID       CharterID
	CustomerID      CustomerID
	Date            SlotDate
	ReferralCode    ReferralCode
	WaitlistEntryID WaitlistEntryID
}

// BookingAttempt is the state of a booking after a coordinator step.
type BookingAttempt struct {
	Booking Booking
	State   AttemptState
	Session PaymentSession
}

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	ReleasedHolds  int
	ExpiredOffers  int
	BookingsClosed int
}

// CoordinatorConfig lists the collaborators of a Coordinator.
type CoordinatorConfig struct {
	Guard           *ConflictGuard
	Calendar        CalendarStore
	Bookings        BookingStore
	Pricing         *PricingResolver
	Catalog         CharterCatalog
	Payments        PaymentGateway
	Waitlist        WaitlistHook
	PaymentAttempts int
	PaymentBackoff  time.Duration
}

// Coordinator drives each booking attempt through hold, pricing, payment handoff and resolution.
// It is the only writer of Booking.Status.
type Coordinator struct {
	guard    *ConflictGuard
	calendar CalendarStore
	bookings BookingStore
	pricing  *PricingResolver
	catalog  CharterCatalog
	payments PaymentGateway
	waitlist WaitlistHook

	paymentAttempts int
	paymentBackoff  time.Duration
	options
}

// NewCoordinator wires a Coordinator. A nil waitlist hook disables promotion.
func NewCoordinator(config CoordinatorConfig, opts ...Option) (*Coordinator, error) {
	switch {
	case config.Guard == nil:
		return nil, fmt.Errorf("%w: conflict guard is nil", ErrInvalidServiceConfig)
	case config.Calendar == nil:
		return nil, fmt.Errorf("%w: calendar store is nil", ErrInvalidServiceConfig)
	case config.Bookings == nil:
		return nil, fmt.Errorf("%w: booking store is nil", ErrInvalidServiceConfig)
	case config.Pricing == nil:
		return nil, fmt.Errorf("%w: pricing resolver is nil", ErrInvalidServiceConfig)
	case config.Catalog == nil:
		return nil, fmt.Errorf("%w: charter catalog is nil", ErrInvalidServiceConfig)
	case config.Payments == nil:
		return nil, fmt.Errorf("%w: payment gateway is nil", ErrInvalidServiceConfig)
	}
	attempts := config.PaymentAttempts
	if attempts <= 0 {
		attempts = defaultPaymentRetry
	}
	backoff := config.PaymentBackoff
	if backoff < 0 {
		backoff = defaultPaymentBackoff
	}
	return &Coordinator{
		guard:           config.Guard,
		calendar:        config.Calendar,
		bookings:        config.Bookings,
		pricing:         config.Pricing,
		catalog:         config.Catalog,
		payments:        config.Payments,
		waitlist:        config.Waitlist,
		paymentAttempts: attempts,
		paymentBackoff:  backoff,
		options:         buildOptions(opts),
	}, nil
}

// StartBooking walks SELECTING -> HOLDING -> PRICING -> AWAITING_PAYMENT.
// A fully discounted booking confirms without a payment session.
func (coordinator *Coordinator) StartBooking(ctx context.Context, request BookingRequest) (BookingAttempt, error) {
	charter, err := coordinator.catalog.GetCharter(ctx, request.CharterID)
	if err != nil {
		return BookingAttempt{}, err
	}
	if !request.ReferralCode.IsZero() {
		if _, err := coordinator.pricing.Validate(ctx, request.ReferralCode, request.CustomerID); err != nil {
			return BookingAttempt{}, err
		}
	}
	bookingID, err := NewBookingID(coordinator.newID())
	if err != nil {
		return BookingAttempt{}, err
	}

	outcome, err := coordinator.guard.Claim(ctx, charter.CaptainID, request.Date, bookingID)
	if err != nil {
		return BookingAttempt{}, err
	}
	if outcome != ClaimClaimed {
		return BookingAttempt{}, WrapError(operationClaim, "slot", "conflict", ErrSlotConflict)
	}

	quote, err := coordinator.pricing.Quote(ctx, charter.BasePrice, request.ReferralCode, request.CustomerID)
	if err != nil {
		coordinator.releaseHold(ctx, charter.ID, charter.CaptainID, request.Date, bookingID)
		return BookingAttempt{}, err
	}
	if !quote.ReferralCode.IsZero() {
		if err := coordinator.pricing.Reserve(ctx, quote.ReferralCode, request.CustomerID, bookingID); err != nil {
			coordinator.releaseHold(ctx, charter.ID, charter.CaptainID, request.Date, bookingID)
			return BookingAttempt{}, err
		}
	}
	now := coordinator.now()
	booking := Booking{
		ID:              bookingID,
		CharterID:       charter.ID,
		CaptainID:       charter.CaptainID,
		CustomerID:      request.CustomerID,
		Date:            request.Date,
		Status:          BookingPending,
		BasePrice:       quote.BasePrice,
		Discount:        quote.Discount,
		FinalPrice:      quote.FinalPrice,
		ReferralCode:    quote.ReferralCode,
		WaitlistEntryID: request.WaitlistEntryID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	createErr := coordinator.bookings.CreateBooking(ctx, booking)
	coordinator.logBooking(ctx, operationBook, booking, "", createErr)
	if createErr != nil {
		coordinator.releaseReferral(ctx, booking)
		coordinator.releaseHold(ctx, charter.ID, charter.CaptainID, request.Date, bookingID)
		return BookingAttempt{}, createErr
	}

	if booking.FinalPrice == 0 {
		confirmed, err := coordinator.confirmHeld(ctx, booking, "")
		if err != nil {
			return BookingAttempt{}, err
		}
		return BookingAttempt{Booking: confirmed, State: StateConfirmed}, nil
	}

	session, err := coordinator.createSession(ctx, PaymentSessionRequest{
		BookingID:  booking.ID,
		CustomerID: booking.CustomerID,
		CharterID:  booking.CharterID,
		Amount:     booking.FinalPrice,
		ExpiresAt:  now.Add(coordinator.guard.HoldTTL()),
	})
	if err != nil {
		status, reason := BookingExpired, expireReasonUpstream
		if !errors.Is(err, ErrUpstreamUnavailable) {
			status, reason = BookingCancelled, cancelReasonPaymentFailed
		}
		if _, abandonErr := coordinator.abandon(ctx, booking, status, reason, ""); abandonErr != nil {
			return BookingAttempt{}, errors.Join(err, abandonErr)
		}
		return BookingAttempt{}, err
	}
	if err := coordinator.bookings.SetPaymentSession(ctx, booking.ID, session.SessionID); err != nil {
		return BookingAttempt{}, err
	}
	booking.PaymentSessionID = session.SessionID
	return BookingAttempt{Booking: booking, State: StateAwaitingPayment, Session: session}, nil
}

// ResumePayment returns the payment session of a pending booking, recreating it at the processor if needed.
// An expired booking yields ErrPaymentTimeout.
func (coordinator *Coordinator) ResumePayment(ctx context.Context, bookingID BookingID, customerID CustomerID) (BookingAttempt, error) {
	booking, err := coordinator.GetBooking(ctx, bookingID, customerID)
	if err != nil {
		return BookingAttempt{}, err
	}
	switch booking.Status {
	case BookingConfirmed:
		return BookingAttempt{Booking: booking, State: StateConfirmed}, nil
	case BookingExpired:
		return BookingAttempt{}, WrapError(operationPaymentHandoff, "booking", "expired", ErrPaymentTimeout)
	case BookingCancelled:
		return BookingAttempt{}, WrapError(operationPaymentHandoff, "booking", "cancelled", ErrBookingClosed)
	}
	entry, err := coordinator.calendar.Get(ctx, booking.CaptainID, booking.Date)
	if err != nil {
		return BookingAttempt{}, err
	}
	if entry.HolderBookingID != booking.ID || !coordinator.now().Before(entry.HoldExpiresAt) {
		return BookingAttempt{}, WrapError(operationPaymentHandoff, "booking", "hold_elapsed", ErrPaymentTimeout)
	}
	session, err := coordinator.createSession(ctx, PaymentSessionRequest{
		BookingID:  booking.ID,
		CustomerID: booking.CustomerID,
		CharterID:  booking.CharterID,
		Amount:     booking.FinalPrice,
		ExpiresAt:  entry.HoldExpiresAt,
	})
	if err != nil {
		return BookingAttempt{}, err
	}
	if session.SessionID != booking.PaymentSessionID {
		if err := coordinator.bookings.SetPaymentSession(ctx, booking.ID, session.SessionID); err != nil {
			return BookingAttempt{}, err
		}
		booking.PaymentSessionID = session.SessionID
	}
	return BookingAttempt{Booking: booking, State: StateAwaitingPayment, Session: session}, nil
}

// HandlePaymentCallback resolves AWAITING_PAYMENT. A closed booking is never reopened: duplicate callbacks
// are no-ops, and a success for a booking that closed without being confirmed is refunded once.
func (coordinator *Coordinator) HandlePaymentCallback(ctx context.Context, callback PaymentCallback) (Booking, error) {
	booking, err := coordinator.bookings.GetBooking(ctx, callback.BookingID)
	if err != nil {
		return Booking{}, err
	}
	switch booking.Status {
	case BookingConfirmed:
		return booking, nil
	case BookingCancelled, BookingExpired:
		if callback.Outcome == PaymentSucceeded {
			return coordinator.refundCharge(ctx, booking, callback.PaymentRef)
		}
		return booking, nil
	}
	switch callback.Outcome {
	case PaymentSucceeded:
		confirmed, err := coordinator.confirmHeld(ctx, booking, callback.PaymentRef)
		switch {
		case errors.Is(err, ErrSlotNotHeld):
			return coordinator.resolveLostHold(ctx, booking, callback.PaymentRef)
		case errors.Is(err, ErrBookingClosed):
			return coordinator.resolveClosedCharge(ctx, booking.ID, callback.PaymentRef)
		}
		return confirmed, err
	case PaymentFailed:
		return coordinator.abandon(ctx, booking, BookingCancelled, cancelReasonPaymentFailed, callback.PaymentRef)
	case PaymentTimedOut:
		return coordinator.abandon(ctx, booking, BookingExpired, expireReasonTimeout, callback.PaymentRef)
	}
	return Booking{}, fmt.Errorf("%w: %q", ErrInvalidPaymentOutcome, callback.Outcome)
}

// Cancel cancels a pending or confirmed booking owned by customerID and frees its slot.
func (coordinator *Coordinator) Cancel(ctx context.Context, bookingID BookingID, customerID CustomerID) (Booking, error) {
	booking, err := coordinator.GetBooking(ctx, bookingID, customerID)
	if err != nil {
		return Booking{}, err
	}
	if booking.Status.Terminal() {
		return Booking{}, WrapError(operationCancel, "booking", "closed", ErrBookingClosed)
	}
	return coordinator.abandon(ctx, booking, BookingCancelled, cancelReasonCustomer, "")
}

// GetBooking returns a booking owned by customerID.
func (coordinator *Coordinator) GetBooking(ctx context.Context, bookingID BookingID, customerID CustomerID) (Booking, error) {
	booking, err := coordinator.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if booking.CustomerID != customerID {
		return Booking{}, WrapError(operationBook, "booking", "not_owner", ErrNotOwner)
	}
	return booking, nil
}

// Quote prices a charter for a customer without taking a hold.
func (coordinator *Coordinator) Quote(ctx context.Context, charterID CharterID, code ReferralCode, customerID CustomerID) (PriceQuote, error) {
	charter, err := coordinator.catalog.GetCharter(ctx, charterID)
	if err != nil {
		return PriceQuote{}, err
	}
	return coordinator.pricing.Quote(ctx, charter.BasePrice, code, customerID)
}

// Sweep releases stale holds, expires their bookings, and closes elapsed waitlist offers.
func (coordinator *Coordinator) Sweep(ctx context.Context) (SweepReport, error) {
	released, err := coordinator.calendar.ExpireStaleHolds(ctx, coordinator.now())
	if err != nil {
		return SweepReport{}, err
	}
	report := SweepReport{ReleasedHolds: len(released)}
	var sweepErr error
	for _, slot := range released {
		booking, err := coordinator.bookings.GetBooking(ctx, slot.BookingID)
		if errors.Is(err, ErrUnknownBooking) {
			sweepErr = errors.Join(sweepErr, coordinator.notifyOrphanedSlot(ctx, slot))
			continue
		}
		if err != nil {
			sweepErr = errors.Join(sweepErr, err)
			continue
		}
		updateErr := coordinator.bookings.UpdateBookingStatus(ctx, booking.ID, BookingPending, BookingExpired, BookingUpdate{
			Reason: expireReasonHoldExpired,
			At:     coordinator.now(),
		})
		switch {
		case updateErr == nil:
			report.BookingsClosed++
			booking.Status = BookingExpired
			coordinator.logBooking(ctx, operationExpire, booking, expireReasonHoldExpired, nil)
			coordinator.releaseReferral(ctx, booking)
		case errors.Is(updateErr, ErrBookingClosed):
		default:
			sweepErr = errors.Join(sweepErr, updateErr)
		}
		coordinator.notifySlotFreed(ctx, booking.CharterID, booking.Date)
	}
	if coordinator.waitlist != nil {
		expired, err := coordinator.waitlist.ExpireOffers(ctx)
		report.ExpiredOffers = expired
		sweepErr = errors.Join(sweepErr, err)
	}
	return report, sweepErr
}

// RunSweeper sweeps immediately and then on every tick until ctx is done.
func (coordinator *Coordinator) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: sweep interval must be positive", ErrInvalidServiceConfig)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := coordinator.Sweep(ctx); err != nil && ctx.Err() == nil {
			coordinator.logOperation(ctx, OperationLog{Operation: operationExpire, Detail: "sweep_failed", Error: err})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// confirmHeld finalizes the slot and confirms the pending booking. A hold that no longer belongs to
// the booking yields ErrSlotNotHeld; the slot is never re-claimed.
func (coordinator *Coordinator) confirmHeld(ctx context.Context, booking Booking, paymentRef string) (Booking, error) {
	if err := coordinator.calendar.Finalize(ctx, booking.CaptainID, booking.Date, booking.ID); err != nil {
		return Booking{}, err
	}
	now := coordinator.now()
	err := coordinator.bookings.UpdateBookingStatus(ctx, booking.ID, BookingPending, BookingConfirmed, BookingUpdate{
		PaymentRef: paymentRef,
		At:         now,
	})
	if err != nil {
		if errors.Is(err, ErrBookingClosed) {
			if releaseErr := coordinator.calendar.Release(ctx, booking.CaptainID, booking.Date, booking.ID); releaseErr == nil {
				coordinator.notifySlotFreed(ctx, booking.CharterID, booking.Date)
			}
		}
		coordinator.logBooking(ctx, operationConfirm, booking, "", err)
		return Booking{}, err
	}
	booking.Status = BookingConfirmed
	booking.UpdatedAt = now
	booking.ConfirmedAt = now
	if paymentRef != "" {
		booking.PaymentRef = paymentRef
	}
	coordinator.logBooking(ctx, operationConfirm, booking, "", nil)
	if !booking.ReferralCode.IsZero() {
		// Redeem logs its own failures; the booking stays confirmed.
		_ = coordinator.pricing.Redeem(ctx, booking.ReferralCode, booking.CustomerID, booking.ID)
	}
	return booking, nil
}

// resolveLostHold closes a pending booking whose hold is gone and refunds the charge that arrived for it.
// The slot is not touched: it is free or belongs to someone else.
func (coordinator *Coordinator) resolveLostHold(ctx context.Context, booking Booking, paymentRef string) (Booking, error) {
	now := coordinator.now()
	err := coordinator.bookings.UpdateBookingStatus(ctx, booking.ID, BookingPending, BookingExpired, BookingUpdate{
		PaymentRef: paymentRef,
		Reason:     cancelReasonHoldLost,
		At:         now,
	})
	if errors.Is(err, ErrBookingClosed) {
		return coordinator.resolveClosedCharge(ctx, booking.ID, paymentRef)
	}
	if err != nil {
		coordinator.logBooking(ctx, operationExpire, booking, cancelReasonHoldLost, err)
		return Booking{}, err
	}
	booking.Status = BookingExpired
	booking.StatusReason = cancelReasonHoldLost
	booking.UpdatedAt = now
	if paymentRef != "" {
		booking.PaymentRef = paymentRef
	}
	coordinator.logBooking(ctx, operationExpire, booking, cancelReasonHoldLost, nil)
	coordinator.releaseReferral(ctx, booking)
	return coordinator.refundCharge(ctx, booking, paymentRef)
}

// resolveClosedCharge re-reads a booking that closed under a success callback and settles the charge.
func (coordinator *Coordinator) resolveClosedCharge(ctx context.Context, bookingID BookingID, paymentRef string) (Booking, error) {
	current, err := coordinator.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if current.Status == BookingConfirmed {
		return current, nil
	}
	return coordinator.refundCharge(ctx, current, paymentRef)
}

// refundCharge returns a charge for a closed booking that never confirmed. It runs at most once per
// booking; the refund is requested before it is recorded so a failed request is retried by the next callback.
func (coordinator *Coordinator) refundCharge(ctx context.Context, booking Booking, paymentRef string) (Booking, error) {
	if !booking.ConfirmedAt.IsZero() || !booking.RefundRequestedAt.IsZero() {
		return booking, nil
	}
	if paymentRef == "" {
		paymentRef = booking.PaymentRef
	}
	refundErr := coordinator.payments.RequestRefund(ctx, RefundRequest{
		BookingID:  booking.ID,
		PaymentRef: paymentRef,
		Amount:     booking.FinalPrice,
		Reason:     refundReasonNoBooking,
	})
	coordinator.logBooking(ctx, operationRefund, booking, refundReasonNoBooking, refundErr)
	if refundErr != nil {
		return booking, refundErr
	}
	now := coordinator.now()
	if err := coordinator.bookings.MarkRefundRequested(ctx, booking.ID, paymentRef, now); err != nil {
		return booking, err
	}
	booking.RefundRequestedAt = now
	if paymentRef != "" {
		booking.PaymentRef = paymentRef
	}
	return booking, nil
}

// abandon moves a live booking to a terminal status, then frees its slot and notifies the waitlist.
func (coordinator *Coordinator) abandon(ctx context.Context, booking Booking, to BookingStatus, reason string, paymentRef string) (Booking, error) {
	operation := operationExpire
	if to == BookingCancelled {
		operation = operationCancel
	}
	now := coordinator.now()
	err := coordinator.bookings.UpdateBookingStatus(ctx, booking.ID, booking.Status, to, BookingUpdate{
		PaymentRef: paymentRef,
		Reason:     reason,
		At:         now,
	})
	if errors.Is(err, ErrBookingClosed) {
		return coordinator.bookings.GetBooking(ctx, booking.ID)
	}
	if err != nil {
		coordinator.logBooking(ctx, operation, booking, reason, err)
		return Booking{}, err
	}
	booking.Status = to
	booking.StatusReason = reason
	booking.UpdatedAt = now
	if paymentRef != "" {
		booking.PaymentRef = paymentRef
	}
	if booking.ConfirmedAt.IsZero() {
		coordinator.releaseReferral(ctx, booking)
	}
	releaseErr := coordinator.calendar.Release(ctx, booking.CaptainID, booking.Date, booking.ID)
	if releaseErr != nil && !errors.Is(releaseErr, ErrSlotNotHeld) {
		coordinator.logBooking(ctx, operation, booking, reason, releaseErr)
		return booking, releaseErr
	}
	coordinator.logBooking(ctx, operation, booking, reason, nil)
	if releaseErr == nil {
		coordinator.notifySlotFreed(ctx, booking.CharterID, booking.Date)
	}
	return booking, nil
}

func (coordinator *Coordinator) releaseHold(ctx context.Context, charterID CharterID, captainID CaptainID, date SlotDate, bookingID BookingID) {
	err := coordinator.calendar.Release(ctx, captainID, date, bookingID)
	coordinator.logOperation(ctx, OperationLog{
		Operation: operationClaim,
		CaptainID: captainID,
		CharterID: charterID,
		BookingID: bookingID,
		Date:      date,
		Detail:    "released",
		Error:     err,
	})
	if err == nil {
		coordinator.notifySlotFreed(ctx, charterID, date)
	}
}

// releaseReferral drops the pending code use of a booking that will not confirm. Failures are logged.
func (coordinator *Coordinator) releaseReferral(ctx context.Context, booking Booking) {
	if booking.ReferralCode.IsZero() {
		return
	}
	_ = coordinator.pricing.ReleaseReservation(ctx, booking.ReferralCode, booking.ID)
}

// notifyOrphanedSlot handles a released hold whose booking row was never written. Promotion is keyed by
// charter, so every charter of the captain is offered the date.
func (coordinator *Coordinator) notifyOrphanedSlot(ctx context.Context, slot ReleasedSlot) error {
	coordinator.logOperation(ctx, OperationLog{
		Operation: operationExpire,
		CaptainID: slot.CaptainID,
		BookingID: slot.BookingID,
		Date:      slot.Date,
		Detail:    expireReasonOrphanedHold,
	})
	if coordinator.waitlist == nil {
		return nil
	}
	charters, err := coordinator.catalog.ListChartersByCaptain(ctx, slot.CaptainID)
	if err != nil {
		return err
	}
	for _, charter := range charters {
		coordinator.notifySlotFreed(ctx, charter.ID, slot.Date)
	}
	return nil
}

func (coordinator *Coordinator) createSession(ctx context.Context, request PaymentSessionRequest) (PaymentSession, error) {
	var lastErr error
	for attempt := 1; attempt <= coordinator.paymentAttempts; attempt++ {
		session, err := coordinator.payments.CreateSession(ctx, request)
		if err == nil {
			coordinator.logOperation(ctx, OperationLog{
				Operation:  operationPaymentHandoff,
				CharterID:  request.CharterID,
				CustomerID: request.CustomerID,
				BookingID:  request.BookingID,
				Amount:     request.Amount,
			})
			return session, nil
		}
		lastErr = err
		if !errors.Is(err, ErrUpstreamUnavailable) {
			break
		}
		if attempt < coordinator.paymentAttempts {
			if waitErr := sleepContext(ctx, coordinator.paymentBackoff*time.Duration(attempt)); waitErr != nil {
				lastErr = errors.Join(err, waitErr)
				break
			}
		}
	}
	coordinator.logOperation(ctx, OperationLog{
		Operation:  operationPaymentHandoff,
		CharterID:  request.CharterID,
		CustomerID: request.CustomerID,
		BookingID:  request.BookingID,
		Amount:     request.Amount,
		Error:      lastErr,
	})
	return PaymentSession{}, WrapError(operationPaymentHandoff, "payment_session", "create_failed", lastErr)
}

func (coordinator *Coordinator) notifySlotFreed(ctx context.Context, charterID CharterID, date SlotDate) {
	if coordinator.waitlist == nil {
		return
	}
	if err := coordinator.waitlist.OnSlotFreed(ctx, charterID, date); err != nil {
		coordinator.logOperation(ctx, OperationLog{
			Operation: operationWaitlistOffer,
			CharterID: charterID,
			Date:      date,
			Error:     err,
		})
	}
}

func (coordinator *Coordinator) logBooking(ctx context.Context, operation string, booking Booking, detail string, err error) {
	coordinator.logOperation(ctx, OperationLog{
		Operation:       operation,
		CaptainID:       booking.CaptainID,
		CharterID:       booking.CharterID,
		CustomerID:      booking.CustomerID,
		BookingID:       booking.ID,
		WaitlistEntryID: booking.WaitlistEntryID,
		Date:            booking.Date,
		Amount:          booking.FinalPrice,
		Detail:          detail,
		Error:           err,
	})
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
