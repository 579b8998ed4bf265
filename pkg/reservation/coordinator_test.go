package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStartBookingHoldsSlotAndAwaitsPayment(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-10")

	attempt := env.book(test, "customer-1", date, "")

	if attempt.State != StateAwaitingPayment {
		test.Fatalf("expected AWAITING_PAYMENT, got %s", attempt.State)
	}
	if attempt.Session.SessionID == "" || attempt.Booking.PaymentSessionID != attempt.Session.SessionID {
		test.Fatalf("expected payment session recorded, got %+v", attempt)
	}
	booking := env.store.mustBooking(test, attempt.Booking.ID)
	if booking.Status != BookingPending || booking.FinalPrice != env.charter.BasePrice {
		test.Fatalf("unexpected booking: %+v", booking)
	}
	if booking.AttemptState() != StateAwaitingPayment {
		test.Fatalf("expected derived state AWAITING_PAYMENT, got %s", booking.AttemptState())
	}
	slot := env.store.slot(test, env.charter.CaptainID, date)
	if slot.Status != SlotPendingHold || slot.HolderBookingID != booking.ID {
		test.Fatalf("expected hold for %s, got %+v", booking.ID, slot)
	}
	if !slot.HoldExpiresAt.Equal(env.clock.Now().Add(testHoldTTL)) {
		test.Fatalf("expected hold expiry at now+ttl, got %s", slot.HoldExpiresAt)
	}
}

func TestStartBookingConflictCreatesNoBooking(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-11")
	env.book(test, "customer-1", date, "")

	_, err := env.coordinator.StartBooking(context.Background(), env.request(test, "customer-2", date, ""))
	if !errors.Is(err, ErrSlotConflict) {
		test.Fatalf("expected ErrSlotConflict, got %v", err)
	}
	if len(env.store.bookings) != 1 {
		test.Fatalf("expected only the winning booking, got %d", len(env.store.bookings))
	}
	if env.gateway.calls() != 1 {
		test.Fatalf("expected a single payment session, got %d", env.gateway.calls())
	}
}

func TestSuccessCallbackConfirmsAndFinalizes(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-12")
	attempt := env.book(test, "customer-1", date, "")

	booking := env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-1")

	if booking.Status != BookingConfirmed || booking.PaymentRef != "pay-1" {
		test.Fatalf("expected confirmed booking with payment ref, got %+v", booking)
	}
	slot := env.store.slot(test, env.charter.CaptainID, date)
	if slot.Status != SlotBooked || slot.HolderBookingID != booking.ID {
		test.Fatalf("expected booked slot, got %+v", slot)
	}
}

func TestPaymentCallbacksAreIdempotent(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-13")
	env.store.referrals[mustReferralCode(test, "FRIEND10")] = ReferralTerms{
		Code:             mustReferralCode(test, "FRIEND10"),
		AmountOff:        1000,
		PerCustomerLimit: 1,
		Active:           true,
	}
	attempt := env.book(test, "customer-1", date, "friend10")

	first := env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-1")
	second := env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-1")
	third := env.callback(test, attempt.Booking.ID, PaymentFailed, "pay-1")

	for _, booking := range []Booking{first, second, third} {
		if booking.Status != BookingConfirmed {
			test.Fatalf("expected confirmed after duplicates, got %s", booking.Status)
		}
	}
	if env.store.redemptionCount() != 1 {
		test.Fatalf("expected one redemption, got %d", env.store.redemptionCount())
	}
	if len(env.logger.operations(operationConfirm)) != 1 {
		test.Fatalf("expected a single confirm log, got %d", len(env.logger.operations(operationConfirm)))
	}
}

func TestFailureCallbackCancelsAndReleases(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-14")
	attempt := env.book(test, "customer-1", date, "")

	booking := env.callback(test, attempt.Booking.ID, PaymentFailed, "")

	if booking.Status != BookingCancelled || booking.StatusReason != cancelReasonPaymentFailed {
		test.Fatalf("expected cancelled/payment_failed, got %+v", booking)
	}
	if slot := env.store.slot(test, env.charter.CaptainID, date); slot.Status != SlotAvailable {
		test.Fatalf("expected available slot, got %s", slot.Status)
	}
}

func TestTimeoutCallbackExpiresAndReleases(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-15")
	attempt := env.book(test, "customer-1", date, "")

	booking := env.callback(test, attempt.Booking.ID, PaymentTimedOut, "")

	if booking.Status != BookingExpired || booking.StatusReason != expireReasonTimeout {
		test.Fatalf("expected expired/payment_timeout, got %+v", booking)
	}
	if slot := env.store.slot(test, env.charter.CaptainID, date); slot.Status != SlotAvailable {
		test.Fatalf("expected available slot, got %s", slot.Status)
	}
	_, err := env.coordinator.ResumePayment(context.Background(), booking.ID, booking.CustomerID)
	if !errors.Is(err, ErrPaymentTimeout) {
		test.Fatalf("expected ErrPaymentTimeout on resume, got %v", err)
	}
}

func TestHoldExpiryFreesSlotAndPromotesWaitlist(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-16")
	attempt := env.book(test, "customer-1", date, "")
	waiting := env.join(test, "customer-2", date)

	env.clock.Advance(testHoldTTL + time.Second)
	report, err := env.coordinator.Sweep(context.Background())
	if err != nil {
		test.Fatalf("sweep: %v", err)
	}

	if report.ReleasedHolds != 1 || report.BookingsClosed != 1 {
		test.Fatalf("unexpected sweep report: %+v", report)
	}
	booking := env.store.mustBooking(test, attempt.Booking.ID)
	if booking.Status != BookingExpired || booking.StatusReason != expireReasonHoldExpired {
		test.Fatalf("expected expired booking, got %+v", booking)
	}
	if slot := env.store.slot(test, env.charter.CaptainID, date); slot.Status != SlotAvailable {
		test.Fatalf("expected available slot, got %s", slot.Status)
	}
	entry := env.store.mustEntry(test, waiting.ID)
	if entry.Status != WaitlistNotified {
		test.Fatalf("expected waitlist entry notified, got %s", entry.Status)
	}
	offers := env.notifier.sent(NotificationWaitlistOffer)
	if len(offers) != 1 || offers[0].ReferenceID != waiting.ID.String() {
		test.Fatalf("expected one offer notification, got %+v", offers)
	}
}

func TestLateSuccessAfterExpiryRefundsWithoutReopening(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-17")
	attempt := env.book(test, "customer-1", date, "")
	env.clock.Advance(testHoldTTL + time.Second)
	if _, err := env.coordinator.Sweep(context.Background()); err != nil {
		test.Fatalf("sweep: %v", err)
	}

	booking := env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-late")

	if booking.Status != BookingExpired {
		test.Fatalf("expected booking to stay expired, got %s", booking.Status)
	}
	if slot := env.store.slot(test, env.charter.CaptainID, date); slot.Status != SlotAvailable {
		test.Fatalf("expected slot to stay available, got %+v", slot)
	}
	if env.gateway.refundCount() != 1 {
		test.Fatalf("expected one refund, got %d", env.gateway.refundCount())
	}
	stored := env.store.mustBooking(test, attempt.Booking.ID)
	if stored.RefundRequestedAt.IsZero() || stored.PaymentRef != "pay-late" {
		test.Fatalf("expected refund marker and payment ref, got %+v", stored)
	}
	if refund := env.gateway.refunds[0]; refund.PaymentRef != "pay-late" || refund.Amount != attempt.Booking.FinalPrice {
		test.Fatalf("unexpected refund request: %+v", refund)
	}
}

func TestLateSuccessKeepsWaitlistOfferLive(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-16")
	attempt := env.book(test, "customer-1", date, "")
	waiting := env.join(test, "customer-2", date)
	env.clock.Advance(testHoldTTL + time.Second)
	if _, err := env.coordinator.Sweep(context.Background()); err != nil {
		test.Fatalf("sweep: %v", err)
	}
	if entry := env.store.mustEntry(test, waiting.ID); entry.Status != WaitlistNotified {
		test.Fatalf("expected waitlist offer after expiry, got %s", entry.Status)
	}

	late := env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-late")
	if late.Status != BookingExpired || env.gateway.refundCount() != 1 {
		test.Fatalf("expected refunded expired booking, got %+v and %d refunds", late, env.gateway.refundCount())
	}

	response, err := env.waitlist.Respond(context.Background(), waiting.ID, waiting.CustomerID, true)
	if err != nil {
		test.Fatalf("respond: %v", err)
	}
	if response.Entry.Status != WaitlistConverted || response.Attempt == nil {
		test.Fatalf("expected offer to convert, got %+v", response)
	}
	if slot := env.store.slot(test, env.charter.CaptainID, date); slot.HolderBookingID != response.Attempt.Booking.ID {
		test.Fatalf("expected slot held by the waitlist booking, got %+v", slot)
	}
}

func TestSuccessAfterTimeoutRefundsOnce(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-15")
	attempt := env.book(test, "customer-1", date, "")

	timedOut := env.callback(test, attempt.Booking.ID, PaymentTimedOut, "pay-1")
	if timedOut.Status != BookingExpired || timedOut.PaymentRef != "pay-1" {
		test.Fatalf("expected expired booking carrying the ref, got %+v", timedOut)
	}

	env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-1")
	if env.gateway.refundCount() != 1 {
		test.Fatalf("expected one refund, got %d", env.gateway.refundCount())
	}
	env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-1")
	if env.gateway.refundCount() != 1 {
		test.Fatalf("expected duplicate success to be a no-op, got %d refunds", env.gateway.refundCount())
	}
}

func TestFailedRefundIsRetriedByNextCallback(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	attempt := env.book(test, "customer-1", mustSlotDate(test, "2026-07-09"), "")
	env.callback(test, attempt.Booking.ID, PaymentFailed, "")
	env.gateway.refundFailures = 1

	_, err := env.coordinator.HandlePaymentCallback(context.Background(), PaymentCallback{
		BookingID:  attempt.Booking.ID,
		Outcome:    PaymentSucceeded,
		PaymentRef: "pay-1",
	})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		test.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if stored := env.store.mustBooking(test, attempt.Booking.ID); !stored.RefundRequestedAt.IsZero() {
		test.Fatalf("expected no refund marker after a failed request, got %s", stored.RefundRequestedAt)
	}

	env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-1")
	if env.gateway.refundCount() != 1 {
		test.Fatalf("expected retried refund, got %d", env.gateway.refundCount())
	}
}

func TestSuccessAfterConfirmedCancellationIsNoop(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	attempt := env.book(test, "customer-1", mustSlotDate(test, "2026-07-08"), "")
	env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-1")
	if _, err := env.coordinator.Cancel(context.Background(), attempt.Booking.ID, attempt.Booking.CustomerID); err != nil {
		test.Fatalf("cancel: %v", err)
	}

	booking := env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-1")

	if booking.Status != BookingCancelled {
		test.Fatalf("expected cancelled booking, got %s", booking.Status)
	}
	if env.gateway.refundCount() != 0 {
		test.Fatalf("expected no refund for a booking that was confirmed, got %d", env.gateway.refundCount())
	}
}

func TestSweepNotifiesWaitlistForOrphanedHold(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-07")
	orphan := mustBookingID(test, "orphan-1")
	outcome, err := env.store.TryClaim(context.Background(), env.charter.CaptainID, date, orphan, env.clock.Now().Add(testHoldTTL))
	if err != nil || outcome != ClaimClaimed {
		test.Fatalf("expected orphan claim, got %s and %v", outcome, err)
	}
	waiting := env.join(test, "customer-2", date)
	env.clock.Advance(testHoldTTL + time.Second)

	report, err := env.coordinator.Sweep(context.Background())
	if err != nil {
		test.Fatalf("sweep: %v", err)
	}

	if report.ReleasedHolds != 1 || report.BookingsClosed != 0 {
		test.Fatalf("unexpected sweep report: %+v", report)
	}
	if entry := env.store.mustEntry(test, waiting.ID); entry.Status != WaitlistNotified {
		test.Fatalf("expected waitlist promotion for orphaned hold, got %s", entry.Status)
	}
	logged := false
	for _, entry := range env.logger.operations(operationExpire) {
		if entry.BookingID == orphan && entry.Detail == expireReasonOrphanedHold {
			logged = true
		}
	}
	if !logged {
		test.Fatalf("expected orphaned hold to be logged")
	}
}

func TestLateSuccessAfterSlotTakenRequestsRefund(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-18")
	attempt := env.book(test, "customer-1", date, "")
	env.clock.Advance(testHoldTTL + time.Second)
	if _, err := env.coordinator.Sweep(context.Background()); err != nil {
		test.Fatalf("sweep: %v", err)
	}
	rival := env.book(test, "customer-2", date, "")

	booking := env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-late")

	if booking.Status != BookingExpired || booking.PaymentRef != "pay-late" {
		test.Fatalf("expected expired booking carrying payment ref, got %+v", booking)
	}
	if env.gateway.refundCount() != 1 {
		test.Fatalf("expected one refund, got %d", env.gateway.refundCount())
	}
	if slot := env.store.slot(test, env.charter.CaptainID, date); slot.HolderBookingID != rival.Booking.ID {
		test.Fatalf("expected rival to keep the slot, got %+v", slot)
	}

	env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-late")
	if env.gateway.refundCount() != 1 {
		test.Fatalf("expected duplicate late success to be a no-op, got %d refunds", env.gateway.refundCount())
	}
}

func TestPaymentHandoffRetriesTransientFailures(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	env.gateway.sessionFailures = 2

	attempt := env.book(test, "customer-1", mustSlotDate(test, "2026-07-19"), "")

	if attempt.State != StateAwaitingPayment {
		test.Fatalf("expected AWAITING_PAYMENT after retries, got %s", attempt.State)
	}
	if env.gateway.calls() != 3 {
		test.Fatalf("expected 3 session attempts, got %d", env.gateway.calls())
	}
}

func TestPaymentHandoffExhaustedExpiresBooking(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	env.gateway.sessionFailures = 10
	date := mustSlotDate(test, "2026-07-20")

	_, err := env.coordinator.StartBooking(context.Background(), env.request(test, "customer-1", date, ""))

	if !errors.Is(err, ErrUpstreamUnavailable) {
		test.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if env.gateway.calls() != 3 {
		test.Fatalf("expected bounded retry of 3, got %d", env.gateway.calls())
	}
	for _, booking := range env.store.bookings {
		if booking.Status != BookingExpired || booking.StatusReason != expireReasonUpstream {
			test.Fatalf("expected expired booking, got %+v", booking)
		}
	}
	if slot := env.store.slot(test, env.charter.CaptainID, date); slot.Status != SlotAvailable {
		test.Fatalf("expected slot released, got %s", slot.Status)
	}
}

func TestPaymentHandoffRejectionCancelsBooking(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	env.gateway.sessionErr = errors.New("processor rejected amount")

	_, err := env.coordinator.StartBooking(context.Background(), env.request(test, "customer-1", mustSlotDate(test, "2026-07-21"), ""))

	if err == nil || errors.Is(err, ErrUpstreamUnavailable) {
		test.Fatalf("expected non-transient error, got %v", err)
	}
	if env.gateway.calls() != 1 {
		test.Fatalf("expected no retry for a rejection, got %d", env.gateway.calls())
	}
	for _, booking := range env.store.bookings {
		if booking.Status != BookingCancelled {
			test.Fatalf("expected cancelled booking, got %s", booking.Status)
		}
	}
}

func TestInvalidReferralTakesNoHold(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-22")

	_, err := env.coordinator.StartBooking(context.Background(), env.request(test, "customer-1", date, "NOPE"))

	if !errors.Is(err, ErrInvalidReferral) {
		test.Fatalf("expected ErrInvalidReferral, got %v", err)
	}
	if slot := env.store.slot(test, env.charter.CaptainID, date); slot.Status != SlotAvailable {
		test.Fatalf("expected no hold, got %s", slot.Status)
	}
}

func TestReferralIsSingleUsePerCustomer(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	code := mustReferralCode(test, "WELCOME")
	env.store.referrals[code] = ReferralTerms{Code: code, PercentOffBps: 1000, PerCustomerLimit: 1, Active: true}
	firstDate := mustSlotDate(test, "2026-07-23")
	secondDate := mustSlotDate(test, "2026-07-24")

	attempt := env.book(test, "customer-1", firstDate, "welcome")
	if attempt.Booking.Discount != 5000 || attempt.Booking.FinalPrice != 45000 {
		test.Fatalf("expected 10%% discount, got %+v", attempt.Booking)
	}
	env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-1")

	_, err := env.coordinator.StartBooking(context.Background(), env.request(test, "customer-1", secondDate, "WELCOME"))
	if !errors.Is(err, ErrReferralAlreadyUsed) {
		test.Fatalf("expected ErrReferralAlreadyUsed, got %v", err)
	}
	if slot := env.store.slot(test, env.charter.CaptainID, secondDate); slot.Status != SlotAvailable {
		test.Fatalf("expected no hold on second date, got %s", slot.Status)
	}
	other := env.book(test, "customer-2", secondDate, "WELCOME")
	if other.Booking.Discount != 5000 {
		test.Fatalf("expected another customer to use the code, got %+v", other.Booking)
	}
}

func TestConcurrentReferralBookingsRespectCustomerLimit(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	code := mustReferralCode(test, "ONCE")
	env.store.referrals[code] = ReferralTerms{Code: code, AmountOff: 2000, PerCustomerLimit: 1, Active: true}
	dates := []SlotDate{
		mustSlotDate(test, "2026-08-20"),
		mustSlotDate(test, "2026-08-21"),
		mustSlotDate(test, "2026-08-22"),
		mustSlotDate(test, "2026-08-23"),
	}

	var (
		waitGroup sync.WaitGroup
		mu        sync.Mutex
		won       []BookingAttempt
		rejected  int
	)
	start := make(chan struct{})
	for _, date := range dates {
		date := date
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			<-start
			attempt, err := env.coordinator.StartBooking(context.Background(), env.request(test, "customer-1", date, "ONCE"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won = append(won, attempt)
			case errors.Is(err, ErrReferralAlreadyUsed):
				rejected++
			default:
				test.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	waitGroup.Wait()

	if len(won) != 1 || rejected != len(dates)-1 {
		test.Fatalf("expected one discounted booking, got %d won and %d rejected", len(won), rejected)
	}
	if env.store.redemptionsWithStatus(RedemptionPending) != 1 {
		test.Fatalf("expected one pending redemption, got %d", env.store.redemptionsWithStatus(RedemptionPending))
	}
	for _, date := range dates {
		if date == won[0].Booking.Date {
			continue
		}
		if slot := env.store.slot(test, env.charter.CaptainID, date); slot.Status != SlotAvailable {
			test.Fatalf("expected rejected date %s to stay free, got %s", date, slot.Status)
		}
	}

	env.callback(test, won[0].Booking.ID, PaymentSucceeded, "pay-1")
	if env.store.redemptionsWithStatus(RedemptionRedeemed) != 1 || env.store.redemptionCount() != 1 {
		test.Fatalf("expected the pending use to become the redemption, got %d rows", env.store.redemptionCount())
	}
}

func TestAbandonedBookingReleasesReferralUse(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		abandon func(test *testing.T, env *engine, attempt BookingAttempt)
	}{
		{
			name: "payment failed",
			abandon: func(test *testing.T, env *engine, attempt BookingAttempt) {
				env.callback(test, attempt.Booking.ID, PaymentFailed, "")
			},
		},
		{
			name: "customer cancelled",
			abandon: func(test *testing.T, env *engine, attempt BookingAttempt) {
				if _, err := env.coordinator.Cancel(context.Background(), attempt.Booking.ID, attempt.Booking.CustomerID); err != nil {
					test.Fatalf("cancel: %v", err)
				}
			},
		},
		{
			name: "hold expired",
			abandon: func(test *testing.T, env *engine, attempt BookingAttempt) {
				env.clock.Advance(testHoldTTL + time.Second)
				if _, err := env.coordinator.Sweep(context.Background()); err != nil {
					test.Fatalf("sweep: %v", err)
				}
			},
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			env := newEngine(test)
			code := mustReferralCode(test, "ONCE")
			env.store.referrals[code] = ReferralTerms{Code: code, AmountOff: 2000, PerCustomerLimit: 1, Active: true}
			attempt := env.book(test, "customer-1", mustSlotDate(test, "2026-08-24"), "ONCE")

			testCase.abandon(test, env, attempt)

			if env.store.redemptionCount() != 0 {
				test.Fatalf("expected the pending use to be released, got %d rows", env.store.redemptionCount())
			}
			retry := env.book(test, "customer-1", mustSlotDate(test, "2026-08-25"), "ONCE")
			if retry.Booking.Discount != 2000 {
				test.Fatalf("expected the code to apply again, got %+v", retry.Booking)
			}
		})
	}
}

func TestFullyDiscountedBookingConfirmsImmediately(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	code := mustReferralCode(test, "FREETRIP")
	env.store.referrals[code] = ReferralTerms{Code: code, PercentOffBps: basisPointsPerWhole, Active: true}
	date := mustSlotDate(test, "2026-07-25")

	attempt := env.book(test, "customer-1", date, "FREETRIP")

	if attempt.State != StateConfirmed || attempt.Booking.FinalPrice != 0 {
		test.Fatalf("expected immediate confirmation at zero, got %+v", attempt)
	}
	if env.gateway.calls() != 0 {
		test.Fatalf("expected no payment session, got %d", env.gateway.calls())
	}
	if slot := env.store.slot(test, env.charter.CaptainID, date); slot.Status != SlotBooked {
		test.Fatalf("expected booked slot, got %s", slot.Status)
	}
	if env.store.redemptionCount() != 1 {
		test.Fatalf("expected redemption recorded, got %d", env.store.redemptionCount())
	}
}

func TestCancelPendingBookingReleasesSlot(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-26")
	attempt := env.book(test, "customer-1", date, "")

	booking, err := env.coordinator.Cancel(context.Background(), attempt.Booking.ID, attempt.Booking.CustomerID)
	if err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if booking.Status != BookingCancelled || booking.StatusReason != cancelReasonCustomer {
		test.Fatalf("expected customer cancellation, got %+v", booking)
	}
	if slot := env.store.slot(test, env.charter.CaptainID, date); slot.Status != SlotAvailable {
		test.Fatalf("expected available slot, got %s", slot.Status)
	}

	late := env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-after-cancel")
	if late.Status != BookingCancelled || env.gateway.refundCount() != 1 {
		test.Fatalf("expected refund for success after cancel, got %+v and %d refunds", late, env.gateway.refundCount())
	}
}

func TestCancelConfirmedBookingPromotesWaitlist(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-27")
	attempt := env.book(test, "customer-1", date, "")
	env.callback(test, attempt.Booking.ID, PaymentSucceeded, "pay-1")
	waiting := env.join(test, "customer-2", date)

	booking, err := env.coordinator.Cancel(context.Background(), attempt.Booking.ID, attempt.Booking.CustomerID)
	if err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if booking.Status != BookingCancelled {
		test.Fatalf("expected cancelled, got %s", booking.Status)
	}
	if slot := env.store.slot(test, env.charter.CaptainID, date); slot.Status != SlotAvailable {
		test.Fatalf("expected available slot, got %s", slot.Status)
	}
	if entry := env.store.mustEntry(test, waiting.ID); entry.Status != WaitlistNotified {
		test.Fatalf("expected waitlist promotion, got %s", entry.Status)
	}
	if _, err := env.coordinator.Cancel(context.Background(), attempt.Booking.ID, attempt.Booking.CustomerID); !errors.Is(err, ErrBookingClosed) {
		test.Fatalf("expected ErrBookingClosed on second cancel, got %v", err)
	}
}

func TestBookingAccessRequiresOwner(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	attempt := env.book(test, "customer-1", mustSlotDate(test, "2026-07-28"), "")
	stranger := mustCustomerID(test, "customer-9")

	if _, err := env.coordinator.GetBooking(context.Background(), attempt.Booking.ID, stranger); !errors.Is(err, ErrNotOwner) {
		test.Fatalf("expected ErrNotOwner on get, got %v", err)
	}
	if _, err := env.coordinator.Cancel(context.Background(), attempt.Booking.ID, stranger); !errors.Is(err, ErrNotOwner) {
		test.Fatalf("expected ErrNotOwner on cancel, got %v", err)
	}
}

func TestResumePaymentReturnsActiveSession(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	attempt := env.book(test, "customer-1", mustSlotDate(test, "2026-07-29"), "")

	resumed, err := env.coordinator.ResumePayment(context.Background(), attempt.Booking.ID, attempt.Booking.CustomerID)
	if err != nil {
		test.Fatalf("resume: %v", err)
	}
	if resumed.State != StateAwaitingPayment || resumed.Session.SessionID != attempt.Session.SessionID {
		test.Fatalf("expected same session, got %+v", resumed)
	}

	env.clock.Advance(testHoldTTL)
	if _, err := env.coordinator.ResumePayment(context.Background(), attempt.Booking.ID, attempt.Booking.CustomerID); !errors.Is(err, ErrPaymentTimeout) {
		test.Fatalf("expected ErrPaymentTimeout after hold elapsed, got %v", err)
	}
}

func TestBookingCreateFailureReleasesHold(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	date := mustSlotDate(test, "2026-07-30")
	env.store.createBookErr = errors.New("insert failed")

	_, err := env.coordinator.StartBooking(context.Background(), env.request(test, "customer-1", date, ""))
	if err == nil {
		test.Fatalf("expected create error")
	}
	if slot := env.store.slot(test, env.charter.CaptainID, date); slot.Status != SlotAvailable {
		test.Fatalf("expected hold released, got %s", slot.Status)
	}
}

func TestNewCoordinatorValidatesDependencies(test *testing.T) {
	test.Parallel()
	_, err := NewCoordinator(CoordinatorConfig{})
	if !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
}

func TestRunSweeperStopsOnCancel(test *testing.T) {
	test.Parallel()
	env := newEngine(test)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- env.coordinator.RunSweeper(ctx, time.Millisecond)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			test.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(time.Second):
		test.Fatalf("sweeper did not stop")
	}
	if err := env.coordinator.RunSweeper(context.Background(), 0); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for zero interval, got %v", err)
	}
}
