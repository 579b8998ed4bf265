package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type bookingRequestBody struct {
	CharterID       string `json:"charter_id"`
	Date            string `json:"date"`
	ReferralCode    string `json:"referral_code"`
	WaitlistEntryID string `json:"waitlist_entry_id"`
}

type quoteRequestBody struct {
	CharterID    string `json:"charter_id"`
	ReferralCode string `json:"referral_code"`
}

type waitlistJoinRequestBody struct {
	CharterID string                  `json:"charter_id"`
	Date      string                  `json:"date"`
	PartySize int                     `json:"party_size"`
	Contact   reservation.ContactInfo `json:"contact"`
}

type waitlistRespondRequestBody struct {
	EntryID string `json:"entry_id"`
	Accept  *bool  `json:"accept"`
}

type priceAlertRequestBody struct {
	CharterID        string `json:"charter_id"`
	TargetPriceCents int64  `json:"target_price_cents"`
}

type paymentWebhookRequestBody struct {
	BookingID  string `json:"booking_id"`
	Outcome    string `json:"outcome"`
	PaymentRef string `json:"payment_ref"`
}

type blockRequestBody struct {
	CaptainID string `json:"captain_id"`
	Date      string `json:"date"`
	Blocked   *bool  `json:"blocked"`
}

type charterRequestBody struct {
	CaptainID      string `json:"captain_id"`
	Name           string `json:"name"`
	BasePriceCents int64  `json:"base_price_cents"`
}

type referralRequestBody struct {
	AmountOffCents   int64  `json:"amount_off_cents"`
	PercentOffBps    int64  `json:"percent_off_bps"`
	MaxDiscountCents int64  `json:"max_discount_cents"`
	PerCustomerLimit int    `json:"per_customer_limit"`
	MaxRedemptions   int    `json:"max_redemptions"`
	ExpiresAt        string `json:"expires_at"`
	Active           *bool  `json:"active"`
}

func (handler *httpHandler) handleAvailability(ctx *gin.Context) {
	if _, ok := handler.customerID(ctx); !ok {
		return
	}
	captainID, err := reservation.NewCaptainID(ctx.Query("captain_id"))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	from, err := reservation.NewSlotDate(ctx.Query("from"))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	to := from
	if raw := ctx.Query("to"); raw != "" {
		to, err = reservation.NewSlotDate(raw)
		if err != nil {
			handler.writeError(ctx, err)
			return
		}
	}
	dateRange, err := reservation.NewDateRange(from, to)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	days, err := handler.services.Guard.Availability(requestCtx, captainID, dateRange)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(days))
	for _, day := range days {
		payload = append(payload, gin.H{"date": day.Date.String(), "status": day.Status.String()})
	}
	ctx.JSON(http.StatusOK, gin.H{"captain_id": captainID.String(), "availability": payload})
}

func (handler *httpHandler) handleQuote(ctx *gin.Context) {
	customerID, ok := handler.customerID(ctx)
	if !ok {
		return
	}
	var body quoteRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_json", "invalid request body"))
		return
	}
	charterID, err := reservation.NewCharterID(body.CharterID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	code, err := optionalReferralCode(body.ReferralCode)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	quote, err := handler.services.Coordinator.Quote(requestCtx, charterID, code, customerID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"charter_id":        charterID.String(),
		"base_price_cents":  quote.BasePrice.Int64(),
		"discount_cents":    quote.Discount.Int64(),
		"final_price_cents": quote.FinalPrice.Int64(),
		"referral_code":     quote.ReferralCode.String(),
	})
}

func (handler *httpHandler) handleStartBooking(ctx *gin.Context) {
	customerID, ok := handler.customerID(ctx)
	if !ok {
		return
	}
	var body bookingRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_json", "invalid request body"))
		return
	}
	charterID, err := reservation.NewCharterID(body.CharterID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	date, err := reservation.NewSlotDate(body.Date)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	code, err := optionalReferralCode(body.ReferralCode)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entryID, err := handler.bookingWaitlistEntry(requestCtx, body.WaitlistEntryID, customerID, charterID, date)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	attempt, err := handler.services.Coordinator.StartBooking(requestCtx, reservation.BookingRequest{
		CharterID:       charterID,
		CustomerID:      customerID,
		Date:            date,
		ReferralCode:    code,
		WaitlistEntryID: entryID,
	})
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, attemptPayload(attempt))
}

func (handler *httpHandler) handleGetBooking(ctx *gin.Context) {
	customerID, ok := handler.customerID(ctx)
	if !ok {
		return
	}
	bookingID, err := reservation.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	booking, err := handler.services.Coordinator.GetBooking(requestCtx, bookingID, customerID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, bookingPayload(booking))
}

func (handler *httpHandler) handleCancelBooking(ctx *gin.Context) {
	customerID, ok := handler.customerID(ctx)
	if !ok {
		return
	}
	bookingID, err := reservation.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	booking, err := handler.services.Coordinator.Cancel(requestCtx, bookingID, customerID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, bookingPayload(booking))
}

func (handler *httpHandler) handleResumePayment(ctx *gin.Context) {
	customerID, ok := handler.customerID(ctx)
	if !ok {
		return
	}
	bookingID, err := reservation.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	attempt, err := handler.services.Coordinator.ResumePayment(requestCtx, bookingID, customerID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, attemptPayload(attempt))
}

func (handler *httpHandler) handleJoinWaitlist(ctx *gin.Context) {
	customerID, ok := handler.customerID(ctx)
	if !ok {
		return
	}
	var body waitlistJoinRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_json", "invalid request body"))
		return
	}
	charterID, err := reservation.NewCharterID(body.CharterID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	date, err := reservation.NewSlotDate(body.Date)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entry, err := handler.services.Waitlist.Join(requestCtx, charterID, date, customerID, body.PartySize, body.Contact)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, waitlistEntryPayload(entry))
}

func (handler *httpHandler) handleRespondWaitlist(ctx *gin.Context) {
	customerID, ok := handler.customerID(ctx)
	if !ok {
		return
	}
	var body waitlistRespondRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil || body.Accept == nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_json", "entry_id and accept are required"))
		return
	}
	entryID, err := reservation.NewWaitlistEntryID(body.EntryID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	response, err := handler.services.Waitlist.Respond(requestCtx, entryID, customerID, *body.Accept)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	payload := gin.H{"entry": waitlistEntryPayload(response.Entry)}
	if response.Attempt != nil {
		payload["booking"] = attemptPayload(*response.Attempt)
	}
	ctx.JSON(http.StatusOK, payload)
}

func (handler *httpHandler) handleGetWaitlistEntry(ctx *gin.Context) {
	customerID, ok := handler.customerID(ctx)
	if !ok {
		return
	}
	entryID, err := reservation.NewWaitlistEntryID(ctx.Param("id"))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entry, err := handler.services.Waitlist.Get(requestCtx, entryID, customerID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, waitlistEntryPayload(entry))
}

func (handler *httpHandler) handleLeaveWaitlist(ctx *gin.Context) {
	customerID, ok := handler.customerID(ctx)
	if !ok {
		return
	}
	entryID, err := reservation.NewWaitlistEntryID(ctx.Param("id"))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.services.Waitlist.Leave(requestCtx, entryID, customerID); err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleRegisterPriceAlert(ctx *gin.Context) {
	customerID, ok := handler.customerID(ctx)
	if !ok {
		return
	}
	var body priceAlertRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_json", "invalid request body"))
		return
	}
	charterID, err := reservation.NewCharterID(body.CharterID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	target, err := reservation.NewPriceCents(body.TargetPriceCents)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	alert, err := handler.services.Alerts.Register(requestCtx, charterID, customerID, target)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, priceAlertPayload(alert))
}

func (handler *httpHandler) handleGetPriceAlert(ctx *gin.Context) {
	customerID, ok := handler.customerID(ctx)
	if !ok {
		return
	}
	alertID, err := reservation.NewPriceAlertID(ctx.Param("id"))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	alert, err := handler.services.Alerts.Get(requestCtx, alertID, customerID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, priceAlertPayload(alert))
}

func (handler *httpHandler) handleCancelPriceAlert(ctx *gin.Context) {
	customerID, ok := handler.customerID(ctx)
	if !ok {
		return
	}
	alertID, err := reservation.NewPriceAlertID(ctx.Param("id"))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.services.Alerts.Cancel(requestCtx, alertID, customerID); err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handlePaymentWebhook(ctx *gin.Context) {
	var body paymentWebhookRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_json", "invalid request body"))
		return
	}
	bookingID, err := reservation.NewBookingID(body.BookingID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	outcome, err := reservation.ParsePaymentOutcome(body.Outcome)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	// The callback settles the booking even when the caller disconnects.
	requestCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx.Request.Context()), handler.requestTimeout)
	defer cancel()
	booking, err := handler.services.Coordinator.HandlePaymentCallback(requestCtx, reservation.PaymentCallback{
		BookingID:  bookingID,
		Outcome:    outcome,
		PaymentRef: strings.TrimSpace(body.PaymentRef),
	})
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, bookingPayload(booking))
}

func (handler *httpHandler) handleBlockDate(ctx *gin.Context) {
	var body blockRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil || body.Blocked == nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_json", "captain_id, date and blocked are required"))
		return
	}
	captainID, err := reservation.NewCaptainID(body.CaptainID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	date, err := reservation.NewSlotDate(body.Date)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.services.Guard.Block(requestCtx, captainID, date, *body.Blocked); err != nil {
		handler.writeError(ctx, err)
		return
	}
	status := reservation.SlotAvailable
	if *body.Blocked {
		status = reservation.SlotBlocked
	}
	ctx.JSON(http.StatusOK, gin.H{"captain_id": captainID.String(), "date": date.String(), "status": status.String()})
}

func (handler *httpHandler) handlePutCharter(ctx *gin.Context) {
	var body charterRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_json", "invalid request body"))
		return
	}
	charterID, err := reservation.NewCharterID(ctx.Param("id"))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	captainID, err := reservation.NewCaptainID(body.CaptainID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	basePrice, err := reservation.NewPriceCents(body.BasePriceCents)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	charter := reservation.Charter{
		ID:        charterID,
		CaptainID: captainID,
		Name:      strings.TrimSpace(body.Name),
		BasePrice: basePrice,
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.services.Charters.PutCharter(requestCtx, charter); err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"charter_id":       charter.ID.String(),
		"captain_id":       charter.CaptainID.String(),
		"name":             charter.Name,
		"base_price_cents": charter.BasePrice.Int64(),
	})
}

func (handler *httpHandler) handlePutReferral(ctx *gin.Context) {
	var body referralRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_json", "invalid request body"))
		return
	}
	code, err := reservation.NewReferralCode(ctx.Param("code"))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	terms := reservation.ReferralTerms{
		Code:             code,
		AmountOff:        reservation.PriceCents(body.AmountOffCents),
		PercentOffBps:    body.PercentOffBps,
		MaxDiscount:      reservation.PriceCents(body.MaxDiscountCents),
		PerCustomerLimit: body.PerCustomerLimit,
		MaxRedemptions:   body.MaxRedemptions,
		Active:           body.Active == nil || *body.Active,
	}
	if raw := strings.TrimSpace(body.ExpiresAt); raw != "" {
		expiresAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, fieldErrorResponse("invalid_request", "expires_at must be RFC3339", "expires_at"))
			return
		}
		terms.ExpiresAt = expiresAt.UTC()
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.services.Pricing.PutTerms(requestCtx, terms); err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"referral_code": code.String(), "active": terms.Active})
}

// writeError maps engine errors to stable HTTP codes.
func (handler *httpHandler) writeError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, reservation.ErrSlotConflict):
		ctx.JSON(http.StatusConflict, errorResponse("slot_conflict", "the date is no longer available"))
	case reservation.IsReferralError(err):
		ctx.JSON(http.StatusUnprocessableEntity, referralErrorResponse(err))
	case errors.Is(err, reservation.ErrInvalidReferralCode):
		ctx.JSON(http.StatusUnprocessableEntity, fieldErrorResponse("invalid_referral", "referral code is malformed", "referral_code"))
	case errors.Is(err, reservation.ErrUpstreamUnavailable):
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("try_again_shortly", "payment processor unavailable"))
	case errors.Is(err, reservation.ErrPaymentTimeout):
		ctx.JSON(http.StatusGone, errorResponse("session_expired", "the hold on this date has expired"))
	case errors.Is(err, reservation.ErrWaitlistOfferExpired):
		ctx.JSON(http.StatusGone, errorResponse("offer_expired", "the waitlist offer has expired"))
	case errors.Is(err, reservation.ErrTargetNotBelowPrice):
		ctx.JSON(http.StatusUnprocessableEntity, fieldErrorResponse("target_not_below_price", "target price must be below the current price", "target_price_cents"))
	case errors.Is(err, reservation.ErrNotOwner):
		ctx.JSON(http.StatusForbidden, errorResponse("not_owner", "resource belongs to another customer"))
	case errors.Is(err, reservation.ErrUnknownBooking),
		errors.Is(err, reservation.ErrUnknownCharter),
		errors.Is(err, reservation.ErrUnknownWaitlistEntry),
		errors.Is(err, reservation.ErrUnknownPriceAlert):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, reservation.ErrBookingClosed),
		errors.Is(err, reservation.ErrWaitlistEntryClosed),
		errors.Is(err, reservation.ErrPriceAlertClosed):
		ctx.JSON(http.StatusConflict, errorResponse("closed", err.Error()))
	case errors.Is(err, reservation.ErrSlotNotBlockable):
		ctx.JSON(http.StatusConflict, errorResponse("slot_not_blockable", "only available dates can be blocked"))
	case isValidationError(err):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		ctx.JSON(http.StatusGatewayTimeout, errorResponse("timeout", "request timed out"))
	default:
		handler.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "internal error"))
	}
}

func referralErrorResponse(err error) gin.H {
	switch {
	case errors.Is(err, reservation.ErrReferralAlreadyUsed):
		return fieldErrorResponse("referral_already_used", "referral code was already used", "referral_code")
	case errors.Is(err, reservation.ErrReferralExpired):
		return fieldErrorResponse("referral_expired", "referral code has expired", "referral_code")
	}
	return fieldErrorResponse("invalid_referral", "referral code is not valid", "referral_code")
}

var validationErrors = []error{
	reservation.ErrInvalidCaptainID,
	reservation.ErrInvalidCharterID,
	reservation.ErrInvalidCustomerID,
	reservation.ErrInvalidBookingID,
	reservation.ErrInvalidEntryID,
	reservation.ErrInvalidAlertID,
	reservation.ErrInvalidSlotDate,
	reservation.ErrInvalidDateRange,
	reservation.ErrInvalidPriceCents,
	reservation.ErrInvalidPartySize,
	reservation.ErrInvalidPaymentOutcome,
	reservation.ErrInvalidDiscount,
}

func isValidationError(err error) bool {
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// bookingWaitlistEntry resolves the optional waitlist entry a booking is attributed to. The entry must
// belong to the customer and name the same charter and date.
func (handler *httpHandler) bookingWaitlistEntry(ctx context.Context, raw string, customerID reservation.CustomerID, charterID reservation.CharterID, date reservation.SlotDate) (reservation.WaitlistEntryID, error) {
	if strings.TrimSpace(raw) == "" {
		return reservation.WaitlistEntryID{}, nil
	}
	entryID, err := reservation.NewWaitlistEntryID(raw)
	if err != nil {
		return reservation.WaitlistEntryID{}, err
	}
	entry, err := handler.services.Waitlist.Get(ctx, entryID, customerID)
	if err != nil {
		return reservation.WaitlistEntryID{}, err
	}
	if entry.CharterID != charterID || entry.Date != date {
		return reservation.WaitlistEntryID{}, fmt.Errorf("%w: entry is for another charter or date", reservation.ErrInvalidEntryID)
	}
	return entryID, nil
}

func optionalReferralCode(raw string) (reservation.ReferralCode, error) {
	if strings.TrimSpace(raw) == "" {
		return reservation.ReferralCode{}, nil
	}
	return reservation.NewReferralCode(raw)
}

func attemptPayload(attempt reservation.BookingAttempt) gin.H {
	payload := bookingPayload(attempt.Booking)
	payload["state"] = string(attempt.State)
	if attempt.Session.RedirectURL != "" {
		payload["payment_redirect_url"] = attempt.Session.RedirectURL
	}
	return payload
}

func bookingPayload(booking reservation.Booking) gin.H {
	payload := gin.H{
		"booking_id":        booking.ID.String(),
		"charter_id":        booking.CharterID.String(),
		"captain_id":        booking.CaptainID.String(),
		"date":              booking.Date.String(),
		"status":            booking.Status.String(),
		"state":             string(booking.AttemptState()),
		"base_price_cents":  booking.BasePrice.Int64(),
		"discount_cents":    booking.Discount.Int64(),
		"final_price_cents": booking.FinalPrice.Int64(),
		"created_at":        booking.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !booking.ReferralCode.IsZero() {
		payload["referral_code"] = booking.ReferralCode.String()
	}
	if booking.PaymentSessionID != "" {
		payload["payment_session_id"] = booking.PaymentSessionID
	}
	if booking.StatusReason != "" {
		payload["status_reason"] = booking.StatusReason
	}
	if !booking.WaitlistEntryID.IsZero() {
		payload["waitlist_entry_id"] = booking.WaitlistEntryID.String()
	}
	return payload
}

func waitlistEntryPayload(entry reservation.WaitlistEntry) gin.H {
	payload := gin.H{
		"entry_id":   entry.ID.String(),
		"charter_id": entry.CharterID.String(),
		"date":       entry.Date.String(),
		"party_size": entry.PartySize,
		"status":     entry.Status.String(),
		"joined_at":  entry.JoinedAt.UTC().Format(time.RFC3339),
	}
	if !entry.OfferExpiresAt.IsZero() {
		payload["offer_expires_at"] = entry.OfferExpiresAt.UTC().Format(time.RFC3339)
	}
	if !entry.BookingID.IsZero() {
		payload["booking_id"] = entry.BookingID.String()
	}
	return payload
}

func priceAlertPayload(alert reservation.PriceAlert) gin.H {
	payload := gin.H{
		"alert_id":                alert.ID.String(),
		"charter_id":              alert.CharterID.String(),
		"target_price_cents":      alert.TargetPrice.Int64(),
		"price_at_creation_cents": alert.PriceAtCreation.Int64(),
		"last_seen_price_cents":   alert.LastSeenPrice.Int64(),
		"status":                  alert.Status.String(),
		"trigger_count":           alert.TriggerCount,
		"created_at":              alert.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !alert.LastTriggeredAt.IsZero() {
		payload["last_triggered_at"] = alert.LastTriggeredAt.UTC().Format(time.RFC3339)
	}
	return payload
}
