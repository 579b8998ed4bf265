package reservation

import (
	"fmt"
	"strings"
	"time"
)

// PriceCents is a non-negative integer currency amount in cents.
type PriceCents int64

// NewPriceCents validates a non-negative amount.
func NewPriceCents(raw int64) (PriceCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidPriceCents)
	}
	return PriceCents(raw), nil
}

// Int64 returns the raw cents value.
func (amount PriceCents) Int64() int64 {
	return int64(amount)
}

// CaptainID identifies the captain (vessel) owning a calendar.
type CaptainID struct {
	value string
}

// CharterID identifies a bookable charter listing.
type CharterID struct {
	value string
}

// CustomerID identifies the customer making a request.
type CustomerID struct {
	value string
}

// BookingID identifies a booking attempt; it doubles as the payment correlation id.
type BookingID struct {
	value string
}

// WaitlistEntryID identifies a waitlist entry.
type WaitlistEntryID struct {
	value string
}

// PriceAlertID identifies a price alert.
type PriceAlertID struct {
	value string
}

// NewCaptainID validates and normalizes a captain id.
func NewCaptainID(raw string) (CaptainID, error) {
	trimmed, err := normalizeIdentifier(raw, ErrInvalidCaptainID)
	if err != nil {
		return CaptainID{}, err
	}
	return CaptainID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id CaptainID) String() string { return id.value }

// IsZero reports whether the id is unset.
func (id CaptainID) IsZero() bool { return id.value == "" }

// NewCharterID validates and normalizes a charter id.
func NewCharterID(raw string) (CharterID, error) {
	trimmed, err := normalizeIdentifier(raw, ErrInvalidCharterID)
	if err != nil {
		return CharterID{}, err
	}
	return CharterID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id CharterID) String() string { return id.value }

// IsZero reports whether the id is unset.
func (id CharterID) IsZero() bool { return id.value == "" }

// NewCustomerID validates and normalizes a customer id.
func NewCustomerID(raw string) (CustomerID, error) {
	trimmed, err := normalizeIdentifier(raw, ErrInvalidCustomerID)
	if err != nil {
		return CustomerID{}, err
	}
	return CustomerID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id CustomerID) String() string { return id.value }

// IsZero reports whether the id is unset.
func (id CustomerID) IsZero() bool { return id.value == "" }

// NewBookingID validates and normalizes a booking id.
func NewBookingID(raw string) (BookingID, error) {
	trimmed, err := normalizeIdentifier(raw, ErrInvalidBookingID)
	if err != nil {
		return BookingID{}, err
	}
	return BookingID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BookingID) String() string { return id.value }

// IsZero reports whether the id is unset.
func (id BookingID) IsZero() bool { return id.value == "" }

// NewWaitlistEntryID validates and normalizes a waitlist entry id.
func NewWaitlistEntryID(raw string) (WaitlistEntryID, error) {
	trimmed, err := normalizeIdentifier(raw, ErrInvalidEntryID)
	if err != nil {
		return WaitlistEntryID{}, err
	}
	return WaitlistEntryID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id WaitlistEntryID) String() string { return id.value }

// IsZero reports whether the id is unset.
func (id WaitlistEntryID) IsZero() bool { return id.value == "" }

// NewPriceAlertID validates and normalizes a price alert id.
func NewPriceAlertID(raw string) (PriceAlertID, error) {
	trimmed, err := normalizeIdentifier(raw, ErrInvalidAlertID)
	if err != nil {
		return PriceAlertID{}, err
	}
	return PriceAlertID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id PriceAlertID) String() string { return id.value }

// IsZero reports whether the id is unset.
func (id PriceAlertID) IsZero() bool { return id.value == "" }

func normalizeIdentifier(raw string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", sentinel)
	}
	if len(trimmed) > 128 {
		return "", fmt.Errorf("%w: longer than 128 characters", sentinel)
	}
	return trimmed, nil
}

// ReferralCode is a normalized (upper-cased) referral code.
type ReferralCode struct {
	value string
}

// NewReferralCode validates and normalizes a referral code.
func NewReferralCode(raw string) (ReferralCode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return ReferralCode{}, fmt.Errorf("%w: empty value", ErrInvalidReferralCode)
	}
	if len(normalized) > 64 {
		return ReferralCode{}, fmt.Errorf("%w: longer than 64 characters", ErrInvalidReferralCode)
	}
	for _, character := range normalized {
		isLetter := character >= 'A' && character <= 'Z'
		isDigit := character >= '0' && character <= '9'
		if !isLetter && !isDigit && character != '-' && character != '_' {
			return ReferralCode{}, fmt.Errorf("%w: unexpected character %q", ErrInvalidReferralCode, character)
		}
	}
	return ReferralCode{value: normalized}, nil
}

// String returns the normalized code.
func (code ReferralCode) String() string { return code.value }

// IsZero reports whether no code was supplied.
func (code ReferralCode) IsZero() bool { return code.value == "" }

// SlotDate is a civil calendar date (YYYY-MM-DD) without a time zone.
type SlotDate struct {
	value string
}

// NewSlotDate parses a YYYY-MM-DD date.
func NewSlotDate(raw string) (SlotDate, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := time.Parse(slotDateLayout, trimmed)
	if err != nil {
		return SlotDate{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidSlotDate, raw)
	}
	return SlotDate{value: parsed.Format(slotDateLayout)}, nil
}

// SlotDateFromTime truncates a timestamp to its UTC calendar date.
func SlotDateFromTime(at time.Time) SlotDate {
	return SlotDate{value: at.UTC().Format(slotDateLayout)}
}

// String returns the YYYY-MM-DD form.
func (date SlotDate) String() string { return date.value }

// IsZero reports whether the date is unset.
func (date SlotDate) IsZero() bool { return date.value == "" }

// Time returns midnight UTC of the date.
func (date SlotDate) Time() time.Time {
	parsed, _ := time.Parse(slotDateLayout, date.value)
	return parsed
}

// AddDays returns the date shifted by the given number of days.
func (date SlotDate) AddDays(days int) SlotDate {
	return SlotDateFromTime(date.Time().AddDate(0, 0, days))
}

// Before reports whether date is strictly earlier than other.
func (date SlotDate) Before(other SlotDate) bool {
	return date.value < other.value
}

// DateRange is an inclusive range of slot dates.
type DateRange struct {
	from SlotDate
	to   SlotDate
}

// NewDateRange validates an inclusive range no longer than the availability window.
func NewDateRange(from SlotDate, to SlotDate) (DateRange, error) {
	if from.IsZero() || to.IsZero() {
		return DateRange{}, fmt.Errorf("%w: both bounds are required", ErrInvalidDateRange)
	}
	if to.Before(from) {
		return DateRange{}, fmt.Errorf("%w: end before start", ErrInvalidDateRange)
	}
	days := int(to.Time().Sub(from.Time()).Hours()/24) + 1
	if days > maxAvailabilityDays {
		return DateRange{}, fmt.Errorf("%w: %d days exceeds %d", ErrInvalidDateRange, days, maxAvailabilityDays)
	}
	return DateRange{from: from, to: to}, nil
}

// From returns the first date.
func (dateRange DateRange) From() SlotDate { return dateRange.from }

// To returns the last date.
func (dateRange DateRange) To() SlotDate { return dateRange.to }

// Dates enumerates every date in the range.
func (dateRange DateRange) Dates() []SlotDate {
	dates := []SlotDate{}
	for current := dateRange.from; !dateRange.to.Before(current); current = current.AddDays(1) {
		dates = append(dates, current)
	}
	return dates
}

// SlotStatus is the state of a calendar slot.
type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotPendingHold SlotStatus = "pending_hold"
	SlotBooked      SlotStatus = "booked"
	SlotBlocked     SlotStatus = "blocked"
)

// ParseSlotStatus validates a stored slot status.
func ParseSlotStatus(raw string) (SlotStatus, error) {
	switch SlotStatus(raw) {
	case SlotAvailable, SlotPendingHold, SlotBooked, SlotBlocked:
		return SlotStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSlotStatus, raw)
}

// String returns the raw status.
func (status SlotStatus) String() string { return string(status) }

// Availability is the advisory answer for a slot.
type Availability string

const (
	Available   Availability = "available"
	Unavailable Availability = "unavailable"
)

// ClaimOutcome is the binding answer of a claim.
type ClaimOutcome string

const (
	ClaimClaimed  ClaimOutcome = "claimed"
	ClaimConflict ClaimOutcome = "conflict"
)

// CalendarEntry is the state of one (captain, date) slot.
type CalendarEntry struct {
	CaptainID       CaptainID
	Date            SlotDate
	Status          SlotStatus
	HolderBookingID BookingID
	HoldExpiresAt   time.Time
}

// AvailableEntry returns the implicit entry for a slot with no stored row.
func AvailableEntry(captainID CaptainID, date SlotDate) CalendarEntry {
	return CalendarEntry{CaptainID: captainID, Date: date, Status: SlotAvailable}
}

// ReleasedSlot is emitted when a stale hold is swept.
type ReleasedSlot struct {
	CaptainID CaptainID
	Date      SlotDate
	BookingID BookingID
}

// Charter is the catalog view of a bookable listing.
type Charter struct {
	ID        CharterID
	CaptainID CaptainID
	Name      string
	BasePrice PriceCents
}

// BookingStatus defines the booking lifecycle.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingExpired   BookingStatus = "expired"
)

// ParseBookingStatus validates a stored booking status.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	switch BookingStatus(raw) {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingExpired:
		return BookingStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBookingStatus, raw)
}

// String returns the raw status.
func (status BookingStatus) String() string { return string(status) }

// Terminal reports whether no further callback can change the booking.
func (status BookingStatus) Terminal() bool {
	return status == BookingCancelled || status == BookingExpired
}

// AttemptState is the position of a booking attempt in the transaction state machine.
type AttemptState string

const (
	StateSelecting       AttemptState = "SELECTING"
	StateHolding         AttemptState = "HOLDING"
	StatePricing         AttemptState = "PRICING"
	StateAwaitingPayment AttemptState = "AWAITING_PAYMENT"
	StateConfirmed       AttemptState = "CONFIRMED"
	StateExpired         AttemptState = "EXPIRED"
	StateCancelled       AttemptState = "CANCELLED"
)

// Booking is a reservation attempt against one slot.
type Booking struct {
	ID               BookingID
	CharterID        CharterID
	CaptainID        CaptainID
	CustomerID       CustomerID
	Date             SlotDate
	Status           BookingStatus
	BasePrice        PriceCents
	Discount         PriceCents
	FinalPrice       PriceCents
	ReferralCode     ReferralCode
	PaymentSessionID  string
	PaymentRef        string
	StatusReason      string
	WaitlistEntryID   WaitlistEntryID
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ConfirmedAt       time.Time
	RefundRequestedAt time.Time
}

// AttemptState derives the state machine position from the stored booking.
func (booking Booking) AttemptState() AttemptState {
	switch booking.Status {
	case BookingConfirmed:
		return StateConfirmed
	case BookingExpired:
		return StateExpired
	case BookingCancelled:
		return StateCancelled
	}
	if booking.PaymentSessionID == "" {
		return StatePricing
	}
	return StateAwaitingPayment
}

// BookingUpdate carries the fields written alongside a status transition.
type BookingUpdate struct {
	PaymentRef string
	Reason     string
	At         time.Time
}

// ContactInfo is how a waitlisted customer wants to be reached.
type ContactInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// WaitlistStatus defines the waitlist entry lifecycle.
type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "waiting"
	WaitlistNotified  WaitlistStatus = "notified"
	WaitlistExpired   WaitlistStatus = "expired"
	WaitlistConverted WaitlistStatus = "converted"
)

// ParseWaitlistStatus validates a stored waitlist status.
func ParseWaitlistStatus(raw string) (WaitlistStatus, error) {
	switch WaitlistStatus(raw) {
	case WaitlistWaiting, WaitlistNotified, WaitlistExpired, WaitlistConverted:
		return WaitlistStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidWaitlistStatus, raw)
}

// String returns the raw status.
func (status WaitlistStatus) String() string { return string(status) }

// Live reports whether the entry still occupies a place in the queue.
func (status WaitlistStatus) Live() bool {
	return status == WaitlistWaiting || status == WaitlistNotified
}

// WaitlistEntry is a customer queued for a (charter, date).
type WaitlistEntry struct {
	ID             WaitlistEntryID
	CharterID      CharterID
	Date           SlotDate
	CustomerID     CustomerID
	PartySize      int
	Contact        ContactInfo
	Status         WaitlistStatus
	JoinedAt       time.Time
	OfferExpiresAt time.Time
	BookingID      BookingID
}

// WaitlistUpdate replaces the mutable fields of an entry during a transition.
type WaitlistUpdate struct {
	Status         WaitlistStatus
	OfferExpiresAt time.Time
	BookingID      BookingID
}

// ReferralTerms configures how a referral code discounts and how often it may be used.
type ReferralTerms struct {
	Code             ReferralCode
	AmountOff        PriceCents
	PercentOffBps    int64
	MaxDiscount      PriceCents
	PerCustomerLimit int
	MaxRedemptions   int
	ExpiresAt        time.Time
	Active           bool
}

// Validate rejects terms that cannot produce a bounded discount.
func (terms ReferralTerms) Validate() error {
	if terms.Code.IsZero() {
		return fmt.Errorf("%w: code is required", ErrInvalidDiscount)
	}
	if terms.AmountOff < 0 || terms.MaxDiscount < 0 {
		return fmt.Errorf("%w: negative amounts", ErrInvalidDiscount)
	}
	if terms.PercentOffBps < 0 || terms.PercentOffBps > basisPointsPerWhole {
		return fmt.Errorf("%w: percent off must be within 0..10000 bps", ErrInvalidDiscount)
	}
	if terms.AmountOff == 0 && terms.PercentOffBps == 0 {
		return fmt.Errorf("%w: no discount configured", ErrInvalidDiscount)
	}
	if terms.PerCustomerLimit < 0 || terms.MaxRedemptions < 0 {
		return fmt.Errorf("%w: negative limits", ErrInvalidDiscount)
	}
	return nil
}

// MultiUse reports whether the same customer may redeem the code more than once.
func (terms ReferralTerms) MultiUse() bool {
	return terms.PerCustomerLimit == 0 || terms.PerCustomerLimit > 1
}

// DiscountFor computes the discount for a base price, never exceeding it.
func (terms ReferralTerms) DiscountFor(basePrice PriceCents) PriceCents {
	discount := terms.AmountOff
	if terms.PercentOffBps > 0 {
		discount += PriceCents(basePrice.Int64() * terms.PercentOffBps / basisPointsPerWhole)
	}
	if terms.MaxDiscount > 0 && discount > terms.MaxDiscount {
		discount = terms.MaxDiscount
	}
	if discount > basePrice {
		discount = basePrice
	}
	return discount
}

// RedemptionCounts summarizes prior redemptions of a code.
type RedemptionCounts struct {
	ByCustomer int64
	Total      int64
}

// RedemptionStatus separates a code held by a live booking from one consumed by a confirmed booking.
type RedemptionStatus string

const (
	RedemptionPending  RedemptionStatus = "pending"
	RedemptionRedeemed RedemptionStatus = "redeemed"
)

// ParseRedemptionStatus validates a stored redemption status. Empty means redeemed.
func ParseRedemptionStatus(raw string) (RedemptionStatus, error) {
	switch RedemptionStatus(raw) {
	case "":
		return RedemptionRedeemed, nil
	case RedemptionPending, RedemptionRedeemed:
		return RedemptionStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRedemptionStatus, raw)
}

// String returns the raw status.
func (status RedemptionStatus) String() string { return string(status) }

// ReferralRedemption records a code use. Pending rows count against limits while their booking is held.
type ReferralRedemption struct {
	Code       ReferralCode
	CustomerID CustomerID
	BookingID  BookingID
	Status     RedemptionStatus
	RedeemedAt time.Time
}

// PriceQuote is the outcome of pricing a booking.
type PriceQuote struct {
	BasePrice    PriceCents
	Discount     PriceCents
	FinalPrice   PriceCents
	ReferralCode ReferralCode
}

// PriceAlertStatus defines the price alert lifecycle.
type PriceAlertStatus string

const (
	AlertActive    PriceAlertStatus = "active"
	AlertTriggered PriceAlertStatus = "triggered"
	AlertCancelled PriceAlertStatus = "cancelled"
)

// ParsePriceAlertStatus validates a stored alert status.
func ParsePriceAlertStatus(raw string) (PriceAlertStatus, error) {
	switch PriceAlertStatus(raw) {
	case AlertActive, AlertTriggered, AlertCancelled:
		return PriceAlertStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAlertStatus, raw)
}

// String returns the raw status.
func (status PriceAlertStatus) String() string { return string(status) }

// PriceAlert watches a charter price on behalf of a customer.
type PriceAlert struct {
	ID              PriceAlertID
	CharterID       CharterID
	CustomerID      CustomerID
	TargetPrice     PriceCents
	PriceAtCreation PriceCents
	Status          PriceAlertStatus
	LastSeenPrice   PriceCents
	TriggerCount    int
	LastTriggeredAt time.Time
	CreatedAt       time.Time
}

// PriceAlertUpdate replaces the mutable fields of an alert during a transition.
type PriceAlertUpdate struct {
	Status          PriceAlertStatus
	LastSeenPrice   PriceCents
	TriggerCount    int
	LastTriggeredAt time.Time
}

// PaymentOutcome is the terminal result reported by the payment processor.
type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "success"
	PaymentFailed    PaymentOutcome = "failure"
	PaymentTimedOut  PaymentOutcome = "timeout"
)

// ParsePaymentOutcome validates a callback outcome.
func ParsePaymentOutcome(raw string) (PaymentOutcome, error) {
	switch PaymentOutcome(strings.ToLower(strings.TrimSpace(raw))) {
	case PaymentSucceeded:
		return PaymentSucceeded, nil
	case PaymentFailed:
		return PaymentFailed, nil
	case PaymentTimedOut:
		return PaymentTimedOut, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentOutcome, raw)
}

// PaymentCallback is the single terminal event the processor delivers per booking.
type PaymentCallback struct {
	BookingID  BookingID
	Outcome    PaymentOutcome
	PaymentRef string
}

// PaymentSessionRequest asks the processor to start collecting a payment.
type PaymentSessionRequest struct {
	BookingID  BookingID
	CustomerID CustomerID
	CharterID  CharterID
	Amount     PriceCents
	ExpiresAt  time.Time
}

// PaymentSession is the processor's handle for a pending payment.
type PaymentSession struct {
	SessionID   string
	RedirectURL string
}

// RefundRequest asks the processor to return a charge it correlated with a booking.
type RefundRequest struct {
	BookingID  BookingID
	PaymentRef string
	Amount     PriceCents
	Reason     string
}

// NotificationKind names the event a notification announces.
type NotificationKind string

const (
	NotificationWaitlistOffer NotificationKind = "waitlist.promoted"
	NotificationPriceDrop     NotificationKind = "price_alert.triggered"
)

// Notification is a fire-and-forget message for the delivery collaborator.
type Notification struct {
	Kind        NotificationKind
	CustomerID  CustomerID
	CharterID   CharterID
	Date        SlotDate
	ReferenceID string
	Price       PriceCents
	Contact     ContactInfo
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
