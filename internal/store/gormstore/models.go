package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CalendarSlot mirrors the calendar_slots table. A missing row means the slot is available.
type CalendarSlot struct {
	CaptainID       string     `gorm:"size:128;primaryKey"`
	SlotDate        string     `gorm:"size:10;primaryKey"`
	Status          string     `gorm:"size:16;not null;index:idx_calendar_status_expiry,priority:1"`
	HolderBookingID *string    `gorm:"size:128"`
	HoldExpiresAt   *time.Time `gorm:"index:idx_calendar_status_expiry,priority:2"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

func (CalendarSlot) TableName() string { return "calendar_slots" }

// Charter mirrors the charters table.
type Charter struct {
	CharterID      string    `gorm:"size:128;primaryKey"`
	CaptainID      string    `gorm:"size:128;not null;index"`
	Name           string    `gorm:"not null"`
	BasePriceCents int64     `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (Charter) TableName() string { return "charters" }

// Booking mirrors the bookings table.
type Booking struct {
	BookingID         string     `gorm:"size:128;primaryKey"`
	CharterID         string     `gorm:"size:128;not null;index"`
	CaptainID         string     `gorm:"size:128;not null;index:idx_bookings_captain_date,priority:1"`
	CustomerID        string     `gorm:"size:128;not null;index"`
	SlotDate          string     `gorm:"size:10;not null;index:idx_bookings_captain_date,priority:2"`
	Status            string     `gorm:"size:16;not null"`
	BasePriceCents    int64      `gorm:"not null"`
	DiscountCents     int64      `gorm:"not null"`
	FinalPriceCents   int64      `gorm:"not null"`
	ReferralCode      string     `gorm:"size:64"`
	PaymentSessionID  string     `gorm:"size:255"`
	PaymentRef        string     `gorm:"size:255"`
	StatusReason      string     `gorm:"size:64"`
	WaitlistEntryID   string     `gorm:"size:128"`
	CreatedAt         time.Time  `gorm:"not null"`
	UpdatedAt         time.Time  `gorm:"not null"`
	ConfirmedAt       *time.Time `gorm:"index"`
	RefundRequestedAt *time.Time
}

func (Booking) TableName() string { return "bookings" }

// ReferralCode mirrors the referral_codes table.
type ReferralCode struct {
	Code             string     `gorm:"size:64;primaryKey"`
	AmountOffCents   int64      `gorm:"not null"`
	PercentOffBps    int64      `gorm:"not null"`
	MaxDiscountCents int64      `gorm:"not null"`
	PerCustomerLimit int        `gorm:"not null"`
	MaxRedemptions   int        `gorm:"not null"`
	ExpiresAt        *time.Time `gorm:""`
	Active           bool       `gorm:"not null"`
	UpdatedAt        time.Time  `gorm:"not null"`
}

func (ReferralCode) TableName() string { return "referral_codes" }

// ReferralRedemption mirrors the referral_redemptions table.
type ReferralRedemption struct {
	RedemptionID string    `gorm:"size:36;primaryKey"`
	Code         string    `gorm:"size:64;not null;index:uniq_redemption_booking,unique,priority:1;index:idx_redemption_customer,priority:1"`
	BookingID    string    `gorm:"size:128;not null;index:uniq_redemption_booking,unique,priority:2"`
	CustomerID   string    `gorm:"size:128;not null;index:idx_redemption_customer,priority:2"`
	Status       string    `gorm:"size:16;not null;default:redeemed"`
	RedeemedAt   time.Time `gorm:"not null"`
}

func (ReferralRedemption) TableName() string { return "referral_redemptions" }

func (redemption *ReferralRedemption) BeforeCreate(tx *gorm.DB) error {
	if redemption.RedemptionID == "" {
		redemption.RedemptionID = uuid.NewString()
	}
	return nil
}

// WaitlistEntry mirrors the waitlist_entries table.
type WaitlistEntry struct {
	EntryID        string         `gorm:"size:128;primaryKey"`
	CharterID      string         `gorm:"size:128;not null;index:idx_waitlist_queue,priority:1"`
	SlotDate       string         `gorm:"size:10;not null;index:idx_waitlist_queue,priority:2"`
	Status         string         `gorm:"size:16;not null;index:idx_waitlist_queue,priority:3"`
	JoinedAt       time.Time      `gorm:"not null;index:idx_waitlist_queue,priority:4"`
	CustomerID     string         `gorm:"size:128;not null;index"`
	PartySize      int            `gorm:"not null"`
	Contact        datatypes.JSON `gorm:"not null"`
	OfferExpiresAt *time.Time     `gorm:"index"`
	BookingID      *string        `gorm:"size:128"`
}

func (WaitlistEntry) TableName() string { return "waitlist_entries" }

// PriceAlert mirrors the price_alerts table.
type PriceAlert struct {
	AlertID              string     `gorm:"size:128;primaryKey"`
	CharterID            string     `gorm:"size:128;not null;index"`
	CustomerID           string     `gorm:"size:128;not null;index"`
	TargetPriceCents     int64      `gorm:"not null"`
	PriceAtCreationCents int64      `gorm:"not null"`
	Status               string     `gorm:"size:16;not null;index"`
	LastSeenPriceCents   int64      `gorm:"not null"`
	TriggerCount         int        `gorm:"not null"`
	LastTriggeredAt      *time.Time `gorm:""`
	CreatedAt            time.Time  `gorm:"not null"`
	UpdatedAt            time.Time  `gorm:"not null"`
}

func (PriceAlert) TableName() string { return "price_alerts" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&CalendarSlot{},
		&Charter{},
		&Booking{},
		&ReferralCode{},
		&ReferralRedemption{},
		&WaitlistEntry{},
		&PriceAlert{},
	}
}
