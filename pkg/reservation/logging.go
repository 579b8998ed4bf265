package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Option configures engine components.
type Option func(*options)

type options struct {
	logger OperationLogger
	nowFn  func() time.Time
	newID  func() string
}

// OperationLogger records domain-level events emitted by engine operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing engine operation.
type OperationLog struct {
	Operation       string
	CaptainID       CaptainID
	CharterID       CharterID
	CustomerID      CustomerID
	BookingID       BookingID
	WaitlistEntryID WaitlistEntryID
	PriceAlertID    PriceAlertID
	Date            SlotDate
	Amount          PriceCents
	Detail          string
	Status          string
	Error           error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithClock overrides the wall clock used for holds, offers and timestamps.
func WithClock(now func() time.Time) Option {
	return func(opts *options) {
		if now != nil {
			opts.nowFn = now
		}
	}
}

// WithIDGenerator overrides how booking, waitlist and alert identifiers are minted.
func WithIDGenerator(newID func() string) Option {
	return func(opts *options) {
		if newID != nil {
			opts.newID = newID
		}
	}
}

func buildOptions(list []Option) options {
	resolved := options{
		nowFn: func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, option := range list {
		if option != nil {
			option(&resolved)
		}
	}
	return resolved
}

func (opts options) logOperation(ctx context.Context, entry OperationLog) {
	if opts.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	opts.logger.LogOperation(ctx, entry)
}

func (opts options) now() time.Time {
	return opts.nowFn().UTC()
}
