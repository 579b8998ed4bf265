package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolationCode   = "23505"
	mysqlDuplicateEntryCode = 1062
	sqliteConstraintCode    = 19
	errorOperationStore     = "store"
	errorSubjectSlot        = "calendar_slot"
	errorSubjectBooking     = "booking"
	errorSubjectCharter     = "charter"
	errorSubjectReferral    = "referral_code"
	errorSubjectRedemption  = "referral_redemption"
	errorSubjectWaitlist    = "waitlist_entry"
	errorSubjectPriceAlert  = "price_alert"
	errorCodeClaim          = "claim"
	errorCodeCreate         = "create"
	errorCodeDelete         = "delete"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeRelease        = "release"
	errorCodeFinalize       = "finalize"
	errorCodeExpire         = "expire"
	errorCodeBlock          = "block"
	errorCodeCount          = "count"
	errorCodeUpdate         = "update"
	errorCodeUpdateStatus   = "update_status"
	errorCodeUpsert         = "upsert"
	defaultContactJSON      = "{}"
)

// Store implements the reservation persistence interfaces using GORM.
type Store struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db, nowFn: func() time.Time { return time.Now().UTC() }}
}

// WithReferralTx executes fn within a transaction.
func (store *Store) WithReferralTx(ctx context.Context, fn func(ctx context.Context, txStore reservation.ReferralStore) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, nowFn: store.nowFn})
	})
}

// WithWaitlistTx executes fn within a transaction.
func (store *Store) WithWaitlistTx(ctx context.Context, fn func(ctx context.Context, txStore reservation.WaitlistStore) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, nowFn: store.nowFn})
	})
}

func (store *Store) now() time.Time {
	return store.nowFn().UTC()
}

func wrapStoreError(subject string, code string, err error) error {
	return reservation.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntryCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

func timePointer(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func timeOrZero(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return value.UTC()
}

func stringPointer(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
