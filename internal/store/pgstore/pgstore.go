package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore = "store"
	errorSubjectSlot    = "calendar_slot"
	errorSubjectSchema  = "schema"
	errorCodeBlock      = "block"
	errorCodeClaim      = "claim"
	errorCodeExpire     = "expire"
	errorCodeFinalize   = "finalize"
	errorCodeGet        = "get"
	errorCodeInvalid    = "invalid"
	errorCodeList       = "list"
	errorCodeMigrate    = "migrate"
	errorCodeRelease    = "release"

	sqlCreateCalendarSlots = `
		create table if not exists calendar_slots (
			captain_id varchar(128) not null,
			slot_date date not null,
			status varchar(16) not null,
			holder_booking_id varchar(128),
			hold_expires_at timestamptz,
			updated_at timestamptz not null default now(),
			primary key (captain_id, slot_date)
		);
		create index if not exists idx_calendar_status_expiry on calendar_slots (status, hold_expires_at)
	`

	sqlSelectSlot = `
		select status, coalesce(holder_booking_id,''), hold_expires_at
		from calendar_slots
		where captain_id = $1 and slot_date = $2::date
	`

	sqlListSlots = `
		select to_char(slot_date, 'YYYY-MM-DD'), status, coalesce(holder_booking_id,''), hold_expires_at
		from calendar_slots
		where captain_id = $1 and slot_date between $2::date and $3::date
		order by slot_date
	`

	sqlClaimSlot = `
		insert into calendar_slots(captain_id, slot_date, status, holder_booking_id, hold_expires_at, updated_at)
		values ($1, $2::date, 'pending_hold', $3, $4, now())
		on conflict (captain_id, slot_date) do update
		set status = 'pending_hold', holder_booking_id = excluded.holder_booking_id,
			hold_expires_at = excluded.hold_expires_at, updated_at = now()
		where calendar_slots.status = 'available'
	`

	sqlReleaseSlot = `
		update calendar_slots
		set status = 'available', holder_booking_id = null, hold_expires_at = null, updated_at = now()
		where captain_id = $1 and slot_date = $2::date and holder_booking_id = $3
		and status in ('pending_hold', 'booked')
	`

	sqlFinalizeSlot = `
		update calendar_slots
		set status = 'booked', hold_expires_at = null, updated_at = now()
		where captain_id = $1 and slot_date = $2::date and holder_booking_id = $3 and status = 'pending_hold'
	`

	sqlExpireStaleHolds = `
		with stale as (
			select captain_id, slot_date, holder_booking_id
			from calendar_slots
			where status = 'pending_hold' and hold_expires_at <= $1
			for update skip locked
		)
		update calendar_slots slots
		set status = 'available', holder_booking_id = null, hold_expires_at = null, updated_at = now()
		from stale
		where slots.captain_id = stale.captain_id and slots.slot_date = stale.slot_date
		and slots.status = 'pending_hold'
		returning slots.captain_id, to_char(slots.slot_date, 'YYYY-MM-DD'), stale.holder_booking_id
	`

	sqlBlockSlot = `
		insert into calendar_slots(captain_id, slot_date, status, updated_at)
		values ($1, $2::date, 'blocked', now())
		on conflict (captain_id, slot_date) do update
		set status = 'blocked', updated_at = now()
		where calendar_slots.status = 'available'
	`

	sqlUnblockSlot = `
		update calendar_slots
		set status = 'available', updated_at = now()
		where captain_id = $1 and slot_date = $2::date and status = 'blocked'
	`
)

// Store implements reservation.CalendarStore on a pgx pool. Every mutation is one
// conditional statement, so claims race safely across processes.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the calendar table when it is missing.
func (store *Store) EnsureSchema(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, sqlCreateCalendarSlots); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

func (store *Store) Get(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate) (reservation.CalendarEntry, error) {
	var (
		statusValue string
		holderValue string
		expiresAt   *time.Time
	)
	err := store.pool.QueryRow(ctx, sqlSelectSlot, captainID.String(), date.String()).Scan(&statusValue, &holderValue, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return reservation.AvailableEntry(captainID, date), nil
	}
	if err != nil {
		return reservation.CalendarEntry{}, wrapStoreError(errorSubjectSlot, errorCodeGet, err)
	}
	entry, err := buildEntry(captainID, date.String(), statusValue, holderValue, expiresAt)
	if err != nil {
		return reservation.CalendarEntry{}, wrapStoreError(errorSubjectSlot, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) ListRange(ctx context.Context, captainID reservation.CaptainID, dateRange reservation.DateRange) ([]reservation.CalendarEntry, error) {
	rows, err := store.pool.Query(ctx, sqlListSlots, captainID.String(), dateRange.From().String(), dateRange.To().String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectSlot, errorCodeList, err)
	}
	defer rows.Close()
	entries := make([]reservation.CalendarEntry, 0, 32)
	for rows.Next() {
		var (
			dateValue   string
			statusValue string
			holderValue string
			expiresAt   *time.Time
		)
		if err := rows.Scan(&dateValue, &statusValue, &holderValue, &expiresAt); err != nil {
			return nil, wrapStoreError(errorSubjectSlot, errorCodeList, err)
		}
		entry, err := buildEntry(captainID, dateValue, statusValue, holderValue, expiresAt)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSlot, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectSlot, errorCodeList, err)
	}
	return entries, nil
}

func (store *Store) TryClaim(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate, bookingID reservation.BookingID, holdExpiresAt time.Time) (reservation.ClaimOutcome, error) {
	tag, err := store.pool.Exec(ctx, sqlClaimSlot, captainID.String(), date.String(), bookingID.String(), holdExpiresAt.UTC())
	if err != nil {
		return reservation.ClaimConflict, wrapStoreError(errorSubjectSlot, errorCodeClaim, err)
	}
	if tag.RowsAffected() == 1 {
		return reservation.ClaimClaimed, nil
	}
	return reservation.ClaimConflict, nil
}

func (store *Store) Release(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate, bookingID reservation.BookingID) error {
	tag, err := store.pool.Exec(ctx, sqlReleaseSlot, captainID.String(), date.String(), bookingID.String())
	if err != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeRelease, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectSlot, errorCodeRelease, reservation.ErrSlotNotHeld)
	}
	return nil
}

func (store *Store) Finalize(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate, bookingID reservation.BookingID) error {
	tag, err := store.pool.Exec(ctx, sqlFinalizeSlot, captainID.String(), date.String(), bookingID.String())
	if err != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeFinalize, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectSlot, errorCodeFinalize, reservation.ErrSlotNotHeld)
	}
	return nil
}

func (store *Store) ExpireStaleHolds(ctx context.Context, now time.Time) ([]reservation.ReleasedSlot, error) {
	rows, err := store.pool.Query(ctx, sqlExpireStaleHolds, now.UTC())
	if err != nil {
		return nil, wrapStoreError(errorSubjectSlot, errorCodeExpire, err)
	}
	defer rows.Close()
	released := make([]reservation.ReleasedSlot, 0, 8)
	for rows.Next() {
		var (
			captainValue string
			dateValue    string
			holderValue  *string
		)
		if err := rows.Scan(&captainValue, &dateValue, &holderValue); err != nil {
			return nil, wrapStoreError(errorSubjectSlot, errorCodeExpire, err)
		}
		slot, err := buildReleasedSlot(captainValue, dateValue, holderValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSlot, errorCodeInvalid, err)
		}
		released = append(released, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectSlot, errorCodeExpire, err)
	}
	return released, nil
}

func (store *Store) SetBlocked(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate, blocked bool) error {
	statement := sqlUnblockSlot
	if blocked {
		statement = sqlBlockSlot
	}
	tag, err := store.pool.Exec(ctx, statement, captainID.String(), date.String())
	if err != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeBlock, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectSlot, errorCodeBlock, reservation.ErrSlotNotBlockable)
	}
	return nil
}

func buildEntry(captainID reservation.CaptainID, dateValue string, statusValue string, holderValue string, expiresAt *time.Time) (reservation.CalendarEntry, error) {
	date, err := reservation.NewSlotDate(dateValue)
	if err != nil {
		return reservation.CalendarEntry{}, err
	}
	status, err := reservation.ParseSlotStatus(statusValue)
	if err != nil {
		return reservation.CalendarEntry{}, err
	}
	entry := reservation.CalendarEntry{CaptainID: captainID, Date: date, Status: status}
	if expiresAt != nil {
		entry.HoldExpiresAt = expiresAt.UTC()
	}
	if holderValue != "" {
		holder, err := reservation.NewBookingID(holderValue)
		if err != nil {
			return reservation.CalendarEntry{}, err
		}
		entry.HolderBookingID = holder
	}
	return entry, nil
}

func buildReleasedSlot(captainValue string, dateValue string, holderValue *string) (reservation.ReleasedSlot, error) {
	captainID, err := reservation.NewCaptainID(captainValue)
	if err != nil {
		return reservation.ReleasedSlot{}, err
	}
	date, err := reservation.NewSlotDate(dateValue)
	if err != nil {
		return reservation.ReleasedSlot{}, err
	}
	slot := reservation.ReleasedSlot{CaptainID: captainID, Date: date}
	if holderValue != nil && *holderValue != "" {
		bookingID, err := reservation.NewBookingID(*holderValue)
		if err != nil {
			return reservation.ReleasedSlot{}, err
		}
		slot.BookingID = bookingID
	}
	return slot, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return reservation.WrapError(errorOperationStore, subject, code, err)
}
