// Package redisstore keeps the calendar in Redis. Each slot is a hash, mutated only by
// Lua scripts so every transition is atomic on the server.
//
// Every key carries the "{prefix}" hash tag, so the whole calendar lives in one cluster slot.
// The expiry script reads slot hashes named by the holds set rather than by KEYS; that is only
// valid because they share the tag. One calendar is therefore served by one node.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix    = "charterbook"
	errorOperationStore = "store"
	errorSubjectSlot    = "calendar_slot"
	errorCodeBlock      = "block"
	errorCodeClaim      = "claim"
	errorCodeExpire     = "expire"
	errorCodeFinalize   = "finalize"
	errorCodeGet        = "get"
	errorCodeInvalid    = "invalid"
	errorCodeList       = "list"
	errorCodeRelease    = "release"
	fieldStatus         = "status"
	fieldHolder         = "holder"
	fieldExpiresMillis  = "expires_ms"
	slotDateLength      = 10
)

var claimScript = redis.NewScript(`
	local status = redis.call('HGET', KEYS[1], 'status')
	if status and status ~= 'available' then
		return 0
	end
	redis.call('HSET', KEYS[1], 'status', 'pending_hold', 'holder', ARGV[1], 'expires_ms', ARGV[2])
	redis.call('ZADD', KEYS[2], 0, ARGV[3])
	redis.call('ZADD', KEYS[3], ARGV[2], KEYS[1])
	return 1
`)

var releaseScript = redis.NewScript(`
	local state = redis.call('HMGET', KEYS[1], 'status', 'holder')
	if state[2] ~= ARGV[1] or (state[1] ~= 'pending_hold' and state[1] ~= 'booked') then
		return 0
	end
	redis.call('HSET', KEYS[1], 'status', 'available')
	redis.call('HDEL', KEYS[1], 'holder', 'expires_ms')
	redis.call('ZREM', KEYS[2], KEYS[1])
	return 1
`)

var finalizeScript = redis.NewScript(`
	local state = redis.call('HMGET', KEYS[1], 'status', 'holder')
	if state[1] ~= 'pending_hold' or state[2] ~= ARGV[1] then
		return 0
	end
	redis.call('HSET', KEYS[1], 'status', 'booked')
	redis.call('HDEL', KEYS[1], 'expires_ms')
	redis.call('ZREM', KEYS[2], KEYS[1])
	return 1
`)

var expireScript = redis.NewScript(`
	local now_ms = tonumber(ARGV[1])
	local stale = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now_ms)
	local released = {}
	for _, slot in ipairs(stale) do
		local state = redis.call('HMGET', slot, 'status', 'holder', 'expires_ms')
		redis.call('ZREM', KEYS[1], slot)
		if state[1] == 'pending_hold' and tonumber(state[3]) and tonumber(state[3]) <= now_ms then
			redis.call('HSET', slot, 'status', 'available')
			redis.call('HDEL', slot, 'holder', 'expires_ms')
			table.insert(released, slot)
			table.insert(released, state[2] or '')
		end
	end
	return released
`)

var blockScript = redis.NewScript(`
	local status = redis.call('HGET', KEYS[1], 'status')
	if ARGV[1] == '1' then
		if status and status ~= 'available' then
			return 0
		end
		redis.call('HSET', KEYS[1], 'status', 'blocked')
		redis.call('ZADD', KEYS[2], 0, ARGV[2])
		return 1
	end
	if status ~= 'blocked' then
		return 0
	end
	redis.call('HSET', KEYS[1], 'status', 'available')
	return 1
`)

var hashTagBraces = strings.NewReplacer("{", "", "}", "")

// Store implements reservation.CalendarStore on Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix namespaces every key the store writes.
func WithKeyPrefix(prefix string) Option {
	return func(store *Store) {
		if trimmed := strings.TrimSpace(hashTagBraces.Replace(prefix)); trimmed != "" {
			store.prefix = trimmed
		}
	}
}

// New returns a Store using the given client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	store := &Store{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (store *Store) Get(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate) (reservation.CalendarEntry, error) {
	fields, err := store.client.HGetAll(ctx, store.slotKey(captainID, date)).Result()
	if err != nil {
		return reservation.CalendarEntry{}, wrapStoreError(errorCodeGet, err)
	}
	entry, err := buildEntry(captainID, date, fields)
	if err != nil {
		return reservation.CalendarEntry{}, wrapStoreError(errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) ListRange(ctx context.Context, captainID reservation.CaptainID, dateRange reservation.DateRange) ([]reservation.CalendarEntry, error) {
	members, err := store.client.ZRangeByLex(ctx, store.captainKey(captainID), &redis.ZRangeBy{
		Min: "[" + dateRange.From().String(),
		Max: "[" + dateRange.To().String(),
	}).Result()
	if err != nil {
		return nil, wrapStoreError(errorCodeList, err)
	}
	if len(members) == 0 {
		return []reservation.CalendarEntry{}, nil
	}
	pipeline := store.client.Pipeline()
	commands := make([]*redis.MapStringStringCmd, 0, len(members))
	dates := make([]reservation.SlotDate, 0, len(members))
	for _, member := range members {
		date, err := reservation.NewSlotDate(member)
		if err != nil {
			return nil, wrapStoreError(errorCodeInvalid, err)
		}
		dates = append(dates, date)
		commands = append(commands, pipeline.HGetAll(ctx, store.slotKey(captainID, date)))
	}
	if _, err := pipeline.Exec(ctx); err != nil {
		return nil, wrapStoreError(errorCodeList, err)
	}
	entries := make([]reservation.CalendarEntry, 0, len(commands))
	for index, command := range commands {
		fields, err := command.Result()
		if err != nil {
			return nil, wrapStoreError(errorCodeList, err)
		}
		if len(fields) == 0 {
			continue
		}
		entry, err := buildEntry(captainID, dates[index], fields)
		if err != nil {
			return nil, wrapStoreError(errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) TryClaim(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate, bookingID reservation.BookingID, holdExpiresAt time.Time) (reservation.ClaimOutcome, error) {
	keys := []string{store.slotKey(captainID, date), store.captainKey(captainID), store.holdsKey()}
	claimed, err := claimScript.Run(ctx, store.client, keys, bookingID.String(), holdExpiresAt.UTC().UnixMilli(), date.String()).Int()
	if err != nil {
		return reservation.ClaimConflict, wrapStoreError(errorCodeClaim, err)
	}
	if claimed == 1 {
		return reservation.ClaimClaimed, nil
	}
	return reservation.ClaimConflict, nil
}

func (store *Store) Release(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate, bookingID reservation.BookingID) error {
	keys := []string{store.slotKey(captainID, date), store.holdsKey()}
	released, err := releaseScript.Run(ctx, store.client, keys, bookingID.String()).Int()
	if err != nil {
		return wrapStoreError(errorCodeRelease, err)
	}
	if released == 0 {
		return wrapStoreError(errorCodeRelease, reservation.ErrSlotNotHeld)
	}
	return nil
}

func (store *Store) Finalize(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate, bookingID reservation.BookingID) error {
	keys := []string{store.slotKey(captainID, date), store.holdsKey()}
	finalized, err := finalizeScript.Run(ctx, store.client, keys, bookingID.String()).Int()
	if err != nil {
		return wrapStoreError(errorCodeFinalize, err)
	}
	if finalized == 0 {
		return wrapStoreError(errorCodeFinalize, reservation.ErrSlotNotHeld)
	}
	return nil
}

func (store *Store) ExpireStaleHolds(ctx context.Context, now time.Time) ([]reservation.ReleasedSlot, error) {
	values, err := expireScript.Run(ctx, store.client, []string{store.holdsKey()}, now.UTC().UnixMilli()).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, wrapStoreError(errorCodeExpire, err)
	}
	released := make([]reservation.ReleasedSlot, 0, len(values)/2)
	for index := 0; index+1 < len(values); index += 2 {
		slot, err := store.parseReleased(values[index], values[index+1])
		if err != nil {
			return released, wrapStoreError(errorCodeInvalid, err)
		}
		released = append(released, slot)
	}
	return released, nil
}

func (store *Store) SetBlocked(ctx context.Context, captainID reservation.CaptainID, date reservation.SlotDate, blocked bool) error {
	flag := "0"
	if blocked {
		flag = "1"
	}
	keys := []string{store.slotKey(captainID, date), store.captainKey(captainID)}
	changed, err := blockScript.Run(ctx, store.client, keys, flag, date.String()).Int()
	if err != nil {
		return wrapStoreError(errorCodeBlock, err)
	}
	if changed == 0 {
		return wrapStoreError(errorCodeBlock, reservation.ErrSlotNotBlockable)
	}
	return nil
}

func (store *Store) keyBase() string {
	return "{" + store.prefix + "}"
}

func (store *Store) slotKey(captainID reservation.CaptainID, date reservation.SlotDate) string {
	return store.keyBase() + ":slot:" + captainID.String() + ":" + date.String()
}

func (store *Store) captainKey(captainID reservation.CaptainID) string {
	return store.keyBase() + ":captain:" + captainID.String()
}

func (store *Store) holdsKey() string {
	return store.keyBase() + ":holds"
}

// parseReleased splits a slot key back into captain and date; the date is always the last ten characters.
func (store *Store) parseReleased(slotKey string, holder string) (reservation.ReleasedSlot, error) {
	rest := strings.TrimPrefix(slotKey, store.keyBase()+":slot:")
	if rest == slotKey || len(rest) < slotDateLength+2 {
		return reservation.ReleasedSlot{}, fmt.Errorf("unexpected slot key %q", slotKey)
	}
	captainID, err := reservation.NewCaptainID(rest[:len(rest)-slotDateLength-1])
	if err != nil {
		return reservation.ReleasedSlot{}, err
	}
	date, err := reservation.NewSlotDate(rest[len(rest)-slotDateLength:])
	if err != nil {
		return reservation.ReleasedSlot{}, err
	}
	slot := reservation.ReleasedSlot{CaptainID: captainID, Date: date}
	if holder != "" {
		bookingID, err := reservation.NewBookingID(holder)
		if err != nil {
			return reservation.ReleasedSlot{}, err
		}
		slot.BookingID = bookingID
	}
	return slot, nil
}

func buildEntry(captainID reservation.CaptainID, date reservation.SlotDate, fields map[string]string) (reservation.CalendarEntry, error) {
	if len(fields) == 0 {
		return reservation.AvailableEntry(captainID, date), nil
	}
	status, err := reservation.ParseSlotStatus(fields[fieldStatus])
	if err != nil {
		return reservation.CalendarEntry{}, err
	}
	entry := reservation.CalendarEntry{CaptainID: captainID, Date: date, Status: status}
	if holder := fields[fieldHolder]; holder != "" {
		bookingID, err := reservation.NewBookingID(holder)
		if err != nil {
			return reservation.CalendarEntry{}, err
		}
		entry.HolderBookingID = bookingID
	}
	if raw := fields[fieldExpiresMillis]; raw != "" {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return reservation.CalendarEntry{}, err
		}
		entry.HoldExpiresAt = time.UnixMilli(millis).UTC()
	}
	return entry, nil
}

func wrapStoreError(code string, err error) error {
	return reservation.WrapError(errorOperationStore, errorSubjectSlot, code, err)
}
