package reservation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

type slotKey struct {
	captain string
	date    string
}

type memoryStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	slots       map[slotKey]CalendarEntry
	bookings    map[BookingID]Booking
	referrals   map[ReferralCode]ReferralTerms
	redemptions []ReferralRedemption
	waitlist    map[WaitlistEntryID]WaitlistEntry
	alerts      map[PriceAlertID]PriceAlert
	charters    map[CharterID]Charter

	getCharterErr   error
	tryClaimErr     error
	createBookErr   error
	updateAlertErrs map[PriceAlertID]error
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	return &memoryStore{
		slots:           make(map[slotKey]CalendarEntry),
		bookings:        make(map[BookingID]Booking),
		referrals:       make(map[ReferralCode]ReferralTerms),
		waitlist:        make(map[WaitlistEntryID]WaitlistEntry),
		alerts:          make(map[PriceAlertID]PriceAlert),
		charters:        make(map[CharterID]Charter),
		updateAlertErrs: make(map[PriceAlertID]error),
	}
}

func keyFor(captainID CaptainID, date SlotDate) slotKey {
	return slotKey{captain: captainID.String(), date: date.String()}
}

func (store *memoryStore) Get(_ context.Context, captainID CaptainID, date SlotDate) (CalendarEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	entry, ok := store.slots[keyFor(captainID, date)]
	if !ok {
		return AvailableEntry(captainID, date), nil
	}
	return entry, nil
}

func (store *memoryStore) ListRange(_ context.Context, captainID CaptainID, dateRange DateRange) ([]CalendarEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	entries := []CalendarEntry{}
	for _, date := range dateRange.Dates() {
		if entry, ok := store.slots[keyFor(captainID, date)]; ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (store *memoryStore) TryClaim(_ context.Context, captainID CaptainID, date SlotDate, bookingID BookingID, holdExpiresAt time.Time) (ClaimOutcome, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.tryClaimErr != nil {
		return ClaimConflict, store.tryClaimErr
	}
	key := keyFor(captainID, date)
	if entry, ok := store.slots[key]; ok && entry.Status != SlotAvailable {
		return ClaimConflict, nil
	}
	store.slots[key] = CalendarEntry{
		CaptainID:       captainID,
		Date:            date,
		Status:          SlotPendingHold,
		HolderBookingID: bookingID,
		HoldExpiresAt:   holdExpiresAt,
	}
	return ClaimClaimed, nil
}

func (store *memoryStore) Release(_ context.Context, captainID CaptainID, date SlotDate, bookingID BookingID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	key := keyFor(captainID, date)
	entry, ok := store.slots[key]
	if !ok || entry.HolderBookingID != bookingID || (entry.Status != SlotPendingHold && entry.Status != SlotBooked) {
		return ErrSlotNotHeld
	}
	store.slots[key] = AvailableEntry(captainID, date)
	return nil
}

func (store *memoryStore) Finalize(_ context.Context, captainID CaptainID, date SlotDate, bookingID BookingID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	key := keyFor(captainID, date)
	entry, ok := store.slots[key]
	if !ok || entry.HolderBookingID != bookingID || entry.Status != SlotPendingHold {
		return ErrSlotNotHeld
	}
	entry.Status = SlotBooked
	entry.HoldExpiresAt = time.Time{}
	store.slots[key] = entry
	return nil
}

func (store *memoryStore) ExpireStaleHolds(_ context.Context, now time.Time) ([]ReleasedSlot, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	released := []ReleasedSlot{}
	for key, entry := range store.slots {
		if entry.Status == SlotPendingHold && !entry.HoldExpiresAt.After(now) {
			released = append(released, ReleasedSlot{CaptainID: entry.CaptainID, Date: entry.Date, BookingID: entry.HolderBookingID})
			store.slots[key] = AvailableEntry(entry.CaptainID, entry.Date)
		}
	}
	return released, nil
}

func (store *memoryStore) SetBlocked(_ context.Context, captainID CaptainID, date SlotDate, blocked bool) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	key := keyFor(captainID, date)
	entry, ok := store.slots[key]
	if !ok {
		entry = AvailableEntry(captainID, date)
	}
	switch {
	case blocked && entry.Status == SlotAvailable:
		entry.Status = SlotBlocked
	case !blocked && entry.Status == SlotBlocked:
		entry.Status = SlotAvailable
	default:
		return ErrSlotNotBlockable
	}
	store.slots[key] = entry
	return nil
}

func (store *memoryStore) CreateBooking(_ context.Context, booking Booking) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.createBookErr != nil {
		return store.createBookErr
	}
	store.bookings[booking.ID] = booking
	return nil
}

func (store *memoryStore) GetBooking(_ context.Context, bookingID BookingID) (Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	booking, ok := store.bookings[bookingID]
	if !ok {
		return Booking{}, ErrUnknownBooking
	}
	return booking, nil
}

func (store *memoryStore) UpdateBookingStatus(_ context.Context, bookingID BookingID, from BookingStatus, to BookingStatus, update BookingUpdate) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	booking, ok := store.bookings[bookingID]
	if !ok {
		return ErrUnknownBooking
	}
	if booking.Status != from {
		return ErrBookingClosed
	}
	booking.Status = to
	if update.PaymentRef != "" {
		booking.PaymentRef = update.PaymentRef
	}
	if update.Reason != "" {
		booking.StatusReason = update.Reason
	}
	if to == BookingConfirmed {
		booking.ConfirmedAt = update.At
	}
	booking.UpdatedAt = update.At
	store.bookings[bookingID] = booking
	return nil
}

func (store *memoryStore) MarkRefundRequested(_ context.Context, bookingID BookingID, paymentRef string, at time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	booking, ok := store.bookings[bookingID]
	if !ok {
		return ErrUnknownBooking
	}
	if !booking.RefundRequestedAt.IsZero() {
		return nil
	}
	booking.RefundRequestedAt = at
	if paymentRef != "" {
		booking.PaymentRef = paymentRef
	}
	booking.UpdatedAt = at
	store.bookings[bookingID] = booking
	return nil
}

func (store *memoryStore) SetPaymentSession(_ context.Context, bookingID BookingID, sessionID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	booking, ok := store.bookings[bookingID]
	if !ok {
		return ErrUnknownBooking
	}
	booking.PaymentSessionID = sessionID
	store.bookings[bookingID] = booking
	return nil
}

func (store *memoryStore) WithReferralTx(ctx context.Context, fn func(ctx context.Context, txStore ReferralStore) error) error {
	store.txMu.Lock()
	defer store.txMu.Unlock()
	return fn(ctx, store)
}

func (store *memoryStore) GetReferralTerms(_ context.Context, code ReferralCode) (ReferralTerms, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	terms, ok := store.referrals[code]
	if !ok {
		return ReferralTerms{}, fmt.Errorf("%w: unknown code", ErrInvalidReferral)
	}
	return terms, nil
}

func (store *memoryStore) PutReferralTerms(_ context.Context, terms ReferralTerms) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.referrals[terms.Code] = terms
	return nil
}

func (store *memoryStore) CountRedemptions(_ context.Context, code ReferralCode, customerID CustomerID) (RedemptionCounts, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	counts := RedemptionCounts{}
	for _, redemption := range store.redemptions {
		if redemption.Code != code {
			continue
		}
		counts.Total++
		if redemption.CustomerID == customerID {
			counts.ByCustomer++
		}
	}
	return counts, nil
}

func (store *memoryStore) FindRedemption(_ context.Context, code ReferralCode, bookingID BookingID) (ReferralRedemption, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, redemption := range store.redemptions {
		if redemption.Code == code && redemption.BookingID == bookingID {
			return redemption, true, nil
		}
	}
	return ReferralRedemption{}, false, nil
}

func (store *memoryStore) InsertRedemption(_ context.Context, redemption ReferralRedemption) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, existing := range store.redemptions {
		if existing.Code == redemption.Code && existing.BookingID == redemption.BookingID {
			return nil
		}
	}
	store.redemptions = append(store.redemptions, redemption)
	return nil
}

func (store *memoryStore) ConfirmRedemption(_ context.Context, code ReferralCode, bookingID BookingID, at time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	for index, redemption := range store.redemptions {
		if redemption.Code == code && redemption.BookingID == bookingID && redemption.Status == RedemptionPending {
			store.redemptions[index].Status = RedemptionRedeemed
			store.redemptions[index].RedeemedAt = at
		}
	}
	return nil
}

func (store *memoryStore) DeletePendingRedemption(_ context.Context, code ReferralCode, bookingID BookingID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	kept := store.redemptions[:0]
	for _, redemption := range store.redemptions {
		if redemption.Code == code && redemption.BookingID == bookingID && redemption.Status == RedemptionPending {
			continue
		}
		kept = append(kept, redemption)
	}
	store.redemptions = kept
	return nil
}

func (store *memoryStore) WithWaitlistTx(ctx context.Context, fn func(ctx context.Context, txStore WaitlistStore) error) error {
	store.txMu.Lock()
	defer store.txMu.Unlock()
	return fn(ctx, store)
}

func (store *memoryStore) CreateWaitlistEntry(_ context.Context, entry WaitlistEntry) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.waitlist[entry.ID] = entry
	return nil
}

func (store *memoryStore) GetWaitlistEntry(_ context.Context, entryID WaitlistEntryID) (WaitlistEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	entry, ok := store.waitlist[entryID]
	if !ok {
		return WaitlistEntry{}, ErrUnknownWaitlistEntry
	}
	return entry, nil
}

func (store *memoryStore) FindLiveWaitlistEntry(_ context.Context, charterID CharterID, date SlotDate, customerID CustomerID) (WaitlistEntry, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, entry := range store.waitlist {
		if entry.CharterID == charterID && entry.Date == date && entry.CustomerID == customerID && entry.Status.Live() {
			return entry, true, nil
		}
	}
	return WaitlistEntry{}, false, nil
}

func (store *memoryStore) ListWaitlist(_ context.Context, charterID CharterID, date SlotDate, status WaitlistStatus) ([]WaitlistEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	entries := []WaitlistEntry{}
	for _, entry := range store.waitlist {
		if entry.CharterID == charterID && entry.Date == date && entry.Status == status {
			entries = append(entries, entry)
		}
	}
	sortWaitlist(entries)
	return entries, nil
}

func (store *memoryStore) UpdateWaitlistEntry(_ context.Context, entryID WaitlistEntryID, from WaitlistStatus, update WaitlistUpdate) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	entry, ok := store.waitlist[entryID]
	if !ok {
		return ErrUnknownWaitlistEntry
	}
	if entry.Status != from {
		return ErrWaitlistEntryClosed
	}
	entry.Status = update.Status
	entry.OfferExpiresAt = update.OfferExpiresAt
	if !update.BookingID.IsZero() {
		entry.BookingID = update.BookingID
	}
	store.waitlist[entryID] = entry
	return nil
}

func (store *memoryStore) ListExpiredOffers(_ context.Context, now time.Time) ([]WaitlistEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	entries := []WaitlistEntry{}
	for _, entry := range store.waitlist {
		if entry.Status == WaitlistNotified && !entry.OfferExpiresAt.After(now) {
			entries = append(entries, entry)
		}
	}
	sortWaitlist(entries)
	return entries, nil
}

func (store *memoryStore) CreatePriceAlert(_ context.Context, alert PriceAlert) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.alerts[alert.ID] = alert
	return nil
}

func (store *memoryStore) GetPriceAlert(_ context.Context, alertID PriceAlertID) (PriceAlert, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	alert, ok := store.alerts[alertID]
	if !ok {
		return PriceAlert{}, ErrUnknownPriceAlert
	}
	return alert, nil
}

func (store *memoryStore) ListWatchedPriceAlerts(_ context.Context) ([]PriceAlert, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	alerts := []PriceAlert{}
	for _, alert := range store.alerts {
		if alert.Status != AlertCancelled {
			alerts = append(alerts, alert)
		}
	}
	sort.Slice(alerts, func(left, right int) bool { return alerts[left].ID.String() < alerts[right].ID.String() })
	return alerts, nil
}

func (store *memoryStore) UpdatePriceAlert(_ context.Context, alertID PriceAlertID, from PriceAlertStatus, update PriceAlertUpdate) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if err := store.updateAlertErrs[alertID]; err != nil {
		return err
	}
	alert, ok := store.alerts[alertID]
	if !ok {
		return ErrUnknownPriceAlert
	}
	if alert.Status != from {
		return ErrPriceAlertClosed
	}
	alert.Status = update.Status
	alert.LastSeenPrice = update.LastSeenPrice
	alert.TriggerCount = update.TriggerCount
	alert.LastTriggeredAt = update.LastTriggeredAt
	store.alerts[alertID] = alert
	return nil
}

func (store *memoryStore) GetCharter(_ context.Context, charterID CharterID) (Charter, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.getCharterErr != nil {
		return Charter{}, store.getCharterErr
	}
	charter, ok := store.charters[charterID]
	if !ok {
		return Charter{}, ErrUnknownCharter
	}
	return charter, nil
}

func (store *memoryStore) ListChartersByCaptain(_ context.Context, captainID CaptainID) ([]Charter, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	charters := []Charter{}
	for _, charter := range store.charters {
		if charter.CaptainID == captainID {
			charters = append(charters, charter)
		}
	}
	sort.Slice(charters, func(left, right int) bool {
		return charters[left].ID.String() < charters[right].ID.String()
	})
	return charters, nil
}

func (store *memoryStore) PutCharter(_ context.Context, charter Charter) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.charters[charter.ID] = charter
	return nil
}

func (store *memoryStore) slot(test *testing.T, captainID CaptainID, date SlotDate) CalendarEntry {
	test.Helper()
	entry, err := store.Get(context.Background(), captainID, date)
	if err != nil {
		test.Fatalf("get slot: %v", err)
	}
	return entry
}

func (store *memoryStore) mustBooking(test *testing.T, bookingID BookingID) Booking {
	test.Helper()
	booking, err := store.GetBooking(context.Background(), bookingID)
	if err != nil {
		test.Fatalf("get booking %s: %v", bookingID, err)
	}
	return booking
}

func (store *memoryStore) mustEntry(test *testing.T, entryID WaitlistEntryID) WaitlistEntry {
	test.Helper()
	entry, err := store.GetWaitlistEntry(context.Background(), entryID)
	if err != nil {
		test.Fatalf("get waitlist entry %s: %v", entryID, err)
	}
	return entry
}

func (store *memoryStore) countWaitlist(charterID CharterID, date SlotDate, status WaitlistStatus) int {
	entries, _ := store.ListWaitlist(context.Background(), charterID, date, status)
	return len(entries)
}

func (store *memoryStore) redemptionCount() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.redemptions)
}

func (store *memoryStore) redemptionsWithStatus(status RedemptionStatus) int {
	store.mu.Lock()
	defer store.mu.Unlock()
	count := 0
	for _, redemption := range store.redemptions {
		if redemption.Status == status {
			count++
		}
	}
	return count
}

func sortWaitlist(entries []WaitlistEntry) {
	sort.Slice(entries, func(left, right int) bool {
		if entries[left].JoinedAt.Equal(entries[right].JoinedAt) {
			return entries[left].ID.String() < entries[right].ID.String()
		}
		return entries[left].JoinedAt.Before(entries[right].JoinedAt)
	})
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)}
}

func (clock *manualClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *manualClock) Advance(delta time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(delta)
}

type sequenceIDs struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (ids *sequenceIDs) New() string {
	ids.mu.Lock()
	defer ids.mu.Unlock()
	ids.next++
	return fmt.Sprintf("%s-%04d", ids.prefix, ids.next)
}

type stubGateway struct {
	mu              sync.Mutex
	sessionFailures int
	sessionErr      error
	sessionCalls    int
	refundFailures  int
	refunds         []RefundRequest
}

func (gateway *stubGateway) CreateSession(_ context.Context, request PaymentSessionRequest) (PaymentSession, error) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.sessionCalls++
	if gateway.sessionErr != nil {
		return PaymentSession{}, gateway.sessionErr
	}
	if gateway.sessionFailures > 0 {
		gateway.sessionFailures--
		return PaymentSession{}, fmt.Errorf("%w: processor returned 503", ErrUpstreamUnavailable)
	}
	return PaymentSession{
		SessionID:   "sess-" + request.BookingID.String(),
		RedirectURL: "https://pay.example.test/" + request.BookingID.String(),
	}, nil
}

func (gateway *stubGateway) RequestRefund(_ context.Context, request RefundRequest) error {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	if gateway.refundFailures > 0 {
		gateway.refundFailures--
		return fmt.Errorf("%w: processor returned 503", ErrUpstreamUnavailable)
	}
	gateway.refunds = append(gateway.refunds, request)
	return nil
}

func (gateway *stubGateway) calls() int {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	return gateway.sessionCalls
}

func (gateway *stubGateway) refundCount() int {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	return len(gateway.refunds)
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
	err           error
}

func (notifier *recordingNotifier) Notify(_ context.Context, notification Notification) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.notifications = append(notifier.notifications, notification)
	return notifier.err
}

func (notifier *recordingNotifier) sent(kind NotificationKind) []Notification {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	matching := []Notification{}
	for _, notification := range notifier.notifications {
		if notification.Kind == kind {
			matching = append(matching, notification)
		}
	}
	return matching
}

type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) operations(name string) []OperationLog {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	matching := []OperationLog{}
	for _, entry := range logger.entries {
		if entry.Operation == name {
			matching = append(matching, entry)
		}
	}
	return matching
}

// engine bundles every component over one memory store.
type engine struct {
	store       *memoryStore
	clock       *manualClock
	gateway     *stubGateway
	notifier    *recordingNotifier
	logger      *recorderLogger
	guard       *ConflictGuard
	pricing     *PricingResolver
	waitlist    *WaitlistCoordinator
	alerts      *PriceAlertWatcher
	coordinator *Coordinator
	charter     Charter
}

const testHoldTTL = 15 * time.Minute

func newEngine(test *testing.T) *engine {
	test.Helper()
	store := newMemoryStore(test)
	clock := newManualClock()
	gateway := &stubGateway{}
	notifier := &recordingNotifier{}
	logger := &recorderLogger{}
	ids := &sequenceIDs{prefix: "id"}
	opts := []Option{WithClock(clock.Now), WithIDGenerator(ids.New), WithOperationLogger(logger)}

	charter := Charter{
		ID:        mustCharterID(test, "charter-blue"),
		CaptainID: mustCaptainID(test, "captain-ahab"),
		Name:      "Blue Water Half Day",
		BasePrice: 50000,
	}
	store.charters[charter.ID] = charter

	guard, err := NewConflictGuard(store, testHoldTTL, opts...)
	if err != nil {
		test.Fatalf("guard: %v", err)
	}
	pricing, err := NewPricingResolver(store, opts...)
	if err != nil {
		test.Fatalf("pricing: %v", err)
	}
	waitlist, err := NewWaitlistCoordinator(WaitlistConfig{
		Store:       store,
		Catalog:     store,
		Guard:       guard,
		Notifier:    notifier,
		OfferWindow: 30 * time.Minute,
	}, opts...)
	if err != nil {
		test.Fatalf("waitlist: %v", err)
	}
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Guard:           guard,
		Calendar:        store,
		Bookings:        store,
		Pricing:         pricing,
		Catalog:         store,
		Payments:        gateway,
		Waitlist:        waitlist,
		PaymentAttempts: 3,
	}, opts...)
	if err != nil {
		test.Fatalf("coordinator: %v", err)
	}
	waitlist.BindBooker(coordinator)
	alerts, err := NewPriceAlertWatcher(store, store, notifier, opts...)
	if err != nil {
		test.Fatalf("alerts: %v", err)
	}
	return &engine{
		store:       store,
		clock:       clock,
		gateway:     gateway,
		notifier:    notifier,
		logger:      logger,
		guard:       guard,
		pricing:     pricing,
		waitlist:    waitlist,
		alerts:      alerts,
		coordinator: coordinator,
		charter:     charter,
	}
}

func (env *engine) book(test *testing.T, customer string, date SlotDate, code string) BookingAttempt {
	test.Helper()
	attempt, err := env.coordinator.StartBooking(context.Background(), env.request(test, customer, date, code))
	if err != nil {
		test.Fatalf("start booking for %s: %v", customer, err)
	}
	return attempt
}

func (env *engine) request(test *testing.T, customer string, date SlotDate, code string) BookingRequest {
	test.Helper()
	request := BookingRequest{
		CharterID:  env.charter.ID,
		CustomerID: mustCustomerID(test, customer),
		Date:       date,
	}
	if code != "" {
		request.ReferralCode = mustReferralCode(test, code)
	}
	return request
}

func (env *engine) callback(test *testing.T, bookingID BookingID, outcome PaymentOutcome, paymentRef string) Booking {
	test.Helper()
	booking, err := env.coordinator.HandlePaymentCallback(context.Background(), PaymentCallback{
		BookingID:  bookingID,
		Outcome:    outcome,
		PaymentRef: paymentRef,
	})
	if err != nil {
		test.Fatalf("payment callback %s: %v", outcome, err)
	}
	return booking
}

func (env *engine) join(test *testing.T, customer string, date SlotDate) WaitlistEntry {
	test.Helper()
	env.clock.Advance(time.Second)
	entry, err := env.waitlist.Join(context.Background(), env.charter.ID, date, mustCustomerID(test, customer), 2, ContactInfo{Email: customer + "@example.test"})
	if err != nil {
		test.Fatalf("join waitlist for %s: %v", customer, err)
	}
	return entry
}

func mustCaptainID(test *testing.T, raw string) CaptainID {
	test.Helper()
	id, err := NewCaptainID(raw)
	if err != nil {
		test.Fatalf("captain id: %v", err)
	}
	return id
}

func mustCharterID(test *testing.T, raw string) CharterID {
	test.Helper()
	id, err := NewCharterID(raw)
	if err != nil {
		test.Fatalf("charter id: %v", err)
	}
	return id
}

func mustCustomerID(test *testing.T, raw string) CustomerID {
	test.Helper()
	id, err := NewCustomerID(raw)
	if err != nil {
		test.Fatalf("customer id: %v", err)
	}
	return id
}

func mustBookingID(test *testing.T, raw string) BookingID {
	test.Helper()
	id, err := NewBookingID(raw)
	if err != nil {
		test.Fatalf("booking id: %v", err)
	}
	return id
}

func mustReferralCode(test *testing.T, raw string) ReferralCode {
	test.Helper()
	code, err := NewReferralCode(raw)
	if err != nil {
		test.Fatalf("referral code: %v", err)
	}
	return code
}

func mustSlotDate(test *testing.T, raw string) SlotDate {
	test.Helper()
	date, err := NewSlotDate(raw)
	if err != nil {
		test.Fatalf("slot date: %v", err)
	}
	return date
}
