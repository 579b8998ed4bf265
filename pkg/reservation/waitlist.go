package reservation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// WaitlistCoordinator queues customers for taken dates and promotes them FIFO when a slot frees.
type WaitlistCoordinator struct {
	store       WaitlistStore
	catalog     CharterCatalog
	guard       *ConflictGuard
	notifier    Notifier
	offerWindow time.Duration

	bookerMu sync.RWMutex
	booker   BookingStarter

	stripes [waitlistLockStripes]sync.Mutex
	options
}

// WaitlistConfig lists the collaborators of a WaitlistCoordinator.
type WaitlistConfig struct {
	Store       WaitlistStore
	Catalog     CharterCatalog
	Guard       *ConflictGuard
	Notifier    Notifier
	OfferWindow time.Duration
}

// WaitlistResponse is the outcome of answering an offer.
type WaitlistResponse struct {
	Entry   WaitlistEntry
	Attempt *BookingAttempt
}

// NewWaitlistCoordinator wires a WaitlistCoordinator. The booking starter is bound later with BindBooker.
func NewWaitlistCoordinator(config WaitlistConfig, opts ...Option) (*WaitlistCoordinator, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("%w: waitlist store is nil", ErrInvalidServiceConfig)
	}
	if config.Catalog == nil {
		return nil, fmt.Errorf("%w: charter catalog is nil", ErrInvalidServiceConfig)
	}
	if config.Guard == nil {
		return nil, fmt.Errorf("%w: conflict guard is nil", ErrInvalidServiceConfig)
	}
	offerWindow := config.OfferWindow
	if offerWindow <= 0 {
		offerWindow = defaultOfferWindow
	}
	return &WaitlistCoordinator{
		store:       config.Store,
		catalog:     config.Catalog,
		guard:       config.Guard,
		notifier:    config.Notifier,
		offerWindow: offerWindow,
		options:     buildOptions(opts),
	}, nil
}

// BindBooker sets the collaborator that turns an accepted offer into a booking attempt.
func (waitlist *WaitlistCoordinator) BindBooker(booker BookingStarter) {
	waitlist.bookerMu.Lock()
	defer waitlist.bookerMu.Unlock()
	waitlist.booker = booker
}

// Join queues a customer for a (charter, date). A customer with a live entry gets that entry back.
func (waitlist *WaitlistCoordinator) Join(ctx context.Context, charterID CharterID, date SlotDate, customerID CustomerID, partySize int, contact ContactInfo) (WaitlistEntry, error) {
	if partySize < 1 {
		return WaitlistEntry{}, fmt.Errorf("%w: must be at least 1", ErrInvalidPartySize)
	}
	if _, err := waitlist.catalog.GetCharter(ctx, charterID); err != nil {
		return WaitlistEntry{}, err
	}
	entryID, err := NewWaitlistEntryID(waitlist.newID())
	if err != nil {
		return WaitlistEntry{}, err
	}

	lock := waitlist.lockFor(charterID, date)
	lock.Lock()
	defer lock.Unlock()

	var joined WaitlistEntry
	operationError := waitlist.store.WithWaitlistTx(ctx, func(ctx context.Context, txStore WaitlistStore) error {
		existing, found, err := txStore.FindLiveWaitlistEntry(ctx, charterID, date, customerID)
		if err != nil {
			return err
		}
		if found {
			joined = existing
			return nil
		}
		joined = WaitlistEntry{
			ID:         entryID,
			CharterID:  charterID,
			Date:       date,
			CustomerID: customerID,
			PartySize:  partySize,
			Contact:    contact,
			Status:     WaitlistWaiting,
			JoinedAt:   waitlist.now(),
		}
		return txStore.CreateWaitlistEntry(ctx, joined)
	})
	waitlist.logOperation(ctx, OperationLog{
		Operation:       operationWaitlistJoin,
		CharterID:       charterID,
		CustomerID:      customerID,
		WaitlistEntryID: joined.ID,
		Date:            date,
		Error:           operationError,
	})
	if operationError != nil {
		return WaitlistEntry{}, operationError
	}
	return joined, nil
}

// OnSlotFreed promotes the oldest waiting entry when the slot is available and nobody holds an offer.
func (waitlist *WaitlistCoordinator) OnSlotFreed(ctx context.Context, charterID CharterID, date SlotDate) error {
	lock := waitlist.lockFor(charterID, date)
	lock.Lock()
	promoted, found, err := waitlist.promoteLocked(ctx, charterID, date)
	lock.Unlock()
	if err != nil {
		return err
	}
	if found {
		waitlist.sendOffer(ctx, promoted)
	}
	return nil
}

// Respond answers an offer. Accepting starts a fresh booking attempt; declining hands the offer on.
func (waitlist *WaitlistCoordinator) Respond(ctx context.Context, entryID WaitlistEntryID, customerID CustomerID, accept bool) (WaitlistResponse, error) {
	entry, err := waitlist.store.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		return WaitlistResponse{}, err
	}
	if entry.CustomerID != customerID {
		return WaitlistResponse{}, WrapError(operationWaitlistReply, "waitlist_entry", "not_owner", ErrNotOwner)
	}
	if entry.Status != WaitlistNotified {
		return WaitlistResponse{}, WrapError(operationWaitlistReply, "waitlist_entry", "not_notified", ErrWaitlistEntryClosed)
	}
	if !waitlist.now().Before(entry.OfferExpiresAt) {
		if _, err := waitlist.closeOffer(ctx, entry); err != nil {
			return WaitlistResponse{}, err
		}
		return WaitlistResponse{}, WrapError(operationWaitlistReply, "waitlist_entry", "offer_expired", ErrWaitlistOfferExpired)
	}
	if !accept {
		closed, err := waitlist.closeOffer(ctx, entry)
		if err != nil {
			return WaitlistResponse{}, err
		}
		return WaitlistResponse{Entry: closed}, nil
	}
	return waitlist.accept(ctx, entry)
}

// ExpireOffers closes every offer whose window elapsed and promotes the next entry for each.
func (waitlist *WaitlistCoordinator) ExpireOffers(ctx context.Context) (int, error) {
	expired, err := waitlist.store.ListExpiredOffers(ctx, waitlist.now())
	if err != nil {
		return 0, err
	}
	closedCount := 0
	var firstErr error
	for _, entry := range expired {
		if _, err := waitlist.closeOffer(ctx, entry); err != nil {
			if errors.Is(err, ErrWaitlistEntryClosed) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		closedCount++
	}
	return closedCount, firstErr
}

// Leave removes a customer from the queue. Leaving while holding an offer hands it on.
func (waitlist *WaitlistCoordinator) Leave(ctx context.Context, entryID WaitlistEntryID, customerID CustomerID) error {
	entry, err := waitlist.store.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.CustomerID != customerID {
		return WrapError(operationWaitlistReply, "waitlist_entry", "not_owner", ErrNotOwner)
	}
	switch entry.Status {
	case WaitlistNotified:
		_, err := waitlist.closeOffer(ctx, entry)
		return err
	case WaitlistWaiting:
		lock := waitlist.lockFor(entry.CharterID, entry.Date)
		lock.Lock()
		defer lock.Unlock()
		return waitlist.store.UpdateWaitlistEntry(ctx, entry.ID, WaitlistWaiting, WaitlistUpdate{Status: WaitlistExpired})
	}
	return WrapError(operationWaitlistReply, "waitlist_entry", "closed", ErrWaitlistEntryClosed)
}

// Get returns an entry owned by customerID.
func (waitlist *WaitlistCoordinator) Get(ctx context.Context, entryID WaitlistEntryID, customerID CustomerID) (WaitlistEntry, error) {
	entry, err := waitlist.store.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		return WaitlistEntry{}, err
	}
	if entry.CustomerID != customerID {
		return WaitlistEntry{}, WrapError(operationWaitlistReply, "waitlist_entry", "not_owner", ErrNotOwner)
	}
	return entry, nil
}

func (waitlist *WaitlistCoordinator) accept(ctx context.Context, entry WaitlistEntry) (WaitlistResponse, error) {
	booker := waitlist.currentBooker()
	if booker == nil {
		return WaitlistResponse{}, fmt.Errorf("%w: booking starter is not bound", ErrInvalidServiceConfig)
	}
	attempt, bookingErr := booker.StartBooking(ctx, BookingRequest{
		CharterID:       entry.CharterID,
		CustomerID:      entry.CustomerID,
		Date:            entry.Date,
		WaitlistEntryID: entry.ID,
	})

	lock := waitlist.lockFor(entry.CharterID, entry.Date)
	lock.Lock()
	if bookingErr != nil {
		requeueErr := waitlist.store.UpdateWaitlistEntry(ctx, entry.ID, WaitlistNotified, WaitlistUpdate{Status: WaitlistWaiting})
		promoted, found, promoteErr := waitlist.promoteLocked(ctx, entry.CharterID, entry.Date)
		lock.Unlock()
		waitlist.logOperation(ctx, OperationLog{
			Operation:       operationWaitlistReply,
			CharterID:       entry.CharterID,
			CustomerID:      entry.CustomerID,
			WaitlistEntryID: entry.ID,
			Date:            entry.Date,
			Detail:          "requeued",
			Error:           errors.Join(bookingErr, requeueErr, promoteErr),
		})
		if found {
			waitlist.sendOffer(ctx, promoted)
		}
		return WaitlistResponse{}, bookingErr
	}
	convertErr := waitlist.store.UpdateWaitlistEntry(ctx, entry.ID, WaitlistNotified, WaitlistUpdate{
		Status:    WaitlistConverted,
		BookingID: attempt.Booking.ID,
	})
	lock.Unlock()
	waitlist.logOperation(ctx, OperationLog{
		Operation:       operationWaitlistReply,
		CharterID:       entry.CharterID,
		CustomerID:      entry.CustomerID,
		BookingID:       attempt.Booking.ID,
		WaitlistEntryID: entry.ID,
		Date:            entry.Date,
		Detail:          "converted",
		Error:           convertErr,
	})
	entry.Status = WaitlistConverted
	entry.OfferExpiresAt = time.Time{}
	entry.BookingID = attempt.Booking.ID
	return WaitlistResponse{Entry: entry, Attempt: &attempt}, nil
}

// closeOffer expires a notified entry and evaluates the next one in line.
func (waitlist *WaitlistCoordinator) closeOffer(ctx context.Context, entry WaitlistEntry) (WaitlistEntry, error) {
	lock := waitlist.lockFor(entry.CharterID, entry.Date)
	lock.Lock()
	err := waitlist.store.UpdateWaitlistEntry(ctx, entry.ID, WaitlistNotified, WaitlistUpdate{Status: WaitlistExpired})
	if err != nil {
		lock.Unlock()
		return WaitlistEntry{}, err
	}
	promoted, found, promoteErr := waitlist.promoteLocked(ctx, entry.CharterID, entry.Date)
	lock.Unlock()
	if promoteErr != nil {
		waitlist.logOperation(ctx, OperationLog{
			Operation: operationWaitlistOffer,
			CharterID: entry.CharterID,
			Date:      entry.Date,
			Error:     promoteErr,
		})
	}
	if found {
		waitlist.sendOffer(ctx, promoted)
	}
	entry.Status = WaitlistExpired
	entry.OfferExpiresAt = time.Time{}
	return entry, nil
}

// promoteLocked must run under the (charter, date) stripe lock.
func (waitlist *WaitlistCoordinator) promoteLocked(ctx context.Context, charterID CharterID, date SlotDate) (WaitlistEntry, bool, error) {
	charter, err := waitlist.catalog.GetCharter(ctx, charterID)
	if err != nil {
		return WaitlistEntry{}, false, err
	}
	availability, err := waitlist.guard.CheckAvailability(ctx, charter.CaptainID, date)
	if err != nil {
		return WaitlistEntry{}, false, err
	}
	if availability != Available {
		return WaitlistEntry{}, false, nil
	}
	var promoted WaitlistEntry
	found := false
	operationError := waitlist.store.WithWaitlistTx(ctx, func(ctx context.Context, txStore WaitlistStore) error {
		notified, err := txStore.ListWaitlist(ctx, charterID, date, WaitlistNotified)
		if err != nil {
			return err
		}
		if len(notified) > 0 {
			return nil
		}
		waiting, err := txStore.ListWaitlist(ctx, charterID, date, WaitlistWaiting)
		if err != nil {
			return err
		}
		if len(waiting) == 0 {
			return nil
		}
		promoted = waiting[0]
		promoted.Status = WaitlistNotified
		promoted.OfferExpiresAt = waitlist.now().Add(waitlist.offerWindow)
		if err := txStore.UpdateWaitlistEntry(ctx, promoted.ID, WaitlistWaiting, WaitlistUpdate{
			Status:         WaitlistNotified,
			OfferExpiresAt: promoted.OfferExpiresAt,
		}); err != nil {
			return err
		}
		found = true
		return nil
	})
	if operationError != nil {
		return WaitlistEntry{}, false, operationError
	}
	if found {
		waitlist.logOperation(ctx, OperationLog{
			Operation:       operationWaitlistOffer,
			CaptainID:       charter.CaptainID,
			CharterID:       charterID,
			CustomerID:      promoted.CustomerID,
			WaitlistEntryID: promoted.ID,
			Date:            date,
		})
	}
	return promoted, found, nil
}

func (waitlist *WaitlistCoordinator) sendOffer(ctx context.Context, entry WaitlistEntry) {
	if waitlist.notifier == nil {
		return
	}
	err := waitlist.notifier.Notify(ctx, Notification{
		Kind:        NotificationWaitlistOffer,
		CustomerID:  entry.CustomerID,
		CharterID:   entry.CharterID,
		Date:        entry.Date,
		ReferenceID: entry.ID.String(),
		Contact:     entry.Contact,
		ExpiresAt:   entry.OfferExpiresAt,
		CreatedAt:   waitlist.now(),
	})
	if err != nil {
		waitlist.logOperation(ctx, OperationLog{
			Operation:       operationWaitlistOffer,
			CharterID:       entry.CharterID,
			CustomerID:      entry.CustomerID,
			WaitlistEntryID: entry.ID,
			Date:            entry.Date,
			Detail:          "notification_failed",
			Error:           err,
		})
	}
}

func (waitlist *WaitlistCoordinator) currentBooker() BookingStarter {
	waitlist.bookerMu.RLock()
	defer waitlist.bookerMu.RUnlock()
	return waitlist.booker
}

func (waitlist *WaitlistCoordinator) lockFor(charterID CharterID, date SlotDate) *sync.Mutex {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(charterID.String()))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write([]byte(date.String()))
	return &waitlist.stripes[hasher.Sum32()%waitlistLockStripes]
}
