package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PriceAlertWatcher triggers customer alerts when a charter's price falls to their target.
type PriceAlertWatcher struct {
	store    PriceAlertStore
	catalog  CharterCatalog
	notifier Notifier
	options
}

// ScanReport summarizes one scan pass.
type ScanReport struct {
	Scanned   int
	Triggered int
	Rearmed   int
	Failed    int
}

// NewPriceAlertWatcher wires a PriceAlertWatcher. A nil notifier drops notifications.
func NewPriceAlertWatcher(store PriceAlertStore, catalog CharterCatalog, notifier Notifier, opts ...Option) (*PriceAlertWatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: price alert store is nil", ErrInvalidServiceConfig)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: charter catalog is nil", ErrInvalidServiceConfig)
	}
	return &PriceAlertWatcher{store: store, catalog: catalog, notifier: notifier, options: buildOptions(opts)}, nil
}

// Register creates an active alert. The target must be strictly below the current price.
func (watcher *PriceAlertWatcher) Register(ctx context.Context, charterID CharterID, customerID CustomerID, targetPrice PriceCents) (PriceAlert, error) {
	charter, err := watcher.catalog.GetCharter(ctx, charterID)
	if err != nil {
		return PriceAlert{}, err
	}
	if targetPrice >= charter.BasePrice {
		return PriceAlert{}, WrapError(operationAlertRegister, "target_price", "not_below_price", ErrTargetNotBelowPrice)
	}
	alertID, err := NewPriceAlertID(watcher.newID())
	if err != nil {
		return PriceAlert{}, err
	}
	alert := PriceAlert{
		ID:              alertID,
		CharterID:       charterID,
		CustomerID:      customerID,
		TargetPrice:     targetPrice,
		PriceAtCreation: charter.BasePrice,
		Status:          AlertActive,
		LastSeenPrice:   charter.BasePrice,
		CreatedAt:       watcher.now(),
	}
	operationError := watcher.store.CreatePriceAlert(ctx, alert)
	watcher.logOperation(ctx, OperationLog{
		Operation:    operationAlertRegister,
		CharterID:    charterID,
		CustomerID:   customerID,
		PriceAlertID: alertID,
		Amount:       targetPrice,
		Error:        operationError,
	})
	if operationError != nil {
		return PriceAlert{}, operationError
	}
	return alert, nil
}

// Cancel stops an alert owned by customerID.
func (watcher *PriceAlertWatcher) Cancel(ctx context.Context, alertID PriceAlertID, customerID CustomerID) error {
	alert, err := watcher.store.GetPriceAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.CustomerID != customerID {
		return WrapError(operationAlertRegister, "price_alert", "not_owner", ErrNotOwner)
	}
	if alert.Status == AlertCancelled {
		return WrapError(operationAlertRegister, "price_alert", "closed", ErrPriceAlertClosed)
	}
	return watcher.store.UpdatePriceAlert(ctx, alertID, alert.Status, PriceAlertUpdate{
		Status:          AlertCancelled,
		LastSeenPrice:   alert.LastSeenPrice,
		TriggerCount:    alert.TriggerCount,
		LastTriggeredAt: alert.LastTriggeredAt,
	})
}

// Get returns an alert owned by customerID.
func (watcher *PriceAlertWatcher) Get(ctx context.Context, alertID PriceAlertID, customerID CustomerID) (PriceAlert, error) {
	alert, err := watcher.store.GetPriceAlert(ctx, alertID)
	if err != nil {
		return PriceAlert{}, err
	}
	if alert.CustomerID != customerID {
		return PriceAlert{}, WrapError(operationAlertRegister, "price_alert", "not_owner", ErrNotOwner)
	}
	return alert, nil
}

// Scan compares every watched alert to its charter's current price.
// Failures on one alert are logged and counted; the scan continues.
func (watcher *PriceAlertWatcher) Scan(ctx context.Context) (ScanReport, error) {
	alerts, err := watcher.store.ListWatchedPriceAlerts(ctx)
	if err != nil {
		return ScanReport{}, err
	}
	report := ScanReport{}
	prices := make(map[CharterID]PriceCents)
	for _, alert := range alerts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		price, ok := prices[alert.CharterID]
		if !ok {
			charter, err := watcher.catalog.GetCharter(ctx, alert.CharterID)
			if err != nil {
				report.Failed++
				watcher.logOperation(ctx, OperationLog{
					Operation:    operationAlertTrigger,
					CharterID:    alert.CharterID,
					PriceAlertID: alert.ID,
					Error:        err,
				})
				continue
			}
			price = charter.BasePrice
			prices[alert.CharterID] = price
		}
		switch watcher.evaluate(ctx, alert, price) {
		case alertTriggered:
			report.Triggered++
		case alertRearmed:
			report.Rearmed++
		case alertFailed:
			report.Failed++
		}
	}
	return report, nil
}

// Run scans immediately and then on every tick until ctx is done.
func (watcher *PriceAlertWatcher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: scan interval must be positive", ErrInvalidServiceConfig)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := watcher.Scan(ctx); err != nil && ctx.Err() == nil {
			watcher.logOperation(ctx, OperationLog{Operation: operationAlertTrigger, Detail: "scan_failed", Error: err})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type alertTransition int

const (
	alertUnchanged alertTransition = iota
	alertTriggered
	alertRearmed
	alertFailed
)

func (watcher *PriceAlertWatcher) evaluate(ctx context.Context, alert PriceAlert, price PriceCents) alertTransition {
	switch {
	case alert.Status == AlertActive && price <= alert.TargetPrice:
		now := watcher.now()
		err := watcher.store.UpdatePriceAlert(ctx, alert.ID, AlertActive, PriceAlertUpdate{
			Status:          AlertTriggered,
			LastSeenPrice:   price,
			TriggerCount:    alert.TriggerCount + 1,
			LastTriggeredAt: now,
		})
		watcher.logOperation(ctx, OperationLog{
			Operation:    operationAlertTrigger,
			CharterID:    alert.CharterID,
			CustomerID:   alert.CustomerID,
			PriceAlertID: alert.ID,
			Amount:       price,
			Error:        err,
		})
		if err != nil {
			if errors.Is(err, ErrPriceAlertClosed) {
				return alertUnchanged
			}
			return alertFailed
		}
		watcher.sendPriceDrop(ctx, alert, price, now)
		return alertTriggered
	case alert.Status == AlertTriggered && price > alert.TargetPrice:
		err := watcher.store.UpdatePriceAlert(ctx, alert.ID, AlertTriggered, PriceAlertUpdate{
			Status:          AlertActive,
			LastSeenPrice:   price,
			TriggerCount:    alert.TriggerCount,
			LastTriggeredAt: alert.LastTriggeredAt,
		})
		watcher.logOperation(ctx, OperationLog{
			Operation:    operationAlertRearm,
			CharterID:    alert.CharterID,
			CustomerID:   alert.CustomerID,
			PriceAlertID: alert.ID,
			Amount:       price,
			Error:        err,
		})
		if err != nil {
			if errors.Is(err, ErrPriceAlertClosed) {
				return alertUnchanged
			}
			return alertFailed
		}
		return alertRearmed
	}
	return alertUnchanged
}

func (watcher *PriceAlertWatcher) sendPriceDrop(ctx context.Context, alert PriceAlert, price PriceCents, at time.Time) {
	if watcher.notifier == nil {
		return
	}
	err := watcher.notifier.Notify(ctx, Notification{
		Kind:        NotificationPriceDrop,
		CustomerID:  alert.CustomerID,
		CharterID:   alert.CharterID,
		ReferenceID: alert.ID.String(),
		Price:       price,
		CreatedAt:   at,
	})
	if err != nil {
		watcher.logOperation(ctx, OperationLog{
			Operation:    operationAlertTrigger,
			CharterID:    alert.CharterID,
			CustomerID:   alert.CustomerID,
			PriceAlertID: alert.ID,
			Detail:       "notification_failed",
			Error:        err,
		})
	}
}
