package gormstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	"gorm.io/gorm"
)

func (store *Store) CreatePriceAlert(ctx context.Context, alert reservation.PriceAlert) error {
	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = store.now()
	}
	model := PriceAlert{
		AlertID:              alert.ID.String(),
		CharterID:            alert.CharterID.String(),
		CustomerID:           alert.CustomerID.String(),
		TargetPriceCents:     alert.TargetPrice.Int64(),
		PriceAtCreationCents: alert.PriceAtCreation.Int64(),
		Status:               alert.Status.String(),
		LastSeenPriceCents:   alert.LastSeenPrice.Int64(),
		TriggerCount:         alert.TriggerCount,
		LastTriggeredAt:      timePointer(alert.LastTriggeredAt),
		CreatedAt:            createdAt.UTC(),
		UpdatedAt:            createdAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return wrapStoreError(errorSubjectPriceAlert, errorCodeDuplicate, err)
		}
		return wrapStoreError(errorSubjectPriceAlert, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetPriceAlert(ctx context.Context, alertID reservation.PriceAlertID) (reservation.PriceAlert, error) {
	var model PriceAlert
	err := store.db.WithContext(ctx).Where("alert_id = ?", alertID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reservation.PriceAlert{}, wrapStoreError(errorSubjectPriceAlert, errorCodeGet, reservation.ErrUnknownPriceAlert)
	}
	if err != nil {
		return reservation.PriceAlert{}, wrapStoreError(errorSubjectPriceAlert, errorCodeGet, err)
	}
	alert, err := mapPriceAlert(model)
	if err != nil {
		return reservation.PriceAlert{}, wrapStoreError(errorSubjectPriceAlert, errorCodeInvalid, err)
	}
	return alert, nil
}

func (store *Store) ListWatchedPriceAlerts(ctx context.Context) ([]reservation.PriceAlert, error) {
	var rows []PriceAlert
	err := store.db.WithContext(ctx).
		Where("status IN ?", []string{reservation.AlertActive.String(), reservation.AlertTriggered.String()}).
		Order("charter_id ASC").
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPriceAlert, errorCodeList, err)
	}
	alerts := make([]reservation.PriceAlert, 0, len(rows))
	for _, row := range rows {
		alert, err := mapPriceAlert(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPriceAlert, errorCodeInvalid, err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func (store *Store) UpdatePriceAlert(ctx context.Context, alertID reservation.PriceAlertID, from reservation.PriceAlertStatus, update reservation.PriceAlertUpdate) error {
	result := store.db.WithContext(ctx).
		Model(&PriceAlert{}).
		Where("alert_id = ? AND status = ?", alertID.String(), from.String()).
		Updates(map[string]any{
			"status":                update.Status.String(),
			"last_seen_price_cents": update.LastSeenPrice.Int64(),
			"trigger_count":         update.TriggerCount,
			"last_triggered_at":     timePointer(update.LastTriggeredAt),
			"updated_at":            store.now(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPriceAlert, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := store.db.WithContext(ctx).Model(&PriceAlert{}).Where("alert_id = ?", alertID.String()).Count(&count).Error; err != nil {
		return wrapStoreError(errorSubjectPriceAlert, errorCodeGet, err)
	}
	if count == 0 {
		return wrapStoreError(errorSubjectPriceAlert, errorCodeUpdate, reservation.ErrUnknownPriceAlert)
	}
	return wrapStoreError(errorSubjectPriceAlert, errorCodeUpdate, reservation.ErrPriceAlertClosed)
}

func mapPriceAlert(model PriceAlert) (reservation.PriceAlert, error) {
	alertID, err := reservation.NewPriceAlertID(model.AlertID)
	if err != nil {
		return reservation.PriceAlert{}, err
	}
	charterID, err := reservation.NewCharterID(model.CharterID)
	if err != nil {
		return reservation.PriceAlert{}, err
	}
	customerID, err := reservation.NewCustomerID(model.CustomerID)
	if err != nil {
		return reservation.PriceAlert{}, err
	}
	status, err := reservation.ParsePriceAlertStatus(model.Status)
	if err != nil {
		return reservation.PriceAlert{}, err
	}
	return reservation.PriceAlert{
		ID:              alertID,
		CharterID:       charterID,
		CustomerID:      customerID,
		TargetPrice:     reservation.PriceCents(model.TargetPriceCents),
		PriceAtCreation: reservation.PriceCents(model.PriceAtCreationCents),
		Status:          status,
		LastSeenPrice:   reservation.PriceCents(model.LastSeenPriceCents),
		TriggerCount:    model.TriggerCount,
		LastTriggeredAt: timeOrZero(model.LastTriggeredAt),
		CreatedAt:       model.CreatedAt.UTC(),
	}, nil
}
