package gormstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (store *Store) GetCharter(ctx context.Context, charterID reservation.CharterID) (reservation.Charter, error) {
	var model Charter
	err := store.db.WithContext(ctx).Where("charter_id = ?", charterID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reservation.Charter{}, wrapStoreError(errorSubjectCharter, errorCodeGet, reservation.ErrUnknownCharter)
	}
	if err != nil {
		return reservation.Charter{}, wrapStoreError(errorSubjectCharter, errorCodeGet, err)
	}
	charter, err := mapCharter(model)
	if err != nil {
		return reservation.Charter{}, wrapStoreError(errorSubjectCharter, errorCodeInvalid, err)
	}
	return charter, nil
}

func (store *Store) ListChartersByCaptain(ctx context.Context, captainID reservation.CaptainID) ([]reservation.Charter, error) {
	var models []Charter
	err := store.db.WithContext(ctx).
		Where("captain_id = ?", captainID.String()).
		Order("charter_id").
		Find(&models).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectCharter, errorCodeList, err)
	}
	charters := make([]reservation.Charter, 0, len(models))
	for _, model := range models {
		charter, err := mapCharter(model)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCharter, errorCodeInvalid, err)
		}
		charters = append(charters, charter)
	}
	return charters, nil
}

// PutCharter upserts the catalog row; the price watcher picks up base price changes on its next scan.
func (store *Store) PutCharter(ctx context.Context, charter reservation.Charter) error {
	model := Charter{
		CharterID:      charter.ID.String(),
		CaptainID:      charter.CaptainID.String(),
		Name:           charter.Name,
		BasePriceCents: charter.BasePrice.Int64(),
		UpdatedAt:      store.now(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "charter_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"captain_id", "name", "base_price_cents", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectCharter, errorCodeUpsert, err)
	}
	return nil
}

func mapCharter(model Charter) (reservation.Charter, error) {
	id, err := reservation.NewCharterID(model.CharterID)
	if err != nil {
		return reservation.Charter{}, err
	}
	captainID, err := reservation.NewCaptainID(model.CaptainID)
	if err != nil {
		return reservation.Charter{}, err
	}
	price, err := reservation.NewPriceCents(model.BasePriceCents)
	if err != nil {
		return reservation.Charter{}, err
	}
	return reservation.Charter{ID: id, CaptainID: captainID, Name: model.Name, BasePrice: price}, nil
}
