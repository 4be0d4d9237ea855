package item

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/livecart/lc-checkout/pkg/errors"
	"github.com/livecart/lc-checkout/pkg/status"
)

type InventoryRepository interface {
	FindByItemID(ctx context.Context, itemID string, tx *sql.Tx) (InventoryRecord, error)
	// TryDecrement performs the single conditional decrement that prevents
	// overselling. It reports false when available_quantity is below qty,
	// without error; any concurrent caller set may race it safely.
	TryDecrement(ctx context.Context, itemID string, qty int64, now time.Time, tx *sql.Tx) (bool, error)
}

type inventoryRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewInventoryRepository(logger *logrus.Logger, db *sql.DB) InventoryRepository {
	return &inventoryRepository{
		logger: logger,
		db:     db,
	}
}

// FindByItemID implements InventoryRepository.
func (r *inventoryRepository) FindByItemID(ctx context.Context, itemID string, tx *sql.Tx) (InventoryRecord, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT
			item_id, available_quantity, status, updated_at
		FROM item_inventory
		WHERE
			item_id = $1
		LIMIT 1
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return InventoryRecord{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting inventory's properties")
	}
	defer stmt.Close()

	row := stmt.QueryRowContext(ctx, itemID)

	var data InventoryRecord

	err = row.Scan(&data.ItemID, &data.AvailableQuantity, &data.Status, &data.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return InventoryRecord{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("inventory for item '%s' is not found", itemID))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return InventoryRecord{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting inventory's properties")
	}

	return data, nil
}

// TryDecrement implements InventoryRepository.
func (r *inventoryRepository) TryDecrement(ctx context.Context, itemID string, qty int64, now time.Time, tx *sql.Tx) (bool, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE item_inventory
		SET
			available_quantity = available_quantity - $1,
			status = CASE WHEN available_quantity - $1 = 0 THEN 'SOLD' ELSE status END,
			updated_at = $2
		WHERE
			item_id = $3
		AND
			status = 'ACTIVE'
		AND
			available_quantity >= $1
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while decrementing inventory")
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, qty, now, itemID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while decrementing inventory")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while decrementing inventory")
	}

	return affected == 1, nil
}
