package checkout

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/livecart/lc-checkout/pkg/errors"
	"github.com/livecart/lc-checkout/pkg/status"
)

type CompensationRepository interface {
	Save(ctx context.Context, c PaymentCompensation, tx *sql.Tx) error
	FindManyByStatus(ctx context.Context, compensationStatus string, limit int, tx *sql.Tx) ([]PaymentCompensation, error)
}

type compensationRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewCompensationRepository(logger *logrus.Logger, db *sql.DB) CompensationRepository {
	return &compensationRepository{
		logger: logger,
		db:     db,
	}
}

// Save implements CompensationRepository.
func (r *compensationRepository) Save(ctx context.Context, c PaymentCompensation, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		INSERT INTO payment_compensation
		(
			id, intent_id, buyer_id, external_payment_ref, amount_total, reason, status, created_at
		)
		VALUES
		(
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving payment compensation's properties")
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, c.ID, c.IntentID, c.BuyerID, c.ExternalPaymentRef, c.AmountTotal, c.Reason, c.Status, c.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving payment compensation's properties")
	}

	return nil
}

// FindManyByStatus implements CompensationRepository.
func (r *compensationRepository) FindManyByStatus(ctx context.Context, compensationStatus string, limit int, tx *sql.Tx) ([]PaymentCompensation, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT
			id, intent_id, buyer_id, external_payment_ref, amount_total, reason, status, created_at
		FROM payment_compensation
		WHERE
			status = $1
		ORDER BY created_at
		LIMIT $2
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of payment compensation's properties")
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, compensationStatus, limit)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of payment compensation's properties")
	}
	defer rows.Close()

	var data = make([]PaymentCompensation, 0)

	for rows.Next() {
		var c PaymentCompensation
		if err := rows.Scan(&c.ID, &c.IntentID, &c.BuyerID, &c.ExternalPaymentRef, &c.AmountTotal, &c.Reason, &c.Status, &c.CreatedAt); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of payment compensation's properties")
		}
		data = append(data, c)
	}

	return data, nil
}
