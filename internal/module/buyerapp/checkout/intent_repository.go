package checkout

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/livecart/lc-checkout/pkg/errors"
	"github.com/livecart/lc-checkout/pkg/status"
)

type IntentRepository interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(ctx context.Context, tx *sql.Tx) error
	Rollback(ctx context.Context, tx *sql.Tx) error

	Save(ctx context.Context, intent CheckoutIntent, tx *sql.Tx) error
	FindByID(ctx context.Context, ID string, tx *sql.Tx) (CheckoutIntent, error)
	FindByIDForUpdate(ctx context.Context, ID string, tx *sql.Tx) (CheckoutIntent, error)
	// Lock performs the intent -> locked conditional write: it only succeeds
	// while the row is still INTENT and the intent deadline has not passed.
	Lock(ctx context.Context, ID string, externalRef string, amountTotal float64, lockExpiresAt, now time.Time, tx *sql.Tx) (bool, error)
	// UpdateStatus is the generic compare-and-swap on the status column.
	UpdateStatus(ctx context.Context, ID string, from, to Status, now time.Time, tx *sql.Tx) (bool, error)
	// ExpireFrom moves an overdue intent to EXPIRED, re-checking the relevant
	// deadline inside the write so a racing conversion wins cleanly.
	ExpireFrom(ctx context.Context, ID string, from Status, now time.Time, tx *sql.Tx) (bool, error)
	FindOverdue(ctx context.Context, now time.Time, limit int, tx *sql.Tx) ([]CheckoutIntent, error)
}

type sqlCommand interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type intentRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewIntentRepository(logger *logrus.Logger, db *sql.DB) IntentRepository {
	return &intentRepository{
		logger: logger,
		db:     db,
	}
}

// BeginTx implements IntentRepository.
func (r *intentRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to begin transaction")
	}

	return tx, nil
}

// CommitTx implements IntentRepository.
func (r *intentRepository) CommitTx(ctx context.Context, tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to commit transaction")
	}

	return nil
}

// Rollback implements IntentRepository.
func (r *intentRepository) Rollback(ctx context.Context, tx *sql.Tx) error {
	if err := tx.Rollback(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to rollback transaction")
	}

	return nil
}

const intentColumns = `id, buyer_id, seller_id, item_id, show_id, quantity, status, intent_expires_at, lock_expires_at, external_payment_ref, amount_total, created_at, updated_at`

func scanIntent(row interface{ Scan(...interface{}) error }) (CheckoutIntent, error) {
	var data CheckoutIntent
	var lockExpiresAt sql.NullTime
	var externalRef sql.NullString
	var amountTotal sql.NullFloat64

	err := row.Scan(
		&data.ID, &data.BuyerID, &data.SellerID, &data.ItemID, &data.ShowID, &data.Quantity,
		&data.Status, &data.IntentExpiresAt, &lockExpiresAt, &externalRef, &amountTotal,
		&data.CreatedAt, &data.UpdatedAt,
	)
	if err != nil {
		return CheckoutIntent{}, err
	}

	if lockExpiresAt.Valid {
		data.LockExpiresAt = &lockExpiresAt.Time
	}
	if externalRef.Valid {
		data.ExternalPaymentRef = &externalRef.String
	}
	if amountTotal.Valid {
		data.AmountTotal = &amountTotal.Float64
	}

	return data, nil
}

// Save implements IntentRepository. The checkout_intent table carries a
// partial unique index on (buyer_id, item_id) WHERE status IN
// ('INTENT','LOCKED'); a violation means the buyer already has an active
// attempt on this item.
func (r *intentRepository) Save(ctx context.Context, intent CheckoutIntent, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := fmt.Sprintf(`
		INSERT INTO checkout_intent
		(
			%s
		)
		VALUES
		(
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`, intentColumns)

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving checkout intent's properties")
	}
	defer stmt.Close()

	var lockExpiresAt sql.NullTime
	var externalRef sql.NullString
	var amountTotal sql.NullFloat64

	if intent.LockExpiresAt != nil {
		lockExpiresAt = sql.NullTime{Time: *intent.LockExpiresAt, Valid: true}
	}
	if intent.ExternalPaymentRef != nil {
		externalRef = sql.NullString{String: *intent.ExternalPaymentRef, Valid: true}
	}
	if intent.AmountTotal != nil {
		amountTotal = sql.NullFloat64{Float64: *intent.AmountTotal, Valid: true}
	}

	_, err = stmt.ExecContext(ctx,
		intent.ID, intent.BuyerID, intent.SellerID, intent.ItemID, intent.ShowID, intent.Quantity,
		intent.Status, intent.IntentExpiresAt, lockExpiresAt, externalRef, amountTotal,
		intent.CreatedAt, intent.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errors.New(http.StatusConflict, status.ACTIVE_INTENT_EXISTS, "an active checkout intent for this item already exists")
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving checkout intent's properties")
	}

	return nil
}

func (r *intentRepository) findByID(ctx context.Context, ID string, forUpdate bool, tx *sql.Tx) (CheckoutIntent, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM checkout_intent
		WHERE
			id = $1
	`, intentColumns)
	if forUpdate {
		query += " FOR UPDATE"
	} else {
		query += " LIMIT 1"
	}

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return CheckoutIntent{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting checkout intent's properties")
	}
	defer stmt.Close()

	data, err := scanIntent(stmt.QueryRowContext(ctx, ID))
	if err != nil {
		if err == sql.ErrNoRows {
			return CheckoutIntent{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("checkout intent with id '%s' is not found", ID))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return CheckoutIntent{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting checkout intent's properties")
	}

	return data, nil
}

// FindByID implements IntentRepository.
func (r *intentRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (CheckoutIntent, error) {
	return r.findByID(ctx, ID, false, tx)
}

// FindByIDForUpdate implements IntentRepository.
func (r *intentRepository) FindByIDForUpdate(ctx context.Context, ID string, tx *sql.Tx) (CheckoutIntent, error) {
	return r.findByID(ctx, ID, true, tx)
}

func (r *intentRepository) execConditional(ctx context.Context, query string, args []interface{}, tx *sql.Tx) (bool, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating checkout intent's properties")
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating checkout intent's properties")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating checkout intent's properties")
	}

	return affected == 1, nil
}

// Lock implements IntentRepository.
func (r *intentRepository) Lock(ctx context.Context, ID string, externalRef string, amountTotal float64, lockExpiresAt, now time.Time, tx *sql.Tx) (bool, error) {
	query := `
		UPDATE checkout_intent
		SET
			status = 'LOCKED',
			external_payment_ref = $1,
			amount_total = $2,
			lock_expires_at = $3,
			updated_at = $4
		WHERE
			id = $5
		AND
			status = 'INTENT'
		AND
			intent_expires_at > $4
	`

	return r.execConditional(ctx, query, []interface{}{externalRef, amountTotal, lockExpiresAt, now, ID}, tx)
}

// UpdateStatus implements IntentRepository.
func (r *intentRepository) UpdateStatus(ctx context.Context, ID string, from, to Status, now time.Time, tx *sql.Tx) (bool, error) {
	query := `
		UPDATE checkout_intent
		SET
			status = $1,
			updated_at = $2
		WHERE
			id = $3
		AND
			status = $4
	`

	return r.execConditional(ctx, query, []interface{}{to, now, ID, from}, tx)
}

// ExpireFrom implements IntentRepository.
func (r *intentRepository) ExpireFrom(ctx context.Context, ID string, from Status, now time.Time, tx *sql.Tx) (bool, error) {
	query := `
		UPDATE checkout_intent
		SET
			status = 'EXPIRED',
			updated_at = $1
		WHERE
			id = $2
		AND
			status = $3
		AND
			CASE WHEN status = 'INTENT' THEN intent_expires_at ELSE lock_expires_at END <= $1
	`

	return r.execConditional(ctx, query, []interface{}{now, ID, from}, tx)
}

// FindOverdue implements IntentRepository.
func (r *intentRepository) FindOverdue(ctx context.Context, now time.Time, limit int, tx *sql.Tx) ([]CheckoutIntent, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM checkout_intent
		WHERE
			(status = 'INTENT' AND intent_expires_at <= $1)
		OR
			(status = 'LOCKED' AND lock_expires_at <= $1)
		ORDER BY updated_at
		LIMIT $2
	`, intentColumns)

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of checkout intent's properties")
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, now, limit)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of checkout intent's properties")
	}
	defer rows.Close()

	var data = make([]CheckoutIntent, 0)

	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of checkout intent's properties")
		}
		data = append(data, intent)
	}

	return data, nil
}
