package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-reconciler/app/entity"
)

var (
	ErrMetaNotFound      = errors.New("reconcile metadata not found")
	ErrMetaAlreadyExists = errors.New("reconcile metadata already exists")
)

type ReconcileMetaRepository struct {
	db DBTX
}

func NewReconcileMetaRepository(db DBTX) *ReconcileMetaRepository {
	return &ReconcileMetaRepository{db: db}
}

// Create inserts the empty metadata row for a new order. Called by the
// storefront glue at checkout time.
func (r *ReconcileMetaRepository) Create(ctx context.Context, orderID uint64, now time.Time) error {
	query := `
		INSERT INTO reconcile_meta (order_id, updated_at)
		VALUES (?, ?)
	`

	if _, err := r.db.ExecContext(ctx, query, orderID, now); err != nil {
		if isDuplicateEntryError(err) {
			return ErrMetaAlreadyExists
		}
		return err
	}

	return nil
}

func (r *ReconcileMetaRepository) FindByOrderID(ctx context.Context, orderID uint64) (*entity.ReconcileMeta, error) {
	query := `
		SELECT order_id, addresses_json, payment_status, txid, data_source,
			processing_completed,
			transient_error, transient_error_code, transient_error_msg, retry_action, transient_error_count,
			hard_error, hard_error_code, hard_error_msg,
			updated_at
		FROM reconcile_meta
		WHERE order_id = ?
	`

	meta := &entity.ReconcileMeta{}
	if err := scanMeta(r.db.QueryRowContext(ctx, query, orderID), meta); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return meta, nil
}

func (r *ReconcileMetaRepository) Update(ctx context.Context, meta *entity.ReconcileMeta) error {
	query := `
		UPDATE reconcile_meta SET
			addresses_json = ?,
			payment_status = ?,
			txid = ?,
			data_source = ?,
			processing_completed = ?,
			transient_error = ?,
			transient_error_code = ?,
			transient_error_msg = ?,
			retry_action = ?,
			transient_error_count = ?,
			hard_error = ?,
			hard_error_code = ?,
			hard_error_msg = ?,
			updated_at = ?
		WHERE order_id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringValue(meta.AddressesJSON),
		nullablePaymentStatus(meta.PaymentStatus),
		nullableStringValue(meta.TxID),
		nullableStringValue(meta.DataSource),
		nullableTriState(meta.ProcessingCompleted),
		nullableTriState(meta.TransientError),
		nullableStringValue(meta.TransientErrorCode),
		nullableStringValue(meta.TransientErrorMsg),
		nullableStringValue(meta.RetryAction),
		meta.TransientErrorCount,
		nullableTriState(meta.HardError),
		nullableStringValue(meta.HardErrorCode),
		nullableStringValue(meta.HardErrorMsg),
		meta.UpdatedAt,
		meta.OrderID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrMetaNotFound
	}

	return nil
}

func scanMeta(scan rowScanner, meta *entity.ReconcileMeta) error {
	var addressesJSON sql.NullString
	var paymentStatus sql.NullString
	var txid sql.NullString
	var dataSource sql.NullString
	var processingCompleted sql.NullString
	var transientError sql.NullString
	var transientErrorCode sql.NullString
	var transientErrorMsg sql.NullString
	var retryAction sql.NullString
	var hardError sql.NullString
	var hardErrorCode sql.NullString
	var hardErrorMsg sql.NullString

	err := scan.Scan(
		&meta.OrderID,
		&addressesJSON,
		&paymentStatus,
		&txid,
		&dataSource,
		&processingCompleted,
		&transientError,
		&transientErrorCode,
		&transientErrorMsg,
		&retryAction,
		&meta.TransientErrorCount,
		&hardError,
		&hardErrorCode,
		&hardErrorMsg,
		&meta.UpdatedAt,
	)
	if err != nil {
		return err
	}

	meta.AddressesJSON = stringPtrFromNull(addressesJSON)
	meta.PaymentStatus = entity.ParsePaymentStatus(paymentStatus.String)
	meta.TxID = stringPtrFromNull(txid)
	meta.DataSource = stringPtrFromNull(dataSource)
	meta.ProcessingCompleted = entity.ParseTriState(processingCompleted.String)
	meta.TransientError = entity.ParseTriState(transientError.String)
	meta.TransientErrorCode = stringPtrFromNull(transientErrorCode)
	meta.TransientErrorMsg = stringPtrFromNull(transientErrorMsg)
	meta.RetryAction = stringPtrFromNull(retryAction)
	meta.HardError = entity.ParseTriState(hardError.String)
	meta.HardErrorCode = stringPtrFromNull(hardErrorCode)
	meta.HardErrorMsg = stringPtrFromNull(hardErrorMsg)

	return nil
}

func nullablePaymentStatus(s entity.PaymentStatus) interface{} {
	if s == entity.PaymentStatusUnset {
		return nil
	}
	return s.String()
}

func nullableTriState(t entity.TriState) interface{} {
	if t == entity.TriStateUnset {
		return nil
	}
	return t.String()
}
