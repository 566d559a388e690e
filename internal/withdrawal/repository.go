package withdrawal

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no withdrawal request exists for the identifier.
	ErrNotFound = errors.New("withdrawal request not found")

	// ErrStatusConflict indicates the request was not in the status the
	// update expected; the caller should re-read and re-evaluate.
	ErrStatusConflict = errors.New("withdrawal request status changed concurrently")
)

// Repository persists withdrawal requests. Update is a compare-and-set on the
// current status, which is how concurrent settlement signals get serialized.
type Repository interface {
	Create(ctx context.Context, req Request) error
	Get(ctx context.Context, id string) (Request, error)
	Update(ctx context.Context, req Request, expect Status) error
}

// PostgresRepository stores withdrawal requests in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new withdrawal request row.
func (r *PostgresRepository) Create(ctx context.Context, req Request) error {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return err
	}
	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO withdrawal_requests
        (id, wallet_id, amount, status, bank_holder, bank_account, bank_name,
         requested_at, debit_transaction_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, walletID, req.Amount, req.Status,
		req.BankDetails.HolderName, req.BankDetails.AccountNumber, req.BankDetails.BankName,
		req.RequestedAt.UTC(), req.DebitTransactionID)
	return err
}

const selectRequest = `SELECT id, wallet_id, amount, status,
    bank_holder, bank_account, bank_name,
    requested_at, processed_at, completed_at, failed_at,
    COALESCE(failure_reason, ''), COALESCE(payout_reference, ''),
    debit_transaction_id, COALESCE(compensation_transaction_id::text, '')
    FROM withdrawal_requests`

// Get fetches a withdrawal request by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Request, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return Request{}, ErrNotFound
	}
	return scanRequest(r.db.QueryRow(ctx, selectRequest+` WHERE id = $1`, reqID))
}

// Update writes the request's mutable fields guarded by the expected current
// status.
func (r *PostgresRepository) Update(ctx context.Context, req Request, expect Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE withdrawal_requests
        SET status = $2, processed_at = $3, completed_at = $4, failed_at = $5,
            failure_reason = $6, payout_reference = $7,
            compensation_transaction_id = NULLIF($8, '')::uuid
        WHERE id = $1 AND status = $9`,
		req.ID, req.Status, req.ProcessedAt, req.CompletedAt, req.FailedAt,
		req.FailureReason, req.PayoutReference, req.CompensationTransactionID, expect)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, req.ID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrStatusConflict
	}
	return nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req          Request
		id, walletID uuid.UUID
		debitTx      uuid.UUID
	)
	err := row.Scan(&id, &walletID, &req.Amount, &req.Status,
		&req.BankDetails.HolderName, &req.BankDetails.AccountNumber, &req.BankDetails.BankName,
		&req.RequestedAt, &req.ProcessedAt, &req.CompletedAt, &req.FailedAt,
		&req.FailureReason, &req.PayoutReference,
		&debitTx, &req.CompensationTransactionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	req.ID = id.String()
	req.WalletID = walletID.String()
	req.DebitTransactionID = debitTx.String()
	req.RequestedAt = req.RequestedAt.UTC()
	return req, nil
}
