package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	defaultMaxRetries = 3
)

// PostgresRecorder persists the ledger in PostgreSQL. Each posting locks the
// wallet row, applies the balance mutation and inserts the transaction row in
// a single database transaction.
type PostgresRecorder struct {
	db         *pgxpool.Pool
	maxRetries int
}

// NewPostgresRecorder constructs a Postgres-backed recorder. maxRetries bounds
// internal retries on serialization conflicts; values below one fall back to
// the default.
func NewPostgresRecorder(db *pgxpool.Pool, maxRetries int) *PostgresRecorder {
	if maxRetries < 1 {
		maxRetries = defaultMaxRetries
	}
	return &PostgresRecorder{db: db, maxRetries: maxRetries}
}

// Wallet ids bind into uuid columns; a malformed id would otherwise surface
// as a Postgres cast error instead of a not-found.
func validWalletID(walletID string) error {
	if _, err := uuid.Parse(walletID); err != nil {
		return ErrWalletNotFound
	}
	return nil
}

// EnsureWallet verifies the wallet row exists. The row itself is created by
// the wallet store; balances live on it at zero from creation.
func (r *PostgresRecorder) EnsureWallet(ctx context.Context, walletID string) error {
	if err := validWalletID(walletID); err != nil {
		return err
	}
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1)`, walletID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrWalletNotFound
	}
	return nil
}

// Apply posts one transaction atomically with its balance effect, retrying
// transparently when the posting loses a lock race.
func (r *PostgresRecorder) Apply(ctx context.Context, input ApplyInput) (Transaction, error) {
	if err := input.Validate(); err != nil {
		return Transaction{}, err
	}
	if err := validWalletID(input.WalletID); err != nil {
		return Transaction{}, err
	}

	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return Transaction{}, ctx.Err()
			}
		}

		tx, err := r.applyOnce(ctx, input)
		if err == nil {
			return tx, nil
		}
		if isRetryable(err) {
			lastErr = err
			continue
		}
		if isUniqueViolation(err) {
			// Two retries of the same logical event raced past the in-tx
			// dedup check; the committed row wins.
			return r.findByIdempotencyKey(ctx, input.WalletID, input.IdempotencyKey)
		}
		return Transaction{}, err
	}
	return Transaction{}, fmt.Errorf("%w: %v", ErrConflict, lastErr)
}

func (r *PostgresRecorder) applyOnce(ctx context.Context, input ApplyInput) (Transaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var earnings, fee int64
	err = tx.QueryRow(ctx, `SELECT earnings_balance, fee_balance FROM wallets WHERE id = $1 FOR UPDATE`, input.WalletID).
		Scan(&earnings, &fee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrWalletNotFound
		}
		return Transaction{}, err
	}

	// Dedup inside the same critical section as the balance read.
	existing, err := scanTransaction(tx.QueryRow(ctx, selectTransaction+` WHERE wallet_id = $1 AND idempotency_key = $2`,
		input.WalletID, input.IdempotencyKey))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, err
	}

	switch input.AffectedBalance {
	case BalanceEarnings:
		if earnings+input.Amount < 0 {
			return Transaction{}, ErrInsufficientFunds
		}
		earnings += input.Amount
	case BalanceFee:
		fee += input.Amount
	}

	if _, err := tx.Exec(ctx, `UPDATE wallets SET earnings_balance = $2, fee_balance = $3, updated_at = now() WHERE id = $1`,
		input.WalletID, earnings, fee); err != nil {
		return Transaction{}, err
	}

	record := Transaction{
		ID:                   uuid.NewString(),
		WalletID:             input.WalletID,
		IdempotencyKey:       input.IdempotencyKey,
		Kind:                 input.Kind,
		AffectedBalance:      input.AffectedBalance,
		Amount:               input.Amount,
		Description:          input.Description,
		SourceReferenceID:    input.SourceReferenceID,
		Status:               StatusCompleted,
		EarningsBalanceAfter: earnings,
		FeeBalanceAfter:      fee,
		CreatedAt:            time.Now().UTC(),
	}

	if _, err := tx.Exec(ctx, `INSERT INTO ledger_transactions
        (id, wallet_id, idempotency_key, kind, affected_balance, amount, description,
         source_reference_id, status, earnings_balance_after, fee_balance_after, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		record.ID, record.WalletID, record.IdempotencyKey, record.Kind, record.AffectedBalance,
		record.Amount, record.Description, nullable(record.SourceReferenceID), record.Status,
		record.EarningsBalanceAfter, record.FeeBalanceAfter, record.CreatedAt); err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}
	return record, nil
}

// Balances reads the current balances without locking the wallet row.
func (r *PostgresRecorder) Balances(ctx context.Context, walletID string) (Balances, error) {
	if err := validWalletID(walletID); err != nil {
		return Balances{}, err
	}
	var bal Balances
	err := r.db.QueryRow(ctx, `SELECT earnings_balance, fee_balance FROM wallets WHERE id = $1`, walletID).
		Scan(&bal.Earnings, &bal.Fee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balances{}, ErrWalletNotFound
		}
		return Balances{}, err
	}
	return bal, nil
}

// List returns the wallet's transaction history newest-first.
func (r *PostgresRecorder) List(ctx context.Context, walletID string, filter Filter, page Page) ([]Transaction, error) {
	if err := r.EnsureWallet(ctx, walletID); err != nil {
		return nil, err
	}

	var (
		conds = []string{"wallet_id = $1"}
		args  = []any{walletID}
	)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.AffectedBalance != "" {
		args = append(args, filter.AffectedBalance)
		conds = append(conds, fmt.Sprintf("affected_balance = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	args = append(args, page.limit(), page.offset())

	query := selectTransaction + ` WHERE ` + strings.Join(conds, " AND ") +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func (r *PostgresRecorder) findByIdempotencyKey(ctx context.Context, walletID, key string) (Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, selectTransaction+` WHERE wallet_id = $1 AND idempotency_key = $2`, walletID, key))
}

const selectTransaction = `SELECT id, wallet_id, idempotency_key, kind, affected_balance, amount,
    description, COALESCE(source_reference_id, ''), status, earnings_balance_after, fee_balance_after, created_at
    FROM ledger_transactions`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var tx Transaction
	err := row.Scan(&tx.ID, &tx.WalletID, &tx.IdempotencyKey, &tx.Kind, &tx.AffectedBalance, &tx.Amount,
		&tx.Description, &tx.SourceReferenceID, &tx.Status, &tx.EarningsBalanceAfter, &tx.FeeBalanceAfter, &tx.CreatedAt)
	if err != nil {
		return Transaction{}, err
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func backoff(attempt int) time.Duration {
	base := time.Duration(attempt) * 25 * time.Millisecond
	return base + time.Duration(rand.Int63n(int64(10*time.Millisecond)))
}
