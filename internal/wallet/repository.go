package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no wallet exists for the given identifier.
	ErrNotFound = errors.New("wallet not found")

	// ErrAlreadyExists indicates a wallet already exists for the owner.
	ErrAlreadyExists = errors.New("wallet already exists")
)

// Repository persists wallet metadata. Balance columns on the wallets table
// are out of bounds here; the ledger recorder owns them.
type Repository interface {
	Create(ctx context.Context, account Account) error
	Get(ctx context.Context, id string) (Account, error)
	GetByOwner(ctx context.Context, ownerID string) (Account, error)
	UpdateBankDetails(ctx context.Context, id string, details BankDetails) error
	MarkIdentityVerified(ctx context.Context, id string, at time.Time) error
	SetLastWithdrawalAt(ctx context.Context, id string, at time.Time) error
}

// PostgresRepository stores wallet metadata in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet row with zero balances.
func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	walletID, err := uuid.Parse(account.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(account.OwnerID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets
        (id, owner_id, currency, fee_threshold, withdrawal_cooldown_hours, identity_verified, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, false, $6, $6)`,
		walletID, ownerID, account.Currency, account.FeeThreshold, account.WithdrawalCooldownHours, account.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

const selectAccount = `SELECT id, owner_id, currency, fee_threshold,
    bank_holder, bank_account, bank_name,
    identity_verified, identity_verified_at, last_withdrawal_at,
    withdrawal_cooldown_hours, created_at, updated_at
    FROM wallets`

// Get fetches wallet metadata by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Account, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE id = $1`, walletID))
}

// GetByOwner fetches wallet metadata by the owning provider identity.
func (r *PostgresRepository) GetByOwner(ctx context.Context, ownerID string) (Account, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE owner_id = $1`, owner))
}

// UpdateBankDetails replaces the payout destination. Metadata only, never
// part of the ledger's lock path.
func (r *PostgresRepository) UpdateBankDetails(ctx context.Context, id string, details BankDetails) error {
	tag, err := r.db.Exec(ctx, `UPDATE wallets
        SET bank_holder = $2, bank_account = $3, bank_name = $4, updated_at = now()
        WHERE id = $1`, id, details.HolderName, details.AccountNumber, details.BankName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkIdentityVerified sets the verification flag. Safe to call repeatedly;
// the first verification timestamp is kept.
func (r *PostgresRepository) MarkIdentityVerified(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE wallets
        SET identity_verified = true,
            identity_verified_at = COALESCE(identity_verified_at, $2),
            updated_at = now()
        WHERE id = $1`, id, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLastWithdrawalAt stamps the start of the withdrawal cooldown window.
func (r *PostgresRepository) SetLastWithdrawalAt(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE wallets SET last_withdrawal_at = $2, updated_at = now() WHERE id = $1`,
		id, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acc                            Account
		id, owner                      uuid.UUID
		bankHolder, bankAcct, bankName *string
	)
	err := row.Scan(&id, &owner, &acc.Currency, &acc.FeeThreshold,
		&bankHolder, &bankAcct, &bankName,
		&acc.IdentityVerified, &acc.IdentityVerifiedAt, &acc.LastWithdrawalAt,
		&acc.WithdrawalCooldownHours, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	acc.ID = id.String()
	acc.OwnerID = owner.String()
	if bankHolder != nil || bankAcct != nil || bankName != nil {
		details := BankDetails{}
		if bankHolder != nil {
			details.HolderName = *bankHolder
		}
		if bankAcct != nil {
			details.AccountNumber = *bankAcct
		}
		if bankName != nil {
			details.BankName = *bankName
		}
		acc.BankDetails = &details
	}
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	return acc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
