package wallet

import "time"

// BankDetails is the payout destination for a provider's withdrawals.
type BankDetails struct {
	HolderName    string
	AccountNumber string
	BankName      string
}

// Complete reports whether every field required to execute a bank transfer is present.
func (b BankDetails) Complete() bool {
	return b.HolderName != "" && b.AccountNumber != "" && b.BankName != ""
}

// Account holds a service provider's wallet metadata. Balances live on the
// same row but are owned exclusively by the ledger recorder; this package
// never reads or writes them.
type Account struct {
	ID                      string
	OwnerID                 string
	Currency                string
	FeeThreshold            int64
	BankDetails             *BankDetails
	IdentityVerified        bool
	IdentityVerifiedAt      *time.Time
	LastWithdrawalAt        *time.Time
	WithdrawalCooldownHours int
	CreatedAt               time.Time
	UpdatedAt               time.Time
}
