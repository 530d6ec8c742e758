package model

import (
	"time"

	"github.com/holiman/uint256"
)

// Distribution statuses.
const (
	DistributionPaid     = "PAID"
	DistributionFallback = "FALLBACK" // no holders, paid to the dev wallet
	DistributionReverted = "REVERTED" // payout failed, pool kept
)

// Purchase is emitted by a successful buy.
type Purchase struct {
	Buyer        Address
	Payment      *uint256.Int
	TokensIssued *uint256.Int
	DevFee       *uint256.Int
	Tax          *uint256.Int
	At           time.Time
}

// Sale is emitted by a successful sell.
type Sale struct {
	Seller   Address
	Amount   *uint256.Int
	Proceeds *uint256.Int
	Tax      *uint256.Int
	At       time.Time
}

// RandomnessRequested is emitted when a distribution starts.
type RandomnessRequested struct {
	RequestID string
	Snapshot  *uint256.Int
	At        time.Time
}

// Distribution is emitted when a randomness callback is resolved.
type Distribution struct {
	RequestID string
	Recipient Address
	Amount    *uint256.Int
	Status    string
	At        time.Time
}

// EmergencyWithdrawal is emitted by the vault owner's escape hatch.
type EmergencyWithdrawal struct {
	Recipient Address
	Amount    *uint256.Int
	Initiator Address
	At        time.Time
}
