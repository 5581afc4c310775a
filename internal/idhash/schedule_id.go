package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"token-custody-lab/internal/domain"
)

// ComputeScheduleID computes a deterministic vesting schedule id using SHA256.
// Formula: SHA256(beneficiary|token|total_amount|start_time|sequence)
// The strictly increasing sequence counter makes the id collision-free even
// for otherwise identical grants. Returns hex-encoded hash (64 characters).
func ComputeScheduleID(
	beneficiary domain.Address,
	token domain.Address,
	totalAmount *big.Int,
	startTime int64,
	sequence uint64,
) string {
	amountStr := "0"
	if totalAmount != nil {
		amountStr = totalAmount.String()
	}

	data := fmt.Sprintf("%s|%s|%s|%d|%d",
		beneficiary,
		token,
		amountStr,
		startTime,
		sequence,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
