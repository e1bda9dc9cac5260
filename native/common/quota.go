package common

import (
	"errors"
	"math"
	"math/big"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaAmountExceeded   = errors.New("quota amount cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount   uint32
	AmountUsed *big.Int
	EpochID    uint64
}

// Quota defines the limits enforced for a module interaction per address.
// Zero values disable the matching limit.
type Quota struct {
	MaxRequestsPerMin uint32
	MaxAmountPerEpoch *big.Int
	EpochSeconds      uint32
}

// Epoch maps a unix timestamp onto the quota epoch. Without a configured
// length epochs last one minute.
func (q Quota) Epoch(unix int64) uint64 {
	if unix <= 0 {
		return 0
	}
	seconds := uint64(q.EpochSeconds)
	if seconds == 0 {
		seconds = 60
	}
	return uint64(unix) / seconds
}

// CheckQuota verifies whether the additional request and amount fit within
// the configured quota. The returned QuotaNow reflects the updated counters
// when the quota is not exceeded; on denial prev is returned unchanged.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addAmount *big.Int) (QuotaNow, error) {
	next := QuotaNow{ReqCount: prev.ReqCount, AmountUsed: prev.AmountUsed, EpochID: prev.EpochID}
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}
	if next.AmountUsed == nil {
		next.AmountUsed = big.NewInt(0)
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerMin > 0 && next.ReqCount > q.MaxRequestsPerMin {
		return prev, ErrQuotaRequestsExceeded
	}

	if addAmount != nil && addAmount.Sign() > 0 {
		next.AmountUsed = new(big.Int).Add(next.AmountUsed, addAmount)
	}
	if q.MaxAmountPerEpoch != nil && q.MaxAmountPerEpoch.Sign() > 0 && next.AmountUsed.Cmp(q.MaxAmountPerEpoch) > 0 {
		return prev, ErrQuotaAmountExceeded
	}

	return next, nil
}
