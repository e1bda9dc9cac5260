package strategy

import (
	"context"
	"math/big"
	"strings"
)

// Vault simulates a share-based yield vault. Deposits pay an entry fee, yield
// arrives through Harvest and reward tokens through AddRewards.
type Vault struct {
	totalAssets *big.Int
	totalShares *big.Int
	entryFeeBps uint64
	rewardToken string
	rewards     *big.Int
}

// NewVault constructs an empty vault.
func NewVault(entryFeeBps uint64, rewardToken string) *Vault {
	return &Vault{
		totalAssets: big.NewInt(0),
		totalShares: big.NewInt(0),
		entryFeeBps: entryFeeBps,
		rewardToken: strings.ToUpper(strings.TrimSpace(rewardToken)),
		rewards:     big.NewInt(0),
	}
}

func (v *Vault) Name() string { return string(KindVault) }

func (v *Vault) Deposit(_ context.Context, amount *big.Int) (*big.Int, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	net := new(big.Int).Sub(amount, mulBps(amount, v.entryFeeBps))
	minted := sharesFromAssets(net, v.totalShares, v.totalAssets)
	v.totalShares = new(big.Int).Add(v.totalShares, minted)
	v.totalAssets = new(big.Int).Add(v.totalAssets, net)
	return net, nil
}

func (v *Vault) Withdraw(_ context.Context, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if amount.Cmp(v.totalAssets) > 0 {
		return nil, ErrInsufficientLiquidity
	}
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	burn := sharesToBurn(amount, v.totalShares, v.totalAssets)
	if burn.Cmp(v.totalShares) > 0 || amount.Cmp(v.totalAssets) == 0 {
		burn = new(big.Int).Set(v.totalShares)
	}
	v.totalShares = new(big.Int).Sub(v.totalShares, burn)
	v.totalAssets = new(big.Int).Sub(v.totalAssets, amount)
	return new(big.Int).Set(amount), nil
}

// Harvest credits externally generated yield to the vault.
func (v *Vault) Harvest(amount *big.Int) {
	if !validAmount(amount) {
		return
	}
	v.totalAssets = new(big.Int).Add(v.totalAssets, amount)
}

// AddRewards credits reward tokens claimable by the depositor.
func (v *Vault) AddRewards(amount *big.Int) {
	if !validAmount(amount) || v.rewardToken == "" {
		return
	}
	v.rewards = new(big.Int).Add(v.rewards, amount)
}

// Shares reports the outstanding share supply.
func (v *Vault) Shares() *big.Int { return cloneBigInt(v.totalShares) }

func (v *Vault) TotalManagedAmount(context.Context) (*big.Int, error) {
	return cloneBigInt(v.totalAssets), nil
}

func (v *Vault) RewardToken() string { return v.rewardToken }

func (v *Vault) RewardBalance(context.Context) (*big.Int, error) {
	return cloneBigInt(v.rewards), nil
}

func (v *Vault) ClaimRewards(context.Context) (*big.Int, error) {
	claimed := cloneBigInt(v.rewards)
	v.rewards = big.NewInt(0)
	return claimed, nil
}
