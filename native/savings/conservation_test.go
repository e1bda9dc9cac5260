package savings

import (
	"context"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"savingsgame/native/savings/strategy"
)

func TestRandomSequencesConserveLedger(t *testing.T) {
	for seed := int64(1); seed <= 8; seed++ {
		runRandomGame(t, seed)
	}
}

func runRandomGame(t *testing.T, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	vault := strategy.NewVault(50, "")
	h := newHarness(t, vault, func(p *Params) {
		p.DepositCount = 4
		p.SegmentLength = 100
		p.WaitingRoundLength = 50
		p.MaxPlayers = 5
		p.FlexibleSegmentPayment = true
		p.MaxFlexiblePayment = units(20)
		p.EarlyExitFeePercent = uint64(1 + rng.Intn(20))
	})
	ctx := context.Background()
	players := make([][20]byte, 8)
	for i := range players {
		players[i] = makeAddr(byte(i + 1))
		h.fund(players[i], "DAI", units(1_000))
	}

	for segment := uint64(0); segment <= h.params.DepositCount; segment++ {
		for step := 0; step < 12; step++ {
			addr := players[rng.Intn(len(players))]
			switch rng.Intn(4) {
			case 0, 1:
				amount := new(big.Int).Add(units(1), big.NewInt(rng.Int63n(1_000_000_007)))
				if err := h.engine.Join(ctx, addr, amount); err != nil && KindOf(err) == "" {
					t.Fatalf("seed %d: join: %v", seed, err)
				}
			case 2:
				if rng.Intn(3) == 0 {
					if err := h.engine.MakeDeposit(ctx, addr, nil); err != nil && KindOf(err) == "" {
						t.Fatalf("seed %d: deposit: %v", seed, err)
					}
				}
			case 3:
				if rng.Intn(4) == 0 {
					if _, err := h.engine.EarlyExit(ctx, addr); err != nil && KindOf(err) == "" {
						t.Fatalf("seed %d: early exit: %v", seed, err)
					}
				}
			}
			h.checkInvariants()
		}
		// Most players keep up with their payments.
		for _, addr := range players {
			if rng.Intn(5) > 0 {
				_ = h.engine.MakeDeposit(ctx, addr, nil)
			}
		}
		h.checkInvariants()
		h.clock.advance(time.Duration(h.params.SegmentLength) * time.Second)
	}

	vault.Harvest(big.NewInt(rng.Int63n(1_000_000_000_000)))
	h.complete()

	paid := big.NewInt(0)
	for _, addr := range players {
		p := h.player(addr)
		out, err := h.engine.Withdraw(ctx, addr)
		if p.Status != PlayerActive {
			if err == nil {
				t.Fatalf("seed %d: expected inactive player %x to be rejected", seed, addr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("seed %d: withdraw: %v", seed, err)
		}
		if !out.Winner && out.Payout().Cmp(p.NetAmountPaid) > 0 {
			t.Fatalf("seed %d: non-winner paid %s above net deposit %s", seed, out.Payout(), p.NetAmountPaid)
		}
		paid.Add(paid, out.Payout())
	}
	game := h.game()
	if !game.Redeemed {
		if err := h.engine.RedeemFromExternalPool(ctx); err != nil {
			t.Fatalf("seed %d: redeem: %v", seed, err)
		}
		game = h.game()
	}
	admin, err := h.engine.AdminFeeWithdraw(ctx, h.owner)
	if err != nil {
		t.Fatalf("seed %d: admin withdraw: %v", seed, err)
	}
	paid.Add(paid, admin.Total())
	if paid.Cmp(game.RedeemedAmount) > 0 {
		t.Fatalf("seed %d: paid %s exceeds redeemed %s", seed, paid, game.RedeemedAmount)
	}
	dust := new(big.Int).Sub(game.RedeemedAmount, paid)
	if dust.Cmp(big.NewInt(1_000)) > 0 {
		t.Fatalf("seed %d: unexpected dust %s", seed, dust)
	}
	if pool := h.balance(PoolAddress().Array(), "DAI"); pool.Cmp(dust) != 0 {
		t.Fatalf("seed %d: pool holds %s, expected dust %s", seed, pool, dust)
	}
	h.checkInvariants()
}

func TestRewardsAndIncentiveSharedByWinners(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	market := strategy.NewMoneyMarket(1_000, "gov", big.NewInt(1_000_000), func() time.Time { return clock.Now() })
	h := newHarness(t, market, func(p *Params) { p.IncentiveToken = "INC" })
	h.clock = clock
	h.engine.SetNowFunc(clock.Now)
	ctx := context.Background()
	alice, bob, carol := makeAddr(1), makeAddr(2), makeAddr(3)

	h.mustJoin(alice, nil)
	h.mustJoin(bob, nil)
	h.mustJoin(carol, nil)
	for i := 0; i < 2; i++ {
		h.advanceSegments(1)
		h.mustDeposit(alice)
		h.mustDeposit(bob)
	}
	h.fund(PoolAddress().Array(), "INC", units(9))
	h.complete()

	if err := h.engine.RedeemFromExternalPool(ctx); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	game := h.game()
	if game.RewardAmount.Sign() <= 0 || game.GrossInterest.Sign() <= 0 {
		t.Fatalf("expected yield and rewards, got interest=%s rewards=%s", game.GrossInterest, game.RewardAmount)
	}
	if want := percentOf(game.RewardAmount, 1); game.AdminRewardAmount.Cmp(want) != 0 {
		t.Fatalf("expected admin reward %s, got %s", want, game.AdminRewardAmount)
	}

	var winnersInterest, winnersReward, winnersIncentive = big.NewInt(0), big.NewInt(0), big.NewInt(0)
	for _, addr := range [][20]byte{alice, bob} {
		out, err := h.engine.Withdraw(ctx, addr)
		if err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		if !out.Winner || out.RewardAmount.Sign() <= 0 || out.IncentiveAmount.Sign() <= 0 {
			t.Fatalf("expected winner shares, got %+v", out)
		}
		winnersInterest.Add(winnersInterest, out.Interest)
		winnersReward.Add(winnersReward, out.RewardAmount)
		winnersIncentive.Add(winnersIncentive, out.IncentiveAmount)
		if got := h.balance(addr, "GOV"); got.Cmp(out.RewardAmount) != 0 {
			t.Fatalf("expected reward balance %s, got %s", out.RewardAmount, got)
		}
	}
	carolOut, err := h.engine.Withdraw(ctx, carol)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if carolOut.Winner || carolOut.RewardAmount.Sign() != 0 || carolOut.Interest.Sign() != 0 {
		t.Fatalf("carol missed segments and must not share rewards: %+v", carolOut)
	}
	if winnersIncentive.Cmp(units(9)) != 0 {
		t.Fatalf("expected the whole incentive shared, got %s", winnersIncentive)
	}
	if winnersInterest.Cmp(game.TotalGameInterest) > 0 {
		t.Fatalf("winners interest %s exceeds pool %s", winnersInterest, game.TotalGameInterest)
	}

	admin, err := h.engine.AdminFeeWithdraw(ctx, h.owner)
	if err != nil {
		t.Fatalf("admin withdraw: %v", err)
	}
	if admin.IncentiveAmount.Sign() != 0 || admin.InterestPortion.Sign() != 0 {
		t.Fatalf("admin must not take winner shares: %+v", admin)
	}
	rewardDust := new(big.Int).Sub(game.RewardAmount, new(big.Int).Add(winnersReward, admin.RewardAmount))
	if rewardDust.Sign() < 0 || rewardDust.Cmp(big.NewInt(2)) > 0 {
		t.Fatalf("unexpected reward dust %s", rewardDust)
	}
	if got := h.balance(h.owner, "GOV"); got.Cmp(admin.RewardAmount) != 0 {
		t.Fatalf("expected admin reward balance %s, got %s", admin.RewardAmount, got)
	}
}
