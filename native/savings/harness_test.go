package savings

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"savingsgame/core/events"
	"savingsgame/core/state"
	"savingsgame/crypto"
	"savingsgame/native/savings/strategy"
	"savingsgame/storage"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	t       *testing.T
	engine  *Engine
	state   *state.Manager
	clock   *testClock
	events  *events.Buffer
	adapter strategy.Adapter
	owner   [20]byte
	params  Params
}

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func makeAddr(b byte) [20]byte {
	var a [20]byte
	a[0] = 0x5A
	a[19] = b
	return a
}

func baseParams(owner [20]byte) Params {
	return Params{
		Token:                    "DAI",
		Owner:                    crypto.AddressFromArray(owner).String(),
		DepositCount:             3,
		SegmentLength:            600,
		WaitingRoundLength:       300,
		SegmentPayment:           units(10),
		EarlyExitFeePercent:      1,
		AdminFeePercent:          1,
		MaxPlayers:               10,
		DepositRoundSharePercent: new(big.Int).Div(PrecisionScalar, big.NewInt(2)),
	}
}

func newHarness(t *testing.T, adapter strategy.Adapter, mutate func(*Params)) *harness {
	t.Helper()
	owner := makeAddr(0xFF)
	params := baseParams(owner)
	if mutate != nil {
		mutate(&params)
	}
	if adapter == nil {
		adapter = strategy.NewNoop()
	}

	st := state.NewManager(storage.NewMemDB())
	for _, token := range []struct {
		symbol, name string
	}{{"DAI", "Dai Stablecoin"}, {"GOV", "Governance"}, {"INC", "Incentive"}} {
		if err := st.RegisterToken(token.symbol, token.name, 18); err != nil {
			t.Fatalf("register %s: %v", token.symbol, err)
		}
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("commit tokens: %v", err)
	}

	engine, err := NewEngine(params, adapter)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	buf := events.NewBuffer(256)
	engine.SetState(st)
	engine.SetNowFunc(clock.Now)
	engine.SetEmitter(buf)
	engine.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := engine.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return &harness{
		t:       t,
		engine:  engine,
		state:   st,
		clock:   clock,
		events:  buf,
		adapter: adapter,
		owner:   owner,
		params:  engine.Params(),
	}
}

func (h *harness) fund(addr [20]byte, symbol string, amount *big.Int) {
	h.t.Helper()
	current := h.balance(addr, symbol)
	if err := h.state.SetBalance(addr[:], symbol, new(big.Int).Add(current, amount)); err != nil {
		h.t.Fatalf("fund: %v", err)
	}
	if err := h.state.Commit(); err != nil {
		h.t.Fatalf("fund commit: %v", err)
	}
}

func (h *harness) balance(addr [20]byte, symbol string) *big.Int {
	h.t.Helper()
	bal, err := h.state.Balance(addr[:], symbol)
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (h *harness) advanceSegments(n int) {
	h.clock.advance(time.Duration(n) * time.Duration(h.params.SegmentLength) * time.Second)
}

// complete moves the clock to the first second after the waiting round.
func (h *harness) complete() {
	h.t.Helper()
	clock, err := h.engine.Clock()
	if err != nil {
		h.t.Fatalf("clock: %v", err)
	}
	h.clock.now = time.Unix(int64(clock.CompletesAt()), 0)
}

func (h *harness) game() *Game {
	h.t.Helper()
	game, err := h.engine.Game()
	if err != nil {
		h.t.Fatalf("game: %v", err)
	}
	return game
}

func (h *harness) player(addr [20]byte) *Player {
	h.t.Helper()
	p, err := h.engine.Player(addr)
	if err != nil {
		h.t.Fatalf("player: %v", err)
	}
	return p
}

func (h *harness) mustJoin(addr [20]byte, amount *big.Int) {
	h.t.Helper()
	if amount == nil {
		h.fund(addr, "DAI", h.params.SegmentPayment)
	} else {
		h.fund(addr, "DAI", amount)
	}
	if err := h.engine.Join(context.Background(), addr, amount); err != nil {
		h.t.Fatalf("join: %v", err)
	}
}

func (h *harness) mustDeposit(addr [20]byte) {
	h.t.Helper()
	p := h.player(addr)
	h.fund(addr, "DAI", p.SegmentPayment)
	if err := h.engine.MakeDeposit(context.Background(), addr, nil); err != nil {
		h.t.Fatalf("deposit: %v", err)
	}
}

// checkInvariants verifies the ledger aggregates against the player records.
func (h *harness) checkInvariants() {
	h.t.Helper()
	game := h.game()
	players, err := h.engine.Players()
	if err != nil {
		h.t.Fatalf("players: %v", err)
	}
	n := h.params.DepositCount
	sumPaid, sumNet := big.NewInt(0), big.NewInt(0)
	indexSums := make([]*big.Int, n)
	depositSums := make([]*big.Int, n)
	for i := range indexSums {
		indexSums[i], depositSums[i] = big.NewInt(0), big.NewInt(0)
	}
	var active uint64
	for _, addr := range players {
		p := h.player(addr)
		sumPaid.Add(sumPaid, p.AmountPaid)
		sumNet.Add(sumNet, p.NetAmountPaid)
		if p.Status != PlayerActive && p.Status != PlayerSettled {
			if len(p.Index) != 0 || p.AmountPaid.Sign() != 0 {
				h.t.Fatalf("exited player %x keeps contributions", addr)
			}
			continue
		}
		active++
		for s := range p.Index {
			indexSums[s].Add(indexSums[s], p.Index[s])
			depositSums[s].Add(depositSums[s], p.Deposits[s])
		}
	}
	if sumPaid.Cmp(game.TotalGamePrincipal) != 0 {
		h.t.Fatalf("principal drift: players %s, game %s", sumPaid, game.TotalGamePrincipal)
	}
	if sumNet.Cmp(game.NetTotalGamePrincipal) != 0 {
		h.t.Fatalf("net principal drift: players %s, game %s", sumNet, game.NetTotalGamePrincipal)
	}
	for s := uint64(0); s < n; s++ {
		if indexSums[s].Cmp(game.CumulativePlayerIndexSum[s]) != 0 {
			h.t.Fatalf("index drift at segment %d: players %s, game %s", s, indexSums[s], game.CumulativePlayerIndexSum[s])
		}
		if depositSums[s].Cmp(game.SegmentWinnerDeposits[s]) != 0 {
			h.t.Fatalf("deposit drift at segment %d: players %s, game %s", s, depositSums[s], game.SegmentWinnerDeposits[s])
		}
	}
	if active != game.ActivePlayers {
		h.t.Fatalf("active players: counted %d, game %d", active, game.ActivePlayers)
	}
	if game.ActivePlayers > h.params.MaxPlayers {
		h.t.Fatalf("active players %d exceed cap %d", game.ActivePlayers, h.params.MaxPlayers)
	}
}

func (h *harness) eventTypes() []string {
	var out []string
	for _, evt := range h.events.Events() {
		out = append(out, evt.Type)
	}
	return out
}
