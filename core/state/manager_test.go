package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"savingsgame/storage"
)

type record struct {
	Name  string
	Value *big.Int
	Flag  bool
}

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	mgr := NewManager(db)
	require.NoError(t, mgr.RegisterToken("dai", "Dai Stablecoin", 18))
	require.NoError(t, mgr.Commit())
	return mgr, db
}

func TestKVRoundTripAndCommit(t *testing.T) {
	mgr, db := newTestManager(t)

	require.NoError(t, mgr.KVPut([]byte("rec"), &record{Name: "a", Value: big.NewInt(7), Flag: true}))
	require.Equal(t, 1, mgr.Pending())

	var got record
	ok, err := mgr.KVGet([]byte("rec"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", got.Name)
	require.Equal(t, int64(7), got.Value.Int64())

	// Nothing reaches the database before Commit.
	fresh := NewManager(db)
	ok, err = fresh.KVGet([]byte("rec"), &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.Commit())
	require.Zero(t, mgr.Pending())

	ok, err = fresh.KVGet([]byte("rec"), &got)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRevertToSnapshotRestoresPriorValues(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := []byte("player-0000000000001")

	require.NoError(t, mgr.SetBalance(addr, "DAI", big.NewInt(100)))
	snap := mgr.Snapshot()

	require.NoError(t, mgr.SetBalance(addr, "DAI", big.NewInt(40)))
	require.NoError(t, mgr.KVPut([]byte("later"), &record{Name: "x", Value: big.NewInt(1)}))

	mgr.RevertToSnapshot(snap)

	bal, err := mgr.Balance(addr, "dai")
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.Int64())

	ok, err := mgr.KVGet([]byte("later"), nil)
	require.NoError(t, err)
	require.False(t, ok)

	mgr.RevertToSnapshot(0)
	bal, err = mgr.Balance(addr, "DAI")
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}

func TestTransfer(t *testing.T) {
	mgr, _ := newTestManager(t)
	from := []byte("from-000000000000001")
	to := []byte("to-00000000000000001")

	require.NoError(t, mgr.SetBalance(from, "DAI", big.NewInt(10)))
	require.Error(t, mgr.Transfer(from, to, "DAI", big.NewInt(11)))
	require.NoError(t, mgr.Transfer(from, to, "DAI", big.NewInt(4)))

	fromBal, err := mgr.Balance(from, "DAI")
	require.NoError(t, err)
	toBal, err := mgr.Balance(to, "DAI")
	require.NoError(t, err)
	require.Equal(t, int64(6), fromBal.Int64())
	require.Equal(t, int64(4), toBal.Int64())
}

func TestSetBalanceRejectsUnknownTokenAndOverflow(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := []byte("player-0000000000001")

	require.ErrorIs(t, mgr.SetBalance(addr, "USDC", big.NewInt(1)), ErrTokenNotRegistered)

	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	require.Error(t, mgr.SetBalance(addr, "DAI", huge))
	require.Error(t, mgr.SetBalance(addr, "DAI", big.NewInt(-1)))
}

func TestRegisterTokenIdempotent(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.RegisterToken("DAI", "Dai Stablecoin", 18))
	require.Error(t, mgr.RegisterToken("DAI", "Other", 6))

	list, err := mgr.TokenList()
	require.NoError(t, err)
	require.Equal(t, []string{"DAI"}, list)

	ok, err := mgr.HasToken(" dai ")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = mgr.HasToken("USDC")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVAppendDeduplicates(t *testing.T) {
	mgr, _ := newTestManager(t)
	key := []byte("players")
	require.NoError(t, mgr.KVAppend(key, []byte{1}))
	require.NoError(t, mgr.KVAppend(key, []byte{2}))
	require.NoError(t, mgr.KVAppend(key, []byte{1}))

	list, err := mgr.KVGetList(key)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{1}, {2}}, list)
}
