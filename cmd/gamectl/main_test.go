package main

import (
	"bytes"
	"encoding/json"
	"math/big"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"savingsgame/core/events"
	"savingsgame/crypto"
	"savingsgame/native/savings"
	"savingsgame/services/gamed/archive"
)

func testAddr(b byte) crypto.Address {
	var raw [20]byte
	raw[0] = 0x77
	raw[19] = b
	return crypto.AddressFromArray(raw)
}

func TestWhitelistOutputVerifies(t *testing.T) {
	players := []crypto.Address{testAddr(1), testAddr(2), testAddr(3)}
	input := "# season one\n" + players[0].String() + "\n\n" + players[1].String() + "\n" + players[2].String() + "\n"

	var out bytes.Buffer
	require.NoError(t, runWhitelist(nil, strings.NewReader(input), &out))

	var decoded whitelistOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded.Entries, 3)
	root := common.HexToHash(decoded.Root)
	for i, entry := range decoded.Entries {
		require.Equal(t, uint64(i), entry.Index)
		require.Equal(t, players[i].String(), entry.Address)
		proof := make([]common.Hash, len(entry.Proof))
		for j, node := range entry.Proof {
			proof[j] = common.HexToHash(node)
		}
		require.True(t, savings.VerifyWhitelistProof(root, entry.Index, players[i].Array(), proof))
	}
}

func TestWhitelistRejectsGarbage(t *testing.T) {
	_, err := buildWhitelist(strings.NewReader("not-an-address\n"))
	require.ErrorContains(t, err, "line 1")

	_, err = buildWhitelist(strings.NewReader("\n# only comments\n"))
	require.Error(t, err)
}

func TestTokenClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	claims := tokenClaims("sub", "savings", "", []string{"admin", "ops"}, time.Hour, now)
	require.Equal(t, "sub", claims["sub"])
	require.Equal(t, "savings", claims["iss"])
	require.NotContains(t, claims, "aud")
	require.Equal(t, "admin ops", claims["scope"])
	require.Equal(t, now.Add(time.Hour).Unix(), claims["exp"])
}

func TestRunTokenRequiresSecret(t *testing.T) {
	t.Setenv("GAMECTL_TEST_SECRET", "")
	err := runToken([]string{"-subject", testAddr(1).String(), "-secret-env", "GAMECTL_TEST_SECRET"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "GAMECTL_TEST_SECRET")

	t.Setenv("GAMECTL_TEST_SECRET", "s")
	var out bytes.Buffer
	require.NoError(t, runToken([]string{"-subject", testAddr(1).String(), "-secret-env", "GAMECTL_TEST_SECRET"}, &out))
	require.Equal(t, 3, len(strings.Split(strings.TrimSpace(out.String()), ".")))
}

func TestExportAndAudit(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.db")
	store, err := archive.Open(dsn, nil)
	require.NoError(t, err)
	store.Emit(events.SavingsJoined{Player: testAddr(1).Array(), Amount: big.NewInt(1)})
	require.NoError(t, store.Close())

	var out bytes.Buffer
	require.NoError(t, runAudit([]string{"-archive", dsn}, &out))
	require.Contains(t, out.String(), "1 events")

	out.Reset()
	target := filepath.Join(t.TempDir(), "events.parquet")
	require.NoError(t, runExport([]string{"-archive", dsn, "-out", target}, &out))
	require.Contains(t, out.String(), "Wrote 1 events")
}
