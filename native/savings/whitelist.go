package savings

import (
	"bytes"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// WhitelistLeaf computes the Merkle leaf for a whitelist slot.
func WhitelistLeaf(index uint64, player [20]byte) common.Hash {
	var buf [28]byte
	binary.BigEndian.PutUint64(buf[:8], index)
	copy(buf[8:], player[:])
	return ethcrypto.Keccak256Hash(buf[:])
}

// HashPair hashes two sibling nodes in sorted order.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return ethcrypto.Keccak256Hash(a[:], b[:])
}

// VerifyWhitelistProof reports whether (index, player) is committed to by
// root.
func VerifyWhitelistProof(root common.Hash, index uint64, player [20]byte, proof []common.Hash) bool {
	if root == (common.Hash{}) {
		return false
	}
	node := WhitelistLeaf(index, player)
	for _, sibling := range proof {
		node = HashPair(node, sibling)
	}
	return node == root
}

// BuildWhitelist commits players to a Merkle root, assigning slot i to
// players[i], and returns one proof per slot. Odd nodes are carried up
// unchanged.
func BuildWhitelist(players [][20]byte) (common.Hash, [][]common.Hash) {
	if len(players) == 0 {
		return common.Hash{}, nil
	}
	leaves := make([]common.Hash, len(players))
	for i, p := range players {
		leaves[i] = WhitelistLeaf(uint64(i), p)
	}
	proofs := make([][]common.Hash, len(leaves))
	positions := make([]int, len(leaves))
	for i := range positions {
		positions[i] = i
	}
	level := leaves
	for len(level) > 1 {
		for leaf, pos := range positions {
			if sibling := pos ^ 1; sibling < len(level) {
				proofs[leaf] = append(proofs[leaf], level[sibling])
			}
			positions[leaf] = pos / 2
		}
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, HashPair(level[i], level[i+1]))
		}
		level = next
	}
	return level[0], proofs
}

// claimedSlot is the persisted record of a consumed whitelist index.
type claimedSlot struct {
	Player [20]byte
}

func whitelistSlotKey(index uint64) []byte {
	key := make([]byte, len(whitelistPrefix)+8)
	copy(key, whitelistPrefix)
	binary.BigEndian.PutUint64(key[len(whitelistPrefix):], index)
	return key
}

// checkWhitelistSlot validates the proof, then the claimed-index set. A slot can
// be presented again only by the player who claimed it, and only to rejoin.
func (e *Engine) checkWhitelistSlot(player *Player, index uint64, proof []common.Hash) error {
	if !e.params.WhitelistEnabled() {
		return ErrWhitelistDisabled
	}
	if !VerifyWhitelistProof(e.params.WhitelistRoot, index, player.Address, proof) {
		return ErrInvalidProof
	}
	var slot claimedSlot
	claimed, err := e.state.KVGet(whitelistSlotKey(index), &slot)
	if err != nil {
		return err
	}
	if claimed {
		rejoin := slot.Player == player.Address && player.Status == PlayerExited && player.CanRejoin
		if !rejoin {
			return ErrIndexClaimed
		}
	}
	return nil
}

func (e *Engine) claimWhitelistSlot(index uint64, player [20]byte) error {
	return e.state.KVPut(whitelistSlotKey(index), &claimedSlot{Player: player})
}
