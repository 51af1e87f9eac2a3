package engine

import (
	"SynthLedger/internal/event"
	"SynthLedger/internal/ledger"
	"crypto/sha256"
	"encoding/binary"
)

const GenesisHashSeed = "SynthLedger:genesis:v1"

// GenesisHash is the chain tip before the first operation.
func GenesisHash() event.Hash {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// StateHasher computes deterministic state hashes
type StateHasher struct {
	prevHash event.Hash
}

// NewStateHasher initializes with genesis hash
func NewStateHasher() *StateHasher {
	return &StateHasher{
		prevHash: GenesisHash(),
	}
}

// ComputeHash calculates state_hash[N] = SHA-256(prev_hash || sequence || state_digest)
// and advances the tip. Callers that need prev_hash must read Tip first.
func (h *StateHasher) ComputeHash(sequence int64, stateDigest []byte) event.Hash {
	hasher := sha256.New()

	// Write prev_hash (32 bytes)
	hasher.Write(h.prevHash[:])

	// Write sequence (8 bytes LE)
	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	// Write state digest
	hasher.Write(stateDigest)

	var hash event.Hash
	copy(hash[:], hasher.Sum(nil))

	// Update prev_hash for next iteration
	h.prevHash = hash

	return hash
}

// Tip returns current chain tip
func (h *StateHasher) Tip() event.Hash {
	return h.prevHash
}

// Reset moves the tip, e.g. to a snapshot's state hash.
func (h *StateHasher) Reset(tip event.Hash) {
	h.prevHash = tip
}

// stateDigest creates canonical bytes over the given accounts: for each, a
// length-prefixed account path and the 32-byte big-endian balance.
func stateDigest(l *ledger.Ledger, accounts []ledger.AccountKey) []byte {
	digest := make([]byte, 0, len(accounts)*96)

	for _, key := range accounts {
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, path...)

		balance := l.Balance(key).Bytes32()
		digest = append(digest, balance[:]...)
	}

	return digest
}
