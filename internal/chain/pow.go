package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

// Difficulty is the number of leading zero hex digits a block hash must have.
const Difficulty = 4

const maxNonce = math.MaxInt64

// ProofOfWork searches for a nonce that makes the block's hash meet the
// difficulty target. The hash covers exactly {previous hash, transaction
// digest, nonce}, so it is a pure function of the block's linkage and
// content.
type ProofOfWork struct {
	block  *Block
	prefix string
}

// NewProofOfWork prepares a puzzle for the block at the package difficulty.
func NewProofOfWork(b *Block) *ProofOfWork {
	return &ProofOfWork{
		block:  b,
		prefix: strings.Repeat("0", Difficulty),
	}
}

func (pow *ProofOfWork) prepareData(nonce int) []byte {
	return bytes.Join([][]byte{
		[]byte(pow.block.PrevHash),
		pow.block.HashTransactions(),
		[]byte(strconv.FormatInt(int64(nonce), 16)),
	}, nil)
}

// Run searches nonces from zero upwards and returns the first nonce and hex
// hash satisfying the target. It blocks the calling goroutine for the whole
// search.
func (pow *ProofOfWork) Run() (int, string) {
	for nonce := 0; nonce < maxNonce; nonce++ {
		sum := sha256.Sum256(pow.prepareData(nonce))
		hash := hex.EncodeToString(sum[:])
		if strings.HasPrefix(hash, pow.prefix) {
			return nonce, hash
		}
	}

	// With a 64-bit nonce space the loop above always terminates first.
	return 0, ""
}

// Validate recomputes the hash for the block's recorded nonce and checks it
// matches both the stored hash and the difficulty target.
func (pow *ProofOfWork) Validate() bool {
	sum := sha256.Sum256(pow.prepareData(pow.block.Nonce))
	hash := hex.EncodeToString(sum[:])

	return hash == pow.block.Hash && strings.HasPrefix(hash, pow.prefix)
}
