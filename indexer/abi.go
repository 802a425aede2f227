package indexer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mikeydub/go-indexer/service/persist"
)

// wordSize is the width of one ABI slot
const wordSize = 32

// wordToUint256 reads a 32-byte big-endian word as an unsigned integer,
// returning nil when the slice is too short
func wordToUint256(word []byte) *big.Int {
	if len(word) < wordSize {
		return nil
	}
	return new(big.Int).SetBytes(word[:wordSize])
}

// wordToAddress reads the low 20 bytes of a 32-byte word as a checksummed
// address, returning "" when the slice is too short
func wordToAddress(word []byte) persist.Address {
	if len(word) < wordSize {
		return ""
	}
	return persist.Address(common.BytesToAddress(word[wordSize-common.AddressLength : wordSize]).Hex())
}

// decodeUint256Array reads a dynamic uint256[] whose head starts at the given
// byte offset: the word at offset holds the length L, followed by L words.
// Returns nil when the data cannot carry the declared layout.
func decodeUint256Array(data []byte, offset uint64) []*big.Int {
	// offset and length come straight from log data, so every bound is
	// checked by subtraction to keep oversized values from wrapping around
	size := uint64(len(data))
	if offset > size || size-offset < wordSize {
		return nil
	}

	length := new(big.Int).SetBytes(data[offset : offset+wordSize])
	if !length.IsUint64() {
		return nil
	}
	l := length.Uint64()
	if l > (size-offset-wordSize)/wordSize {
		return nil
	}

	result := make([]*big.Int, l)
	for i := uint64(0); i < l; i++ {
		start := offset + wordSize + i*wordSize
		result[i] = new(big.Int).SetBytes(data[start : start+wordSize])
	}
	return result
}
