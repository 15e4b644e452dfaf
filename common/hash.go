package common

import (
	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// EmptyCodeHash is the keccak256 of empty code.
var EmptyCodeHash = Keccak256(nil)

func Keccak256(data ...[]byte) ethereumCommon.Hash {
	hash := sha3.NewLegacyKeccak256()
	for _, b := range data {
		hash.Write(b)
	}
	return ethereumCommon.BytesToHash(hash.Sum(nil))
}

func IsNilHash(h ethereumCommon.Hash) bool {
	return h == ethereumCommon.Hash{}
}
