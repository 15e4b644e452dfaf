package statedb

import (
	"github.com/colorfulnotion/evmhost/common"
	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// stateObject is the in-transaction view of one address.
type stateObject struct {
	address ethereumCommon.Address
	data    Account
	origin  *Account // committed record, nil if absent from the backend
	exists  bool
	// fresh objects were (re)created in this transaction; their storage
	// starts empty and the backend is never consulted for it.
	fresh bool

	code       []byte
	codeLoaded bool
	dirtyCode  bool

	committed    map[ethereumCommon.Hash]ethereumCommon.Hash
	dirtyStorage map[ethereumCommon.Hash]ethereumCommon.Hash

	selfDestructed bool
	dirty          bool
}

func newObject(addr ethereumCommon.Address, origin *Account) *stateObject {
	obj := &stateObject{
		address:      addr,
		origin:       origin,
		exists:       origin != nil,
		committed:    make(map[ethereumCommon.Hash]ethereumCommon.Hash),
		dirtyStorage: make(map[ethereumCommon.Hash]ethereumCommon.Hash),
	}
	if origin != nil {
		obj.data = *origin.Copy()
	} else {
		obj.data = *NewAccount()
	}
	if obj.data.CodeHash == (ethereumCommon.Hash{}) {
		obj.data.CodeHash = common.EmptyCodeHash
	}
	return obj
}

func (o *stateObject) empty() bool {
	return o.data.Empty()
}

func (o *stateObject) hasCode() bool {
	return o.data.CodeHash != common.EmptyCodeHash
}

func (o *stateObject) balance() *uint256.Int {
	return new(uint256.Int).Set(o.data.Balance)
}

func (o *stateObject) setBalance(amount *uint256.Int) {
	o.data.Balance = new(uint256.Int).Set(amount)
	o.dirty = true
}

func (o *stateObject) setNonce(nonce uint64) {
	o.data.Nonce = nonce
	o.dirty = true
}

func (o *stateObject) setCode(hash ethereumCommon.Hash, code []byte) {
	o.code = code
	o.codeLoaded = true
	o.data.CodeHash = hash
	o.dirtyCode = true
	o.dirty = true
}
