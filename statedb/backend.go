package statedb

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/evmhost/common"
	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Account is the committed record of an address. CodeHash is the empty code
// hash for accounts without code.
type Account struct {
	Nonce    uint64
	Balance  *uint256.Int
	CodeHash ethereumCommon.Hash
}

func NewAccount() *Account {
	return &Account{Balance: new(uint256.Int), CodeHash: common.EmptyCodeHash}
}

func (a *Account) Copy() *Account {
	if a == nil {
		return nil
	}
	cpy := *a
	cpy.Balance = new(uint256.Int)
	if a.Balance != nil {
		cpy.Balance.Set(a.Balance)
	}
	return &cpy
}

// Empty is the EIP-161 notion: no nonce, no balance, no code.
func (a *Account) Empty() bool {
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.IsZero()) && (a.CodeHash == common.EmptyCodeHash || a.CodeHash == ethereumCommon.Hash{})
}

// Backend resolves committed state. A missing account is (nil, nil) and a
// missing slot is the zero hash; errors mean the backend could not answer.
type Backend interface {
	Account(ctx context.Context, addr ethereumCommon.Address) (*Account, error)
	Storage(ctx context.Context, addr ethereumCommon.Address, key ethereumCommon.Hash) (ethereumCommon.Hash, error)
	Code(ctx context.Context, codeHash ethereumCommon.Hash) ([]byte, error)
	BlockHash(ctx context.Context, number uint64) (ethereumCommon.Hash, bool, error)
}

// Writer receives the result of StateDB.Commit. A zero storage value deletes
// the slot.
type Writer interface {
	WriteAccount(addr ethereumCommon.Address, acct *Account) error
	WriteStorage(addr ethereumCommon.Address, key, value ethereumCommon.Hash) error
	WriteCode(codeHash ethereumCommon.Hash, code []byte) error
	// DeleteAccount removes the account record and all of its storage.
	DeleteAccount(addr ethereumCommon.Address) error
}

// LoadAlloc seeds a writer with a genesis-style allocation.
func LoadAlloc(w Writer, alloc types.GenesisAlloc) error {
	for addr, ga := range alloc {
		acct := NewAccount()
		acct.Nonce = ga.Nonce
		if ga.Balance != nil {
			bal, overflow := uint256.FromBig(ga.Balance)
			if overflow {
				return fmt.Errorf("alloc %s: balance overflows 256 bits", addr)
			}
			acct.Balance = bal
		}
		if len(ga.Code) > 0 {
			acct.CodeHash = common.Keccak256(ga.Code)
			if err := w.WriteCode(acct.CodeHash, ga.Code); err != nil {
				return err
			}
		}
		for k, v := range ga.Storage {
			if err := w.WriteStorage(addr, k, v); err != nil {
				return err
			}
		}
		if err := w.WriteAccount(addr, acct); err != nil {
			return err
		}
	}
	return nil
}
