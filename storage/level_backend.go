package storage

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/evmhost/common"
	"github.com/colorfulnotion/evmhost/log"
	"github.com/colorfulnotion/evmhost/statedb"
	"github.com/colorfulnotion/evmhost/vmerrors"
	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Key layout:
//
//	"a" | address          -> rlp(accountRecord)
//	"s" | address | slot   -> trimmed value bytes
//	"c" | code hash        -> code
//	"h" | be64(number)     -> block hash
var (
	accountPrefix   = []byte("a")
	storagePrefix   = []byte("s")
	codePrefix      = []byte("c")
	blockHashPrefix = []byte("h")
)

type accountRecord struct {
	Nonce    uint64
	Balance  *uint256.Int
	CodeHash ethereumCommon.Hash
}

func accountKey(addr ethereumCommon.Address) []byte {
	return append(append([]byte{}, accountPrefix...), addr.Bytes()...)
}

func storageKey(addr ethereumCommon.Address, slot ethereumCommon.Hash) []byte {
	k := append(append([]byte{}, storagePrefix...), addr.Bytes()...)
	return append(k, slot.Bytes()...)
}

func codeKey(hash ethereumCommon.Hash) []byte {
	return append(append([]byte{}, codePrefix...), hash.Bytes()...)
}

func blockHashKey(number uint64) []byte {
	return append(append([]byte{}, blockHashPrefix...), common.EncodeUint64(number)...)
}

// LevelBackend persists committed state in a PersistenceStore.
type LevelBackend struct {
	store *PersistenceStore
}

func NewLevelBackend(store *PersistenceStore) *LevelBackend {
	return &LevelBackend{store: store}
}

// OpenLevelBackend opens the database at path; an empty path is in-memory.
func OpenLevelBackend(path string) (*LevelBackend, error) {
	store, err := NewPersistenceStore(path)
	if err != nil {
		return nil, err
	}
	return NewLevelBackend(store), nil
}

func (b *LevelBackend) Close() error {
	return b.store.Close()
}

func (b *LevelBackend) Account(_ context.Context, addr ethereumCommon.Address) (*statedb.Account, error) {
	data, ok, err := b.store.Get(accountKey(addr))
	if err != nil {
		return nil, fmt.Errorf("account %s: %w: %v", addr, vmerrors.ErrBackendUnavailable, err)
	}
	if !ok {
		return nil, nil
	}
	var rec accountRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, fmt.Errorf("account %s: %w: %v", addr, vmerrors.ErrCorruptRecord, err)
	}
	if rec.Balance == nil {
		rec.Balance = new(uint256.Int)
	}
	return &statedb.Account{Nonce: rec.Nonce, Balance: rec.Balance, CodeHash: rec.CodeHash}, nil
}

func (b *LevelBackend) Storage(_ context.Context, addr ethereumCommon.Address, slot ethereumCommon.Hash) (ethereumCommon.Hash, error) {
	data, ok, err := b.store.Get(storageKey(addr, slot))
	if err != nil {
		return ethereumCommon.Hash{}, fmt.Errorf("storage %s/%s: %w: %v", addr, slot, vmerrors.ErrBackendUnavailable, err)
	}
	if !ok {
		return ethereumCommon.Hash{}, nil
	}
	if len(data) > ethereumCommon.HashLength {
		return ethereumCommon.Hash{}, fmt.Errorf("storage %s/%s: %d bytes: %w", addr, slot, len(data), vmerrors.ErrCorruptRecord)
	}
	return ethereumCommon.BytesToHash(data), nil
}

func (b *LevelBackend) Code(_ context.Context, hash ethereumCommon.Hash) ([]byte, error) {
	if hash == common.EmptyCodeHash {
		return nil, nil
	}
	data, ok, err := b.store.Get(codeKey(hash))
	if err != nil {
		return nil, fmt.Errorf("code %s: %w: %v", hash, vmerrors.ErrBackendUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("code %s: missing: %w", hash, vmerrors.ErrCorruptRecord)
	}
	return data, nil
}

func (b *LevelBackend) BlockHash(_ context.Context, number uint64) (ethereumCommon.Hash, bool, error) {
	data, ok, err := b.store.Get(blockHashKey(number))
	if err != nil {
		return ethereumCommon.Hash{}, false, fmt.Errorf("block hash %d: %w: %v", number, vmerrors.ErrBackendUnavailable, err)
	}
	if !ok {
		return ethereumCommon.Hash{}, false, nil
	}
	return ethereumCommon.BytesToHash(data), true, nil
}

func (b *LevelBackend) WriteAccount(addr ethereumCommon.Address, acct *statedb.Account) error {
	data, err := rlp.EncodeToBytes(&accountRecord{Nonce: acct.Nonce, Balance: acct.Balance, CodeHash: acct.CodeHash})
	if err != nil {
		return err
	}
	log.Trace(log.StorageMonitoring, "write account", "addr", addr, "nonce", acct.Nonce)
	return b.store.Put(accountKey(addr), data)
}

func (b *LevelBackend) WriteStorage(addr ethereumCommon.Address, slot, value ethereumCommon.Hash) error {
	if common.IsNilHash(value) {
		return b.store.Delete(storageKey(addr, slot))
	}
	return b.store.Put(storageKey(addr, slot), ethereumCommon.TrimLeftZeroes(value.Bytes()))
}

func (b *LevelBackend) WriteCode(hash ethereumCommon.Hash, code []byte) error {
	return b.store.Put(codeKey(hash), code)
}

func (b *LevelBackend) DeleteAccount(addr ethereumCommon.Address) error {
	prefix := append(append([]byte{}, storagePrefix...), addr.Bytes()...)
	n, err := b.store.DeletePrefix(prefix)
	if err != nil {
		return err
	}
	log.Debug(log.StorageMonitoring, "delete account", "addr", addr, "slots", n)
	return b.store.Delete(accountKey(addr))
}

func (b *LevelBackend) WriteBlockHash(number uint64, hash ethereumCommon.Hash) error {
	return b.store.Put(blockHashKey(number), hash.Bytes())
}

// Stats counts stored accounts, slots and code blobs.
func (b *LevelBackend) Stats() (accounts, slots, codes int, err error) {
	count := func(p []byte) (int, error) {
		kvs, err := b.store.GetWithPrefix(p)
		return len(kvs), err
	}
	if accounts, err = count(accountPrefix); err != nil {
		return
	}
	if slots, err = count(storagePrefix); err != nil {
		return
	}
	codes, err = count(codePrefix)
	return
}
