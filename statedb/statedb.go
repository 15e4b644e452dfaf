package statedb

import (
	"context"
	"errors"
	"fmt"

	"github.com/colorfulnotion/evmhost/common"
	"github.com/colorfulnotion/evmhost/log"
	"github.com/colorfulnotion/evmhost/vmerrors"
	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"
)

type blockHashEntry struct {
	hash      ethereumCommon.Hash
	available bool
}

// StateDB is the journaled state of one transaction. It is not safe for
// concurrent use; the host serialises every access.
type StateDB struct {
	backend Backend

	objects     map[ethereumCommon.Address]*stateObject
	blockHashes map[uint64]blockHashEntry
	logs        []*types.Log
	accessList  *accessList
	journal     *journal

	backendReads int
}

func New(backend Backend) *StateDB {
	return &StateDB{
		backend:     backend,
		objects:     make(map[ethereumCommon.Address]*stateObject),
		blockHashes: make(map[uint64]blockHashEntry),
		accessList:  newAccessList(),
		journal:     newJournal(),
	}
}

// backendErr marks err as a transaction-fatal backend failure unless the
// backend already classified it.
func backendErr(op string, err error) error {
	if vmerrors.IsHostError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, vmerrors.ErrCancelled, err)
	}
	return fmt.Errorf("%s: %w: %v", op, vmerrors.ErrBackendUnavailable, err)
}

// BackendReads counts how many times the backend was consulted.
func (s *StateDB) BackendReads() int {
	return s.backendReads
}

func (s *StateDB) getObject(ctx context.Context, addr ethereumCommon.Address) (*stateObject, error) {
	if obj := s.objects[addr]; obj != nil {
		return obj, nil
	}
	s.backendReads++
	acct, err := s.backend.Account(ctx, addr)
	if err != nil {
		return nil, backendErr(fmt.Sprintf("account %s", addr), err)
	}
	obj := newObject(addr, acct)
	s.objects[addr] = obj
	log.Trace(log.StateDBMonitoring, "loaded account", "addr", addr, "exists", obj.exists)
	return obj, nil
}

// getOrNewObject returns a live object, bringing a missing account into
// existence under the journal.
func (s *StateDB) getOrNewObject(ctx context.Context, addr ethereumCommon.Address) (*stateObject, error) {
	obj, err := s.getObject(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !obj.exists {
		obj.exists = true
		obj.dirty = true
		s.journal.append(createObjectChange{account: addr})
	}
	return obj, nil
}

func (s *StateDB) Exist(ctx context.Context, addr ethereumCommon.Address) (bool, error) {
	obj, err := s.getObject(ctx, addr)
	if err != nil {
		return false, err
	}
	return obj.exists, nil
}

// Empty reports whether addr is missing or EIP-161 empty.
func (s *StateDB) Empty(ctx context.Context, addr ethereumCommon.Address) (bool, error) {
	obj, err := s.getObject(ctx, addr)
	if err != nil {
		return false, err
	}
	return !obj.exists || obj.empty(), nil
}

func (s *StateDB) GetBalance(ctx context.Context, addr ethereumCommon.Address) (*uint256.Int, error) {
	obj, err := s.getObject(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !obj.exists {
		return new(uint256.Int), nil
	}
	return obj.balance(), nil
}

func (s *StateDB) AddBalance(ctx context.Context, addr ethereumCommon.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	obj, err := s.getOrNewObject(ctx, addr)
	if err != nil {
		return err
	}
	s.journal.append(balanceChange{account: addr, prev: obj.balance()})
	obj.setBalance(new(uint256.Int).Add(obj.data.Balance, amount))
	return nil
}

// SubBalance assumes the caller checked the balance.
func (s *StateDB) SubBalance(ctx context.Context, addr ethereumCommon.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	obj, err := s.getOrNewObject(ctx, addr)
	if err != nil {
		return err
	}
	if obj.data.Balance.Lt(amount) {
		return fmt.Errorf("sub balance %s: insufficient balance %s < %s", addr, obj.data.Balance, amount)
	}
	s.journal.append(balanceChange{account: addr, prev: obj.balance()})
	obj.setBalance(new(uint256.Int).Sub(obj.data.Balance, amount))
	return nil
}

func (s *StateDB) Transfer(ctx context.Context, from, to ethereumCommon.Address, amount *uint256.Int) error {
	if err := s.SubBalance(ctx, from, amount); err != nil {
		return err
	}
	return s.AddBalance(ctx, to, amount)
}

func (s *StateDB) GetNonce(ctx context.Context, addr ethereumCommon.Address) (uint64, error) {
	obj, err := s.getObject(ctx, addr)
	if err != nil {
		return 0, err
	}
	if !obj.exists {
		return 0, nil
	}
	return obj.data.Nonce, nil
}

func (s *StateDB) SetNonce(ctx context.Context, addr ethereumCommon.Address, nonce uint64) error {
	obj, err := s.getOrNewObject(ctx, addr)
	if err != nil {
		return err
	}
	s.journal.append(nonceChange{account: addr, prev: obj.data.Nonce})
	obj.setNonce(nonce)
	return nil
}

func (s *StateDB) GetCode(ctx context.Context, addr ethereumCommon.Address) ([]byte, error) {
	obj, err := s.getObject(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !obj.exists || !obj.hasCode() {
		return nil, nil
	}
	if !obj.codeLoaded {
		s.backendReads++
		code, err := s.backend.Code(ctx, obj.data.CodeHash)
		if err != nil {
			return nil, backendErr(fmt.Sprintf("code %s", addr), err)
		}
		if got := common.Keccak256(code); got != obj.data.CodeHash {
			return nil, fmt.Errorf("code %s: hash %s, want %s: %w", addr, got, obj.data.CodeHash, vmerrors.ErrCorruptRecord)
		}
		obj.code = code
		obj.codeLoaded = true
	}
	return obj.code, nil
}

// GetCodeHash returns the zero hash for missing accounts.
func (s *StateDB) GetCodeHash(ctx context.Context, addr ethereumCommon.Address) (ethereumCommon.Hash, error) {
	obj, err := s.getObject(ctx, addr)
	if err != nil {
		return ethereumCommon.Hash{}, err
	}
	if !obj.exists {
		return ethereumCommon.Hash{}, nil
	}
	return obj.data.CodeHash, nil
}

func (s *StateDB) SetCode(ctx context.Context, addr ethereumCommon.Address, code []byte) error {
	obj, err := s.getOrNewObject(ctx, addr)
	if err != nil {
		return err
	}
	s.journal.append(codeChange{
		account:       addr,
		prevCode:      obj.code,
		prevHash:      obj.data.CodeHash,
		prevDirtyCode: obj.dirtyCode,
	})
	obj.setCode(common.Keccak256(code), code)
	return nil
}

// GetCommittedState returns the value a slot had when the transaction began.
func (s *StateDB) GetCommittedState(ctx context.Context, addr ethereumCommon.Address, key ethereumCommon.Hash) (ethereumCommon.Hash, error) {
	obj, err := s.getObject(ctx, addr)
	if err != nil {
		return ethereumCommon.Hash{}, err
	}
	if obj.fresh || obj.origin == nil {
		return ethereumCommon.Hash{}, nil
	}
	if value, ok := obj.committed[key]; ok {
		return value, nil
	}
	s.backendReads++
	value, err := s.backend.Storage(ctx, addr, key)
	if err != nil {
		return ethereumCommon.Hash{}, backendErr(fmt.Sprintf("storage %s/%s", addr, key), err)
	}
	obj.committed[key] = value
	return value, nil
}

func (s *StateDB) GetState(ctx context.Context, addr ethereumCommon.Address, key ethereumCommon.Hash) (ethereumCommon.Hash, error) {
	obj, err := s.getObject(ctx, addr)
	if err != nil {
		return ethereumCommon.Hash{}, err
	}
	if value, ok := obj.dirtyStorage[key]; ok {
		return value, nil
	}
	return s.GetCommittedState(ctx, addr, key)
}

func (s *StateDB) SetState(ctx context.Context, addr ethereumCommon.Address, key, value ethereumCommon.Hash) error {
	obj, err := s.getOrNewObject(ctx, addr)
	if err != nil {
		return err
	}
	prev, prevDirty := obj.dirtyStorage[key]
	s.journal.append(storageChange{account: addr, key: key, prev: prev, prevDirty: prevDirty})
	obj.dirtyStorage[key] = value
	return nil
}

// CreateAccount replaces addr with a fresh account carrying over only the
// balance. Storage of the new account starts empty.
func (s *StateDB) CreateAccount(ctx context.Context, addr ethereumCommon.Address) error {
	prev, err := s.getObject(ctx, addr)
	if err != nil {
		return err
	}
	obj := newObject(addr, nil)
	obj.origin = prev.origin
	obj.exists = true
	obj.fresh = true
	obj.dirty = true
	if prev.exists {
		obj.data.Balance = prev.balance()
	}
	s.journal.append(resetObjectChange{account: addr, prev: prev})
	s.objects[addr] = obj
	return nil
}

// SelfDestruct marks addr for deletion at commit and clears its balance.
// It returns whether addr had already been marked.
func (s *StateDB) SelfDestruct(ctx context.Context, addr ethereumCommon.Address) (bool, error) {
	obj, err := s.getObject(ctx, addr)
	if err != nil {
		return false, err
	}
	if !obj.exists {
		return false, nil
	}
	prev := obj.selfDestructed
	s.journal.append(selfDestructChange{account: addr, prev: prev, prevBalance: obj.balance()})
	obj.selfDestructed = true
	obj.data.Balance = new(uint256.Int)
	obj.dirty = true
	return prev, nil
}

func (s *StateDB) HasSelfDestructed(addr ethereumCommon.Address) bool {
	obj := s.objects[addr]
	return obj != nil && obj.selfDestructed
}

func (s *StateDB) AddLog(l *types.Log) {
	s.journal.append(addLogChange{})
	l.Index = uint(len(s.logs))
	s.logs = append(s.logs, l)
}

func (s *StateDB) Logs() []*types.Log {
	return s.logs
}

// AddAddressToAccessList warms addr and reports whether it was cold.
func (s *StateDB) AddAddressToAccessList(addr ethereumCommon.Address) bool {
	return s.accessList.addAddress(addr)
}

// AddSlotToAccessList warms (addr, slot) and reports whether the slot was cold.
func (s *StateDB) AddSlotToAccessList(addr ethereumCommon.Address, slot ethereumCommon.Hash) bool {
	return s.accessList.addSlot(addr, slot)
}

func (s *StateDB) AddressInAccessList(addr ethereumCommon.Address) bool {
	return s.accessList.containsAddress(addr)
}

func (s *StateDB) SlotInAccessList(addr ethereumCommon.Address, slot ethereumCommon.Hash) (addressOk bool, slotOk bool) {
	return s.accessList.contains(addr, slot)
}

// AccessListSize returns the number of warm addresses and slots.
func (s *StateDB) AccessListSize() (addresses int, slots int) {
	return s.accessList.len()
}

func (s *StateDB) GetBlockHash(ctx context.Context, number uint64) (ethereumCommon.Hash, bool, error) {
	if e, ok := s.blockHashes[number]; ok {
		return e.hash, e.available, nil
	}
	s.backendReads++
	hash, ok, err := s.backend.BlockHash(ctx, number)
	if err != nil {
		return ethereumCommon.Hash{}, false, backendErr(fmt.Sprintf("block hash %d", number), err)
	}
	s.blockHashes[number] = blockHashEntry{hash: hash, available: ok}
	return hash, ok, nil
}

func (s *StateDB) Snapshot() int {
	return s.journal.snapshot()
}

func (s *StateDB) RevertToSnapshot(id int) {
	if !s.journal.revertTo(s, id) {
		panic(fmt.Errorf("revision id %v cannot be reverted", id))
	}
}

// Commit writes every change of the transaction to w in address order.
// Self-destructed and EIP-161 empty accounts are deleted.
func (s *StateDB) Commit(w Writer) error {
	addrs := make([]ethereumCommon.Address, 0, len(s.objects))
	for addr := range s.objects {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b ethereumCommon.Address) int { return a.Cmp(b) })

	for _, addr := range addrs {
		obj := s.objects[addr]
		if obj.selfDestructed || !obj.exists || (obj.dirty && obj.empty()) {
			if obj.origin != nil {
				if err := w.DeleteAccount(addr); err != nil {
					return fmt.Errorf("commit delete %s: %w", addr, err)
				}
				log.Debug(log.StateDBMonitoring, "deleted account", "addr", addr)
			}
			continue
		}
		if !obj.dirty && len(obj.dirtyStorage) == 0 {
			continue
		}
		if obj.fresh && obj.origin != nil {
			if err := w.DeleteAccount(addr); err != nil {
				return fmt.Errorf("commit reset %s: %w", addr, err)
			}
		}
		if obj.dirtyCode {
			if err := w.WriteCode(obj.data.CodeHash, obj.code); err != nil {
				return fmt.Errorf("commit code %s: %w", addr, err)
			}
		}
		keys := make([]ethereumCommon.Hash, 0, len(obj.dirtyStorage))
		for k := range obj.dirtyStorage {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b ethereumCommon.Hash) int { return a.Cmp(b) })
		for _, k := range keys {
			if err := w.WriteStorage(addr, k, obj.dirtyStorage[k]); err != nil {
				return fmt.Errorf("commit storage %s/%s: %w", addr, k, err)
			}
		}
		if err := w.WriteAccount(addr, obj.data.Copy()); err != nil {
			return fmt.Errorf("commit account %s: %w", addr, err)
		}
		log.Debug(log.StateDBMonitoring, "committed account", "addr", addr, "nonce", obj.data.Nonce, "balance", obj.data.Balance, "slots", len(keys))
	}
	return nil
}
