package statedb

import (
	"context"
	"sync"

	"github.com/colorfulnotion/evmhost/common"
	ethereumCommon "github.com/ethereum/go-ethereum/common"
)

// MemoryBackend is a map-backed Backend and Writer. It serves prestates and
// tests.
type MemoryBackend struct {
	mu          sync.RWMutex
	accounts    map[ethereumCommon.Address]*Account
	storage     map[ethereumCommon.Address]map[ethereumCommon.Hash]ethereumCommon.Hash
	codes       map[ethereumCommon.Hash][]byte
	blockHashes map[uint64]ethereumCommon.Hash
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		accounts:    make(map[ethereumCommon.Address]*Account),
		storage:     make(map[ethereumCommon.Address]map[ethereumCommon.Hash]ethereumCommon.Hash),
		codes:       make(map[ethereumCommon.Hash][]byte),
		blockHashes: make(map[uint64]ethereumCommon.Hash),
	}
}

func (m *MemoryBackend) Account(_ context.Context, addr ethereumCommon.Address) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accounts[addr].Copy(), nil
}

func (m *MemoryBackend) Storage(_ context.Context, addr ethereumCommon.Address, key ethereumCommon.Hash) (ethereumCommon.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.storage[addr][key], nil
}

func (m *MemoryBackend) Code(_ context.Context, codeHash ethereumCommon.Hash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.codes[codeHash], nil
}

func (m *MemoryBackend) BlockHash(_ context.Context, number uint64) (ethereumCommon.Hash, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.blockHashes[number]
	return h, ok, nil
}

func (m *MemoryBackend) WriteAccount(addr ethereumCommon.Address, acct *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[addr] = acct.Copy()
	return nil
}

// WriteStorage deletes the slot when value is zero.
func (m *MemoryBackend) WriteStorage(addr ethereumCommon.Address, key, value ethereumCommon.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if common.IsNilHash(value) {
		delete(m.storage[addr], key)
		return nil
	}
	slots := m.storage[addr]
	if slots == nil {
		slots = make(map[ethereumCommon.Hash]ethereumCommon.Hash)
		m.storage[addr] = slots
	}
	slots[key] = value
	return nil
}

func (m *MemoryBackend) WriteCode(codeHash ethereumCommon.Hash, code []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[codeHash] = append([]byte(nil), code...)
	return nil
}

func (m *MemoryBackend) DeleteAccount(addr ethereumCommon.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, addr)
	delete(m.storage, addr)
	return nil
}

func (m *MemoryBackend) WriteBlockHash(number uint64, hash ethereumCommon.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockHashes[number] = hash
	return nil
}

// SetCode installs code for addr, creating the account if needed.
func (m *MemoryBackend) SetCode(addr ethereumCommon.Address, code []byte) {
	hash := common.Keccak256(code)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[hash] = append([]byte(nil), code...)
	acct := m.accounts[addr]
	if acct == nil {
		acct = NewAccount()
		m.accounts[addr] = acct
	}
	acct.CodeHash = hash
}

// StorageLen returns the number of non-zero slots held for addr.
func (m *MemoryBackend) StorageLen(addr ethereumCommon.Address) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.storage[addr])
}

// Addresses returns every account held, unordered.
func (m *MemoryBackend) Addresses() []ethereumCommon.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ethereumCommon.Address, 0, len(m.accounts))
	for addr := range m.accounts {
		out = append(out, addr)
	}
	return out
}
