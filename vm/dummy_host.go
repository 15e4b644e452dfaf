package vm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// DummyHost is an in-memory Host for driving a single frame in tests. It
// tracks warm accounts and slots but does not journal, and it refuses
// nested calls and creates.
type DummyHost struct {
	env           *Environment
	balances      map[common.Address]*uint256.Int
	codes         map[common.Address][]byte
	storage       map[common.Address]map[common.Hash]common.Hash
	original      map[common.Address]map[common.Hash]common.Hash
	blockHashes   map[uint64]common.Hash
	accessList    map[common.Address]map[common.Hash]bool
	selfdestructs map[common.Address]bool
	logs          []*types.Log
}

func NewDummyHost(env *Environment) *DummyHost {
	if env == nil {
		env = DefaultEnvironment()
	}
	return &DummyHost{
		env:           env,
		balances:      make(map[common.Address]*uint256.Int),
		codes:         make(map[common.Address][]byte),
		storage:       make(map[common.Address]map[common.Hash]common.Hash),
		original:      make(map[common.Address]map[common.Hash]common.Hash),
		blockHashes:   make(map[uint64]common.Hash),
		accessList:    make(map[common.Address]map[common.Hash]bool),
		selfdestructs: make(map[common.Address]bool),
	}
}

func (m *DummyHost) SetBalance(addr common.Address, amount *uint256.Int) {
	m.balances[addr] = new(uint256.Int).Set(amount)
}

func (m *DummyHost) SetCode(addr common.Address, code []byte) {
	m.codes[addr] = code
}

func (m *DummyHost) SetState(addr common.Address, key, value common.Hash) {
	if _, ok := m.storage[addr]; !ok {
		m.storage[addr] = make(map[common.Hash]common.Hash)
	}
	m.storage[addr][key] = value
}

func (m *DummyHost) SetBlockHash(number uint64, hash common.Hash) {
	m.blockHashes[number] = hash
}

func (m *DummyHost) GetState(addr common.Address, key common.Hash) common.Hash {
	return m.storage[addr][key]
}

func (m *DummyHost) Logs() []*types.Log {
	return m.logs
}

// AddAddressToAccessList marks addr warm and reports whether it was cold.
func (m *DummyHost) AddAddressToAccessList(addr common.Address) bool {
	if _, ok := m.accessList[addr]; ok {
		return false
	}
	m.accessList[addr] = make(map[common.Hash]bool)
	return true
}

// AddSlotToAccessList marks (addr, slot) warm and reports whether it was cold.
func (m *DummyHost) AddSlotToAccessList(addr common.Address, slot common.Hash) bool {
	m.AddAddressToAccessList(addr)
	existed := m.accessList[addr][slot]
	m.accessList[addr][slot] = true
	return !existed
}

func (m *DummyHost) exists(addr common.Address) bool {
	if b, ok := m.balances[addr]; ok && !b.IsZero() {
		return true
	}
	return len(m.codes[addr]) > 0
}

func (m *DummyHost) Step(interp *Interpreter) Status {
	return Continue
}

func (m *DummyHost) StepEnd(interp *Interpreter, status Status) Status {
	return status
}

func (m *DummyHost) Env() *Environment {
	return m.env
}

func (m *DummyHost) LoadAccount(ctx context.Context, addr common.Address) (AccountLoad, error) {
	return AccountLoad{IsCold: m.AddAddressToAccessList(addr), IsNew: !m.exists(addr)}, nil
}

func (m *DummyHost) BlockHash(ctx context.Context, number uint64) (BlockHashResult, error) {
	h, ok := m.blockHashes[number]
	return BlockHashResult{Hash: h, Available: ok}, nil
}

func (m *DummyHost) Balance(ctx context.Context, addr common.Address) (BalanceResult, error) {
	isCold := m.AddAddressToAccessList(addr)
	if b, ok := m.balances[addr]; ok {
		return BalanceResult{Value: new(uint256.Int).Set(b), IsCold: isCold}, nil
	}
	return BalanceResult{Value: new(uint256.Int), IsCold: isCold}, nil
}

func (m *DummyHost) Code(ctx context.Context, addr common.Address) (CodeResult, error) {
	return CodeResult{Code: m.codes[addr], IsCold: m.AddAddressToAccessList(addr)}, nil
}

func (m *DummyHost) CodeHash(ctx context.Context, addr common.Address) (CodeHashResult, error) {
	isCold := m.AddAddressToAccessList(addr)
	if !m.exists(addr) {
		return CodeHashResult{IsCold: isCold}, nil
	}
	return CodeHashResult{Hash: crypto.Keccak256Hash(m.codes[addr]), IsCold: isCold}, nil
}

func (m *DummyHost) Sload(addr common.Address, key common.Hash) (SloadResult, error) {
	isCold := m.AddSlotToAccessList(addr, key)
	return SloadResult{Value: m.storage[addr][key], IsCold: isCold}, nil
}

func (m *DummyHost) Sstore(addr common.Address, key common.Hash, value common.Hash) (SstoreResult, error) {
	isCold := m.AddSlotToAccessList(addr, key)
	present := m.storage[addr][key]
	if _, ok := m.original[addr]; !ok {
		m.original[addr] = make(map[common.Hash]common.Hash)
	}
	original, ok := m.original[addr][key]
	if !ok {
		original = present
		m.original[addr][key] = present
	}
	m.SetState(addr, key, value)
	return SstoreResult{Original: original, Present: present, New: value, IsCold: isCold}, nil
}

func (m *DummyHost) Log(addr common.Address, topics []common.Hash, data []byte) {
	m.logs = append(m.logs, &types.Log{Address: addr, Topics: topics, Data: data})
}

func (m *DummyHost) SelfDestruct(ctx context.Context, addr common.Address, target common.Address) (SelfDestructResult, error) {
	res := SelfDestructResult{
		HadValue:            m.balances[addr] != nil && !m.balances[addr].IsZero(),
		TargetExists:        m.exists(target),
		IsCold:              m.AddAddressToAccessList(target),
		PreviouslyDestroyed: m.selfdestructs[addr],
		Beneficiary:         target,
	}
	m.selfdestructs[addr] = true
	return res, nil
}

func (m *DummyHost) Create(ctx context.Context, req *CreateRequest) CreateResult {
	return CreateResult{Status: UnsupportedOperation}
}

func (m *DummyHost) Call(ctx context.Context, req *CallRequest) CallResult {
	return CallResult{Status: UnsupportedOperation}
}
