package host

import (
	"context"
	"errors"
	"testing"

	"github.com/colorfulnotion/evmhost/statedb"
	"github.com/colorfulnotion/evmhost/tracer"
	"github.com/colorfulnotion/evmhost/vm"
	"github.com/colorfulnotion/evmhost/vmerrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordFrame stores CALLER at 1, ADDRESS at 2 and CALLVALUE at 3.
var recordFrame = code(
	vm.CALLER, vm.PUSH1, byte(1), vm.SSTORE,
	vm.ADDRESS, vm.PUSH1, byte(2), vm.SSTORE,
	vm.CALLVALUE, vm.PUSH1, byte(3), vm.SSTORE,
	vm.STOP,
)

// callVia calls callee with op, forwarding all gas, and stores the success
// flag at 0x10.
func callVia(op vm.OpCode, value byte) []byte {
	parts := []interface{}{
		vm.PUSH1, byte(0), vm.PUSH1, byte(0), vm.PUSH1, byte(0), vm.PUSH1, byte(0),
	}
	if op == vm.CALL || op == vm.CALLCODE {
		parts = append(parts, vm.PUSH1, value)
	}
	parts = append(parts, vm.PUSH20, callee, vm.GAS, op, vm.PUSH1, byte(0x10), vm.SSTORE, vm.STOP)
	return code(parts...)
}

func word(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func slot(n byte) common.Hash {
	return common.BytesToHash([]byte{n})
}

func TestCallKindsStorageAndCaller(t *testing.T) {
	zero := common.Hash{}
	tests := []struct {
		name     string
		op       vm.OpCode
		value    byte
		success  common.Hash
		contract [3]common.Hash // slots 1..3
		callee   [3]common.Hash
	}{
		{
			name: "call runs in the callee", op: vm.CALL, success: slot(1),
			callee: [3]common.Hash{word(contract), word(callee), zero},
		},
		{
			name: "callcode runs in the caller", op: vm.CALLCODE, value: 3, success: slot(1),
			contract: [3]common.Hash{word(contract), word(contract), slot(3)},
		},
		{
			name: "delegatecall keeps caller and value", op: vm.DELEGATECALL, success: slot(1),
			contract: [3]common.Hash{word(origin), word(contract), slot(5)},
		},
		{
			name: "staticcall rejects the nested store", op: vm.STATICCALL, success: zero,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			mb := fundedBackend(t)
			mb.SetCode(callee, recordFrame)
			mb.SetCode(contract, callVia(tc.op, tc.value))
			h := newTestHost(mb)
			h.env.Tx.Value = uint256.NewInt(5)
			callTx(h, contract)

			res, err := h.Execute(ctx, mb)
			require.NoError(t, err)
			require.Equal(t, vm.Stop, res.Status)

			got, err := mb.Storage(ctx, contract, slot(0x10))
			require.NoError(t, err)
			assert.Equal(t, tc.success, got, "success flag")
			for i := 0; i < 3; i++ {
				got, err := mb.Storage(ctx, contract, slot(byte(i+1)))
				require.NoError(t, err)
				assert.Equal(t, tc.contract[i], got, "contract slot %d", i+1)
				got, err = mb.Storage(ctx, callee, slot(byte(i+1)))
				require.NoError(t, err)
				assert.Equal(t, tc.callee[i], got, "callee slot %d", i+1)
			}

			// value is checked but never leaves the contract for CALLCODE
			acct, err := mb.Account(ctx, contract)
			require.NoError(t, err)
			require.NotNil(t, acct)
			assert.Equal(t, uint64(5), acct.Balance.Uint64())
		})
	}
}

var revertInit = code(vm.PUSH1, byte(0xab), vm.PUSH1, byte(0), vm.MSTORE8, vm.PUSH1, byte(1), vm.PUSH1, byte(0), vm.REVERT)

func TestCreateOpcodesFromContract(t *testing.T) {
	ctx := context.Background()
	mb := fundedBackend(t)
	// Each init code is 10 bytes, stored right-aligned in the first word.
	mb.SetCode(contract, code(
		vm.PUSH10, deployStop, vm.PUSH1, byte(0), vm.MSTORE,
		vm.PUSH1, byte(10), vm.PUSH1, byte(22), vm.PUSH1, byte(0), vm.CREATE, vm.PUSH1, byte(0x20), vm.SSTORE,
		vm.RETURNDATASIZE, vm.PUSH1, byte(0x24), vm.SSTORE,
		vm.PUSH1, byte(0x2a), vm.PUSH1, byte(10), vm.PUSH1, byte(22), vm.PUSH1, byte(0), vm.CREATE2, vm.PUSH1, byte(0x21), vm.SSTORE,
		vm.PUSH10, revertInit, vm.PUSH1, byte(0), vm.MSTORE,
		vm.PUSH1, byte(10), vm.PUSH1, byte(22), vm.PUSH1, byte(0), vm.CREATE, vm.PUSH1, byte(0x22), vm.SSTORE,
		vm.RETURNDATASIZE, vm.PUSH1, byte(0x23), vm.SSTORE,
		vm.STOP,
	))
	h := newTestHost(mb)
	callTx(h, contract)

	res, err := h.Execute(ctx, mb)
	require.NoError(t, err)
	require.Equal(t, vm.Stop, res.Status)

	created := crypto.CreateAddress(contract, 0)
	salted := crypto.CreateAddress2(contract, uint256.NewInt(0x2a).Bytes32(), crypto.Keccak256(deployStop))
	want := map[common.Hash]common.Hash{
		slot(0x20): word(created),
		slot(0x21): word(salted),
		slot(0x22): {},
		slot(0x23): slot(1),
		slot(0x24): {},
	}
	for k, v := range want {
		got, err := mb.Storage(ctx, contract, k)
		require.NoError(t, err)
		assert.Equal(t, v, got, "slot %s", k.Hex())
	}

	s := statedb.New(mb)
	for _, addr := range []common.Address{created, salted} {
		deployed, err := s.GetCode(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00}, deployed)
	}
	nonce, err := s.GetNonce(ctx, contract)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), nonce, "every create bumps the caller nonce, reverted ones too")
	acct, err := mb.Account(ctx, crypto.CreateAddress(contract, 2))
	require.NoError(t, err)
	assert.Nil(t, acct)
}

// failingAccount fails account reads for one address.
type failingAccount struct {
	*statedb.MemoryBackend
	bad common.Address
}

func (f failingAccount) Account(ctx context.Context, addr common.Address) (*statedb.Account, error) {
	if addr == f.bad {
		return nil, errors.New("connection reset")
	}
	return f.MemoryBackend.Account(ctx, addr)
}

func TestCreateLookupFailureClosesFrame(t *testing.T) {
	mb := fundedBackend(t)
	// CREATE(0, 0, 0) STOP
	mb.SetCode(contract, code(vm.PUSH1, byte(0), vm.PUSH1, byte(0), vm.PUSH1, byte(0), vm.CREATE, vm.STOP))
	h := newTestHost(failingAccount{mb, crypto.CreateAddress(contract, 0)})
	calls := tracer.NewCallTracer()
	h.SetTracer(calls)
	callTx(h, contract)

	_, err := h.Execute(context.Background(), mb)
	require.ErrorIs(t, err, vmerrors.ErrBackendUnavailable)

	root := calls.Root()
	require.NotNil(t, root)
	assert.Equal(t, vm.FatalHostError.String(), root.Status)
	require.Len(t, root.Calls, 1)
	inner := root.Calls[0]
	assert.Equal(t, vm.KindCreate.String(), inner.Type)
	assert.Equal(t, vm.FatalHostError.String(), inner.Status)
	assert.Contains(t, inner.Error, "BackendUnavailable")
}

func TestHostRunsOneTransaction(t *testing.T) {
	h := newTestHost(fundedBackend(t))
	callTx(h, heir)

	h.env.Tx.GasLimit = 20_000
	_, err := h.Execute(context.Background(), nil)
	require.ErrorIs(t, err, vmerrors.ErrIntrinsicGas)

	h.env.Tx.GasLimit = 100_000
	_, err = h.Execute(context.Background(), nil)
	require.NoError(t, err, "a rejected transaction leaves the host unused")

	_, err = h.Execute(context.Background(), nil)
	assert.ErrorIs(t, err, vmerrors.ErrHostSpent)
}
