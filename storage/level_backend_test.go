package storage

import (
	"context"
	"testing"

	"github.com/colorfulnotion/evmhost/common"
	"github.com/colorfulnotion/evmhost/statedb"
	"github.com/colorfulnotion/evmhost/vmerrors"
	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	contract = ethereumCommon.HexToAddress("0x00000000000000000000000000000000c0ffee00")
	slotA    = ethereumCommon.HexToHash("0x0a")
	slotB    = ethereumCommon.HexToHash("0x0b")
)

func newBackend(t *testing.T) *LevelBackend {
	t.Helper()
	b, err := OpenLevelBackend("")
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestLevelBackendAccountRoundTrip(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	acct, err := b.Account(ctx, contract)
	require.NoError(t, err)
	assert.Nil(t, acct)

	want := &statedb.Account{Nonce: 7, Balance: uint256.NewInt(12345), CodeHash: common.Keccak256([]byte{0x00})}
	require.NoError(t, b.WriteAccount(contract, want))
	got, err := b.Account(ctx, contract)
	require.NoError(t, err)
	assert.Equal(t, want.Nonce, got.Nonce)
	assert.Equal(t, want.Balance.Uint64(), got.Balance.Uint64())
	assert.Equal(t, want.CodeHash, got.CodeHash)
}

func TestLevelBackendStorageAndDelete(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	require.NoError(t, b.WriteAccount(contract, statedb.NewAccount()))
	require.NoError(t, b.WriteStorage(contract, slotA, ethereumCommon.HexToHash("0x01")))
	require.NoError(t, b.WriteStorage(contract, slotB, ethereumCommon.HexToHash("0xff00")))

	v, err := b.Storage(ctx, contract, slotB)
	require.NoError(t, err)
	assert.Equal(t, ethereumCommon.HexToHash("0xff00"), v)

	require.NoError(t, b.WriteStorage(contract, slotA, ethereumCommon.Hash{}))
	_, slots, _, err := b.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, slots)

	require.NoError(t, b.DeleteAccount(contract))
	accounts, slots, _, err := b.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, accounts)
	assert.Equal(t, 0, slots)
}

func TestLevelBackendCorruptAccount(t *testing.T) {
	b := newBackend(t)
	require.NoError(t, b.store.Put(accountKey(contract), []byte{0xff, 0x01}))
	_, err := b.Account(context.Background(), contract)
	assert.ErrorIs(t, err, vmerrors.ErrCorruptRecord)

	_, err = b.Code(context.Background(), common.Keccak256([]byte{0x01}))
	assert.ErrorIs(t, err, vmerrors.ErrCorruptRecord)
}

func TestLevelBackendServesStateDB(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	code := []byte{0x60, 0x01, 0x60, 0x00, 0x55, 0x00}
	alloc := types.GenesisAlloc{
		contract: {Code: code, Storage: map[ethereumCommon.Hash]ethereumCommon.Hash{slotA: ethereumCommon.HexToHash("0x05")}},
	}
	require.NoError(t, statedb.LoadAlloc(b, alloc))
	require.NoError(t, b.WriteBlockHash(3, ethereumCommon.HexToHash("0xabcd")))

	s := statedb.New(b)
	got, err := s.GetCode(ctx, contract)
	require.NoError(t, err)
	assert.Equal(t, code, got)
	v, err := s.GetState(ctx, contract, slotA)
	require.NoError(t, err)
	assert.Equal(t, ethereumCommon.HexToHash("0x05"), v)
	h, ok, err := s.GetBlockHash(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ethereumCommon.HexToHash("0xabcd"), h)

	require.NoError(t, s.SetState(ctx, contract, slotB, ethereumCommon.HexToHash("0x09")))
	require.NoError(t, s.AddBalance(ctx, contract, uint256.NewInt(3)))
	require.NoError(t, s.Commit(b))

	v, err = b.Storage(ctx, contract, slotB)
	require.NoError(t, err)
	assert.Equal(t, ethereumCommon.HexToHash("0x09"), v)
	acct, err := b.Account(ctx, contract)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), acct.Balance.Uint64())
	assert.Equal(t, common.Keccak256(code), acct.CodeHash)
}
