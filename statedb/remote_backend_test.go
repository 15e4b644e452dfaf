package statedb

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/colorfulnotion/evmhost/vmerrors"
	"github.com/ethereum/go-ethereum"
	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	balances map[ethereumCommon.Address]*big.Int
	codes    map[ethereumCommon.Address][]byte
	slots    map[ethereumCommon.Hash][]byte
	calls    int
	fail     error
}

func (f *fakeChain) BalanceAt(_ context.Context, a ethereumCommon.Address, _ *big.Int) (*big.Int, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	if b, ok := f.balances[a]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func (f *fakeChain) NonceAt(context.Context, ethereumCommon.Address, *big.Int) (uint64, error) {
	f.calls++
	return 0, nil
}

func (f *fakeChain) CodeAt(_ context.Context, a ethereumCommon.Address, _ *big.Int) ([]byte, error) {
	f.calls++
	return f.codes[a], nil
}

func (f *fakeChain) StorageAt(_ context.Context, _ ethereumCommon.Address, key ethereumCommon.Hash, _ *big.Int) ([]byte, error) {
	f.calls++
	return f.slots[key], nil
}

func (f *fakeChain) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	f.calls++
	if n.Uint64() == 0 {
		return nil, ethereum.NotFound
	}
	return &types.Header{Number: n}, nil
}

func TestRemoteBackendNeedsBlock(t *testing.T) {
	_, err := NewRemoteBackend(&fakeChain{}, nil)
	assert.ErrorIs(t, err, vmerrors.ErrBlockNotPinned)
}

func TestRemoteBackendCaches(t *testing.T) {
	chain := &fakeChain{
		balances: map[ethereumCommon.Address]*big.Int{alice: big.NewInt(5)},
		codes:    map[ethereumCommon.Address][]byte{alice: {0x00}},
		slots:    map[ethereumCommon.Hash][]byte{slot1: {0x11, 0x11}},
	}
	rb, err := NewRemoteBackend(chain, big.NewInt(100))
	require.NoError(t, err)
	s := New(rb)
	ctx := context.Background()

	bal, err := s.GetBalance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), bal.Uint64())
	code, err := s.GetCode(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, code)
	v, err := s.GetState(ctx, alice, slot1)
	require.NoError(t, err)
	assert.Equal(t, v1, v)

	calls := chain.calls
	_, err = rb.Account(ctx, alice)
	require.NoError(t, err)
	_, err = rb.Storage(ctx, alice, slot1)
	require.NoError(t, err)
	assert.Equal(t, calls, chain.calls)

	acct, err := rb.Account(ctx, bob)
	require.NoError(t, err)
	assert.Nil(t, acct)
}

func TestRemoteBackendBlockHash(t *testing.T) {
	rb, err := NewRemoteBackend(&fakeChain{}, big.NewInt(10))
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := rb.BlockHash(ctx, 11)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = rb.BlockHash(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	h, ok, err := rb.BlockHash(ctx, 9)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, (&types.Header{Number: big.NewInt(9)}).Hash(), h)
}

func TestRemoteBackendFailures(t *testing.T) {
	rb, err := NewRemoteBackend(&fakeChain{fail: errors.New("connection refused")}, big.NewInt(1))
	require.NoError(t, err)
	_, err = rb.Account(context.Background(), alice)
	assert.ErrorIs(t, err, vmerrors.ErrBackendUnavailable)

	rb, _ = NewRemoteBackend(&fakeChain{fail: context.Canceled}, big.NewInt(1))
	_, err = rb.Account(context.Background(), alice)
	assert.ErrorIs(t, err, vmerrors.ErrCancelled)

	assert.ErrorIs(t, rb.WriteAccount(alice, NewAccount()), vmerrors.ErrReadOnlyBackend)
	assert.ErrorIs(t, rb.DeleteAccount(alice), vmerrors.ErrReadOnlyBackend)
}
