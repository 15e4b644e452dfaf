package statedb

import (
	"context"
	"errors"
	"testing"

	"github.com/colorfulnotion/evmhost/common"
	"github.com/colorfulnotion/evmhost/vmerrors"
	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = ethereumCommon.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = ethereumCommon.HexToAddress("0x0000000000000000000000000000000000000b0b")
	slot1 = ethereumCommon.HexToHash("0x01")
	v1    = ethereumCommon.HexToHash("0x1111")
	v2    = ethereumCommon.HexToHash("0x2222")
)

func seeded(t *testing.T) *MemoryBackend {
	t.Helper()
	mb := NewMemoryBackend()
	acct := NewAccount()
	acct.Balance = uint256.NewInt(1000)
	require.NoError(t, mb.WriteAccount(alice, acct))
	require.NoError(t, mb.WriteStorage(alice, slot1, v1))
	return mb
}

func TestRevertRestoresStorageAndBalance(t *testing.T) {
	ctx := context.Background()
	s := New(seeded(t))

	snap := s.Snapshot()
	require.NoError(t, s.SetState(ctx, alice, slot1, v2))
	require.NoError(t, s.Transfer(ctx, alice, bob, uint256.NewInt(400)))
	s.AddLog(&types.Log{Address: alice})

	got, err := s.GetState(ctx, alice, slot1)
	require.NoError(t, err)
	assert.Equal(t, v2, got)

	s.RevertToSnapshot(snap)

	got, err = s.GetState(ctx, alice, slot1)
	require.NoError(t, err)
	assert.Equal(t, v1, got)
	bal, err := s.GetBalance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), bal.Uint64())
	exists, err := s.Exist(ctx, bob)
	require.NoError(t, err)
	assert.False(t, exists, "bob was created after the snapshot")
	assert.Empty(t, s.Logs())
}

func TestWarmSetSurvivesRevert(t *testing.T) {
	s := New(NewMemoryBackend())
	snap := s.Snapshot()
	assert.True(t, s.AddAddressToAccessList(bob))
	assert.True(t, s.AddSlotToAccessList(alice, slot1))
	s.RevertToSnapshot(snap)

	assert.False(t, s.AddAddressToAccessList(bob))
	assert.False(t, s.AddSlotToAccessList(alice, slot1))
	addrs, slots := s.AccessListSize()
	assert.Equal(t, 2, addrs)
	assert.Equal(t, 1, slots)
}

func TestNestedSnapshots(t *testing.T) {
	ctx := context.Background()
	s := New(seeded(t))

	outer := s.Snapshot()
	require.NoError(t, s.SetState(ctx, alice, slot1, v2))
	inner := s.Snapshot()
	require.NoError(t, s.SetState(ctx, alice, slot1, ethereumCommon.Hash{}))
	s.RevertToSnapshot(inner)

	got, _ := s.GetState(ctx, alice, slot1)
	assert.Equal(t, v2, got)

	s.RevertToSnapshot(outer)
	got, _ = s.GetState(ctx, alice, slot1)
	assert.Equal(t, v1, got)

	assert.Panics(t, func() { s.RevertToSnapshot(inner) })
}

func TestCommittedStateTracksTransactionStart(t *testing.T) {
	ctx := context.Background()
	s := New(seeded(t))
	require.NoError(t, s.SetState(ctx, alice, slot1, v2))

	orig, err := s.GetCommittedState(ctx, alice, slot1)
	require.NoError(t, err)
	assert.Equal(t, v1, orig)
}

func TestCreateAccountKeepsBalanceDropsStorage(t *testing.T) {
	ctx := context.Background()
	mb := seeded(t)
	s := New(mb)

	snap := s.Snapshot()
	require.NoError(t, s.CreateAccount(ctx, alice))
	got, err := s.GetState(ctx, alice, slot1)
	require.NoError(t, err)
	assert.Equal(t, ethereumCommon.Hash{}, got)
	bal, _ := s.GetBalance(ctx, alice)
	assert.Equal(t, uint64(1000), bal.Uint64())

	s.RevertToSnapshot(snap)
	got, _ = s.GetState(ctx, alice, slot1)
	assert.Equal(t, v1, got)

	require.NoError(t, s.CreateAccount(ctx, alice))
	require.NoError(t, s.SetNonce(ctx, alice, 1))
	require.NoError(t, s.Commit(mb))
	assert.Equal(t, 0, mb.StorageLen(alice))
}

func TestSelfDestructOnce(t *testing.T) {
	ctx := context.Background()
	mb := seeded(t)
	s := New(mb)

	prev, err := s.SelfDestruct(ctx, alice)
	require.NoError(t, err)
	assert.False(t, prev)
	prev, err = s.SelfDestruct(ctx, alice)
	require.NoError(t, err)
	assert.True(t, prev)
	assert.True(t, s.HasSelfDestructed(alice))

	require.NoError(t, s.Commit(mb))
	acct, _ := mb.Account(ctx, alice)
	assert.Nil(t, acct)
	assert.Equal(t, 0, mb.StorageLen(alice))
}

func TestCodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	mb := NewMemoryBackend()
	code := []byte{0x60, 0x00, 0x56}
	mb.SetCode(bob, code)

	s := New(mb)
	got, err := s.GetCode(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, code, got)
	hash, err := s.GetCodeHash(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, common.Keccak256(code), hash)

	missing, err := s.GetCodeHash(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, ethereumCommon.Hash{}, missing)
}

func TestCorruptCodeIsFatal(t *testing.T) {
	mb := NewMemoryBackend()
	mb.SetCode(bob, []byte{0x00})
	acct, _ := mb.Account(context.Background(), bob)
	mb.codes[acct.CodeHash] = []byte{0x01}

	_, err := New(mb).GetCode(context.Background(), bob)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmerrors.ErrCorruptRecord)
}

type failingBackend struct{ *MemoryBackend }

func (failingBackend) Account(context.Context, ethereumCommon.Address) (*Account, error) {
	return nil, errors.New("disk on fire")
}

func TestBackendFailureIsHostError(t *testing.T) {
	_, err := New(failingBackend{NewMemoryBackend()}).GetBalance(context.Background(), alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmerrors.ErrBackendUnavailable)
	assert.True(t, vmerrors.IsHostError(err))
}

func TestCommitDeletesEmptyTouched(t *testing.T) {
	ctx := context.Background()
	mb := seeded(t)
	s := New(mb)
	require.NoError(t, s.Transfer(ctx, alice, bob, uint256.NewInt(1000)))
	require.NoError(t, s.Commit(mb))

	acct, _ := mb.Account(ctx, alice)
	assert.Nil(t, acct, "alice is empty after sending everything")
	acct, _ = mb.Account(ctx, bob)
	require.NotNil(t, acct)
	assert.Equal(t, uint64(1000), acct.Balance.Uint64())
}

func TestLoadAlloc(t *testing.T) {
	mb := NewMemoryBackend()
	alloc := types.GenesisAlloc{
		bob: {
			Code:    []byte{0x00},
			Storage: map[ethereumCommon.Hash]ethereumCommon.Hash{slot1: v1},
			Nonce:   3,
		},
	}
	require.NoError(t, LoadAlloc(mb, alloc))

	ctx := context.Background()
	s := New(mb)
	nonce, _ := s.GetNonce(ctx, bob)
	assert.Equal(t, uint64(3), nonce)
	v, _ := s.GetState(ctx, bob, slot1)
	assert.Equal(t, v1, v)
	code, _ := s.GetCode(ctx, bob)
	assert.Equal(t, []byte{0x00}, code)
}

func TestBlockHashCached(t *testing.T) {
	mb := NewMemoryBackend()
	require.NoError(t, mb.WriteBlockHash(7, v1))
	s := New(mb)

	h, ok, err := s.GetBlockHash(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, v1, h)
	reads := s.BackendReads()
	_, ok, _ = s.GetBlockHash(context.Background(), 7)
	assert.True(t, ok)
	assert.Equal(t, reads, s.BackendReads())

	_, ok, _ = s.GetBlockHash(context.Background(), 8)
	assert.False(t, ok)
}
