package chainspecs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/colorfulnotion/evmhost/common"
	"github.com/colorfulnotion/evmhost/host"
	"github.com/colorfulnotion/evmhost/statedb"
	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var counter = ethereumCommon.HexToAddress("0x000000000000000000000000000000000000c0de")

func TestReadDevSpec(t *testing.T) {
	spec, err := ReadSpec("dev")
	require.NoError(t, err)
	assert.Equal(t, "dev", spec.ID)

	env, err := spec.Environment()
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), env.Cfg.ChainID.Uint64())
	assert.Equal(t, uint64(16), env.Block.Number)
	assert.Equal(t, uint64(30_000_000), env.Block.GasLimit)
	assert.Equal(t, uint64(7), env.Block.BaseFee.Uint64())
	assert.Equal(t, uint64(10_000_000), env.Cfg.StepLimit)
	assert.Equal(t, 1024, env.Cfg.MaxCallDepth)

	dev0, _ := common.GetEVMDevAccount(0)
	assert.Contains(t, spec.Alloc, dev0)
}

func TestApplyAndRunCounter(t *testing.T) {
	spec, err := ReadSpec("dev")
	require.NoError(t, err)
	mb := statedb.NewMemoryBackend()
	require.NoError(t, spec.Apply(mb))

	ctx := context.Background()
	h, ok, err := mb.BlockHash(ctx, 15)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, byte(0x0f), h[31])

	env, err := spec.Environment()
	require.NoError(t, err)
	dev0, _ := common.GetEVMDevAccount(0)
	env.Tx.Origin = dev0
	env.Tx.To = &counter
	env.Tx.GasPrice = env.Block.BaseFee

	res, err := host.New(env, statedb.New(mb)).Execute(ctx, mb)
	require.NoError(t, err)
	require.False(t, res.Failed())
	assert.Equal(t, ethereumCommon.HexToHash("0x2a").Bytes(), res.Output)

	v, err := mb.Storage(ctx, counter, ethereumCommon.Hash{})
	require.NoError(t, err)
	assert.Equal(t, ethereumCommon.HexToHash("0x2a"), v)
}

func TestReadSpecFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"x","env":{"maxCallDepth":2},"alloc":{}}`), 0o644))
	spec, err := ReadSpec(path)
	require.NoError(t, err)
	env, err := spec.Environment()
	require.NoError(t, err)
	assert.Equal(t, 2, env.Cfg.MaxCallDepth)

	require.NoError(t, os.WriteFile(path, []byte(`{"id":"x","blockHashes":{"ten":"0x01"},"alloc":{}}`), 0o644))
	_, err = ReadSpec(path)
	assert.Error(t, err)

	_, err = ReadSpec(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
