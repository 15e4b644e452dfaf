// Package chainspecs loads prestates: the block and chain environment plus
// the accounts a run starts from.
package chainspecs

import (
	"embed"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/colorfulnotion/evmhost/statedb"
	"github.com/colorfulnotion/evmhost/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

//go:embed *.json
var configFS embed.FS

var networkFile = map[string]string{
	"dev": "dev-spec.json",
}

// EnvSpec is the JSON form of vm.BlockEnv and vm.CfgEnv. Absent fields keep
// the defaults of vm.DefaultEnvironment.
type EnvSpec struct {
	ChainID         *math.HexOrDecimal256 `json:"chainId,omitempty"`
	Number          *math.HexOrDecimal64  `json:"number,omitempty"`
	Timestamp       *math.HexOrDecimal64  `json:"timestamp,omitempty"`
	Coinbase        *common.Address       `json:"coinbase,omitempty"`
	GasLimit        *math.HexOrDecimal64  `json:"gasLimit,omitempty"`
	BaseFee         *math.HexOrDecimal256 `json:"baseFee,omitempty"`
	PrevRandao      *common.Hash          `json:"prevRandao,omitempty"`
	MaxCallDepth    *int                  `json:"maxCallDepth,omitempty"`
	MaxCodeSize     *int                  `json:"maxCodeSize,omitempty"`
	MaxInitCodeSize *int                  `json:"maxInitCodeSize,omitempty"`
	StepLimit       *math.HexOrDecimal64  `json:"stepLimit,omitempty"`
}

type ChainSpec struct {
	ID          string                 `json:"id"`
	Env         EnvSpec                `json:"env"`
	BlockHashes map[string]common.Hash `json:"blockHashes,omitempty"`
	Alloc       types.GenesisAlloc     `json:"alloc"`
}

// ReadSpec resolves id as an embedded spec name first, then as a file path.
func ReadSpec(id string) (spec *ChainSpec, err error) {
	var data []byte
	path, ok := networkFile[id]
	if ok {
		data, err = configFS.ReadFile(path)
		if err != nil {
			return spec, err
		}
	} else {
		data, err = os.ReadFile(id)
		if err != nil {
			return spec, err
		}
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("chainspec %s: %w", id, err)
	}
	if _, err := spec.blockHashes(); err != nil {
		return spec, fmt.Errorf("chainspec %s: %w", id, err)
	}
	return spec, nil
}

func u256(v *math.HexOrDecimal256) (*uint256.Int, error) {
	out, overflow := uint256.FromBig((*big.Int)(v))
	if overflow {
		return nil, fmt.Errorf("value %v overflows 256 bits", v)
	}
	return out, nil
}

// Environment builds a fresh environment with the spec's overrides applied.
func (cs *ChainSpec) Environment() (*vm.Environment, error) {
	env := vm.DefaultEnvironment()
	e := cs.Env
	if e.ChainID != nil {
		id, err := u256(e.ChainID)
		if err != nil {
			return nil, fmt.Errorf("chainId: %w", err)
		}
		env.Cfg.ChainID = id
	}
	if e.Number != nil {
		env.Block.Number = uint64(*e.Number)
	}
	if e.Timestamp != nil {
		env.Block.Timestamp = uint64(*e.Timestamp)
	}
	if e.Coinbase != nil {
		env.Block.Coinbase = *e.Coinbase
	}
	if e.GasLimit != nil {
		env.Block.GasLimit = uint64(*e.GasLimit)
	}
	if e.BaseFee != nil {
		fee, err := u256(e.BaseFee)
		if err != nil {
			return nil, fmt.Errorf("baseFee: %w", err)
		}
		env.Block.BaseFee = fee
	}
	if e.PrevRandao != nil {
		env.Block.PrevRandao = *e.PrevRandao
	}
	if e.MaxCallDepth != nil {
		env.Cfg.MaxCallDepth = *e.MaxCallDepth
	}
	if e.MaxCodeSize != nil {
		env.Cfg.MaxCodeSize = *e.MaxCodeSize
	}
	if e.MaxInitCodeSize != nil {
		env.Cfg.MaxInitCodeSize = *e.MaxInitCodeSize
	}
	if e.StepLimit != nil {
		env.Cfg.StepLimit = uint64(*e.StepLimit)
	}
	return env, nil
}

func (cs *ChainSpec) blockHashes() (map[uint64]common.Hash, error) {
	out := make(map[uint64]common.Hash, len(cs.BlockHashes))
	for k, h := range cs.BlockHashes {
		n, err := strconv.ParseUint(k, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("block hash key %q: %w", k, err)
		}
		out[n] = h
	}
	return out, nil
}

// BlockHashWriter is implemented by backends that can store block hashes.
type BlockHashWriter interface {
	WriteBlockHash(number uint64, hash common.Hash) error
}

// Apply writes the allocation, and the block hashes when w can hold them.
func (cs *ChainSpec) Apply(w statedb.Writer) error {
	if err := statedb.LoadAlloc(w, cs.Alloc); err != nil {
		return err
	}
	bw, ok := w.(BlockHashWriter)
	if !ok {
		return nil
	}
	hashes, err := cs.blockHashes()
	if err != nil {
		return err
	}
	for n, h := range hashes {
		if err := bw.WriteBlockHash(n, h); err != nil {
			return err
		}
	}
	return nil
}
