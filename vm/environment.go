package vm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

type BlockEnv struct {
	Number     uint64
	Coinbase   common.Address
	Timestamp  uint64
	GasLimit   uint64
	BaseFee    *uint256.Int
	PrevRandao common.Hash
}

type TxEnv struct {
	Origin     common.Address
	GasPrice   *uint256.Int
	GasLimit   uint64
	To         *common.Address // nil for contract creation
	Value      *uint256.Int
	Data       []byte
	AccessList types.AccessList
}

type CfgEnv struct {
	ChainID         *uint256.Int
	MaxCallDepth    int
	MaxCodeSize     int
	MaxInitCodeSize int
	StepLimit       uint64 // 0 means unlimited
}

// Environment is shared by every frame of one transaction. Frames only read
// it; the top-level driver owns writes.
type Environment struct {
	Block BlockEnv
	Tx    TxEnv
	Cfg   CfgEnv
}

func DefaultEnvironment() *Environment {
	return &Environment{
		Block: BlockEnv{
			Number:   1,
			GasLimit: 30_000_000,
			BaseFee:  new(uint256.Int),
		},
		Tx: TxEnv{
			GasPrice: new(uint256.Int),
			GasLimit: 10_000_000,
			Value:    new(uint256.Int),
		},
		Cfg: CfgEnv{
			ChainID:         uint256.NewInt(1),
			MaxCallDepth:    int(params.CallCreateDepth),
			MaxCodeSize:     params.MaxCodeSize,
			MaxInitCodeSize: params.MaxInitCodeSize,
		},
	}
}
