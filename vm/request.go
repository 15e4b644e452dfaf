package vm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type CallKind uint8

const (
	KindCall CallKind = iota
	KindStaticCall
	KindDelegateCall
	KindCallCode
	KindCreate
	KindCreate2
)

func (k CallKind) String() string {
	switch k {
	case KindCall:
		return "CALL"
	case KindStaticCall:
		return "STATICCALL"
	case KindDelegateCall:
		return "DELEGATECALL"
	case KindCallCode:
		return "CALLCODE"
	case KindCreate:
		return "CREATE"
	case KindCreate2:
		return "CREATE2"
	default:
		return fmt.Sprintf("CallKind(%d)", uint8(k))
	}
}

// CallRequest describes one nested call. Target is the account whose storage
// and balance the frame runs against; CodeAddress is where the code lives.
// For DELEGATECALL Value is the apparent value and nothing is transferred.
type CallRequest struct {
	Kind        CallKind
	Caller      common.Address
	Target      common.Address
	CodeAddress common.Address
	Value       *uint256.Int
	Input       []byte
	GasLimit    uint64
	IsStatic    bool

	claimed bool
}

// TransfersValue reports whether dispatch moves Value from Caller to Target.
func (r *CallRequest) TransfersValue() bool {
	if r.Value == nil || r.Value.IsZero() {
		return false
	}
	return r.Kind == KindCall || r.Kind == KindCallCode
}

// Claim marks the request as dispatched. It returns false if it already was.
func (r *CallRequest) Claim() bool {
	if r.claimed {
		return false
	}
	r.claimed = true
	return true
}

// CreateRequest describes CREATE or CREATE2. The new address is derived by
// the host.
type CreateRequest struct {
	Kind     CallKind
	Caller   common.Address
	Value    *uint256.Int
	InitCode []byte
	Salt     *uint256.Int
	GasLimit uint64

	claimed bool
}

func (r *CreateRequest) Claim() bool {
	if r.claimed {
		return false
	}
	r.claimed = true
	return true
}

// CallResult is what a nested call hands back. Err is set only with
// FatalHostError.
type CallResult struct {
	Status    Status
	GasLeft   uint64
	GasRefund int64
	Output    []byte
	Err       error
}

// CreateResult is CallResult plus the derived address; Address is nil when
// dispatch stopped before deriving one.
type CreateResult struct {
	Status    Status
	Address   *common.Address
	GasLeft   uint64
	GasRefund int64
	Output    []byte
	Err       error
}

// SelfDestructResult carries the facts the interpreter needs to price
// SELFDESTRUCT. Only a first request is refund eligible.
type SelfDestructResult struct {
	HadValue            bool
	TargetExists        bool
	IsCold              bool
	PreviouslyDestroyed bool
	Beneficiary         common.Address
}
